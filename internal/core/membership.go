package core

import "github.com/dkeye/confclient/internal/domain"

// Reconcile computes which ids joined and which left between two
// membership snapshots. Joined keeps the order of next, Left the order of
// prev; an id never appears in both.
func Reconcile(prev, next []domain.StreamID) domain.MembershipDelta {
	before := toSet(prev)
	after := toSet(next)

	var d domain.MembershipDelta
	seen := make(map[domain.StreamID]struct{}, len(next))
	for _, id := range next {
		if _, ok := before[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		d.Joined = append(d.Joined, id)
	}
	clear(seen)
	for _, id := range prev {
		if _, ok := after[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		d.Left = append(d.Left, id)
	}
	return d
}

// Dedupe drops repeated ids, keeping the first occurrence.
func Dedupe(ids []domain.StreamID) []domain.StreamID {
	out := make([]domain.StreamID, 0, len(ids))
	seen := make(map[domain.StreamID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toSet(ids []domain.StreamID) map[domain.StreamID]struct{} {
	s := make(map[domain.StreamID]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
