package domain

type (
	RoomID   string
	StreamID string
)

func (id RoomID) String() string   { return string(id) }
func (id StreamID) String() string { return string(id) }

// ConnectionState is the lifecycle of one room session.
// Disconnected is re-entered from any state when the channel drops.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	JoinedRoom
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case JoinedRoom:
		return "joined_room"
	default:
		return "unknown"
	}
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MembershipDelta is the result of comparing two membership snapshots.
// It is never stored; the session consumes it right away.
type MembershipDelta struct {
	Joined []StreamID
	Left   []StreamID
}

func (d MembershipDelta) Empty() bool {
	return len(d.Joined) == 0 && len(d.Left) == 0
}
