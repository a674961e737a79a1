package core

import (
	"context"

	"github.com/dkeye/confclient/internal/domain"
)

//go:generate mockgen -destination=mocks/stats_fetcher.go -package=mocks . StatsFetcher

// StatsFetcher asks the statistics endpoint for the watcher count of a
// published stream. Requests are idempotent and safe to repeat.
type StatsFetcher interface {
	ListenerCount(ctx context.Context, streamID domain.StreamID) (int, error)
}
