package main

import (
	"github.com/rs/zerolog"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

// logDelegate reports session events to the log. It stands in for the
// media layer that would normally publish and play the streams.
type logDelegate struct {
	log zerolog.Logger
}

var (
	_ core.Delegate           = (*logDelegate)(nil)
	_ core.ConnectionDelegate = (*logDelegate)(nil)
)

func newLogDelegate(l zerolog.Logger) *logDelegate {
	return &logDelegate{log: l.With().Str("module", "delegate").Logger()}
}

func (d *logDelegate) StreamIDToPublish(id domain.StreamID) {
	d.log.Info().Str("stream", id.String()).Msg("publish stream")
}

func (d *logDelegate) NewStreamsJoined(ids []domain.StreamID) {
	d.log.Info().Strs("streams", toStrings(ids)).Msg("streams joined")
}

func (d *logDelegate) StreamsLeaved(ids []domain.StreamID) {
	d.log.Info().Strs("streams", toStrings(ids)).Msg("streams left")
}

func (d *logDelegate) CurrentListenerCount(n int) {
	d.log.Info().Int("listeners", n).Msg("listener count")
}

func (d *logDelegate) ConnectionChanged(state domain.ConnectionState, err error) {
	ev := d.log.Info()
	if err != nil {
		ev = d.log.Warn().Err(err)
	}
	ev.Stringer("state", state).Msg("connection changed")
}

func toStrings(ids []domain.StreamID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
