package session

import (
	"context"

	"github.com/dkeye/confclient/internal/protocol"
)

// startRoomPoll replaces any running room poll. Each poll carries a
// generation; ticks from an older generation are dropped by the run
// goroutine, so a tick already in flight when the poll is stopped never
// reaches the wire.
func (s *Session) startRoomPoll() {
	s.stopRoomPoll()
	s.st.pollGen++
	gen := s.st.pollGen

	ctx, cancel := context.WithCancel(s.ctx)
	ticker := s.clock.Ticker(s.opts.RoomPollInterval)
	s.st.pollCancel = func() {
		cancel()
		ticker.Stop()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case s.inbox <- roomPollTick{gen: gen}:
				case <-ctx.Done():
					return
				case <-s.quit:
					return
				}
			}
		}
	}()
}

func (s *Session) stopRoomPoll() {
	s.st.pollGen++
	if s.st.pollCancel != nil {
		s.st.pollCancel()
		s.st.pollCancel = nil
	}
}

func (s *Session) handleRoomPollTick(gen uint64) {
	if s.st.pollCancel == nil || gen != s.st.pollGen {
		s.logger.Debug().Uint64("gen", gen).Uint64("current", s.st.pollGen).Msg("stale room poll tick dropped")
		return
	}
	s.send(protocol.GetStreamInfo(s.st.roomID, s.st.streamID))
}
