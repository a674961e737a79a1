package session

import (
	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
	"github.com/dkeye/confclient/internal/protocol"
)

func (s *Session) handleJoin(req joinRequest) {
	if s.st.roomID != "" && s.st.roomID != req.room {
		s.switchRoom()
	}
	s.st.roomID = req.room
	s.st.streamID = req.stream
	s.st.confirmed = false
	s.st.joinPending = true
	s.logger.Info().Str("room", string(req.room)).Str("stream", string(req.stream)).Msg("join requested")

	switch s.st.conn {
	case domain.Disconnected:
		s.setState(domain.Connecting, nil)
		s.channel.Open(s.ctx, channelEvents{s: s})
	case domain.Connecting:
		// join goes out once the channel reports connected
	case domain.Connected, domain.JoinedRoom:
		s.send(protocol.JoinRoom(s.st.roomID, s.st.streamID))
	}
}

func (s *Session) handleLeave() {
	s.stopRoomPoll()
	if s.st.roomID == "" {
		return
	}
	if s.st.conn == domain.Connected || s.st.conn == domain.JoinedRoom {
		s.send(protocol.LeaveRoom(s.st.roomID, s.st.streamID))
	}
	s.logger.Info().Str("room", string(s.st.roomID)).Msg("left room")
	s.st.roomID = ""
	s.st.joinPending = false
	s.st.members = nil
	if s.st.conn == domain.JoinedRoom {
		s.setState(domain.Connected, nil)
	}
}

func (s *Session) handleConnected() {
	if s.st.conn != domain.Connecting {
		s.logger.Debug().Str("state", s.st.conn.String()).Msg("ignoring connect outside connecting state")
		return
	}
	s.setState(domain.Connected, nil)
	if s.st.roomID == "" {
		return
	}
	s.send(protocol.JoinRoom(s.st.roomID, s.st.streamID))
}

func (s *Session) handleDisconnected(err error) {
	s.stopRoomPoll()
	s.st.joinPending = false
	s.setState(domain.Disconnected, err)
}

func (s *Session) handleText(data core.Frame) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn().Err(err).Int("len", len(data)).Msg("dropping undecodable message")
		return
	}

	switch {
	case msg.IsJoinedNotification():
		s.handleJoined(msg)
	case msg.Command == protocol.CmdRoomInformation:
		s.handleRoomInformation(msg)
	case msg.Command == protocol.CmdNotification:
		s.logger.Debug().Str("definition", msg.Definition).Msg("notification ignored")
	default:
		s.logger.Debug().Str("command", msg.Command).Msg("unknown command ignored")
	}
}

// handleJoined confirms the pending join: it adopts the server's stream id
// and replaces membership wholesale. A confirmation nobody asked for is
// dropped so the confirmed stream id only changes on an explicit join.
func (s *Session) handleJoined(msg protocol.Message) {
	if !s.st.joinPending {
		s.logger.Debug().Str("stream", string(msg.StreamID)).Msg("joined notification without pending join ignored")
		return
	}
	s.st.joinPending = false
	if msg.StreamID != "" {
		s.st.streamID = msg.StreamID
	}
	s.st.confirmed = true

	if s.st.streamID != "" {
		s.emit(core.StreamIDToPublish{ID: s.st.streamID})
	} else {
		s.logger.Warn().Msg("joined without a stream id")
	}

	if msg.Streams != nil {
		s.st.members = core.Dedupe(msg.Streams)
		s.emit(core.StreamsJoined{IDs: clone(s.st.members)})
	}

	s.setState(domain.JoinedRoom, nil)
	s.logger.Info().
		Str("room", string(s.st.roomID)).
		Str("stream", string(s.st.streamID)).
		Int("members", len(s.st.members)).
		Msg("joined room")

	s.startRoomPoll()
	if s.poller != nil {
		s.poller.SetStreamID(s.st.streamID)
	}
}

// handleRoomInformation needs the membership baseline set by a join
// confirmation, so it is ignored outside a room and while a join is pending.
func (s *Session) handleRoomInformation(msg protocol.Message) {
	if s.st.conn != domain.JoinedRoom || s.st.joinPending {
		s.logger.Debug().Msg("room information without a confirmed room ignored")
		return
	}
	if msg.Streams == nil {
		s.logger.Debug().Msg("room information without streams ignored")
		return
	}
	s.applyMembership(core.Dedupe(msg.Streams))
}

// applyMembership announces arrivals before departures and then stores
// next, even when nothing changed but the order.
func (s *Session) applyMembership(next []domain.StreamID) {
	delta := core.Reconcile(s.st.members, next)
	if len(delta.Joined) > 0 {
		s.emit(core.StreamsJoined{IDs: delta.Joined})
	}
	if len(delta.Left) > 0 {
		s.emit(core.StreamsLeft{IDs: delta.Left})
	}
	if !delta.Empty() {
		s.logger.Debug().Int("joined", len(delta.Joined)).Int("left", len(delta.Left)).Msg("membership changed")
	}
	s.st.members = next
}

// switchRoom drops the previous room before joining another one: its
// streams are reported gone and its poll stops until the new join is
// confirmed.
func (s *Session) switchRoom() {
	s.stopRoomPoll()
	if len(s.st.members) > 0 {
		s.emit(core.StreamsLeft{IDs: clone(s.st.members)})
	}
	s.logger.Info().Str("room", string(s.st.roomID)).Msg("switching away from room")
	s.st.members = nil
}

func (s *Session) onListenerCount(stream domain.StreamID, count int) {
	s.post(listenerSample{stream: stream, count: count})
}

func (s *Session) handleListenerSample(m listenerSample) {
	n := m.count
	s.st.listeners = &n
	s.emit(core.ListenerCount{StreamID: m.stream, Count: m.count})
}

func (s *Session) send(cmd protocol.Command) {
	frame, err := protocol.Encode(cmd)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode command")
		return
	}
	if err := s.channel.TrySend(frame); err != nil {
		s.logger.Warn().Err(err).Str("command", cmd.Command).Msg("send failed")
		return
	}
	s.logger.Debug().Str("command", cmd.Command).Msg("sent")
}

func clone(ids []domain.StreamID) []domain.StreamID {
	return append(make([]domain.StreamID, 0, len(ids)), ids...)
}
