// Package session implements the room session: one actor goroutine that
// owns connection state, room membership and both poll timers, and turns
// inbound signaling traffic into ordered consumer events.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/confclient/internal/app/stats"
	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyRoomID = errors.New("room id is empty")
	ErrClosed      = errors.New("session closed")
)

const inboxSize = 64

type Options struct {
	Role              domain.Role
	RoomPollInterval  time.Duration
	StatsPollInterval time.Duration
	StatsTimeout      time.Duration
	// Stats is optional; without it listener counts are never reported.
	Stats core.StatsFetcher
	Clock clock.Clock
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	SessionID       string                 `json:"session_id"`
	RoomID          domain.RoomID          `json:"room_id"`
	StreamID        domain.StreamID        `json:"stream_id"`
	StreamConfirmed bool                   `json:"stream_confirmed"`
	Role            domain.Role            `json:"role"`
	State           domain.ConnectionState `json:"state"`
	Members         []domain.StreamID      `json:"members"`
	ListenerCount   *int                   `json:"listener_count,omitempty"`
}

// Session is safe for concurrent use. All state lives on the run goroutine;
// public methods and transport callbacks only post messages to it.
type Session struct {
	id      string
	opts    Options
	channel core.MessageChannel
	sink    core.EventSink
	clock   clock.Clock
	poller  *stats.Poller
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan message
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	st state
}

// state is touched only by the run goroutine.
type state struct {
	roomID      domain.RoomID
	streamID    domain.StreamID
	confirmed   bool
	joinPending bool
	conn        domain.ConnectionState
	members     []domain.StreamID
	listeners   *int
	pollGen     uint64
	pollCancel  func()
}

func New(channel core.MessageChannel, sink core.EventSink, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.RoomPollInterval <= 0 {
		opts.RoomPollInterval = 5 * time.Second
	}
	if opts.Role == "" {
		opts.Role = domain.RoleViewer
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      id,
		opts:    opts,
		channel: channel,
		sink:    sink,
		clock:   opts.Clock,
		logger: log.With().
			Str("module", "app.session").
			Str("sid", id).
			Str("role", string(opts.Role)).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
		inbox:  make(chan message, inboxSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if opts.Stats != nil {
		s.poller = stats.NewPoller(opts.Stats, s.onListenerCount, stats.Options{
			Interval: opts.StatsPollInterval,
			Timeout:  opts.StatsTimeout,
			Clock:    opts.Clock,
			Logger:   &s.logger,
		})
	}

	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

// JoinRoom records the room and preferred stream id and starts connecting.
// When the channel is already open the join command is sent again; the
// server decides how to treat a repeated join.
func (s *Session) JoinRoom(room domain.RoomID, preferred domain.StreamID) error {
	if room == "" {
		return ErrEmptyRoomID
	}
	if !s.post(joinRequest{room: room, stream: preferred}) {
		return ErrClosed
	}
	return nil
}

// LeaveRoom stops room polling and tells the server we left. It is a no-op
// when no room is joined. Stats polling keeps running until Close.
func (s *Session) LeaveRoom() error {
	if !s.post(leaveRequest{}) {
		return ErrClosed
	}
	return nil
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !s.post(snapshotRequest{reply: reply}) {
		return Snapshot{}, ErrClosed
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Close tears the session down: both timers are cancelled, the channel is
// closed and no event is delivered after Close returns.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.quit)
		<-s.done
		s.cancel()
		if s.poller != nil {
			s.poller.Stop()
		}
		s.channel.Close()
		s.logger.Info().Msg("session closed")
	})
}

func (s *Session) post(m message) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.quit:
		return false
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.drainLeaves()
			s.stopRoomPoll()
			return
		case m := <-s.inbox:
			s.handle(m)
		}
	}
}

// drainLeaves handles leave requests still queued when Close was called so
// the server hears about them; everything else queued is dropped.
func (s *Session) drainLeaves() {
	for {
		select {
		case m := <-s.inbox:
			if _, ok := m.(leaveRequest); ok {
				s.handleLeave()
			}
		default:
			return
		}
	}
}

func (s *Session) handle(m message) {
	switch m := m.(type) {
	case joinRequest:
		s.handleJoin(m)
	case leaveRequest:
		s.handleLeave()
	case channelConnected:
		s.handleConnected()
	case channelDisconnected:
		s.handleDisconnected(m.err)
	case channelText:
		s.handleText(m.data)
	case roomPollTick:
		s.handleRoomPollTick(m.gen)
	case listenerSample:
		s.handleListenerSample(m)
	case snapshotRequest:
		m.reply <- s.snapshot()
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:       s.id,
		RoomID:          s.st.roomID,
		StreamID:        s.st.streamID,
		StreamConfirmed: s.st.confirmed,
		Role:            s.opts.Role,
		State:           s.st.conn,
		Members:         append([]domain.StreamID{}, s.st.members...),
	}
	if s.st.listeners != nil {
		n := *s.st.listeners
		snap.ListenerCount = &n
	}
	return snap
}

func (s *Session) emit(e core.Event) {
	s.sink.Handle(e)
}

func (s *Session) setState(next domain.ConnectionState, err error) {
	if s.st.conn == next {
		return
	}
	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("from", s.st.conn.String()).Str("to", next.String()).Msg("connection state changed")
	s.st.conn = next
	s.emit(core.ConnectionChanged{State: next, Err: err})
}
