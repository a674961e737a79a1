package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/core/mocks"
	"github.com/dkeye/confclient/internal/domain"
	"github.com/dkeye/confclient/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeChannel struct {
	mu      sync.Mutex
	handler core.ChannelHandler
	opened  int
	sent    []core.Frame
	closed  bool
}

func (c *fakeChannel) Open(_ context.Context, h core.ChannelHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	c.opened++
}

func (c *fakeChannel) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, f)
	return nil
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeChannel) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) h() core.ChannelHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *fakeChannel) commands(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Message, 0, len(c.sent))
	for _, f := range c.sent {
		m, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func (c *fakeChannel) count(t *testing.T, command string) int {
	n := 0
	for _, m := range c.commands(t) {
		if m.Command == command {
			n++
		}
	}
	return n
}

type harness struct {
	t      *testing.T
	s      *Session
	ch     *fakeChannel
	clk    *clock.Mock
	events core.ChanSink
}

func newHarness(t *testing.T, stats core.StatsFetcher) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ch:     &fakeChannel{},
		clk:    clock.NewMock(),
		events: make(core.ChanSink, 64),
	}
	h.s = New(h.ch, h.events, Options{
		Role:              domain.RolePresenter,
		RoomPollInterval:  5 * time.Second,
		StatsPollInterval: 10 * time.Second,
		Stats:             stats,
		Clock:             h.clk,
	})
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	snap, err := h.s.Snapshot(context.Background())
	require.NoError(h.t, err)
	return snap
}

func (h *harness) next() core.Event {
	h.t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(2 * time.Second):
		h.t.Fatal("expected an event")
		return nil
	}
}

func (h *harness) none() {
	h.t.Helper()
	h.snapshot()
	select {
	case e := <-h.events:
		h.t.Fatalf("unexpected event %#v", e)
	case <-time.After(30 * time.Millisecond):
	}
}

// connect waits for the session to open the channel and reports it up.
func (h *harness) connect() {
	h.t.Helper()
	h.snapshot()
	h.ch.h().OnConnected()
}

func (h *harness) receive(text string) {
	h.ch.h().OnText(core.Frame(text))
}

// joined drives the session into JoinedRoom with own stream s1 and
// members a, b, and consumes the events produced on the way.
func (h *harness) joined() {
	h.t.Helper()
	require.NoError(h.t, h.s.JoinRoom("room1", "pref"))
	h.connect()
	h.receive(`{"command":"notification","definition":"joinedTheRoom","streamId":"s1","streams":["a","b"]}`)
	h.snapshot()
	for range 5 {
		h.next()
	}
}

func TestJoinRoomRejectsEmptyRoom(t *testing.T) {
	h := newHarness(t, nil)
	require.ErrorIs(t, h.s.JoinRoom("", "s1"), ErrEmptyRoomID)
	assert.Equal(t, 0, h.ch.openCount())
	h.none()
}

func TestJoinSendsJoinCommandFirstOnConnect(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.s.JoinRoom("room1", "pref"))
	assert.Equal(t, core.ConnectionChanged{State: domain.Connecting}, h.next())
	assert.Equal(t, domain.Connecting, h.snapshot().State)
	assert.Empty(t, h.ch.commands(t))

	h.connect()
	assert.Equal(t, core.ConnectionChanged{State: domain.Connected}, h.next())

	cmds := h.ch.commands(t)
	require.Len(t, cmds, 1)
	assert.Equal(t, protocol.CmdJoinRoom, cmds[0].Command)
	assert.Equal(t, domain.RoomID("room1"), cmds[0].RoomID)
	assert.Equal(t, domain.StreamID("pref"), cmds[0].StreamID)
}

func TestJoinedNotificationEventOrder(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.s.JoinRoom("room1", ""))
	h.connect()
	h.next()
	h.next()

	h.receive(`{"command":"notification","definition":"joinedTheRoom","streamId":"s1","streams":["a","b"]}`)

	assert.Equal(t, core.StreamIDToPublish{ID: "s1"}, h.next())
	assert.Equal(t, core.StreamsJoined{IDs: []domain.StreamID{"a", "b"}}, h.next())
	assert.Equal(t, core.ConnectionChanged{State: domain.JoinedRoom}, h.next())
	h.none()

	snap := h.snapshot()
	assert.Equal(t, domain.StreamID("s1"), snap.StreamID)
	assert.True(t, snap.StreamConfirmed)
	assert.Equal(t, domain.RolePresenter, snap.Role)
	assert.Equal(t, []domain.StreamID{"a", "b"}, snap.Members)
}

func TestRoomInformationEmitsOnlyDelta(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	h.receive(`{"command":"roomInformation","streams":["b","c"]}`)
	assert.Equal(t, core.StreamsJoined{IDs: []domain.StreamID{"c"}}, h.next())
	assert.Equal(t, core.StreamsLeft{IDs: []domain.StreamID{"a"}}, h.next())
	h.none()
	assert.Equal(t, []domain.StreamID{"b", "c"}, h.snapshot().Members)
}

func TestRoomInformationReorderIsSilent(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	h.receive(`{"command":"roomInformation","streams":["b","a"]}`)
	h.none()
	assert.Equal(t, []domain.StreamID{"b", "a"}, h.snapshot().Members)
}

func TestMembershipNeverHoldsDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.s.JoinRoom("room1", ""))
	h.connect()
	h.next()
	h.next()

	h.receive(`{"command":"notification","definition":"joinedTheRoom","streamId":"s1","streams":["a","a","b"]}`)
	h.next()
	assert.Equal(t, core.StreamsJoined{IDs: []domain.StreamID{"a", "b"}}, h.next())
	h.next()
	assert.Equal(t, []domain.StreamID{"a", "b"}, h.snapshot().Members)

	h.receive(`{"command":"roomInformation","streams":["c","c"]}`)
	assert.Equal(t, core.StreamsJoined{IDs: []domain.StreamID{"c"}}, h.next())
	assert.Equal(t, core.StreamsLeft{IDs: []domain.StreamID{"a", "b"}}, h.next())
	assert.Equal(t, []domain.StreamID{"c"}, h.snapshot().Members)
}

func TestMalformedMessagesChangeNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()
	before := h.snapshot()

	h.receive(`not json at all`)
	h.receive(`{"streams":["x"]}`)
	h.receive(`{"command":"roomInformation","streams":"x"}`)
	h.receive(`{"command":"somethingNew","streams":["x"]}`)
	h.receive(`{"command":"notification","definition":"publishStarted","streamId":"x"}`)

	h.none()
	assert.Equal(t, before, h.snapshot())
}

func TestRoomPollSendsGetStreamInfo(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()
	assert.Equal(t, 0, h.ch.count(t, protocol.CmdGetStreamInfo))

	h.clk.Add(5 * time.Second)
	require.Eventually(t, func() bool {
		return h.ch.count(t, protocol.CmdGetStreamInfo) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cmds := h.ch.commands(t)
	last := cmds[len(cmds)-1]
	assert.Equal(t, domain.StreamID("s1"), last.StreamID)
	assert.Equal(t, domain.RoomID("room1"), last.RoomID)
}

func TestNoRoomPollAfterLeave(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	require.NoError(t, h.s.LeaveRoom())
	assert.Equal(t, core.ConnectionChanged{State: domain.Connected}, h.next())
	assert.Equal(t, 1, h.ch.count(t, protocol.CmdLeaveRoom))

	// ticks that were already queued when the leave went through
	for gen := range uint64(16) {
		h.s.post(roomPollTick{gen: gen})
	}
	h.clk.Add(time.Minute)
	h.none()

	assert.Equal(t, 0, h.ch.count(t, protocol.CmdGetStreamInfo))
	snap := h.snapshot()
	assert.Empty(t, snap.Members)
	assert.Empty(t, snap.RoomID)
}

func TestLeaveWithoutRoomIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.s.LeaveRoom())
	h.none()
	assert.Empty(t, h.ch.commands(t))
}

func TestLeaveWhileConnectingCancelsPendingJoin(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.s.JoinRoom("room1", ""))
	h.next()
	require.NoError(t, h.s.LeaveRoom())
	h.connect()
	h.next()

	assert.Empty(t, h.ch.commands(t))

	h.receive(`{"command":"notification","definition":"joinedTheRoom","streamId":"s1","streams":["a"]}`)
	h.none()
	assert.Equal(t, domain.Connected, h.snapshot().State)
}

func TestDisconnectStopsRoomPollAndAllowsRejoin(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	lost := errors.New("connection reset")
	h.ch.h().OnDisconnected(lost)
	assert.Equal(t, core.ConnectionChanged{State: domain.Disconnected, Err: lost}, h.next())

	h.clk.Add(time.Minute)
	h.none()
	assert.Equal(t, 0, h.ch.count(t, protocol.CmdGetStreamInfo))

	require.NoError(t, h.s.JoinRoom("room1", "s1"))
	assert.Equal(t, core.ConnectionChanged{State: domain.Connecting}, h.next())
	h.snapshot()
	assert.Equal(t, 2, h.ch.openCount())
}

func TestRejoinWhileJoinedResendsJoinAndReconciles(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	require.NoError(t, h.s.JoinRoom("room1", "s1"))
	h.snapshot()
	assert.Equal(t, 2, h.ch.count(t, protocol.CmdJoinRoom))
	assert.Equal(t, 1, h.ch.openCount())

	h.receive(`{"command":"notification","definition":"joinedTheRoom","streamId":"s1","streams":["a","c"]}`)
	assert.Equal(t, core.StreamIDToPublish{ID: "s1"}, h.next())
	assert.Equal(t, core.StreamsJoined{IDs: []domain.StreamID{"a", "c"}}, h.next())
	h.none()
	assert.Equal(t, []domain.StreamID{"a", "c"}, h.snapshot().Members)
}

func TestJoinedNotificationWithoutJoinIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	h.receive(`{"command":"notification","definition":"joinedTheRoom","streamId":"s9","streams":["x"]}`)
	h.none()

	snap := h.snapshot()
	assert.Equal(t, domain.StreamID("s1"), snap.StreamID)
	assert.Equal(t, []domain.StreamID{"a", "b"}, snap.Members)
}

func TestSwitchRoomStartsFromServerSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	require.NoError(t, h.s.JoinRoom("room2", "s2"))
	assert.Equal(t, core.StreamsLeft{IDs: []domain.StreamID{"a", "b"}}, h.next())

	// no baseline for room2 until the join is confirmed
	h.receive(`{"command":"roomInformation","streams":["q"]}`)
	h.none()

	h.receive(`{"command":"notification","definition":"joinedTheRoom","streamId":"s2","streams":["a","x"]}`)
	assert.Equal(t, core.StreamIDToPublish{ID: "s2"}, h.next())
	assert.Equal(t, core.StreamsJoined{IDs: []domain.StreamID{"a", "x"}}, h.next())
	h.none()

	snap := h.snapshot()
	assert.Equal(t, domain.RoomID("room2"), snap.RoomID)
	assert.Equal(t, []domain.StreamID{"a", "x"}, snap.Members)

	h.clk.Add(5 * time.Second)
	require.Eventually(t, func() bool {
		return h.ch.count(t, protocol.CmdGetStreamInfo) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cmds := h.ch.commands(t)
	assert.Equal(t, domain.RoomID("room2"), cmds[len(cmds)-1].RoomID)
}

func TestLeaveQueuedBeforeCloseIsSent(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	require.NoError(t, h.s.LeaveRoom())
	h.s.Close()

	assert.Equal(t, 1, h.ch.count(t, protocol.CmdLeaveRoom))
	assert.True(t, h.ch.isClosed())
}

func TestListenerCountGatedOnStreamID(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockStatsFetcher(ctrl)
	h := newHarness(t, fetcher)

	require.NoError(t, h.s.JoinRoom("room1", "pref"))
	h.connect()
	h.next()
	h.next()
	for range 3 {
		h.clk.Add(10 * time.Second)
	}
	h.none()

	fetcher.EXPECT().ListenerCount(gomock.Any(), domain.StreamID("s1")).Return(12, nil).AnyTimes()
	h.receive(`{"command":"notification","definition":"joinedTheRoom","streamId":"s1","streams":[]}`)
	assert.Equal(t, core.StreamIDToPublish{ID: "s1"}, h.next())
	assert.Equal(t, core.StreamsJoined{IDs: []domain.StreamID{}}, h.next())
	h.next()
	h.snapshot()

	h.clk.Add(10 * time.Second)
	assert.Equal(t, core.ListenerCount{StreamID: "s1", Count: 12}, h.next())

	n := h.snapshot().ListenerCount
	require.NotNil(t, n)
	assert.Equal(t, 12, *n)

	// stats keep running after leaving the room, until Close
	require.NoError(t, h.s.LeaveRoom())
	h.next()
	h.clk.Add(10 * time.Second)
	assert.Equal(t, core.ListenerCount{StreamID: "s1", Count: 12}, h.next())

	h.s.Close()
	h.clk.Add(time.Minute)
	select {
	case e := <-h.events:
		t.Fatalf("event after close: %#v", e)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestCloseIsFinal(t *testing.T) {
	h := newHarness(t, nil)
	h.joined()

	h.s.Close()
	h.s.Close()

	assert.True(t, h.ch.isClosed())
	require.ErrorIs(t, h.s.JoinRoom("room1", ""), ErrClosed)
	require.ErrorIs(t, h.s.LeaveRoom(), ErrClosed)
	_, err := h.s.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	h.clk.Add(time.Minute)
	assert.Empty(t, h.events)
}
