package session

import (
	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

// message is anything the run goroutine consumes from its inbox.
type message interface {
	isMessage()
}

type joinRequest struct {
	room   domain.RoomID
	stream domain.StreamID
}

type leaveRequest struct{}

type channelConnected struct{}

type channelDisconnected struct {
	err error
}

type channelText struct {
	data core.Frame
}

type roomPollTick struct {
	gen uint64
}

type listenerSample struct {
	stream domain.StreamID
	count  int
}

type snapshotRequest struct {
	reply chan<- Snapshot
}

func (joinRequest) isMessage()         {}
func (leaveRequest) isMessage()        {}
func (channelConnected) isMessage()    {}
func (channelDisconnected) isMessage() {}
func (channelText) isMessage()         {}
func (roomPollTick) isMessage()        {}
func (listenerSample) isMessage()      {}
func (snapshotRequest) isMessage()     {}

// channelEvents adapts transport callbacks into inbox messages.
type channelEvents struct {
	s *Session
}

func (h channelEvents) OnConnected()             { h.s.post(channelConnected{}) }
func (h channelEvents) OnDisconnected(err error) { h.s.post(channelDisconnected{err: err}) }
func (h channelEvents) OnText(f core.Frame)      { h.s.post(channelText{data: f}) }
