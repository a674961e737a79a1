package core

import "github.com/dkeye/confclient/internal/domain"

// Event is a consumer-facing notification produced by a room session.
type Event interface {
	isEvent()
}

type StreamIDToPublish struct {
	ID domain.StreamID
}

type StreamsJoined struct {
	IDs []domain.StreamID
}

type StreamsLeft struct {
	IDs []domain.StreamID
}

type ListenerCount struct {
	StreamID domain.StreamID
	Count    int
}

type ConnectionChanged struct {
	State domain.ConnectionState
	Err   error
}

func (StreamIDToPublish) isEvent() {}
func (StreamsJoined) isEvent()     {}
func (StreamsLeft) isEvent()       {}
func (ListenerCount) isEvent()     {}
func (ConnectionChanged) isEvent() {}

// EventSink receives events in the order the session produced them.
// Handle runs on the session goroutine and should return quickly.
type EventSink interface {
	Handle(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Handle(e Event) { f(e) }

// ChanSink delivers events into a channel. The channel should be buffered;
// a full channel stalls the session.
type ChanSink chan Event

func (c ChanSink) Handle(e Event) { c <- e }

// Delegate is the callback form of the event contract.
type Delegate interface {
	StreamIDToPublish(id domain.StreamID)
	NewStreamsJoined(ids []domain.StreamID)
	StreamsLeaved(ids []domain.StreamID)
	CurrentListenerCount(n int)
}

// ConnectionDelegate is optionally implemented by a Delegate that wants
// transport status changes.
type ConnectionDelegate interface {
	ConnectionChanged(state domain.ConnectionState, err error)
}

// DelegateSink routes events to a Delegate.
type DelegateSink struct {
	Delegate Delegate
}

func (s DelegateSink) Handle(e Event) {
	switch ev := e.(type) {
	case StreamIDToPublish:
		s.Delegate.StreamIDToPublish(ev.ID)
	case StreamsJoined:
		s.Delegate.NewStreamsJoined(ev.IDs)
	case StreamsLeft:
		s.Delegate.StreamsLeaved(ev.IDs)
	case ListenerCount:
		s.Delegate.CurrentListenerCount(ev.Count)
	case ConnectionChanged:
		if cd, ok := s.Delegate.(ConnectionDelegate); ok {
			cd.ConnectionChanged(ev.State, ev.Err)
		}
	}
}
