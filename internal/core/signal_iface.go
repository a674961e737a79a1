package core

import "context"

// Frame is one text message of the signaling protocol.
type Frame []byte

// ChannelHandler receives transport events from a MessageChannel.
// Callbacks may run on any goroutine and must not block.
type ChannelHandler interface {
	OnConnected()
	OnDisconnected(err error)
	OnText(Frame)
}

// MessageChannel abstracts the ordered full-duplex signaling transport.
// One channel belongs to exactly one session.
type MessageChannel interface {
	// Open connects in the background and reports the outcome to h.
	Open(ctx context.Context, h ChannelHandler)
	// TrySend queues a frame without waiting for the network.
	TrySend(Frame) error
	Close()
}
