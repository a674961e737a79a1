// Package signal provides the WebSocket message channel used to talk to
// the signaling server.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/confclient/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("channel not connected")
	ErrClosed       = errors.New("channel closed")
)

type Options struct {
	URL          string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	SendBuffer   int
	Header       http.Header
}

// WSChannel implements core.MessageChannel over a gorilla WebSocket.
// Each Open dials a fresh connection; the previous one must have ended.
type WSChannel struct {
	opts   Options
	dialer *websocket.Dialer

	mu      sync.RWMutex
	conn    *websocket.Conn
	send    chan core.Frame
	flushed chan struct{}
	cancel  context.CancelFunc
	closed  bool
}

var _ core.MessageChannel = (*WSChannel)(nil)

func NewWSChannel(opts Options) *WSChannel {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &WSChannel{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
		},
	}
}

func (c *WSChannel) Open(ctx context.Context, h core.ChannelHandler) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go h.OnDisconnected(ErrClosed)
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	connCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.connect(connCtx, h)
}

func (c *WSChannel) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close writes out frames already queued by TrySend, then sends a normal
// close frame and drops the connection. The channel cannot be reopened
// afterwards.
func (c *WSChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn, flushed, cancel := c.conn, c.flushed, c.cancel
	c.detachLocked(conn)
	c.mu.Unlock()

	if conn != nil {
		// the write pump exits once the closed queue is empty
		timer := time.NewTimer(c.opts.WriteTimeout)
		select {
		case <-flushed:
		case <-timer.C:
			log.Warn().Str("module", "adapters.signal").Msg("close: send queue not flushed in time")
		}
		timer.Stop()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
}

func (c *WSChannel) connect(ctx context.Context, h core.ChannelHandler) {
	logger := log.With().Str("module", "adapters.signal").Str("url", c.opts.URL).Logger()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	ws, _, err := c.dialer.DialContext(dialCtx, c.opts.URL, c.opts.Header)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("dial failed")
		h.OnDisconnected(fmt.Errorf("dial %s: %w", c.opts.URL, err))
		return
	}
	ws.SetReadLimit(c.opts.ReadLimit)

	send := make(chan core.Frame, c.opts.SendBuffer)
	flushed := make(chan struct{})
	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.mu.Unlock()
		_ = ws.Close()
		h.OnDisconnected(ErrClosed)
		return
	}
	c.conn = ws
	c.send = send
	c.flushed = flushed
	c.mu.Unlock()

	logger.Info().Msg("connected")
	h.OnConnected()

	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()
	go func() {
		defer close(flushed)
		c.writePump(ctx, ws, send)
	}()
	err = c.readPump(ws, h)

	c.mu.Lock()
	c.detachLocked(ws)
	c.mu.Unlock()
	_ = ws.Close()

	logger.Info().Err(err).Msg("disconnected")
	h.OnDisconnected(err)
}

// detachLocked forgets conn if it is still the current connection.
func (c *WSChannel) detachLocked(conn *websocket.Conn) {
	if conn == nil || c.conn != conn {
		return
	}
	close(c.send)
	c.conn = nil
	c.send = nil
	c.flushed = nil
}
