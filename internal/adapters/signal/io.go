package signal

import (
	"context"
	"time"

	"github.com/dkeye/confclient/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *WSChannel) writePump(ctx context.Context, ws *websocket.Conn, send <-chan core.Frame) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "adapters.signal").Msg("writePump ctx done")
			return
		case data, ok := <-send:
			if !ok {
				log.Debug().Str("module", "adapters.signal").Msg("writePump channel closed")
				return
			}
			if err := ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump set deadline")
				_ = ws.Close()
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
				_ = ws.Close()
				return
			}
		}
	}
}

// readPump forwards text frames until the connection fails and returns
// the error that ended it.
func (c *WSChannel) readPump(ws *websocket.Conn, h core.ChannelHandler) error {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "adapters.signal").Msg("readPump unexpected close")
			}
			return err
		}
		if mt != websocket.TextMessage {
			log.Debug().Str("module", "adapters.signal").Int("type", mt).Msg("readPump non-text frame skipped")
			continue
		}
		h.OnText(core.Frame(data))
	}
}
