package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/confclient/internal/app/session"
	"github.com/dkeye/confclient/internal/config"
	"github.com/dkeye/confclient/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const snapshotTimeout = 2 * time.Second

// Controller is the part of a room session the control API drives.
type Controller interface {
	JoinRoom(room domain.RoomID, preferred domain.StreamID) error
	LeaveRoom() error
	Snapshot(ctx context.Context) (session.Snapshot, error)
}

type joinRequest struct {
	RoomID   string `json:"room_id" binding:"required"`
	StreamID string `json:"stream_id"`
}

func SetupRouter(cfg *config.Config, ctl Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
		defer cancel()
		snap, err := ctl.Snapshot(ctx)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})
	api.POST("/join", func(c *gin.Context) {
		var req joinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		if err := ctl.JoinRoom(domain.RoomID(req.RoomID), domain.StreamID(req.StreamID)); err != nil {
			writeError(c, err)
			return
		}
		log.Info().Str("module", "adapters.http").Str("room", req.RoomID).Msg("join requested over control api")
		c.JSON(http.StatusAccepted, gin.H{"status": "joining"})
	})
	api.POST("/leave", func(c *gin.Context) {
		if err := ctl.LeaveRoom(); err != nil {
			writeError(c, err)
			return
		}
		log.Info().Str("module", "adapters.http").Msg("leave requested over control api")
		c.JSON(http.StatusAccepted, gin.H{"status": "leaving"})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyRoomID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Msg("control api error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
