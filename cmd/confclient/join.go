package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/confclient/internal/adapters/http"
	sig "github.com/dkeye/confclient/internal/adapters/signal"
	"github.com/dkeye/confclient/internal/adapters/stats"
	"github.com/dkeye/confclient/internal/app/session"
	"github.com/dkeye/confclient/internal/config"
	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
)

var errNothingToDo = errors.New("no room given and control api disabled")

func newJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Connect to the signaling server and join a room",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runJoin(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.String("server", "", "signaling WebSocket URL, e.g. wss://host:5443/App/websocket")
	f.String("stats-url", "", "REST base for listener statistics (derived from --server when empty)")
	f.String("room", "", "room to join on start")
	f.String("stream", "", "preferred stream id")
	f.String("role", "viewer", "presenter or viewer")
	f.String("control", "", "listen address for the control API, e.g. 127.0.0.1:8090")
	f.Duration("room-poll", 5*time.Second, "room information poll interval")
	f.Duration("stats-poll", 10*time.Second, "listener statistics poll interval")
	f.Duration("dial-timeout", 5*time.Second, "WebSocket handshake timeout")
	f.Duration("write-timeout", 5*time.Second, "WebSocket write timeout")
	return cmd
}

func runJoin(ctx context.Context, cfg *config.Config) error {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.RoomID == "" && cfg.ControlAddr == "" {
		return errNothingToDo
	}
	role, err := domain.ParseRole(cfg.Role)
	if err != nil {
		return err
	}

	statsBase := cfg.StatsURL
	if statsBase == "" {
		if statsBase, err = stats.BaseURLFromSignaling(cfg.ServerURL); err != nil {
			return fmt.Errorf("derive stats url: %w", err)
		}
	}

	channel := sig.NewWSChannel(sig.Options{
		URL:          cfg.ServerURL,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ReadLimit:    cfg.ReadLimit,
		SendBuffer:   cfg.SendBuffer,
	})
	sess := session.New(channel, core.DelegateSink{Delegate: newLogDelegate(log.Logger)}, session.Options{
		Role:              role,
		RoomPollInterval:  cfg.RoomPollInterval,
		StatsPollInterval: cfg.StatsPollInterval,
		StatsTimeout:      cfg.StatsTimeout,
		Stats:             stats.NewClient(statsBase, &http.Client{Timeout: cfg.StatsTimeout}),
	})
	defer sess.Close()

	var srv *http.Server
	if cfg.ControlAddr != "" {
		srv = &http.Server{
			Addr:    cfg.ControlAddr,
			Handler: router.SetupRouter(cfg, sess),
		}
		go func() {
			log.Info().Str("addr", cfg.ControlAddr).Msg("control api started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("control api error")
			}
		}()
	}

	if cfg.RoomID != "" {
		if err := sess.JoinRoom(domain.RoomID(cfg.RoomID), domain.StreamID(cfg.StreamID)); err != nil {
			return err
		}
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// the deferred Close flushes the leave command before closing the socket
	if err := sess.LeaveRoom(); err != nil {
		log.Warn().Err(err).Msg("leave failed")
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("control api forced to shutdown")
		}
	}
	log.Info().Msg("client exited gracefully")
	return nil
}
