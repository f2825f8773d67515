// AvatarStream - real-time talking avatar rendering service
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/normanking/avatarstream/internal/config"
	"github.com/normanking/avatarstream/internal/logging"
	"github.com/normanking/avatarstream/internal/pipeline"
	"github.com/normanking/avatarstream/internal/server"
	"github.com/normanking/avatarstream/internal/session"
	"github.com/normanking/avatarstream/internal/video"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "avatarstream: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(nil)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	log := logger.Zerolog()

	svc := pipeline.NewService(pipeline.Config{
		Width:    cfg.Render.Width,
		Height:   cfg.Render.Height,
		FPS:      cfg.Render.FPS,
		PoolSize: cfg.Render.PoolSize,
		Encoder: video.Config{
			BinaryPath: cfg.Encoder.BinaryPath,
			Container:  cfg.Encoder.Container,
			Timeout:    cfg.Encoder.Timeout,
		},
		IdleMotion:   cfg.Avatar.IdleAnimation,
		CacheEntries: cfg.Cache.MaxEntries,
		CacheTTL:     cfg.Cache.TTL,
		CacheSweep:   cfg.Cache.SweepInterval,
	}, log)
	defer svc.Close()

	// A configured model must load before we accept sessions; there is no
	// silent fallback for a bad asset path.
	if cfg.Model.Path != "" {
		if _, err := svc.Models().Load(cfg.Model.Path); err != nil {
			return fmt.Errorf("load avatar model: %w", err)
		}
	}
	if cfg.Model.WatchFiles {
		if err := svc.Models().StartWatcher(); err != nil {
			log.Warn().Err(err).Msg("model hot-reload unavailable")
		}
	}

	sessions := session.NewManager(svc, session.Config{
		MaxSessions:        cfg.Session.MaxSessions,
		LipSyncWeight:      float32(cfg.Avatar.LipSyncWeight),
		EmotionWeight:      float32(cfg.Avatar.EmotionWeight),
		TransitionDuration: cfg.Avatar.ExpressionDuration,
	}, log)
	srv := server.New(svc, sessions, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	// No blanket read/write timeouts: they would kill long-lived
	// WebSocket sessions. Header reads are still bounded.
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sessions.CloseAll()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
