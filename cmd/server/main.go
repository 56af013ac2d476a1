package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/coop-room-backend/internal/audit"
	"github.com/DoyleJ11/coop-room-backend/internal/config"
	"github.com/DoyleJ11/coop-room-backend/internal/httpapi"
	"github.com/DoyleJ11/coop-room-backend/internal/hub"
	"github.com/DoyleJ11/coop-room-backend/internal/logging"
	"github.com/DoyleJ11/coop-room-backend/internal/metrics"
	"github.com/DoyleJ11/coop-room-backend/internal/room"
	"github.com/DoyleJ11/coop-room-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := metrics.New()

	var sink audit.Sink = audit.Nop{}
	var store *audit.Store
	var recorder *audit.Recorder
	if cfg.DatabaseURL != "" {
		store, err = audit.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		recorder = audit.NewRecorder(store, cfg.AuditBuffer, log.Named("audit"))
		sink = recorder
	} else {
		log.Info("audit disabled: DATABASE_URL not set")
	}

	// Rooms outlive the signal context so they can be drained in order below.
	h := hub.NewHub(context.Background(), room.Options{
		Logger:          log,
		Metrics:         stats,
		Audit:           sink,
		ProposalTimeout: cfg.ProposalTimeout,
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:       h,
			Metrics:   stats,
			Logger:    log,
			CORSAllow: cfg.CORSAllow,
			WS: ws.Config{
				OutboxSize:     cfg.OutboxSize,
				WriteTimeout:   cfg.WriteTimeout,
				PingInterval:   cfg.PingInterval,
				MaxPromptRunes: cfg.MaxPromptRunes,
				OriginPatterns: originPatterns(cfg.CORSAllow),
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if recorder != nil {
		g.Go(func() error { return recorder.Run(recCtx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// HTTP first so no new sessions arrive, then rooms, then the audit flush.
		err := multierr.Combine(srv.Shutdown(sctx), h.Shutdown(sctx))
		stopRecorder()
		return err
	})

	err = g.Wait()
	if store != nil {
		err = multierr.Append(err, store.Close())
	}
	if err != nil {
		log.Error("exit", zap.Error(err))
	}
	return err
}

// originPatterns turns CORS origins into the host patterns the websocket
// origin check expects.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, o)
	}
	return out
}
