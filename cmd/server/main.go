package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"attestor/internal/attestation/handler"
	attmetrics "attestor/internal/attestation/metrics"
	"attestor/internal/attestation/service"
	"attestor/internal/attestation/store/escrow"
	"attestor/internal/attestation/store/graph"
	"attestor/internal/attestation/store/registry"
	"attestor/internal/platform/config"
	"attestor/internal/platform/httpserver"
	"attestor/internal/platform/logger"
	"attestor/internal/platform/metrics"
	"attestor/internal/platform/middleware"
	"attestor/internal/signature"
	"attestor/pkg/platform/audit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// process lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	creds, err := signature.New(signature.Config{
		SigningKey:   cfg.SigningKey,
		WatermarkKey: cfg.WatermarkKey,
	})
	if err != nil {
		log.Error("invalid signing configuration", "error", err)
		os.Exit(1)
	}

	events := audit.NewLog(log, creds, 1024)
	notifier := audit.NewNotifier(events.Alerts(), audit.SlogAlertHandler(log), log, 0, 0)

	svc := service.New(
		registry.NewInMemory(),
		graph.NewInMemory(),
		escrow.NewInMemory(),
		creds,
		events,
		service.WithLogger(log),
		service.WithMetrics(attmetrics.New()),
		service.WithMaxRepairAttempts(cfg.MaxRepairAttempts),
	)

	httpMetrics := metrics.New()
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log, httpMetrics))
	handler.New(svc, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.StartPeriodicVerification(cfg.VerifyInterval); err != nil {
		log.Error("failed to start periodic verification", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting attestor", "addr", cfg.Addr, "verify_interval", cfg.VerifyInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := notifier.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		svc.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	log.Info("attestor stopped")
}
