package main

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-negotiation/internal/config"
	"github.com/example/ride-negotiation/internal/dispatch"
	"github.com/example/ride-negotiation/internal/engine"
	httpapi "github.com/example/ride-negotiation/internal/http"
	"github.com/example/ride-negotiation/internal/ingest"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/sched"
	"github.com/example/ride-negotiation/internal/simulate"
	"github.com/example/ride-negotiation/internal/store"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if err := runMigrations(cfg.PGDSN); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	st := store.New()
	store.Seed(st)

	scheduler := sched.NewSystem()
	sim := simulate.New(simulate.Config{
		Variance: cfg.OfferVariance,
		MinPrice: cfg.MinOfferPrice,
		DelayMin: cfg.OfferDelayMin,
		DelayMax: cfg.OfferDelayMax,
	}, scheduler, rand.New(rand.NewSource(time.Now().UnixNano())), logger)

	eng := engine.New(st, sim, scheduler, engine.Config{
		ViewTrigger:  engine.ViewTrigger(cfg.OfferViewTrigger),
		OfferWindow:  cfg.OfferWindow,
		TripDuration: cfg.TripDuration,
	}, logger)

	wsreg := dispatch.NewWSRegistry()
	eng.Notifier = dispatch.NewWebhookNotifier(cfg.WebhookEndpoint, wsreg)

	if cfg.PGDSN != "" {
		archive, err := store.NewPostgresArchive(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres archive unavailable", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
		eng.Archive = archive
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		eng.Events = producer
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(eng, st, wsreg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-negotiation listening", "addr", cfg.HTTPAddr, "view_trigger", cfg.OfferViewTrigger)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_trip_archive.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
