package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"routeopt/internal/api"
	"routeopt/internal/auth"
	"routeopt/internal/broker"
	"routeopt/internal/config"
	"routeopt/internal/events"
	"routeopt/internal/geocode"
	"routeopt/internal/logging"
	"routeopt/internal/metrics"
	"routeopt/internal/runner"
	"routeopt/internal/store"
	"routeopt/internal/webhooks"
)

func main() {
	configPath := flag.String("config", os.Getenv("ROUTEOPT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewWithOptions(logging.Options{
		Env:        cfg.Env,
		Service:    "routeopt",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	metrics.RegisterDefault()

	ready := map[string]api.Pinger{}

	// Store selection: in-memory unless DATABASE_URL is set
	var st store.Store = store.NewMemory()
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()
		if cfg.DBMigrate {
			if err := pg.MigrateDir(cfg.MigrationsDir); err != nil {
				log.Fatal("failed to run migrations", zap.Error(err))
			}
			log.Info("database migrations applied", zap.String("dir", cfg.MigrationsDir))
		}
		st = pg
	}

	// Broker selection
	var bk broker.EventBroker = broker.New()
	if cfg.RedisURL != "" {
		rb, err := broker.NewRedisBroker(cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis broker unavailable, using in-memory broker", zap.Error(err))
		} else {
			defer func() { _ = rb.Close() }()
			bk = rb
			ready["redis"] = rb
		}
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		log.Info("publishing run events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var gz geocode.Geocoder
	if cfg.GazetteerFile != "" {
		g, err := geocode.LoadGazetteer(cfg.GazetteerFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Warn("gazetteer file not found, place names disabled", zap.String("file", cfg.GazetteerFile))
		case err != nil:
			log.Fatal("failed to load gazetteer", zap.String("file", cfg.GazetteerFile), zap.Error(err))
		default:
			log.Info("gazetteer loaded", zap.Int("places", g.Len()))
			gz = g
		}
	}

	mgr := runner.New(runner.Deps{
		Store:    st,
		Broker:   bk,
		Events:   pub,
		Notifier: webhooks.NewNotifier(cfg.Webhook.Secret, cfg.Webhook.MaxAttempts, log),
		Geocoder: gz,
		Log:      log,
	}, runner.Options{
		Defaults:      cfg.Optimizer,
		SpeedKmh:      cfg.SpeedKmh,
		MaxConcurrent: cfg.Runner.MaxConcurrentRuns,
		RunTimeout:    cfg.Runner.RunTimeout,
		ProgressEvery: cfg.Runner.ProgressEvery,
	})

	srvDeps := api.NewServer(cfg, api.Deps{
		Store:    st,
		Runner:   mgr,
		Broker:   bk,
		Auth:     auth.NewVerifier(auth.Options{Mode: cfg.Auth.Mode, HMACSecret: cfg.Auth.HMACSecret, JWKSURL: cfg.Auth.JWKSURL, Issuer: cfg.Auth.Issuer}),
		Geocoder: gz,
		Log:      log,
		Ready:    ready,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srvDeps.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("API listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("auth_mode", cfg.Auth.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := mgr.Shutdown(ctx); err != nil {
		log.Error("runner shutdown", zap.Int("active_runs", mgr.Active()), zap.Error(err))
	}
	if err := pub.Close(); err != nil {
		log.Error("event publisher close", zap.Error(err))
	}
	log.Info("stopped")
}
