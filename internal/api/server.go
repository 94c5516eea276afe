package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"routeopt/internal/auth"
	"routeopt/internal/broker"
	"routeopt/internal/config"
	"routeopt/internal/geocode"
	"routeopt/internal/metrics"
	"routeopt/internal/runner"
	"routeopt/internal/store"
)

// Pinger is implemented by backends readiness should check besides the
// store (the Redis broker, for one).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store    store.Store
	Runner   *runner.Manager
	Broker   broker.EventBroker
	Auth     *auth.Verifier
	Geocoder geocode.Geocoder
	Log      *zap.Logger
	// Ready lists extra dependencies checked by /readyz.
	Ready map[string]Pinger
}

type Server struct {
	Store    store.Store
	Runner   *runner.Manager
	Broker   broker.EventBroker
	Auth     *auth.Verifier
	Geocoder geocode.Geocoder
	Log      *zap.Logger
	Config   config.Config

	ready    map[string]Pinger
	limiters *limiterSet
}

// NewServer wires handlers to their dependencies. A nil store, broker or
// runner gets an in-memory default so tests can start from Deps{}.
func NewServer(cfg config.Config, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Broker == nil {
		d.Broker = broker.New()
	}
	if d.Auth == nil {
		d.Auth = auth.NewVerifier(auth.Options{Mode: cfg.Auth.Mode, HMACSecret: cfg.Auth.HMACSecret, JWKSURL: cfg.Auth.JWKSURL, Issuer: cfg.Auth.Issuer})
	}
	if d.Runner == nil {
		d.Runner = runner.New(runner.Deps{Store: d.Store, Broker: d.Broker, Geocoder: d.Geocoder, Log: d.Log}, runner.Options{
			Defaults:      cfg.Optimizer,
			SpeedKmh:      cfg.SpeedKmh,
			MaxConcurrent: cfg.Runner.MaxConcurrentRuns,
			RunTimeout:    cfg.Runner.RunTimeout,
			ProgressEvery: cfg.Runner.ProgressEvery,
		})
	}
	return &Server{
		Store:    d.Store,
		Runner:   d.Runner,
		Broker:   d.Broker,
		Auth:     d.Auth,
		Geocoder: d.Geocoder,
		Log:      d.Log,
		Config:   cfg,
		ready:    d.Ready,
		limiters: newLimiterSet(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

// Handler returns the routed mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Optimization
	mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("/v1/runs", s.RunsHandler)
	mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /geojson, /events/stream, /ws
	mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)
	mux.HandleFunc("/v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)

	// Utilities
	mux.HandleFunc("/v1/geocode", s.GeocodeHandler)
	mux.HandleFunc("/v1/linear/solve", s.LinearSolveHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/debug/info", s.DebugJSON)

	// Docs
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)
	mux.HandleFunc("/swagger", s.SwaggerHandler)

	return s.recoverMiddleware(s.logMiddleware(s.rateLimitMiddleware(mux)))
}
