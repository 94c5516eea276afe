// Package runner executes optimization runs for the API: synchronously,
// or in the background under a concurrency limit, with progress fan-out
// and lifecycle notifications.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"routeopt/internal/broker"
	"routeopt/internal/events"
	"routeopt/internal/geo"
	"routeopt/internal/geocode"
	"routeopt/internal/model"
	"routeopt/internal/opt"
	"routeopt/internal/store"
)

var (
	// ErrNotRunning is returned by Cancel for runs that already finished.
	ErrNotRunning = errors.New("run is not queued or running")
	// ErrInvalidRequest marks malformed requests (as opposed to inputs the
	// optimizer rejects).
	ErrInvalidRequest = errors.New("invalid request")
	ErrShuttingDown   = errors.New("runner is shutting down")
)

// Notifier delivers webhook callbacks.
type Notifier interface {
	Deliver(ctx context.Context, url, eventType string, payload any) error
}

type Options struct {
	Defaults      opt.Config
	SpeedKmh      float64
	MaxConcurrent int
	RunTimeout    time.Duration
	// ProgressEvery publishes every n-th generation; the last one is always
	// published.
	ProgressEvery int
}

type Deps struct {
	Store    store.Store
	Broker   broker.EventBroker
	Events   events.Publisher
	Notifier Notifier
	Geocoder geocode.Geocoder
	Log      *zap.Logger
}

type Manager struct {
	store    store.Store
	broker   broker.EventBroker
	events   events.Publisher
	notifier Notifier
	geocoder geocode.Geocoder
	log      *zap.Logger
	opts     Options

	sem     *semaphore.Weighted
	baseCtx context.Context
	stop    context.CancelFunc
	wg      conc.WaitGroup

	mu       sync.Mutex
	active   map[string]context.CancelFunc // run id -> cancel
	inflight sync.WaitGroup                // one per tracked run, sync or async
	closing  bool
}

func New(d Deps, o Options) *Manager {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 1
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 1
	}
	if o.SpeedKmh <= 0 {
		o.SpeedKmh = opt.AssumedSpeedKmh
	}
	if o.Defaults == (opt.Config{}) {
		o.Defaults = opt.DefaultConfig()
	}
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Broker == nil {
		d.Broker = broker.New()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		store:    d.Store,
		broker:   d.Broker,
		events:   d.Events,
		notifier: d.Notifier,
		geocoder: d.Geocoder,
		log:      d.Log,
		opts:     o,
		sem:      semaphore.NewWeighted(int64(o.MaxConcurrent)),
		baseCtx:  ctx,
		stop:     stop,
		active:   map[string]context.CancelFunc{},
	}
}

// job is a validated run ready to execute.
type job struct {
	run      model.Run
	provider geo.DistanceProvider
	speed    float64
}

// Run executes req synchronously and returns the finished record. A run
// that fails inside the optimizer is returned together with its error.
func (m *Manager) Run(ctx context.Context, tenantID string, req model.OptimizeRequest) (model.Run, error) {
	j, err := m.prepare(ctx, tenantID, req)
	if err != nil {
		return model.Run{}, err
	}
	runCtx, cancel := m.runContext(ctx)
	if !m.track(j.run.ID, cancel) {
		cancel()
		return model.Run{}, ErrShuttingDown
	}
	defer m.untrack(j.run.ID)
	defer cancel()
	if err := m.store.CreateRun(ctx, j.run); err != nil {
		return model.Run{}, err
	}
	return m.execute(runCtx, j)
}

// Submit stores a queued run and executes it in the background.
func (m *Manager) Submit(ctx context.Context, tenantID string, req model.OptimizeRequest) (model.Run, error) {
	j, err := m.prepare(ctx, tenantID, req)
	if err != nil {
		return model.Run{}, err
	}
	runCtx, cancel := m.runContext(m.baseCtx)
	if !m.track(j.run.ID, cancel) {
		cancel()
		return model.Run{}, ErrShuttingDown
	}
	if err := m.store.CreateRun(ctx, j.run); err != nil {
		m.untrack(j.run.ID)
		cancel()
		return model.Run{}, err
	}
	queued := j.run
	m.wg.Go(func() {
		defer m.untrack(j.run.ID)
		defer cancel()
		_, _ = m.execute(runCtx, j)
	})
	return queued, nil
}

// Cancel stops a queued or running run of the tenant. The run record turns
// canceled once the optimizer observes the cancellation.
func (m *Manager) Cancel(ctx context.Context, tenantID, id string) (model.Run, error) {
	run, err := m.store.GetRun(ctx, tenantID, id)
	if err != nil {
		return model.Run{}, err
	}
	m.mu.Lock()
	cancel, ok := m.active[id]
	m.mu.Unlock()
	if !ok || run.Status.Terminal() {
		return run, ErrNotRunning
	}
	cancel()
	m.log.Info("run cancel requested", zap.String("run_id", id), zap.String("tenant", tenantID))
	return run, nil
}

// Active returns the number of queued or running runs.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown cancels every in-flight run, synchronous ones included, and
// waits for them and their callbacks to finish, or until ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	for _, cancel := range m.active {
		cancel()
	}
	m.mu.Unlock()
	m.stop()
	done := make(chan struct{})
	go func() {
		// Callbacks are scheduled before their run is untracked, so wg has
		// every Add it will ever get once inflight drains.
		m.inflight.Wait()
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if m.opts.RunTimeout > 0 {
		return context.WithTimeout(parent, m.opts.RunTimeout)
	}
	return context.WithCancel(parent)
}

func (m *Manager) track(id string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.active[id] = cancel
	m.inflight.Add(1)
	return true
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
	m.inflight.Done()
}

// prepare validates req, resolves places and layers the configuration.
func (m *Manager) prepare(ctx context.Context, tenantID string, req model.OptimizeRequest) (job, error) {
	hasPoints, hasPlaces := len(req.Points) > 0, len(req.Places) > 0
	switch {
	case hasPoints && hasPlaces:
		return job{}, fmt.Errorf("%w: give either points or places, not both", ErrInvalidRequest)
	case !hasPoints && !hasPlaces:
		return job{}, fmt.Errorf("%w: points or places are required", ErrInvalidRequest)
	}
	if req.SpeedKmh < 0 {
		return job{}, fmt.Errorf("%w: speedKmh must be >= 0", ErrInvalidRequest)
	}
	if u := strings.TrimSpace(req.CallbackURL); u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return job{}, fmt.Errorf("%w: callbackUrl must be an http(s) URL", ErrInvalidRequest)
	}
	provider, err := geo.ProviderByName(req.Distance)
	if err != nil {
		return job{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cfg, err := m.EffectiveConfig(ctx, tenantID, req.Config)
	if err != nil {
		return job{}, err
	}

	points := req.Points
	if hasPlaces {
		if m.geocoder == nil {
			return job{}, fmt.Errorf("%w: place names are not supported without a geocoder", ErrInvalidRequest)
		}
		if points, err = geocode.Resolve(ctx, m.geocoder, req.Places); err != nil {
			return job{}, err
		}
	}
	if err := opt.ValidatePoints(points); err != nil {
		return job{}, err
	}

	speed := req.SpeedKmh
	if speed <= 0 {
		speed = m.opts.SpeedKmh
	}
	return job{
		run: model.Run{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Status:    model.StatusQueued,
			Request:   req,
			Points:    points,
			Config:    cfg,
			CreatedAt: time.Now().UTC(),
		},
		provider: provider,
		speed:    speed,
	}, nil
}

// EffectiveConfig layers overrides over the tenant's stored settings over
// the service defaults, and validates the result.
func (m *Manager) EffectiveConfig(ctx context.Context, tenantID string, overrides *model.ConfigOverrides) (opt.Config, error) {
	tenant, err := m.store.GetOptimizerConfig(ctx, tenantID)
	if err != nil {
		return opt.Config{}, err
	}
	cfg := overrides.Apply(tenant.Apply(m.opts.Defaults))
	if err := cfg.Validate(); err != nil {
		return opt.Config{}, err
	}
	return cfg, nil
}

// Settings returns the tenant's overrides and the config they produce.
func (m *Manager) Settings(ctx context.Context, tenantID string) (model.OptimizerSettings, error) {
	ov, err := m.store.GetOptimizerConfig(ctx, tenantID)
	if err != nil {
		return model.OptimizerSettings{}, err
	}
	return model.OptimizerSettings{TenantID: tenantID, Overrides: ov, Effective: ov.Apply(m.opts.Defaults)}, nil
}

// SaveSettings stores tenant overrides after checking they produce a valid
// config. Nil or empty overrides reset the tenant to the defaults.
func (m *Manager) SaveSettings(ctx context.Context, tenantID string, ov *model.ConfigOverrides) (model.OptimizerSettings, error) {
	eff := ov.Apply(m.opts.Defaults)
	if err := eff.Validate(); err != nil {
		return model.OptimizerSettings{}, err
	}
	if err := m.store.SaveOptimizerConfig(ctx, tenantID, ov); err != nil {
		return model.OptimizerSettings{}, err
	}
	if ov.IsZero() {
		ov = nil
	}
	return model.OptimizerSettings{TenantID: tenantID, Overrides: ov, Effective: eff}, nil
}
