package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeopt/internal/broker"
	"routeopt/internal/geo"
	"routeopt/internal/geocode"
	"routeopt/internal/model"
	"routeopt/internal/opt"
	"routeopt/internal/store"
	"routeopt/internal/webhooks"
)

func ptr[T any](v T) *T { return &v }

func squareRequest() model.OptimizeRequest {
	return model.OptimizeRequest{
		Points: []geo.Point{
			{Name: "sw", Coordinate: geo.Coordinate{Lat: 0, Lng: 0}},
			{Name: "nw", Coordinate: geo.Coordinate{Lat: 1, Lng: 0}},
			{Name: "ne", Coordinate: geo.Coordinate{Lat: 1, Lng: 1}},
			{Name: "se", Coordinate: geo.Coordinate{Lat: 0, Lng: 1}},
		},
		Distance: "planar",
		Config:   &model.ConfigOverrides{Seed: ptr(int64(42))},
	}
}

func gridRequest(n int) model.OptimizeRequest {
	pts := make([]geo.Point, n)
	for i := range pts {
		pts[i] = geo.Point{
			Name:       fmt.Sprintf("p%02d", i),
			Coordinate: geo.Coordinate{Lat: float64(i % 5), Lng: float64(i / 5)},
		}
	}
	return model.OptimizeRequest{Points: pts, Distance: "planar"}
}

// recordingBroker keeps every published event.
type recordingBroker struct {
	*broker.Broker
	mu     sync.Mutex
	events []model.RunEvent
}

func (b *recordingBroker) Publish(runID string, evt model.RunEvent) {
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
	b.Broker.Publish(runID, evt)
}

func (b *recordingBroker) snapshot() []model.RunEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.RunEvent(nil), b.events...)
}

func waitStatus(t *testing.T, s store.Store, tenant, id string, want model.RunStatus) model.Run {
	t.Helper()
	var run model.Run
	require.Eventually(t, func() bool {
		r, err := s.GetRun(context.Background(), tenant, id)
		if err != nil {
			return false
		}
		run = r
		return r.Status == want
	}, 10*time.Second, 5*time.Millisecond, "run %s never reached %s", id, want)
	return run
}

func TestRunSync(t *testing.T) {
	st := store.NewMemory()
	m := New(Deps{Store: st}, Options{})

	run, err := m.Run(context.Background(), "t1", squareRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, run.Status)
	require.NotNil(t, run.Result)
	assert.InDelta(t, 3.0, run.Result.DistanceKm, 1e-9)
	assert.Equal(t, int64(42), run.Result.Seed)
	assert.Len(t, run.Result.History, opt.DefaultGenerations+1)
	assert.InDelta(t, 3.0/opt.AssumedSpeedKmh, run.Result.EstimatedHours, 1e-12)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.FinishedAt)

	stored, err := st.GetRun(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, stored.Status)
	assert.Equal(t, run.Result.Route, stored.Result.Route)

	_, err = st.GetRun(context.Background(), "t2", run.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, m.Active())
}

func TestRunUsesRequestSpeed(t *testing.T) {
	m := New(Deps{}, Options{SpeedKmh: 30})
	req := squareRequest()
	run, err := m.Run(context.Background(), "t1", req)
	require.NoError(t, err)
	assert.InDelta(t, 3.0/30, run.Result.EstimatedHours, 1e-12)

	req.SpeedKmh = 3
	run, err = m.Run(context.Background(), "t1", req)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, run.Result.EstimatedHours, 1e-12)
}

func TestSubmitCompletesInBackground(t *testing.T) {
	st := store.NewMemory()
	m := New(Deps{Store: st}, Options{MaxConcurrent: 2})

	queued, err := m.Submit(context.Background(), "t1", squareRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, queued.Status)
	assert.NotEmpty(t, queued.ID)

	run := waitStatus(t, st, "t1", queued.ID, model.StatusSucceeded)
	assert.InDelta(t, 3.0, run.Result.DistanceKm, 1e-9)
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestProgressEvents(t *testing.T) {
	b := &recordingBroker{Broker: broker.New()}
	m := New(Deps{Broker: b}, Options{ProgressEvery: 5})
	req := squareRequest()
	req.Config.Generations = ptr(12)

	run, err := m.Run(context.Background(), "t1", req)
	require.NoError(t, err)

	var gens []int
	evts := b.snapshot()
	for _, e := range evts {
		if e.Type == model.EventRunProgress {
			require.NotNil(t, e.Progress)
			assert.Equal(t, run.ID, e.Progress.RunID)
			assert.Equal(t, 12, e.Progress.Generations)
			gens = append(gens, e.Progress.Generation)
		}
	}
	assert.Equal(t, []int{0, 5, 10, 12}, gens)

	last := evts[len(evts)-1]
	assert.Equal(t, model.EventRunCompleted, last.Type)
	require.NotNil(t, last.Run)
	assert.Equal(t, model.StatusSucceeded, last.Run.Status)
}

func TestCancelRunningRun(t *testing.T) {
	st := store.NewMemory()
	b := &recordingBroker{Broker: broker.New()}
	m := New(Deps{Store: st, Broker: b}, Options{})
	req := gridRequest(25)
	req.Config = &model.ConfigOverrides{Generations: ptr(1_000_000)}

	queued, err := m.Submit(context.Background(), "t1", req)
	require.NoError(t, err)
	waitStatus(t, st, "t1", queued.ID, model.StatusRunning)

	_, err = m.Cancel(context.Background(), "t2", queued.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = m.Cancel(context.Background(), "t1", queued.ID)
	require.NoError(t, err)
	run := waitStatus(t, st, "t1", queued.ID, model.StatusCanceled)
	assert.Nil(t, run.Result)
	assert.NotNil(t, run.FinishedAt)

	require.Eventually(t, func() bool { return m.Active() == 0 }, time.Second, time.Millisecond)
	_, err = m.Cancel(context.Background(), "t1", queued.ID)
	assert.ErrorIs(t, err, ErrNotRunning)

	evts := b.snapshot()
	assert.Equal(t, model.EventRunCanceled, evts[len(evts)-1].Type)
}

func TestCancelQueuedRun(t *testing.T) {
	st := store.NewMemory()
	m := New(Deps{Store: st}, Options{MaxConcurrent: 1})
	long := gridRequest(25)
	long.Config = &model.ConfigOverrides{Generations: ptr(1_000_000)}

	first, err := m.Submit(context.Background(), "t1", long)
	require.NoError(t, err)
	waitStatus(t, st, "t1", first.ID, model.StatusRunning)

	second, err := m.Submit(context.Background(), "t1", squareRequest())
	require.NoError(t, err)
	_, err = m.Cancel(context.Background(), "t1", second.ID)
	require.NoError(t, err)
	run := waitStatus(t, st, "t1", second.ID, model.StatusCanceled)
	assert.Nil(t, run.StartedAt)

	require.NoError(t, m.Shutdown(context.Background()))
	waitStatus(t, st, "t1", first.ID, model.StatusCanceled)
}

func TestCancelFinishedRun(t *testing.T) {
	m := New(Deps{}, Options{})
	run, err := m.Run(context.Background(), "t1", squareRequest())
	require.NoError(t, err)
	_, err = m.Cancel(context.Background(), "t1", run.ID)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRunTimeout(t *testing.T) {
	m := New(Deps{}, Options{RunTimeout: 50 * time.Millisecond})
	req := gridRequest(25)
	req.Config = &model.ConfigOverrides{Generations: ptr(1_000_000)}

	run, err := m.Run(context.Background(), "t1", req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "time limit")
}

func TestSubmitAfterShutdown(t *testing.T) {
	m := New(Deps{}, Options{})
	require.NoError(t, m.Shutdown(context.Background()))
	_, err := m.Submit(context.Background(), "t1", squareRequest())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestInvalidRequests(t *testing.T) {
	m := New(Deps{Geocoder: geocode.NewGazetteer()}, Options{})
	withBoth := squareRequest()
	withBoth.Places = []string{"Lima", "Cusco"}
	badSpeed := squareRequest()
	badSpeed.SpeedKmh = -1
	badCallback := squareRequest()
	badCallback.CallbackURL = "ftp://example.com"
	badProvider := squareRequest()
	badProvider.Distance = "manhattan"
	badConfig := squareRequest()
	badConfig.Config = &model.ConfigOverrides{CrossoverProb: ptr(0.9), MutationProb: ptr(0.5)}
	single := squareRequest()
	single.Points = single.Points[:1]

	cases := []struct {
		name string
		req  model.OptimizeRequest
		want error
	}{
		{"neither", model.OptimizeRequest{}, ErrInvalidRequest},
		{"both", withBoth, ErrInvalidRequest},
		{"speed", badSpeed, ErrInvalidRequest},
		{"callback", badCallback, ErrInvalidRequest},
		{"provider", badProvider, ErrInvalidRequest},
		{"config", badConfig, opt.ErrInvalidConfig},
		{"one point", single, opt.ErrInsufficientPoints},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Run(context.Background(), "t1", tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPlacesResolvedThroughGazetteer(t *testing.T) {
	gz := geocode.NewGazetteer(
		geocode.Place{Name: "Lima", Lat: -12.0464, Lng: -77.0428},
		geocode.Place{Name: "Cusco", Lat: -13.5320, Lng: -71.9675},
		geocode.Place{Name: "Arequipa", Lat: -16.4090, Lng: -71.5375},
	)
	m := New(Deps{Geocoder: gz}, Options{})

	run, err := m.Run(context.Background(), "t1", model.OptimizeRequest{Places: []string{"Lima", "Cusco", "Arequipa"}})
	require.NoError(t, err)
	require.Len(t, run.Points, 3)
	assert.Equal(t, "Lima", run.Points[0].Name)
	assert.ElementsMatch(t, []string{"Lima", "Cusco", "Arequipa"}, run.Result.Route)

	_, err = m.Run(context.Background(), "t1", model.OptimizeRequest{Places: []string{"Lima", "Atlantis", "Gondor"}})
	var re *geocode.ResolveError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, []string{"Atlantis", "Gondor"}, re.Unresolved)
	assert.ErrorIs(t, err, geocode.ErrNotFound)
}

func TestPlacesWithoutGeocoder(t *testing.T) {
	m := New(Deps{}, Options{})
	_, err := m.Run(context.Background(), "t1", model.OptimizeRequest{Places: []string{"Lima", "Cusco"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEffectiveConfigLayers(t *testing.T) {
	st := store.NewMemory()
	defaults := opt.DefaultConfig()
	defaults.Generations = 40
	m := New(Deps{Store: st}, Options{Defaults: defaults})
	ctx := context.Background()

	_, err := m.SaveSettings(ctx, "t1", &model.ConfigOverrides{Generations: ptr(3), PopulationSize: ptr(20)})
	require.NoError(t, err)

	cfg, err := m.EffectiveConfig(ctx, "t1", &model.ConfigOverrides{PopulationSize: ptr(10)})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Generations)
	assert.Equal(t, 10, cfg.PopulationSize)
	assert.Equal(t, opt.DefaultOffspring, cfg.Offspring)

	other, err := m.EffectiveConfig(ctx, "t2", nil)
	require.NoError(t, err)
	assert.Equal(t, defaults, other)

	settings, err := m.Settings(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, settings.Overrides)
	assert.Equal(t, 20, settings.Effective.PopulationSize)

	_, err = m.SaveSettings(ctx, "t1", &model.ConfigOverrides{TournamentSize: ptr(0)})
	assert.ErrorIs(t, err, opt.ErrInvalidConfig)

	reset, err := m.SaveSettings(ctx, "t1", &model.ConfigOverrides{})
	require.NoError(t, err)
	assert.Nil(t, reset.Overrides)
	assert.Equal(t, defaults, reset.Effective)
}

func TestCallbackDelivered(t *testing.T) {
	type delivery struct {
		eventType string
		signature string
		body      []byte
	}
	got := make(chan delivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{r.Header.Get("X-Event-Type"), r.Header.Get("X-Signature"), body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := New(Deps{Notifier: webhooks.NewNotifier("s3cret", 1, nil)}, Options{})
	req := squareRequest()
	req.CallbackURL = srv.URL
	run, err := m.Run(context.Background(), "t1", req)
	require.NoError(t, err)

	select {
	case d := <-got:
		assert.Equal(t, model.EventRunCompleted, d.eventType)
		assert.True(t, webhooks.VerifyHMAC("s3cret", d.body, d.signature))
		var env struct {
			Type     string     `json:"type"`
			TenantID string     `json:"tenantId"`
			Data     runSummary `json:"data"`
		}
		require.NoError(t, json.Unmarshal(d.body, &env))
		assert.Equal(t, "t1", env.TenantID)
		assert.Equal(t, run.ID, env.Data.RunID)
		assert.Equal(t, model.StatusSucceeded, env.Data.Status)
		assert.InDelta(t, 3.0, env.Data.DistanceKm, 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("callback not delivered")
	}
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestShutdownWaitsForSyncRun(t *testing.T) {
	delivered := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- r.Header.Get("X-Event-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	st := store.NewMemory()
	m := New(Deps{Store: st, Notifier: webhooks.NewNotifier("s3cret", 1, nil)}, Options{})
	req := gridRequest(25)
	req.Config = &model.ConfigOverrides{Generations: ptr(1_000_000)}
	req.CallbackURL = srv.URL

	type outcome struct {
		run model.Run
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		run, err := m.Run(context.Background(), "t1", req)
		done <- outcome{run, err}
	}()
	require.Eventually(t, func() bool { return m.Active() == 1 }, 5*time.Second, time.Millisecond)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.Active())
	// the callback was scheduled by the sync run and is awaited too
	select {
	case evt := <-delivered:
		assert.Equal(t, model.EventRunCanceled, evt)
	default:
		t.Fatal("callback not delivered before Shutdown returned")
	}
	select {
	case got := <-done:
		require.ErrorIs(t, got.err, context.Canceled)
		assert.Equal(t, model.StatusCanceled, got.run.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("sync run did not return")
	}
}

func TestRunAfterShutdown(t *testing.T) {
	st := store.NewMemory()
	m := New(Deps{Store: st}, Options{})
	require.NoError(t, m.Shutdown(context.Background()))
	_, err := m.Run(context.Background(), "t1", squareRequest())
	assert.ErrorIs(t, err, ErrShuttingDown)
	runs, _, err := st.ListRuns(context.Background(), "t1", "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
