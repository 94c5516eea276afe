package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"routeopt/internal/events"
	"routeopt/internal/metrics"
	"routeopt/internal/model"
	"routeopt/internal/opt"
	"routeopt/internal/webhooks"
)

const persistTimeout = 5 * time.Second

func (m *Manager) execute(ctx context.Context, j job) (run model.Run, err error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return m.finish(j, opt.Result{}, err, time.Now())
	}
	defer m.sem.Release(1)
	metrics.OptimizerActiveRuns.Inc()
	defer metrics.OptimizerActiveRuns.Dec()

	start := time.Now().UTC()
	j.run.Status = model.StatusRunning
	j.run.StartedAt = &start
	m.persist(j.run)
	m.log.Info("run started",
		zap.String("run_id", j.run.ID),
		zap.String("tenant", j.run.TenantID),
		zap.Int("points", len(j.run.Points)),
		zap.Int("generations", j.run.Config.Generations),
	)

	defer func() {
		if r := recover(); r != nil {
			run, err = m.finish(j, opt.Result{}, fmt.Errorf("optimizer panic: %v", r), start)
		}
	}()
	o := opt.Optimizer{Config: j.run.Config, Distance: j.provider, Progress: m.progress(j)}
	res, oerr := o.Optimize(ctx, j.run.Points)
	return m.finish(j, res, oerr, start)
}

func (m *Manager) progress(j job) func(opt.GenerationStat) {
	every, last := m.opts.ProgressEvery, j.run.Config.Generations
	return func(st opt.GenerationStat) {
		if st.Generation > 0 {
			metrics.OptimizerGenerations.Inc()
		}
		if st.Generation%every != 0 && st.Generation != last {
			return
		}
		m.broker.Publish(j.run.ID, model.RunEvent{
			Type: model.EventRunProgress,
			Progress: &model.Progress{
				RunID:       j.run.ID,
				Generation:  st.Generation,
				Generations: last,
				Min:         st.Min,
				Mean:        st.Mean,
			},
		})
	}
}

// finish records the outcome and notifies subscribers. It returns the final
// run and the error that ended it, if any.
func (m *Manager) finish(j job, res opt.Result, runErr error, start time.Time) (model.Run, error) {
	now := time.Now().UTC()
	run := j.run
	run.FinishedAt = &now

	evtType := model.EventRunCompleted
	switch {
	case runErr == nil:
		run.Status = model.StatusSucceeded
		run.Result = model.NewRunResult(res, j.speed, now.Sub(start))
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, ErrShuttingDown):
		run.Status = model.StatusCanceled
		run.Error = "run canceled"
		evtType = model.EventRunCanceled
	case errors.Is(runErr, context.DeadlineExceeded):
		run.Status = model.StatusFailed
		run.Error = fmt.Sprintf("run exceeded its time limit of %s", m.opts.RunTimeout)
		evtType = model.EventRunFailed
	default:
		run.Status = model.StatusFailed
		run.Error = runErr.Error()
		evtType = model.EventRunFailed
	}
	m.persist(run)

	metrics.OptimizerRuns.WithLabelValues(string(run.Status)).Inc()
	if run.StartedAt != nil {
		metrics.OptimizerRunDuration.Observe(now.Sub(start).Seconds())
	}
	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("tenant", run.TenantID),
		zap.String("status", string(run.Status)),
		zap.Duration("took", now.Sub(start)),
	}
	if run.Result != nil {
		metrics.OptimizerBestDistance.Observe(run.Result.DistanceKm)
		fields = append(fields, zap.Float64("distance_km", run.Result.DistanceKm), zap.Int64("seed", run.Result.Seed))
		m.log.Info("run finished", fields...)
	} else if run.Status == model.StatusCanceled {
		m.log.Info("run canceled", fields...)
	} else {
		m.log.Error("run failed", append(fields, zap.Error(runErr))...)
	}

	m.broker.Publish(run.ID, model.RunEvent{Type: evtType, Run: &run})
	m.emit(evtType, run)
	m.callback(evtType, run)
	return run, runErr
}

func (m *Manager) persist(run model.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.UpdateRun(ctx, run); err != nil {
		m.log.Error("failed to persist run", zap.String("run_id", run.ID), zap.String("status", string(run.Status)), zap.Error(err))
	}
}

// runSummary is the event and webhook payload; it omits the history.
type runSummary struct {
	RunID          string          `json:"runId"`
	Status         model.RunStatus `json:"status"`
	Route          []string        `json:"route,omitempty"`
	DistanceKm     float64         `json:"distanceKm,omitempty"`
	EstimatedHours float64         `json:"estimatedHours,omitempty"`
	Seed           int64           `json:"seed,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func summarize(run model.Run) runSummary {
	s := runSummary{RunID: run.ID, Status: run.Status, Error: run.Error}
	if r := run.Result; r != nil {
		s.Route, s.DistanceKm, s.EstimatedHours, s.Seed = r.Route, r.DistanceKm, r.EstimatedHours, r.Seed
	}
	return s
}

func (m *Manager) emit(evtType string, run model.Run) {
	evt, err := events.New(evtType, run.TenantID, run.ID, summarize(run))
	if err != nil {
		m.log.Error("failed to build event", zap.String("event_type", evtType), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.events.Publish(ctx, evt); err != nil {
		m.log.Warn("failed to publish event", zap.String("event_type", evtType), zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (m *Manager) callback(evtType string, run model.Run) {
	url := run.Request.CallbackURL
	if url == "" || m.notifier == nil {
		return
	}
	env := webhooks.NewEnvelope(evtType, run.TenantID, summarize(run))
	m.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := m.notifier.Deliver(ctx, url, evtType, env); err != nil {
			m.log.Warn("webhook delivery failed", zap.String("run_id", run.ID), zap.String("url", url), zap.Error(err))
		}
	})
}
