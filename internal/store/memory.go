package store

import (
	"context"
	"fmt"
	"sync"

	"routeopt/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu     sync.Mutex
	runs   map[string]model.Run // id -> run
	byTen  map[string][]string  // tenant -> run ids, insertion order
	optCfg map[string]model.ConfigOverrides
}

func NewMemory() *Memory {
	return &Memory{
		runs:   map[string]model.Run{},
		byTen:  map[string][]string{},
		optCfg: map[string]model.ConfigOverrides{},
	}
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	m.runs[run.ID] = run
	m.byTen[run.TenantID] = append(m.byTen[run.TenantID], run.ID)
	return nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.runs[run.ID]
	if !ok || cur.TenantID != run.TenantID {
		return ErrNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID string, status model.RunStatus, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = clampLimit(limit)
	out := []model.Run{}
	var next string
	for i := start; i < len(ids); i++ {
		r := m.runs[ids[i]]
		if status != "" && r.Status != status {
			continue
		}
		if len(out) == limit {
			// another match exists past the page
			next = out[len(out)-1].ID
			break
		}
		out = append(out, r)
	}
	return out, next, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.ConfigOverrides, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.optCfg[tenantID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg *model.ConfigOverrides) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.IsZero() {
		delete(m.optCfg, tenantID)
		return nil
	}
	m.optCfg[tenantID] = *cfg
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
