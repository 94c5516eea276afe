package store

import (
	"context"
	"errors"

	"routeopt/internal/model"
)

// Store is the persistence interface used by the run manager and the API.
// Runs are scoped by tenant: a run is never visible to another tenant.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID string, status model.RunStatus, cursor string, limit int) (items []model.Run, nextCursor string, err error)

	// Optimizer config per tenant. A tenant without overrides yields nil.
	GetOptimizerConfig(ctx context.Context, tenantID string) (*model.ConfigOverrides, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg *model.ConfigOverrides) error

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 50
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
