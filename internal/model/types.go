package model

import (
	"time"

	"routeopt/internal/geo"
	"routeopt/internal/opt"
)

// OptimizeRequest is the body of POST /v1/optimize and POST /v1/runs.
// Exactly one of Points or Places must be set.
type OptimizeRequest struct {
	Points      []geo.Point      `json:"points,omitempty"`
	Places      []string         `json:"places,omitempty"`
	Distance    string           `json:"distance,omitempty"` // haversine (default) | planar
	SpeedKmh    float64          `json:"speedKmh,omitempty"`
	Config      *ConfigOverrides `json:"config,omitempty"`
	CallbackURL string           `json:"callbackUrl,omitempty"`
}

// ConfigOverrides is a partial opt.Config. Nil fields inherit from the
// layer below (tenant settings, then service defaults).
type ConfigOverrides struct {
	PopulationSize   *int     `json:"populationSize,omitempty" yaml:"population-size,omitempty"`
	Offspring        *int     `json:"offspring,omitempty" yaml:"offspring,omitempty"`
	Generations      *int     `json:"generations,omitempty" yaml:"generations,omitempty"`
	CrossoverProb    *float64 `json:"crossoverProb,omitempty" yaml:"crossover-prob,omitempty"`
	MutationProb     *float64 `json:"mutationProb,omitempty" yaml:"mutation-prob,omitempty"`
	GeneMutationProb *float64 `json:"geneMutationProb,omitempty" yaml:"gene-mutation-prob,omitempty"`
	TournamentSize   *int     `json:"tournamentSize,omitempty" yaml:"tournament-size,omitempty"`
	Seed             *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	Polish           *bool    `json:"polish,omitempty" yaml:"polish,omitempty"`
}

// Apply returns c with every non-nil override set. A nil receiver returns c.
func (o *ConfigOverrides) Apply(c opt.Config) opt.Config {
	if o == nil {
		return c
	}
	if o.PopulationSize != nil {
		c.PopulationSize = *o.PopulationSize
	}
	if o.Offspring != nil {
		c.Offspring = *o.Offspring
	}
	if o.Generations != nil {
		c.Generations = *o.Generations
	}
	if o.CrossoverProb != nil {
		c.CrossoverProb = *o.CrossoverProb
	}
	if o.MutationProb != nil {
		c.MutationProb = *o.MutationProb
	}
	if o.GeneMutationProb != nil {
		c.GeneMutationProb = *o.GeneMutationProb
	}
	if o.TournamentSize != nil {
		c.TournamentSize = *o.TournamentSize
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.Polish != nil {
		c.Polish = *o.Polish
	}
	return c
}

// IsZero reports whether no override is set.
func (o *ConfigOverrides) IsZero() bool {
	return o == nil || *o == ConfigOverrides{}
}

type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Run is the persisted record of one optimization.
type Run struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Status     RunStatus       `json:"status"`
	Request    OptimizeRequest `json:"request"`
	Points     []geo.Point     `json:"points,omitempty"`
	Config     opt.Config      `json:"config"`
	Result     *RunResult      `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// RunResult is the optimizer output as exposed by the API. DistanceKm is in
// kilometers for the haversine provider and in coordinate units for planar.
type RunResult struct {
	Route          []string             `json:"route"`
	Order          []int                `json:"order"`
	DistanceKm     float64              `json:"distanceKm"`
	EstimatedHours float64              `json:"estimatedHours"`
	History        []opt.GenerationStat `json:"history"`
	Seed           int64                `json:"seed"`
	Evaluations    int                  `json:"evaluations"`
	Polished       bool                 `json:"polished,omitempty"`
	DurationMs     int64                `json:"durationMs"`
}

// NewRunResult converts an optimizer result.
func NewRunResult(res opt.Result, speedKmh float64, took time.Duration) *RunResult {
	return &RunResult{
		Route:          res.Route,
		Order:          res.Order,
		DistanceKm:     res.Distance,
		EstimatedHours: opt.EstimatedHours(res.Distance, speedKmh),
		History:        res.History,
		Seed:           res.Seed,
		Evaluations:    res.Evaluations,
		Polished:       res.Polished,
		DurationMs:     took.Milliseconds(),
	}
}

// Progress is streamed to subscribers after each reported generation.
type Progress struct {
	RunID       string  `json:"runId"`
	Generation  int     `json:"generation"`
	Generations int     `json:"generations"`
	Min         float64 `json:"min"`
	Mean        float64 `json:"mean"`
}

// RunEvent is the payload published to the broker for a run.
type RunEvent struct {
	Type     string    `json:"type"` // run.progress | run.completed | run.failed | run.canceled
	Progress *Progress `json:"progress,omitempty"`
	Run      *Run      `json:"run,omitempty"`
}

const (
	EventRunProgress  = "run.progress"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunCanceled  = "run.canceled"
)

// RunPage is a cursor-paged list of runs.
type RunPage struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type GeocodeRequest struct {
	Places []string `json:"places"`
}

type GeocodeResponse struct {
	Points []geo.Point `json:"points"`
}

type LinearSolveRequest struct {
	Method string      `json:"method,omitempty"` // substitution | gauss-jordan | cramer
	A      [][]float64 `json:"a"`
	B      []float64   `json:"b"`
}

type LinearSolveResponse struct {
	Method string    `json:"method"`
	X      []float64 `json:"x"`
}

// OptimizerSettings is the view returned by the optimizer config endpoints.
type OptimizerSettings struct {
	TenantID  string           `json:"tenantId"`
	Overrides *ConfigOverrides `json:"overrides,omitempty"`
	Effective opt.Config       `json:"effective"`
}
