package opt

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"routeopt/internal/geo"
)

// GenerationStat summarizes the population after a generation. Generation 0
// is the initial population.
type GenerationStat struct {
	Generation int     `json:"generation"`
	Min        float64 `json:"min"`
	Mean       float64 `json:"mean"`
}

// Result is the hall-of-fame route of a run.
type Result struct {
	Route       []string         `json:"route"`
	Order       []int            `json:"order"`
	Distance    float64          `json:"distance"`
	History     []GenerationStat `json:"history"`
	Seed        int64            `json:"seed"`
	Evaluations int              `json:"evaluations"`
	Polished    bool             `json:"polished,omitempty"`
}

// Optimizer runs a (mu+lambda) genetic search for a short open path
// through all points.
type Optimizer struct {
	Config   Config
	Distance geo.DistanceProvider
	// Progress, when set, is called after every generation (including 0).
	Progress func(GenerationStat)
}

// Optimize is shorthand for an Optimizer without a progress hook.
func Optimize(ctx context.Context, points []geo.Point, provider geo.DistanceProvider, cfg Config) (Result, error) {
	o := Optimizer{Config: cfg, Distance: provider}
	return o.Optimize(ctx, points)
}

// ValidatePoints checks the point set before any distance is computed.
// Names are compared trimmed and case-insensitively.
func ValidatePoints(points []geo.Point) error {
	seen := make(map[string]struct{}, len(points))
	for i, p := range points {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("%w: point %d has an empty name", ErrInvalidPoint, i)
		}
		if !p.Coordinate.Valid() {
			return fmt.Errorf("%w: %q has coordinate (%v, %v)", ErrInvalidPoint, p.Name, p.Lat, p.Lng)
		}
		// same key geocode.Resolve uses for its own duplicate check
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicatePoint, p.Name)
		}
		seen[key] = struct{}{}
	}
	if len(points) < 2 {
		return fmt.Errorf("%w: got %d", ErrInsufficientPoints, len(points))
	}
	return nil
}

// Optimize returns the best route found after exactly Config.Generations
// generations. It returns no partial result on error or cancellation.
func (o *Optimizer) Optimize(ctx context.Context, points []geo.Point) (Result, error) {
	cfg := o.Config
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := ValidatePoints(points); err != nil {
		return Result{}, err
	}
	provider := o.Distance
	if provider == nil {
		provider = geo.Haversine{}
	}
	m, err := NewDistanceMatrix(ctx, points, provider)
	if err != nil {
		return Result{}, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	n := len(points)
	evals := 0

	pop := make([]Individual, cfg.PopulationSize)
	for i := range pop {
		pop[i] = randomIndividual(n, rng)
		pop[i].evaluate(m)
		evals++
	}
	hof := bestOf(pop).clone()
	history := make([]GenerationStat, 0, cfg.Generations+1)
	history = append(history, o.record(0, pop))

	offspring := make([]Individual, cfg.Offspring)
	pool := make([]Individual, 0, cfg.PopulationSize+cfg.Offspring)
	for gen := 1; gen <= cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		for i := range offspring {
			offspring[i] = vary(pop, cfg, rng)
			if !offspring[i].Valid {
				offspring[i].evaluate(m)
				evals++
			}
			if offspring[i].Fitness < hof.Fitness {
				hof = offspring[i].clone()
			}
		}
		pool = append(pool[:0], pop...)
		pool = append(pool, offspring...)
		sort.SliceStable(pool, func(a, b int) bool { return pool[a].Fitness < pool[b].Fitness })
		next := make([]Individual, cfg.PopulationSize)
		copy(next, pool[:cfg.PopulationSize])
		pop = next
		history = append(history, o.record(gen, pop))
	}

	res := Result{
		Order:       hof.Genes,
		Distance:    hof.Fitness,
		History:     history,
		Seed:        seed,
		Evaluations: evals,
	}
	if cfg.Polish {
		order, d := ImproveOrder2Opt(m, hof.Genes, 0)
		if d < res.Distance {
			res.Order, res.Distance, res.Polished = order, d, true
		}
	}
	res.Route = make([]string, n)
	for i, idx := range res.Order {
		res.Route[i] = points[idx].Name
	}
	return res, nil
}

// vary produces one offspring: crossover, mutation or plain reproduction,
// chosen exclusively by a single uniform draw.
func vary(pop []Individual, cfg Config, rng *rand.Rand) Individual {
	r := rng.Float64()
	switch {
	case r < cfg.CrossoverProb:
		p1 := pop[tournament(pop, cfg.TournamentSize, rng)]
		p2 := pop[tournament(pop, cfg.TournamentSize, rng)]
		return Individual{Genes: orderedCrossover(p1.Genes, p2.Genes, rng)}
	case r < cfg.CrossoverProb+cfg.MutationProb:
		child := pop[tournament(pop, cfg.TournamentSize, rng)].clone()
		shuffleIndexes(child.Genes, cfg.GeneMutationProb, rng)
		child.Valid = false
		return child
	default:
		return pop[tournament(pop, cfg.TournamentSize, rng)].clone()
	}
}

func bestOf(pop []Individual) Individual {
	best := pop[0]
	for _, ind := range pop[1:] {
		if ind.Fitness < best.Fitness {
			best = ind
		}
	}
	return best
}

func (o *Optimizer) record(gen int, pop []Individual) GenerationStat {
	st := GenerationStat{Generation: gen, Min: pop[0].Fitness}
	sum := 0.0
	for _, ind := range pop {
		if ind.Fitness < st.Min {
			st.Min = ind.Fitness
		}
		sum += ind.Fitness
	}
	st.Mean = sum / float64(len(pop))
	if o.Progress != nil {
		o.Progress(st)
	}
	return st
}
