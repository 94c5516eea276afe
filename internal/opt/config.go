package opt

import "fmt"

// Defaults for the evolutionary search.
const (
	DefaultPopulationSize   = 50
	DefaultOffspring        = 100
	DefaultGenerations      = 100
	DefaultCrossoverProb    = 0.7
	DefaultMutationProb     = 0.2
	DefaultGeneMutationProb = 0.1
	DefaultTournamentSize   = 3

	// AssumedSpeedKmh converts route distance to an estimated travel time.
	AssumedSpeedKmh = 60.0
)

// Config parameterizes a single optimization call. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	PopulationSize   int     `json:"populationSize" yaml:"population-size"`
	Offspring        int     `json:"offspring" yaml:"offspring"`
	Generations      int     `json:"generations" yaml:"generations"`
	CrossoverProb    float64 `json:"crossoverProb" yaml:"crossover-prob"`
	MutationProb     float64 `json:"mutationProb" yaml:"mutation-prob"`
	GeneMutationProb float64 `json:"geneMutationProb" yaml:"gene-mutation-prob"`
	TournamentSize   int     `json:"tournamentSize" yaml:"tournament-size"`
	// Seed 0 derives a seed from the clock; Result.Seed reports the one used.
	Seed int64 `json:"seed,omitempty" yaml:"seed"`
	// Polish runs an open-path 2-opt pass over the final best route.
	Polish bool `json:"polish,omitempty" yaml:"polish"`
}

// DefaultConfig returns mu=50, lambda=100, 100 generations, cxpb=0.7,
// mutpb=0.2, indpb=0.1 and tournaments of 3.
func DefaultConfig() Config {
	return Config{
		PopulationSize:   DefaultPopulationSize,
		Offspring:        DefaultOffspring,
		Generations:      DefaultGenerations,
		CrossoverProb:    DefaultCrossoverProb,
		MutationProb:     DefaultMutationProb,
		GeneMutationProb: DefaultGeneMutationProb,
		TournamentSize:   DefaultTournamentSize,
	}
}

// Validate checks sizes and probabilities.
func (c Config) Validate() error {
	if c.PopulationSize < 1 {
		return fmt.Errorf("%w: populationSize must be >= 1", ErrInvalidConfig)
	}
	if c.Offspring < 1 {
		return fmt.Errorf("%w: offspring must be >= 1", ErrInvalidConfig)
	}
	if c.Generations < 0 {
		return fmt.Errorf("%w: generations must be >= 0", ErrInvalidConfig)
	}
	if c.TournamentSize < 1 {
		return fmt.Errorf("%w: tournamentSize must be >= 1", ErrInvalidConfig)
	}
	probs := []struct {
		name string
		p    float64
	}{
		{"crossoverProb", c.CrossoverProb},
		{"mutationProb", c.MutationProb},
		{"geneMutationProb", c.GeneMutationProb},
	}
	for _, pr := range probs {
		// also rejects NaN
		if !(pr.p >= 0 && pr.p <= 1) {
			return fmt.Errorf("%w: %s must be in [0,1]", ErrInvalidConfig, pr.name)
		}
	}
	if c.CrossoverProb+c.MutationProb > 1+1e-12 {
		return fmt.Errorf("%w: crossoverProb + mutationProb must be <= 1", ErrInvalidConfig)
	}
	return nil
}

// EstimatedHours converts a distance in km into hours at speedKmh. A
// non-positive speed falls back to AssumedSpeedKmh.
func EstimatedHours(distanceKm, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = AssumedSpeedKmh
	}
	return distanceKm / speedKmh
}
