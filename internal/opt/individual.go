package opt

import "math/rand"

// Individual is a candidate visiting order. Genes is always a permutation
// of 0..n-1.
type Individual struct {
	Genes   []int
	Fitness float64
	Valid   bool
}

func (ind Individual) clone() Individual {
	return Individual{Genes: append([]int(nil), ind.Genes...), Fitness: ind.Fitness, Valid: ind.Valid}
}

func (ind *Individual) evaluate(m *DistanceMatrix) {
	ind.Fitness = m.PathLength(ind.Genes)
	ind.Valid = true
}

// randomIndividual draws a uniform permutation via Fisher-Yates.
func randomIndividual(n int, rng *rand.Rand) Individual {
	genes := make([]int, n)
	for i := range genes {
		genes[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		genes[i], genes[j] = genes[j], genes[i]
	}
	return Individual{Genes: genes}
}

// isPermutation reports whether genes holds each of 0..n-1 exactly once.
func isPermutation(genes []int, n int) bool {
	if len(genes) != n {
		return false
	}
	seen := make([]bool, n)
	for _, g := range genes {
		if g < 0 || g >= n || seen[g] {
			return false
		}
		seen[g] = true
	}
	return true
}
