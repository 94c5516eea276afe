package opt

import "math/rand"

// tournament samples k individuals uniformly with replacement and returns
// the index of the fittest. Ties keep the first drawn.
func tournament(pop []Individual, k int, rng *rand.Rand) int {
	best := rng.Intn(len(pop))
	for i := 1; i < k; i++ {
		c := rng.Intn(len(pop))
		if pop[c].Fitness < pop[best].Fitness {
			best = c
		}
	}
	return best
}

// orderedCrossover (OX) copies p1[a..b] into the child and fills the
// remaining slots, starting after b and wrapping, with p2's genes in
// relative order, skipping genes already taken.
func orderedCrossover(p1, p2 []int, rng *rand.Rand) []int {
	n := len(p1)
	child := make([]int, n)
	if n < 2 {
		copy(child, p1)
		return child
	}
	a := rng.Intn(n)
	b := rng.Intn(n - 1)
	if b >= a {
		b++
	} else {
		a, b = b, a
	}
	taken := make([]bool, n)
	for i := a; i <= b; i++ {
		child[i] = p1[i]
		taken[p1[i]] = true
	}
	pos := (b + 1) % n
	for k := 0; k < n; k++ {
		g := p2[(b+1+k)%n]
		if taken[g] {
			continue
		}
		child[pos] = g
		taken[g] = true
		pos = (pos + 1) % n
	}
	return child
}

// shuffleIndexes swaps each position, with probability indpb, with another
// uniformly chosen position. Operates in place.
func shuffleIndexes(genes []int, indpb float64, rng *rand.Rand) {
	n := len(genes)
	if n < 2 {
		return
	}
	for i := 0; i < n; i++ {
		if rng.Float64() < indpb {
			j := rng.Intn(n - 1)
			if j >= i {
				j++
			}
			genes[i], genes[j] = genes[j], genes[i]
		}
	}
}
