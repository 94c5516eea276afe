package opt

// improveEps is the minimum gain for a 2-opt move to count as improving.
const improveEps = 1e-9

// ImproveOrder2Opt applies first-improvement 2-opt moves to an open path
// until no move improves or iterations passes are done (iterations <= 0
// runs to a local optimum). It returns a new order and its length; the
// input is not modified.
func ImproveOrder2Opt(m *DistanceMatrix, order []int, iterations int) ([]int, float64) {
	best := append([]int(nil), order...)
	n := len(best)
	for it := 0; iterations <= 0 || it < iterations; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				d := twoOptDelta(m, best, i, k)
				if d < -improveEps {
					reverse(best, i, k)
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best, m.PathLength(best)
}

// twoOptDelta is the change in open-path length from reversing ord[i..k].
func twoOptDelta(m *DistanceMatrix, ord []int, i, k int) float64 {
	n := len(ord)
	delta := 0.0
	if i > 0 {
		delta += m.At(ord[i-1], ord[k]) - m.At(ord[i-1], ord[i])
	}
	if k < n-1 {
		delta += m.At(ord[i], ord[k+1]) - m.At(ord[k], ord[k+1])
	}
	return delta
}

func reverse(ord []int, i, k int) {
	for ; i < k; i, k = i+1, k-1 {
		ord[i], ord[k] = ord[k], ord[i]
	}
}
