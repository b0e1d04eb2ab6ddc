package fusion

import (
	"fmt"

	retrievalerrors "github.com/retrievvy/retrievvy/internal/errors"
)

// Gini computes the Gini coefficient of a non-negative score distribution.
// Exported for callers (the query orchestrator) that report it alongside a
// fused result as a ranking-quality signal, separately from its internal
// use inside Fuse to derive per-channel weights.
func Gini(x []float64) (float64, error) {
	return gini(x)
}

// gini computes the Gini coefficient of a non-negative score distribution:
// for a slice x of length n with total T = Σx, gini = (n+1-2·Σcumsum(x)/T)/n.
// A peakier distribution (one big score, the rest small) scores closer to 1;
// a flat distribution scores closer to 0.
//
// Returns 0 for empty or all-zero input. Returns an error, not a panic, if
// any element is negative — a negative score reaching here means an
// upstream adapter produced one, which is a bug to surface, not tolerate.
func gini(x []float64) (float64, error) {
	n := len(x)
	if n == 0 {
		return 0, nil
	}

	sorted := make([]float64, n)
	copy(sorted, x)
	for i, v := range sorted {
		if v < 0 {
			return 0, retrievalerrors.New(retrievalerrors.ErrCodeNegativeScore,
				fmt.Sprintf("gini: negative element at index %d", i), nil)
		}
	}
	insertionSort(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	if total == 0 {
		return 0, nil
	}

	var cumsum, cumsumTotal float64
	for _, v := range sorted {
		cumsum += v
		cumsumTotal += cumsum
	}

	return (float64(n+1) - 2*cumsumTotal/total) / float64(n), nil
}

// insertionSort sorts small slices (overfetch sizes are in the tens to low
// hundreds) without pulling in sort's interface overhead for what is, in
// practice, a tiny ascending pass.
func insertionSort(x []float64) {
	for i := 1; i < len(x); i++ {
		v := x[i]
		j := i - 1
		for j >= 0 && x[j] > v {
			x[j+1] = x[j]
			j--
		}
		x[j+1] = v
	}
}
