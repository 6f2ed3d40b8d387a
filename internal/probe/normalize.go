package probe

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// normalize divides every weight by the p-quantile of the used weights, so
// that quantile becomes exactly 1. It reports false when there is nothing to
// scale. Division keeps the quantile element at exactly 1, which makes a
// second pass a no-op.
func (t *Table) normalize(p float64) bool {
	weights := make([]float64, 0, len(t.weight))
	for i, u := range t.used {
		if u {
			weights = append(weights, t.weight[i])
		}
	}
	if len(weights) == 0 {
		return false
	}
	sort.Float64s(weights)
	q := stat.Quantile(p, stat.Empirical, weights, nil)
	if q <= 0 || math.IsInf(q, 0) || math.IsNaN(q) {
		return false
	}
	for i := range t.weight {
		t.weight[i] /= q
	}
	return true
}

// NormalizeWeights rescales both tables so the given quantile (in (0, 1]) of
// each table's used weights equals 1.0. It bounds the growth caused by
// repeated training and is idempotent.
func (d *Detector) NormalizeWeights(p float64) error {
	if math.IsNaN(p) || p <= 0 || p > 1 {
		return fmt.Errorf("%w: percentile must be in (0, 1], got %g", ErrConfiguration, p)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.coarse.table.normalize(p)
	d.fine.table.normalize(p)
	return nil
}
