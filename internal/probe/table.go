package probe

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Table is a radial probe index together with its learned state.
//
// Samples are addressed by (radius bin, orientation bin, distance index) and
// stored in flat slices; Index performs the stride arithmetic. The geometric
// part (offsets and boundary points) is immutable once built. The usage mask,
// weights and strike counters are mutated only by training, normalization and
// loading, always under the owning Detector's write lock.
type Table struct {
	params Params

	radii  []float64 // per radius bin
	angles []float64 // per orientation bin, radians

	numRadii, numOrient, depth int

	// Relative offsets of each sample's positive (inside) and negative
	// (outside) probe.
	posX, posY []float64
	negX, negY []float64

	// Boundary point of each (radius, orientation) ray.
	edgeX, edgeY []float64

	used    []bool
	weight  []float64
	strikes []uint16
}

// NewTable builds a probe table for p. Every sample starts used with weight 1.
//
// For a ray at radius r and angle θ, distance index d places the positive
// probe at r-(d+0.5)*DistanceStep (clamped at the center) and the negative
// probe at r+(d+0.5)*DistanceStep along the outward direction (cos θ, sin θ).
func NewTable(p Params) (*Table, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	t := &Table{
		params:    p,
		numRadii:  p.numRadii(),
		numOrient: p.numOrientations(),
		depth:     p.Depth,
	}

	t.radii = make([]float64, t.numRadii)
	for i := range t.radii {
		t.radii[i] = p.MinRadius + float64(i)*p.RadiusStep
	}
	t.angles = make([]float64, t.numOrient)
	for j := range t.angles {
		t.angles[j] = float64(j) * p.OrientationStep * math.Pi / 180
	}

	n := t.numRadii * t.numOrient * t.depth
	t.posX, t.posY = make([]float64, n), make([]float64, n)
	t.negX, t.negY = make([]float64, n), make([]float64, n)
	t.edgeX, t.edgeY = make([]float64, t.numRadii*t.numOrient), make([]float64, t.numRadii*t.numOrient)

	for r, radius := range t.radii {
		for o, angle := range t.angles {
			cos, sin := math.Cos(angle), math.Sin(angle)
			ray := r*t.numOrient + o
			t.edgeX[ray], t.edgeY[ray] = radius*cos, radius*sin
			for d := 0; d < t.depth; d++ {
				step := (float64(d) + 0.5) * p.DistanceStep
				inner := math.Max(0, radius-step)
				outer := radius + step
				i := t.Index(r, o, d)
				t.posX[i], t.posY[i] = inner*cos, inner*sin
				t.negX[i], t.negY[i] = outer*cos, outer*sin
			}
		}
	}

	t.used = make([]bool, n)
	t.weight = make([]float64, n)
	t.strikes = make([]uint16, n)
	t.Reset()
	return t, nil
}

// Reset restores the learned state: all samples used, weight 1, no strikes.
func (t *Table) Reset() {
	for i := range t.used {
		t.used[i] = true
		t.weight[i] = 1
		t.strikes[i] = 0
	}
}

// Index returns the flat position of sample (r, o, d).
func (t *Table) Index(r, o, d int) int {
	return (r*t.numOrient+o)*t.depth + d
}

// Params returns the geometry the table was built with.
func (t *Table) Params() Params { return t.params }

// NumRadii returns the number of radius bins.
func (t *Table) NumRadii() int { return t.numRadii }

// NumOrientations returns the number of orientation bins.
func (t *Table) NumOrientations() int { return t.numOrient }

// Depth returns the number of probes per side of each ray.
func (t *Table) Depth() int { return t.depth }

// Len returns the total number of samples.
func (t *Table) Len() int { return len(t.used) }

// Radius returns the radius of bin r.
func (t *Table) Radius(r int) float64 { return t.radii[r] }

// RadiusBin returns the bin whose radius is nearest to radius, clamped to the
// table range. Ties resolve to the smaller bin.
func (t *Table) RadiusBin(radius float64) int {
	r := int(math.Floor((radius-t.params.MinRadius)/t.params.RadiusStep + 0.5 - 1e-9))
	if r < 0 {
		return 0
	}
	if r >= t.numRadii {
		return t.numRadii - 1
	}
	return r
}

// binRange returns the inclusive range of bins whose radius lies in [lo, hi].
// ok is false when no bin qualifies.
func (t *Table) binRange(lo, hi float64) (first, last int, ok bool) {
	first, last = -1, -1
	for r, radius := range t.radii {
		if radius < lo-1e-9 || radius > hi+1e-9 {
			continue
		}
		if first < 0 {
			first = r
		}
		last = r
	}
	return first, last, first >= 0
}

// Stats summarizes the learned state of a table.
type Stats struct {
	Samples    int     `json:"samples"`
	Used       int     `json:"used"`
	WeightSum  float64 `json:"weight_sum"`
	MeanWeight float64 `json:"mean_weight"`
	MaxWeight  float64 `json:"max_weight"`
}

// Stats reports usage and weight totals over the used samples.
func (t *Table) Stats() Stats {
	weights := make([]float64, 0, len(t.weight))
	for i, u := range t.used {
		if u {
			weights = append(weights, t.weight[i])
		}
	}
	s := Stats{Samples: len(t.used), Used: len(weights)}
	if len(weights) == 0 {
		return s
	}
	s.WeightSum = floats.Sum(weights)
	s.MeanWeight = s.WeightSum / float64(len(weights))
	s.MaxWeight = floats.Max(weights)
	return s
}
