package probe

import (
	"fmt"
	"math"
)

// maxSamples bounds the size of a single probe table.
const maxSamples = 1 << 24

// Params describes the geometry of one probe table.
//
// Radii run from MinRadius to MaxRadius (inclusive) in RadiusStep increments,
// orientations cover [0, 360) degrees in OrientationStep increments and every
// (radius, orientation) ray carries Depth positive and Depth negative probes
// spaced DistanceStep pixels apart on either side of the hypothesized boundary.
type Params struct {
	MinRadius       float64 `yaml:"minRadius" json:"min_radius"`
	MaxRadius       float64 `yaml:"maxRadius" json:"max_radius"`
	RadiusStep      float64 `yaml:"radiusStep" json:"radius_step"`
	OrientationStep float64 `yaml:"orientationStep" json:"orientation_step"`
	DistanceStep    float64 `yaml:"distanceStep" json:"distance_step"`
	Depth           int     `yaml:"depth" json:"depth"`
}

// DefaultParams returns the coarse table geometry used for typical
// near-infrared eye-tracker frames (pupil radius 6-15 px at 384x288).
func DefaultParams() Params {
	return Params{
		MinRadius:       6,
		MaxRadius:       15,
		RadiusStep:      2,
		OrientationStep: 3,
		DistanceStep:    1,
		Depth:           3,
	}
}

// Validate checks the parameters and reports the first problem as an
// ErrConfiguration.
func (p Params) Validate() error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	switch {
	case !finite(p.MinRadius) || !finite(p.MaxRadius) || !finite(p.RadiusStep) ||
		!finite(p.OrientationStep) || !finite(p.DistanceStep):
		return fmt.Errorf("%w: non-finite parameter in %+v", ErrConfiguration, p)
	case p.RadiusStep <= 0:
		return fmt.Errorf("%w: radius step must be positive, got %g", ErrConfiguration, p.RadiusStep)
	case p.MinRadius < 0:
		return fmt.Errorf("%w: min radius must not be negative, got %g", ErrConfiguration, p.MinRadius)
	case p.MaxRadius <= p.MinRadius:
		return fmt.Errorf("%w: max radius %g must exceed min radius %g", ErrConfiguration, p.MaxRadius, p.MinRadius)
	case p.OrientationStep <= 0 || p.OrientationStep >= 360:
		return fmt.Errorf("%w: orientation step must be in (0, 360), got %g", ErrConfiguration, p.OrientationStep)
	case p.DistanceStep <= 0:
		return fmt.Errorf("%w: distance step must be positive, got %g", ErrConfiguration, p.DistanceStep)
	case p.Depth < 1:
		return fmt.Errorf("%w: depth must be at least 1, got %d", ErrConfiguration, p.Depth)
	}
	n := (math.Floor((p.MaxRadius-p.MinRadius)/p.RadiusStep+1e-9) + 1) *
		math.Ceil(360/p.OrientationStep-1e-9) * float64(p.Depth)
	if n > maxSamples {
		return fmt.Errorf("%w: table would hold %.0f samples (limit %d)", ErrConfiguration, n, maxSamples)
	}
	return nil
}

func (p Params) numRadii() int {
	return int(math.Floor((p.MaxRadius-p.MinRadius)/p.RadiusStep+1e-9)) + 1
}

func (p Params) numOrientations() int {
	return int(math.Ceil(360/p.OrientationStep - 1e-9))
}

// Refinement configures the fine fitting stage. It owns a table of its own
// whose radius range is the coarse range widened by Band on both sides.
type Refinement struct {
	RadiusStep      float64 `yaml:"radiusStep" json:"radius_step"`
	OrientationStep float64 `yaml:"orientationStep" json:"orientation_step"`
	DistanceStep    float64 `yaml:"distanceStep" json:"distance_step"`
	Depth           int     `yaml:"depth" json:"depth"`

	// Window is the half size, in pixels, of the square of candidate centers
	// searched around the coarse estimate.
	Window int `yaml:"window" json:"window"`

	// Band is the radius tolerance, in pixels, searched around the coarse radius.
	Band float64 `yaml:"band" json:"band"`
}

// DefaultRefinement returns the fine stage settings matching DefaultParams.
func DefaultRefinement() Refinement {
	return Refinement{
		RadiusStep:      0.25,
		OrientationStep: 2.5,
		DistanceStep:    1,
		Depth:           2,
		Window:          3,
		Band:            5,
	}
}

// Validate checks the refinement against the coarse geometry it will refine.
func (r Refinement) Validate(coarse Params) error {
	_, err := r.tableParams(coarse)
	return err
}

// tableParams derives the fine table geometry for a coarse configuration.
func (r Refinement) tableParams(coarse Params) (Params, error) {
	if r.Window < 0 {
		return Params{}, fmt.Errorf("%w: refinement window must not be negative, got %d", ErrConfiguration, r.Window)
	}
	if r.Band <= 0 || math.IsNaN(r.Band) || math.IsInf(r.Band, 0) {
		return Params{}, fmt.Errorf("%w: refinement band must be positive, got %g", ErrConfiguration, r.Band)
	}
	p := Params{
		MinRadius:       math.Max(0, coarse.MinRadius-r.Band),
		MaxRadius:       coarse.MaxRadius + r.Band,
		RadiusStep:      r.RadiusStep,
		OrientationStep: r.OrientationStep,
		DistanceStep:    r.DistanceStep,
		Depth:           r.Depth,
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("refinement: %w", err)
	}
	return p, nil
}
