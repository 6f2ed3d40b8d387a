package probe

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Ellipse is a detected (or ground-truth) pupil boundary.
//
// Major and Minor are semi-axis lengths in pixels with Major >= Minor. Angle
// is the direction of the major axis in radians, in [0, π), measured in image
// coordinates (x right, y down). An estimate with Valid == false means no
// pupil was found; its other fields carry no meaning.
type Ellipse struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Major      float64 `json:"major"`
	Minor      float64 `json:"minor"`
	Angle      float64 `json:"angle"`
	Confidence float64 `json:"confidence"`
	Valid      bool    `json:"valid"`
}

// Circle returns a valid axis-aligned ellipse with equal semi-axes.
func Circle(x, y, radius float64) Ellipse {
	return Ellipse{X: x, Y: y, Major: radius, Minor: radius, Valid: true}
}

// Contains reports whether the point (x, y) lies inside or on the ellipse.
func (e Ellipse) Contains(x, y float64) bool {
	if e.Major <= 0 || e.Minor <= 0 {
		return false
	}
	dx, dy := x-e.X, y-e.Y
	cos, sin := math.Cos(e.Angle), math.Sin(e.Angle)
	u := (dx*cos + dy*sin) / e.Major
	v := (-dx*sin + dy*cos) / e.Minor
	return u*u+v*v <= 1
}

// normalized returns e with Major >= Minor and Angle in [0, π).
func (e Ellipse) normalized() Ellipse {
	if e.Minor > e.Major {
		e.Major, e.Minor = e.Minor, e.Major
		e.Angle += math.Pi / 2
	}
	e.Angle = math.Mod(e.Angle, math.Pi)
	if e.Angle < 0 {
		e.Angle += math.Pi
	}
	return e
}

// Validate checks an ellipse supplied by a caller: every field finite and
// both semi-axes positive.
func (e Ellipse) Validate() error {
	for _, v := range []float64{e.X, e.Y, e.Major, e.Minor, e.Angle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite ellipse %+v", ErrConfiguration, e)
		}
	}
	if e.Major <= 0 || e.Minor <= 0 {
		return fmt.Errorf("%w: ellipse axes must be positive, got %g/%g", ErrConfiguration, e.Major, e.Minor)
	}
	return nil
}

var errNotEllipse = errors.New("conic is not an ellipse")

// point is a boundary sample in image coordinates.
type point struct{ x, y float64 }

// fitEllipse fits an ellipse to boundary points by linear least squares.
//
// The points are first shifted to their centroid (which lies inside any
// closed boundary), then the conic A u² + B uv + C v² + D u + E v = 1 is
// solved for A..E. The center follows from the conic gradient, and the
// semi-axes and rotation from the eigen-decomposition of the quadratic form.
func fitEllipse(pts []point) (Ellipse, error) {
	if len(pts) < 5 {
		return Ellipse{}, fmt.Errorf("need at least 5 points, got %d", len(pts))
	}

	var mx, my float64
	for _, p := range pts {
		mx += p.x
		my += p.y
	}
	mx /= float64(len(pts))
	my /= float64(len(pts))

	design := mat.NewDense(len(pts), 5, nil)
	ones := mat.NewVecDense(len(pts), nil)
	for i, p := range pts {
		u, v := p.x-mx, p.y-my
		design.SetRow(i, []float64{u * u, u * v, v * v, u, v})
		ones.SetVec(i, 1)
	}

	var coef mat.VecDense
	if err := coef.SolveVec(design, ones); err != nil {
		return Ellipse{}, fmt.Errorf("conic least squares: %w", err)
	}
	a, b, c := coef.AtVec(0), coef.AtVec(1), coef.AtVec(2)
	d, e := coef.AtVec(3), coef.AtVec(4)

	den := b*b - 4*a*c
	if den >= 0 {
		return Ellipse{}, errNotEllipse
	}
	u0 := (2*c*d - b*e) / den
	v0 := (2*a*e - b*d) / den
	// Conic value at the center.
	f0 := -1 + (d*u0+e*v0)/2

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(2, []float64{a, b / 2, b / 2, c}), true); !ok {
		return Ellipse{}, errors.New("eigen decomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	s0, s1 := -f0/vals[0], -f0/vals[1]
	if s0 <= 0 || s1 <= 0 {
		return Ellipse{}, errNotEllipse
	}
	ax0, ax1 := math.Sqrt(s0), math.Sqrt(s1)
	major := 0
	if ax1 > ax0 {
		major = 1
	}
	out := Ellipse{
		X:     mx + u0,
		Y:     my + v0,
		Major: math.Max(ax0, ax1),
		Minor: math.Min(ax0, ax1),
		Angle: math.Atan2(vecs.At(1, major), vecs.At(0, major)),
		Valid: true,
	}
	return out.normalized(), nil
}
