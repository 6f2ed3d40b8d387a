package probe

import (
	"image"
	"math"

	"github.com/ironsheep/pupil-tools-mcp/internal/imaging"
)

// minBoundaryPoints is the number of boundary points needed before an ellipse
// fit is attempted; with fewer the refined circle is returned.
const minBoundaryPoints = 6

// refineLocked refines a coarse candidate. Caller holds the read lock.
func (d *Detector) refineLocked(f *imaging.Frame, c candidate) Ellipse {
	return d.refineAround(f, c.x, c.y, d.coarse.table.radii[c.r], c)
}

// refineAround searches the fine table in a window around (x, y) and a
// radius band around radius, then fits an ellipse to the per-orientation
// boundary found from the best fine center. coarse is returned as a circle
// when the fine stage finds nothing. A result is valid only when the score
// behind it beats MinScore, and invalid results carry zero confidence.
func (d *Detector) refineAround(f *imaging.Frame, x, y int, radius float64, coarse candidate) Ellipse {
	fs := d.fine
	t := fs.table
	band := d.refinement.Band
	win := d.refinement.Window

	fallback := d.scored(Circle(float64(x), float64(y), radius), coarse)

	r0, r1, ok := t.binRange(radius-band, radius+band)
	if !ok {
		return fallback
	}
	region := image.Rect(x-win, y-win, x+win+1, y+win+1).Intersect(image.Rect(0, 0, f.Width, f.Height))
	best := fs.scan(f, region, r0, r1, 1, 1)
	if !best.ok {
		return fallback
	}

	circle := d.scored(Circle(float64(best.x), float64(best.y), t.radii[best.r]), best)

	pts := fs.boundary(f, best.x, best.y, r0, r1)
	if len(pts) < minBoundaryPoints {
		return circle
	}
	fit, err := fitEllipse(pts)
	if err != nil || !d.plausible(fit, best, radius) {
		circle.Major = meanRadius(pts, best.x, best.y)
		circle.Minor = circle.Major
		return circle
	}
	fit.Confidence = circle.Confidence
	fit.Valid = circle.Valid
	return fit
}

// scored marks e valid with the candidate's confidence when the candidate
// beats MinScore, and invalid with zero confidence otherwise.
func (d *Detector) scored(e Ellipse, c candidate) Ellipse {
	e.Valid = d.valid(c)
	e.Confidence = 0
	if e.Valid {
		e.Confidence = confidence(c.score)
	}
	return e
}

// plausible rejects fits that left the fine search region.
func (d *Detector) plausible(e Ellipse, best candidate, radius float64) bool {
	for _, v := range []float64{e.X, e.Y, e.Major, e.Minor, e.Angle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	limit := float64(d.refinement.Window) + d.refinement.Band
	if math.Hypot(e.X-float64(best.x), e.Y-float64(best.y)) > limit {
		return false
	}
	return e.Minor > 0 && e.Major <= radius+2*d.refinement.Band
}

// boundary returns, for every orientation, the boundary point seen from
// (x, y): the mean radius of the plateau of maximal ray score around the
// arg-max within bins r0..r1. Orientations without positive contrast are
// skipped.
func (s *searcher) boundary(f *imaging.Frame, x, y, r0, r1 int) []point {
	t := s.table
	scores := make([]float64, r1-r0+1)
	valid := make([]bool, r1-r0+1)
	pts := make([]point, 0, t.numOrient)

	for o, angle := range t.angles {
		top := -1
		for r := r0; r <= r1; r++ {
			k := r - r0
			scores[k], valid[k] = s.rayScore(f, x, y, r, o)
			if valid[k] && (top < 0 || scores[k] > scores[top]) {
				top = k
			}
		}
		if top < 0 || scores[top] <= 0 {
			continue
		}

		peak := scores[top]
		eps := 1e-9 * math.Max(1, math.Abs(peak))
		lo, hi := top, top
		for lo > 0 && valid[lo-1] && scores[lo-1] >= peak-eps {
			lo--
		}
		for hi < len(scores)-1 && valid[hi+1] && scores[hi+1] >= peak-eps {
			hi++
		}
		rho := (t.radii[r0+lo] + t.radii[r0+hi]) / 2
		pts = append(pts, point{
			x: float64(x) + rho*math.Cos(angle),
			y: float64(y) + rho*math.Sin(angle),
		})
	}
	return pts
}

func meanRadius(pts []point, x, y int) float64 {
	var sum float64
	for _, p := range pts {
		sum += math.Hypot(p.x-float64(x), p.y-float64(y))
	}
	return sum / float64(len(pts))
}
