// Package hough locates dark circular pupils with a Hough circle transform.
//
// It is the baseline the probe detector is compared against: no training, no
// ellipse fit, only edge voting. Both satisfy the same locator contract, so
// the server can switch between them per request.
package hough

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/pupil-tools-mcp/internal/imaging"
	"github.com/ironsheep/pupil-tools-mcp/internal/monitoring"
	"github.com/ironsheep/pupil-tools-mcp/internal/probe"
)

// minEdgeContrast is the lowest gradient magnitude ever accepted as an edge,
// whatever the automatic threshold says. It keeps flat frames edge-free.
const minEdgeContrast = 10.0

// Detector holds the Hough search settings. Build one with New and adjust the
// exported fields before use; a Detector is not modified by detection and
// can be shared between goroutines.
type Detector struct {
	// MinRadius and MaxRadius bound the searched radii, in pixels.
	MinRadius int
	MaxRadius int

	// AngleStep is the spacing, in degrees, of the votes each edge pixel casts.
	AngleStep float64

	// EdgeThreshold is the gradient magnitude above which a pixel is an edge.
	// Zero selects mean + 2 standard deviations of the frame's gradient.
	EdgeThreshold float64

	// MinConfidence is the fraction of possible votes a peak needs.
	MinConfidence float64

	// AOI restricts candidate centers, with the same meaning as for the probe
	// detector.
	AOI probe.AreaOfInterest
}

// New returns a detector for radii in [minRadius, maxRadius] with 5 degree
// votes, automatic edge threshold and the default area of interest.
func New(minRadius, maxRadius int) (*Detector, error) {
	d := &Detector{
		MinRadius:     minRadius,
		MaxRadius:     maxRadius,
		AngleStep:     5,
		MinConfidence: 0.3,
		AOI:           probe.DefaultAreaOfInterest(),
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Detector) validate() error {
	switch {
	case d.MinRadius < 1 || d.MaxRadius < d.MinRadius:
		return fmt.Errorf("%w: hough radius range [%d, %d] is empty", probe.ErrConfiguration, d.MinRadius, d.MaxRadius)
	case !(d.AngleStep > 0 && d.AngleStep < 360):
		return fmt.Errorf("%w: hough angle step must be in (0, 360), got %g", probe.ErrConfiguration, d.AngleStep)
	case d.EdgeThreshold < 0 || math.IsNaN(d.EdgeThreshold):
		return fmt.Errorf("%w: edge threshold must not be negative, got %g", probe.ErrConfiguration, d.EdgeThreshold)
	case !(d.MinConfidence > 0 && d.MinConfidence <= 1):
		return fmt.Errorf("%w: min confidence must be in (0, 1], got %g", probe.ErrConfiguration, d.MinConfidence)
	}
	return nil
}

// Circle is one accumulator peak.
type Circle struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Radius     int     `json:"radius"`
	Votes      int     `json:"votes"`
	Confidence float64 `json:"confidence"`
}

// Circles returns the accumulator peaks found in f, best first.
//
// # Algorithm
//
//  1. Edge Detection: central-difference gradient, thresholded (see
//     EdgeThreshold).
//  2. Accumulator Voting: for each radius, every edge pixel votes for the
//     centers one radius away at each AngleStep. A vote counts only when the
//     image gets brighter from the center outwards, so bright blobs such as
//     corneal reflections do not vote.
//  3. Peak Detection: local maxima (5 px neighborhood) inside the area of
//     interest holding at least MinConfidence of the possible votes.
//  4. Duplicate Removal: peaks closer than their mean radius are merged,
//     keeping the stronger one.
//
// Confidence is votes / (360 / AngleStep): the fraction of vote directions
// that found an edge at the expected distance.
func (d *Detector) Circles(f *imaging.Frame) ([]Circle, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) != f.Width*f.Height {
		return nil, fmt.Errorf("%w: malformed frame", probe.ErrConfiguration)
	}
	region, err := d.AOI.Rect(f.Width, f.Height)
	if err != nil {
		return nil, err
	}

	edges, gx, gy, thr := d.edgeMap(f)
	n := int(math.Ceil(360 / d.AngleStep))
	cos, sin := make([]float64, n), make([]float64, n)
	for k := range cos {
		rad := float64(k) * d.AngleStep * math.Pi / 180
		cos[k], sin[k] = math.Cos(rad), math.Sin(rad)
	}
	minVotes := int(math.Ceil(d.MinConfidence * float64(n)))

	w, h := f.Width, f.Height
	acc := make([]int, w*h)
	var peaks []Circle
	for radius := d.MinRadius; radius <= d.MaxRadius; radius++ {
		for i := range acc {
			acc[i] = 0
		}
		r := float64(radius)
		for _, p := range edges {
			x, y := p%w, p/w
			for k := 0; k < n; k++ {
				// Brighter outwards: the gradient points away from the center.
				if gx[p]*cos[k]+gy[p]*sin[k] <= 0 {
					continue
				}
				cx := int(math.Round(float64(x) - r*cos[k]))
				cy := int(math.Round(float64(y) - r*sin[k]))
				if cx >= 0 && cx < w && cy >= 0 && cy < h {
					acc[cy*w+cx]++
				}
			}
		}

		for y := region.Min.Y; y < region.Max.Y; y++ {
			for x := region.Min.X; x < region.Max.X; x++ {
				v := acc[y*w+x]
				if v < minVotes || !isLocalMax(acc, w, h, x, y) {
					continue
				}
				peaks = append(peaks, Circle{
					X:          x,
					Y:          y,
					Radius:     radius,
					Votes:      v,
					Confidence: math.Min(1, float64(v)/float64(n)),
				})
			}
		}
	}

	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].Votes > peaks[j].Votes
	})
	peaks = filterDuplicateCircles(peaks)
	monitoring.Logf("hough: %d edge pixels above %.1f, %d peaks", len(edges), thr, len(peaks))
	return peaks, nil
}

// Detect returns the strongest peak as a circle. A frame without a peak
// yields an invalid estimate and a nil error.
func (d *Detector) Detect(f *imaging.Frame) (probe.Ellipse, error) {
	peaks, err := d.Circles(f)
	if err != nil {
		return probe.Ellipse{}, err
	}
	if len(peaks) == 0 {
		return probe.Ellipse{}, nil
	}
	best := peaks[0]
	e := probe.Circle(float64(best.X), float64(best.Y), float64(best.Radius))
	e.Confidence = best.Confidence
	return e, nil
}

// edgeMap returns the indices of edge pixels, the gradient planes and the
// threshold used. Border pixels are never edges.
func (d *Detector) edgeMap(f *imaging.Frame) (edges []int, gx, gy []float64, thr float64) {
	w, h := f.Width, f.Height
	gx, gy = make([]float64, w*h), make([]float64, w*h)
	mag := make([]float64, 0, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			gx[i] = (f.Pix[i+1] - f.Pix[i-1]) / 2
			gy[i] = (f.Pix[i+w] - f.Pix[i-w]) / 2
			mag = append(mag, math.Hypot(gx[i], gy[i]))
		}
	}

	thr = d.EdgeThreshold
	if thr == 0 && len(mag) > 1 {
		mean, std := stat.MeanStdDev(mag, nil)
		thr = mean + 2*std
	}
	thr = math.Max(thr, minEdgeContrast)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			if math.Hypot(gx[i], gy[i]) > thr {
				edges = append(edges, i)
			}
		}
	}
	return edges, gx, gy, thr
}

// isLocalMax reports whether no accumulator cell within 5 px is strictly
// larger than (x, y).
func isLocalMax(acc []int, w, h, x, y int) bool {
	v := acc[y*w+x]
	for dy := -5; dy <= 5; dy++ {
		for dx := -5; dx <= 5; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			if acc[ny*w+nx] > v {
				return false
			}
		}
	}
	return true
}

// filterDuplicateCircles drops peaks whose center lies closer than the mean
// radius to a peak kept earlier. Input must be sorted best first.
func filterDuplicateCircles(circles []Circle) []Circle {
	filtered := make([]Circle, 0, len(circles))
	for _, c := range circles {
		duplicate := false
		for _, f := range filtered {
			dist := math.Hypot(float64(c.X-f.X), float64(c.Y-f.Y))
			if dist < float64(c.Radius+f.Radius)/2 {
				duplicate = true
				break
			}
		}
		if !duplicate {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
