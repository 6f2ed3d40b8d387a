package probe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ironsheep/pupil-tools-mcp/internal/imaging"
)

const (
	bright = 200.0
	dark   = 40.0
)

// testParams covers pupils of radius 10-30 px with a cheap orientation step.
func testParams() Params {
	return Params{
		MinRadius:       10,
		MaxRadius:       30,
		RadiusStep:      2,
		OrientationStep: 5,
		DistanceStep:    1,
		Depth:           3,
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 4
	return opts
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(testParams(), DefaultRefinement(), testOptions())
	require.NoError(t, err)
	return d
}

// ellipseFrame renders a uniform dark ellipse on a uniform bright background.
func ellipseFrame(width, height int, e Ellipse) *imaging.Frame {
	f := imaging.NewFrame(width, height, bright)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if e.Contains(float64(x), float64(y)) {
				f.Set(x, y, dark)
			}
		}
	}
	return f
}

// discFrame renders a dark disc of the given radius centered on a pixel.
func discFrame(width, height, cx, cy int, radius float64) *imaging.Frame {
	f := imaging.NewFrame(width, height, bright)
	r2 := radius * radius
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x-cx), float64(y-cy)
			if dx*dx+dy*dy <= r2 {
				f.Set(x, y, dark)
			}
		}
	}
	return f
}

// rampDiscFrame renders a disc whose edge blends linearly from dark to bright
// over ramp pixels centered on radius.
func rampDiscFrame(width, height, cx, cy int, radius, ramp float64) *imaging.Frame {
	f := imaging.NewFrame(width, height, bright)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			rho := math.Hypot(float64(x-cx), float64(y-cy))
			t := math.Max(0, math.Min(1, (rho-(radius-ramp/2))/ramp))
			f.Set(x, y, dark+t*(bright-dark))
		}
	}
	return f
}

// angleDiff returns the distance between two axis directions modulo π.
func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), math.Pi)
	return math.Min(d, math.Pi-d)
}
