package probe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEllipse(e Ellipse, n int) []point {
	pts := make([]point, n)
	cos, sin := math.Cos(e.Angle), math.Sin(e.Angle)
	for i := range pts {
		th := 2 * math.Pi * float64(i) / float64(n)
		u, v := e.Major*math.Cos(th), e.Minor*math.Sin(th)
		pts[i] = point{x: e.X + u*cos - v*sin, y: e.Y + u*sin + v*cos}
	}
	return pts
}

func TestFitEllipse_Exact(t *testing.T) {
	tests := []Ellipse{
		{X: 50, Y: 40, Major: 20, Minor: 12, Angle: 0.6},
		{X: 10, Y: 90, Major: 8, Minor: 7.5, Angle: 2.8},
		{X: 200, Y: 150, Major: 30, Minor: 10, Angle: 0},
		{X: 64, Y: 64, Major: 15, Minor: 15, Angle: 0},
	}

	for _, want := range tests {
		got, err := fitEllipse(sampleEllipse(want, 60))
		require.NoError(t, err)
		assert.True(t, got.Valid)
		assert.InDelta(t, want.X, got.X, 1e-6)
		assert.InDelta(t, want.Y, got.Y, 1e-6)
		assert.InDelta(t, want.Major, got.Major, 1e-6)
		assert.InDelta(t, want.Minor, got.Minor, 1e-6)
		if want.Major-want.Minor > 1e-3 {
			assert.Less(t, angleDiff(want.Angle, got.Angle), 1e-6)
		}
		assert.GreaterOrEqual(t, got.Angle, 0.0)
		assert.Less(t, got.Angle, math.Pi)
	}
}

func TestFitEllipse_Degenerate(t *testing.T) {
	_, err := fitEllipse([]point{{0, 0}, {1, 1}, {2, 2}})
	assert.Error(t, err)

	// Collinear points cannot bound an ellipse.
	line := make([]point, 10)
	for i := range line {
		line[i] = point{x: float64(i), y: 2 * float64(i)}
	}
	_, err = fitEllipse(line)
	assert.Error(t, err)
}

func TestEllipse_Contains(t *testing.T) {
	e := Ellipse{X: 10, Y: 10, Major: 5, Minor: 2, Angle: math.Pi / 2}
	assert.True(t, e.Contains(10, 10))
	assert.True(t, e.Contains(10, 14.9), "major axis runs along y")
	assert.False(t, e.Contains(14.9, 10))
	assert.False(t, Ellipse{X: 0, Y: 0}.Contains(0, 0))
}

func TestEllipse_Normalized(t *testing.T) {
	e := Ellipse{Major: 3, Minor: 5, Angle: -0.25}.normalized()
	assert.Equal(t, 5.0, e.Major)
	assert.Equal(t, 3.0, e.Minor)
	assert.InDelta(t, math.Pi/2-0.25, e.Angle, 1e-12)

	e = Ellipse{Major: 5, Minor: 3, Angle: 3 * math.Pi / 2}.normalized()
	assert.InDelta(t, math.Pi/2, e.Angle, 1e-12)
}
