package probe

import "math"

// coordCache holds a table's offsets materialized as integer pixel offsets
// for one image size.
//
// fits marks samples whose offsets can land inside an image of the cached
// size at all; it is local to the cache and never touches Table.used.
// extent[r] is the largest absolute pixel offset among the fitting samples of
// radius bin r: a center at least that far from every border can be scored
// with linear offsets and no bounds checks.
type coordCache struct {
	width, height int
	builds        int

	posDX, posDY []int
	negDX, negDY []int
	posOff       []int
	negOff       []int
	fits         []bool
	extent       []int
}

// roundHalfAway rounds to the nearest integer, halves away from zero, so
// offsets stay symmetric around the center.
func roundHalfAway(v float64) int {
	return int(math.Round(v))
}

// ensure rebuilds the cache when the size differs from the cached one and
// reports whether a rebuild happened.
func (c *coordCache) ensure(t *Table, width, height int) bool {
	if c.builds > 0 && c.width == width && c.height == height {
		return false
	}
	c.build(t, width, height)
	return true
}

func (c *coordCache) build(t *Table, width, height int) {
	n := t.Len()
	c.width, c.height = width, height
	c.posDX, c.posDY = make([]int, n), make([]int, n)
	c.negDX, c.negDY = make([]int, n), make([]int, n)
	c.posOff, c.negOff = make([]int, n), make([]int, n)
	c.fits = make([]bool, n)
	c.extent = make([]int, t.numRadii)

	for i := 0; i < n; i++ {
		px, py := roundHalfAway(t.posX[i]), roundHalfAway(t.posY[i])
		nx, ny := roundHalfAway(t.negX[i]), roundHalfAway(t.negY[i])
		c.posDX[i], c.posDY[i] = px, py
		c.negDX[i], c.negDY[i] = nx, ny
		c.posOff[i] = py*width + px
		c.negOff[i] = ny*width + nx

		reach := maxAbs(px, py, nx, ny)
		// Both probes lie on the same side of the center, so some in-frame
		// center can reach them only if the offset is shorter than the frame.
		c.fits[i] = maxAbs(px, nx) < width && maxAbs(py, ny) < height
		if !c.fits[i] {
			continue
		}
		r := i / (t.numOrient * t.depth)
		if reach > c.extent[r] {
			c.extent[r] = reach
		}
	}
	c.builds++
}

func maxAbs(vs ...int) int {
	m := 0
	for _, v := range vs {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}
