package probe

import (
	"image"
	"sync"

	"github.com/ironsheep/pupil-tools-mcp/internal/imaging"
)

// minCoverage is the fraction of a bin's usable weight that must land inside
// the frame for a candidate to be scored.
const minCoverage = 0.5

// searcher evaluates one probe table against frames. The coarse locator and
// the fine fitter are two searchers over different tables; they differ only
// in the region and radius bins they scan.
type searcher struct {
	table *Table
	cache coordCache
}

func newSearcher(t *Table) *searcher {
	return &searcher{table: t}
}

// candidate is one scored (center, radius bin) hypothesis.
type candidate struct {
	x, y, r int
	score   float64
	weight  float64
	ok      bool
}

// better reports whether c should replace best. Only a strictly higher score
// wins, which keeps the first candidate in scan order on ties.
func (c candidate) better(best candidate) bool {
	return c.ok && (!best.ok || c.score > best.score)
}

// scoreAt scores radius bin r centered at (x, y): the weighted mean of
// I(negative) - I(positive) over used, fitting, in-frame samples. ok is false
// when less than minCoverage of the usable weight could be evaluated.
func (s *searcher) scoreAt(f *imaging.Frame, x, y, r int) (score, weight float64, ok bool) {
	t, c := s.table, &s.cache
	n := t.numOrient * t.depth
	first := r * n
	ext := c.extent[r]
	inside := x-ext >= 0 && y-ext >= 0 && x+ext < f.Width && y+ext < f.Height
	center := y*f.Width + x
	pix := f.Pix

	var sum, wsum, total float64
	for i := first; i < first+n; i++ {
		if !t.used[i] || !c.fits[i] {
			continue
		}
		w := t.weight[i]
		total += w
		var pv, nv float64
		if inside {
			pv = pix[center+c.posOff[i]]
			nv = pix[center+c.negOff[i]]
		} else {
			px, py := x+c.posDX[i], y+c.posDY[i]
			nx, ny := x+c.negDX[i], y+c.negDY[i]
			if !f.Contains(px, py) || !f.Contains(nx, ny) {
				continue
			}
			pv = pix[py*f.Width+px]
			nv = pix[ny*f.Width+nx]
		}
		sum += w * (nv - pv)
		wsum += w
	}
	if wsum <= 0 || wsum < minCoverage*total {
		return 0, 0, false
	}
	return sum / wsum, wsum, true
}

// rayScore scores a single (radius, orientation) ray centered at (x, y).
func (s *searcher) rayScore(f *imaging.Frame, x, y, r, o int) (score float64, ok bool) {
	t, c := s.table, &s.cache
	first := t.Index(r, o, 0)
	var sum, wsum float64
	for i := first; i < first+t.depth; i++ {
		if !t.used[i] || !c.fits[i] {
			continue
		}
		px, py := x+c.posDX[i], y+c.posDY[i]
		nx, ny := x+c.negDX[i], y+c.negDY[i]
		if !f.Contains(px, py) || !f.Contains(nx, ny) {
			continue
		}
		w := t.weight[i]
		sum += w * (f.At(nx, ny) - f.At(px, py))
		wsum += w
	}
	if wsum <= 0 {
		return 0, false
	}
	return sum / wsum, true
}

// scanRow finds the best candidate of one row.
func (s *searcher) scanRow(f *imaging.Frame, y int, region image.Rectangle, r0, r1, stride int) candidate {
	var best candidate
	for x := region.Min.X; x < region.Max.X; x += stride {
		for r := r0; r <= r1; r++ {
			score, weight, ok := s.scoreAt(f, x, y, r)
			c := candidate{x: x, y: y, r: r, score: score, weight: weight, ok: ok}
			if c.better(best) {
				best = c
			}
		}
	}
	return best
}

// scan evaluates every center of region (stepping by stride) against radius
// bins r0..r1 and returns the best candidate.
//
// Rows are distributed over workers goroutines. Each row's winner is kept in
// its own slot and the slots are merged in row order, so the result is the
// same as a sequential row-major, ascending-radius scan.
func (s *searcher) scan(f *imaging.Frame, region image.Rectangle, r0, r1, stride, workers int) candidate {
	if stride < 1 {
		stride = 1
	}
	var rows []int
	for y := region.Min.Y; y < region.Max.Y; y += stride {
		rows = append(rows, y)
	}
	if len(rows) == 0 || r0 > r1 {
		return candidate{}
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(rows) {
		workers = len(rows)
	}

	winners := make([]candidate, len(rows))
	if workers == 1 {
		for i, y := range rows {
			winners[i] = s.scanRow(f, y, region, r0, r1, stride)
		}
	} else {
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < len(rows); i += workers {
					winners[i] = s.scanRow(f, rows[i], region, r0, r1, stride)
				}
			}(w)
		}
		wg.Wait()
	}

	var best candidate
	for _, c := range winners {
		if c.better(best) {
			best = c
		}
	}
	return best
}
