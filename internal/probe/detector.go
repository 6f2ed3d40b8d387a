package probe

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/ironsheep/pupil-tools-mcp/internal/imaging"
	"github.com/ironsheep/pupil-tools-mcp/internal/monitoring"
)

// Options tunes searching and training. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	// Stride is the step, in pixels, between coarse candidate centers.
	Stride int `yaml:"stride" json:"stride"`

	// Workers is the number of goroutines scanning coarse rows.
	Workers int `yaml:"workers" json:"workers"`

	// MinScore is the mean contrast (intensity levels) a candidate must exceed
	// to count as a detection.
	MinScore float64 `yaml:"minScore" json:"min_score"`

	// DistWeight damps reinforcement of deeper probes: distance index d gains
	// rate*DistWeight^d per training step.
	DistWeight float64 `yaml:"distWeight" json:"dist_weight"`

	// Demotion handles samples that contradict a training example. Nil uses
	// DecayDemotion with DefaultStrikeLimit.
	Demotion DemotionPolicy `yaml:"-" json:"-"`
}

// DefaultOptions returns the standard search and training settings.
func DefaultOptions() Options {
	return Options{
		Stride:     1,
		Workers:    runtime.NumCPU(),
		MinScore:   10,
		DistWeight: 0.8,
		Demotion:   DecayDemotion{StrikeLimit: DefaultStrikeLimit},
	}
}

// Validate checks the options and reports the first problem as an
// ErrConfiguration.
func (o Options) Validate() error {
	switch {
	case o.Stride < 1:
		return fmt.Errorf("%w: stride must be at least 1, got %d", ErrConfiguration, o.Stride)
	case o.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrConfiguration, o.Workers)
	case math.IsNaN(o.MinScore) || o.MinScore < 0:
		return fmt.Errorf("%w: min score must not be negative, got %g", ErrConfiguration, o.MinScore)
	case math.IsNaN(o.DistWeight) || o.DistWeight <= 0 || o.DistWeight > 1:
		return fmt.Errorf("%w: dist weight must be in (0, 1], got %g", ErrConfiguration, o.DistWeight)
	}
	return nil
}

// Detector locates the pupil as a rotated ellipse with two probe tables: a
// coarse one scanned over the whole area of interest and a fine one scanned
// in a small window around the coarse estimate.
//
// A Detector is safe for concurrent use. Scoring runs under a shared read
// lock; configuration, training, normalization and loading take the
// exclusive lock. Tables are owned by the detector and never shared.
type Detector struct {
	mu sync.RWMutex

	params     Params
	refinement Refinement
	opts       Options

	coarse *searcher
	fine   *searcher

	aoi           AreaOfInterest
	width, height int
}

// New builds a detector for the given coarse geometry, refinement settings and
// options. The area of interest starts at DefaultAreaOfInterest.
func New(params Params, refinement Refinement, opts Options) (*Detector, error) {
	if opts.Demotion == nil {
		opts.Demotion = DecayDemotion{StrikeLimit: DefaultStrikeLimit}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{opts: opts, aoi: DefaultAreaOfInterest()}
	if err := d.Configure(params, refinement); err != nil {
		return nil, err
	}
	return d, nil
}

// Configure rebuilds both tables from scratch. Learned usage and weights are
// discarded. On error the previous tables stay in place.
func (d *Detector) Configure(params Params, refinement Refinement) error {
	coarse, fine, err := buildTables(params, refinement)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.installLocked(params, refinement, coarse, fine)
	return nil
}

// Reconfigure replaces the geometry and the area of interest together.
// Either both take effect or, on error, neither does.
func (d *Detector) Reconfigure(params Params, refinement Refinement, aoi AreaOfInterest) error {
	coarse, fine, err := buildTables(params, refinement)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAreaLocked(aoi); err != nil {
		return err
	}
	d.installLocked(params, refinement, coarse, fine)
	d.aoi = aoi
	return nil
}

func buildTables(params Params, refinement Refinement) (coarse, fine *Table, err error) {
	coarse, err = NewTable(params)
	if err != nil {
		return nil, nil, err
	}
	fineParams, err := refinement.tableParams(params)
	if err != nil {
		return nil, nil, err
	}
	fine, err = NewTable(fineParams)
	if err != nil {
		return nil, nil, err
	}
	return coarse, fine, nil
}

func (d *Detector) installLocked(params Params, refinement Refinement, coarse, fine *Table) {
	d.params = params
	d.refinement = refinement
	d.coarse = newSearcher(coarse)
	d.fine = newSearcher(fine)
	if d.width > 0 && d.height > 0 {
		d.rebuildCachesLocked()
	}
	monitoring.Logf("probe: configured %d coarse and %d fine samples", coarse.Len(), fine.Len())
}

// SetOptions replaces the search and training options.
func (d *Detector) SetOptions(opts Options) error {
	if opts.Demotion == nil {
		opts.Demotion = DecayDemotion{StrikeLimit: DefaultStrikeLimit}
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.opts = opts
	d.mu.Unlock()
	return nil
}

// SetImageSize prepares the coordinate caches for width x height frames. It
// is a no-op when the size is unchanged. Detect calls it automatically.
func (d *Detector) SetImageSize(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setImageSizeLocked(width, height)
}

func (d *Detector) setImageSizeLocked(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: image size must be positive, got %dx%d", ErrConfiguration, width, height)
	}
	if _, err := d.aoi.Rect(width, height); err != nil {
		return err
	}
	if d.width == width && d.height == height {
		return nil
	}
	d.width, d.height = width, height
	d.rebuildCachesLocked()
	return nil
}

func (d *Detector) rebuildCachesLocked() {
	c := d.coarse.cache.ensure(d.coarse.table, d.width, d.height)
	f := d.fine.cache.ensure(d.fine.table, d.width, d.height)
	if c || f {
		monitoring.Logf("probe: coordinate caches rebuilt for %dx%d", d.width, d.height)
	}
}

// SetAreaOfInterest sets the margins trimmed from each edge. It fails without
// changing anything when a margin is negative or, once an image size is known,
// when the remaining area is empty.
func (d *Detector) SetAreaOfInterest(startX, stopX, startY, stopY int) error {
	aoi := AreaOfInterest{StartX: startX, StopX: stopX, StartY: startY, StopY: stopY}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAreaLocked(aoi); err != nil {
		return err
	}
	d.aoi = aoi
	return nil
}

// checkAreaLocked checks aoi against the known image size.
func (d *Detector) checkAreaLocked(aoi AreaOfInterest) error {
	w, h := d.width, d.height
	if w == 0 || h == 0 {
		// Size unknown yet: only the sign can be checked.
		w, h = math.MaxInt32, math.MaxInt32
	}
	_, err := aoi.Rect(w, h)
	return err
}

// AreaOfInterest returns the current margins.
func (d *Detector) AreaOfInterest() AreaOfInterest {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.aoi
}

// Params returns the coarse geometry and refinement settings.
func (d *Detector) Params() (Params, Refinement) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.params, d.refinement
}

// Stats reports the learned state of the coarse and fine tables.
func (d *Detector) Stats() (coarse, fine Stats) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.coarse.table.Stats(), d.fine.table.Stats()
}

// rlockFor takes the read lock with the caches prepared for f. The caller
// must RUnlock.
func (d *Detector) rlockFor(f *imaging.Frame) error {
	if f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("%w: malformed frame", ErrConfiguration)
	}
	for {
		d.mu.RLock()
		if d.width == f.Width && d.height == f.Height {
			return nil
		}
		d.mu.RUnlock()
		if err := d.SetImageSize(f.Width, f.Height); err != nil {
			return err
		}
	}
}

// Detect runs the coarse locator over the area of interest and refines its
// estimate into a rotated ellipse. A frame without a pupil yields an
// Ellipse with Valid == false and a nil error.
func (d *Detector) Detect(f *imaging.Frame) (Ellipse, error) {
	if err := d.rlockFor(f); err != nil {
		return Ellipse{}, err
	}
	defer d.mu.RUnlock()

	c, err := d.locateLocked(f, 0, d.coarse.table.numRadii-1)
	if err != nil {
		return Ellipse{}, err
	}
	if !d.valid(c) {
		return Ellipse{}, nil
	}
	return d.refineLocked(f, c), nil
}

// DetectIterations runs Detect n times on the same frame and returns the last
// estimate.
func (d *Detector) DetectIterations(f *imaging.Frame, n int) (Ellipse, error) {
	if n < 1 {
		return Ellipse{}, fmt.Errorf("%w: iterations must be at least 1, got %d", ErrConfiguration, n)
	}
	var est Ellipse
	var err error
	for i := 0; i < n; i++ {
		if est, err = d.Detect(f); err != nil {
			return Ellipse{}, err
		}
	}
	return est, nil
}

// Locate runs only the coarse stage, restricted to radius bins within
// [minRadius, maxRadius]. The result is a circle.
func (d *Detector) Locate(f *imaging.Frame, minRadius, maxRadius float64) (Ellipse, error) {
	if err := d.rlockFor(f); err != nil {
		return Ellipse{}, err
	}
	defer d.mu.RUnlock()

	r0, r1, ok := d.coarse.table.binRange(minRadius, maxRadius)
	if !ok {
		return Ellipse{}, fmt.Errorf("%w: no radius bin in [%g, %g]", ErrConfiguration, minRadius, maxRadius)
	}
	c, err := d.locateLocked(f, r0, r1)
	if err != nil {
		return Ellipse{}, err
	}
	if !d.valid(c) {
		return Ellipse{}, nil
	}
	e := Circle(float64(c.x), float64(c.y), d.coarse.table.radii[c.r])
	e.Confidence = confidence(c.score)
	return e, nil
}

// Refine runs only the fine stage around an approximate estimate.
func (d *Detector) Refine(f *imaging.Frame, approx Ellipse) (Ellipse, error) {
	if err := approx.Validate(); err != nil {
		return Ellipse{}, err
	}
	if err := d.rlockFor(f); err != nil {
		return Ellipse{}, err
	}
	defer d.mu.RUnlock()

	x, y := roundHalfAway(approx.X), roundHalfAway(approx.Y)
	if !f.Contains(x, y) {
		return Ellipse{}, fmt.Errorf("%w: approximate center (%g, %g) outside frame", ErrConfiguration, approx.X, approx.Y)
	}
	radius := (approx.Major + approx.Minor) / 2
	band := d.refinement.Band
	if _, _, ok := d.fine.table.binRange(radius-band, radius+band); !ok {
		return Ellipse{}, fmt.Errorf("%w: no fine radius bin in [%g, %g]", ErrConfiguration, radius-band, radius+band)
	}

	// The approximate circle is kept when the fine stage finds nothing, so it
	// is only as valid as its own coarse score.
	c := candidate{x: x, y: y, r: d.coarse.table.RadiusBin(radius)}
	c.score, c.weight, c.ok = d.coarse.scoreAt(f, x, y, c.r)
	return d.refineAround(f, x, y, radius, c), nil
}

// Score evaluates the coarse hypothesis centered at (x, y) with the radius
// bin nearest to radius. It returns 0 when the hypothesis cannot be scored.
func (d *Detector) Score(f *imaging.Frame, x, y int, radius float64) (float64, error) {
	if err := d.rlockFor(f); err != nil {
		return 0, err
	}
	defer d.mu.RUnlock()
	if !f.Contains(x, y) {
		return 0, fmt.Errorf("%w: center (%d, %d) outside frame", ErrConfiguration, x, y)
	}
	score, _, ok := d.coarse.scoreAt(f, x, y, d.coarse.table.RadiusBin(radius))
	if !ok {
		return 0, nil
	}
	return score, nil
}

func (d *Detector) locateLocked(f *imaging.Frame, r0, r1 int) (candidate, error) {
	region, err := d.aoi.Rect(f.Width, f.Height)
	if err != nil {
		return candidate{}, err
	}
	return d.coarse.scan(f, region, r0, r1, d.opts.Stride, d.opts.Workers), nil
}

func (d *Detector) valid(c candidate) bool {
	return c.ok && c.score > d.opts.MinScore
}

// confidence maps a mean contrast to [0, 1].
func confidence(score float64) float64 {
	return math.Max(0, math.Min(1, score/255))
}
