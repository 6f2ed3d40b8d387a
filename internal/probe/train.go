package probe

import (
	"fmt"
	"math"

	"github.com/ironsheep/pupil-tools-mcp/internal/imaging"
	"github.com/ironsheep/pupil-tools-mcp/internal/monitoring"
)

// DefaultStrikeLimit is the number of consecutive contradicting examples after
// which DecayDemotion disables a sample.
const DefaultStrikeLimit = 5

// DemotionPolicy decides what happens to a sample that contradicts a training
// example: its positive probe fell outside the true boundary or its negative
// probe fell inside.
type DemotionPolicy interface {
	// Demote returns the sample's new weight and strike count, and whether it
	// stays in use.
	Demote(weight float64, strikes uint16, rate float64) (newWeight float64, newStrikes uint16, keep bool)
}

// DecayDemotion shrinks the weight by the learning rate and disables the
// sample once it has contradicted StrikeLimit examples in a row. A
// StrikeLimit of 0 never disables.
type DecayDemotion struct {
	StrikeLimit uint16
}

// Demote implements DemotionPolicy.
func (p DecayDemotion) Demote(weight float64, strikes uint16, rate float64) (float64, uint16, bool) {
	weight = math.Max(0, weight*(1-rate))
	if strikes < math.MaxUint16 {
		strikes++
	}
	keep := p.StrikeLimit == 0 || strikes < p.StrikeLimit
	return weight, strikes, keep
}

// TrainStats counts what one training step changed.
type TrainStats struct {
	Reinforced int `json:"reinforced"`
	Demoted    int `json:"demoted"`
	Disabled   int `json:"disabled"`
	Skipped    int `json:"skipped"`

	// Held counts samples left unchanged because updating them would have
	// moved their bin's score away from the truth: consistent samples below
	// the bin mean and contradicting samples above it.
	Held int `json:"held"`
}

// train applies one labelled example to the table. The hypothesis is
// centered at the rounded truth center and covers the radius bins between
// the truth's minor and major semi-axes, widened by one radius step.
//
// Each bin is updated against its weighted mean contrast m from before the
// step. Only consistent samples with contrast >= m gain weight and only
// contradicting samples with contrast <= m are demoted, so every change adds
// a non-negative term to sum(w*(c-m)) and the bin's score at the truth
// never drops.
func (s *searcher) train(f *imaging.Frame, truth Ellipse, rate, distWeight float64, policy DemotionPolicy) TrainStats {
	t, c := s.table, &s.cache
	var st TrainStats

	step := t.params.RadiusStep
	r0, r1, ok := t.binRange(truth.Minor-step, truth.Major+step)
	if !ok {
		return st
	}
	cx, cy := roundHalfAway(truth.X), roundHalfAway(truth.Y)

	n := t.numOrient * t.depth
	contrast := make([]float64, n)
	inFrame := make([]bool, n)

	for r := r0; r <= r1; r++ {
		first := r * n

		var sum, wsum float64
		for k := 0; k < n; k++ {
			i := first + k
			inFrame[k] = false
			if !t.used[i] || !c.fits[i] {
				continue
			}
			px, py := cx+c.posDX[i], cy+c.posDY[i]
			nx, ny := cx+c.negDX[i], cy+c.negDY[i]
			if !f.Contains(px, py) || !f.Contains(nx, ny) {
				st.Skipped++
				continue
			}
			inFrame[k] = true
			contrast[k] = f.At(nx, ny) - f.At(px, py)
			sum += t.weight[i] * contrast[k]
			wsum += t.weight[i]
		}
		mean := 0.0
		if wsum > 0 {
			mean = sum / wsum
		}
		eps := 1e-9 * math.Max(1, math.Abs(mean))

		for k := 0; k < n; k++ {
			if !inFrame[k] {
				continue
			}
			i := first + k
			d := k % t.depth
			px, py := cx+c.posDX[i], cy+c.posDY[i]
			nx, ny := cx+c.negDX[i], cy+c.negDY[i]

			consistent := truth.Contains(float64(px), float64(py)) && !truth.Contains(float64(nx), float64(ny))
			switch {
			case consistent && contrast[k] > 0 && contrast[k] >= mean-eps:
				t.weight[i] += rate * math.Pow(distWeight, float64(d))
				t.strikes[i] = 0
				st.Reinforced++
			case consistent:
				st.Held++
			case contrast[k] <= mean+eps:
				w, strikes, keep := policy.Demote(t.weight[i], t.strikes[i], rate)
				t.weight[i], t.strikes[i] = w, strikes
				st.Demoted++
				if !keep {
					t.used[i] = false
					st.Disabled++
				}
			default:
				st.Held++
			}
		}
	}
	return st
}

func validateRate(rate float64) error {
	if math.IsNaN(rate) || rate <= 0 || rate > 1 {
		return fmt.Errorf("%w: learning rate must be in (0, 1], got %g", ErrConfiguration, rate)
	}
	return nil
}

// Train reinforces coarse samples that agree with the ground-truth ellipse
// and demotes the ones that contradict it. Only the coarse table learns; the
// fine table stays purely geometric.
//
// Repeated training on the same example keeps growing the reinforced
// weights; call NormalizeWeights periodically to bound them.
func (d *Detector) Train(f *imaging.Frame, truth Ellipse, rate float64) (TrainStats, error) {
	if err := truth.Validate(); err != nil {
		return TrainStats{}, err
	}
	if err := validateRate(rate); err != nil {
		return TrainStats{}, err
	}
	if f == nil || len(f.Pix) != f.Width*f.Height {
		return TrainStats{}, fmt.Errorf("%w: malformed frame", ErrConfiguration)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setImageSizeLocked(f.Width, f.Height); err != nil {
		return TrainStats{}, err
	}
	st := d.coarse.train(f, truth, rate, d.opts.DistWeight, d.opts.Demotion)
	monitoring.Logf("probe: trained at (%.1f, %.1f): %d reinforced, %d demoted, %d disabled, %d held",
		truth.X, truth.Y, st.Reinforced, st.Demoted, st.Disabled, st.Held)
	return st, nil
}

// DetectTrain detects the pupil and then trains on the ground truth. The
// returned estimate is the one computed before training.
func (d *Detector) DetectTrain(f *imaging.Frame, truth Ellipse, rate float64) (Ellipse, error) {
	if err := truth.Validate(); err != nil {
		return Ellipse{}, err
	}
	if err := validateRate(rate); err != nil {
		return Ellipse{}, err
	}
	est, err := d.Detect(f)
	if err != nil {
		return Ellipse{}, err
	}
	if _, err := d.Train(f, truth, rate); err != nil {
		return Ellipse{}, err
	}
	return est, nil
}

// TrainIterations alternates detection and training n times and returns the
// last estimate. With a nil truth every round trains on that round's own
// estimate (bootstrap self-calibration); rounds without a detection skip
// training. Nothing prevents a wrong first estimate from being reinforced.
func (d *Detector) TrainIterations(f *imaging.Frame, truth *Ellipse, rate float64, n int) (Ellipse, error) {
	if n < 1 {
		return Ellipse{}, fmt.Errorf("%w: iterations must be at least 1, got %d", ErrConfiguration, n)
	}
	if err := validateRate(rate); err != nil {
		return Ellipse{}, err
	}
	if truth != nil {
		if err := truth.Validate(); err != nil {
			return Ellipse{}, err
		}
	}

	var est Ellipse
	for i := 0; i < n; i++ {
		var err error
		if est, err = d.Detect(f); err != nil {
			return Ellipse{}, err
		}
		target := truth
		if target == nil {
			if !est.Valid {
				continue
			}
			self := est
			target = &self
		}
		if _, err := d.Train(f, *target, rate); err != nil {
			return Ellipse{}, err
		}
	}
	return est, nil
}
