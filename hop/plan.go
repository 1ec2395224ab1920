// Package hop implements the frequency hopping capture pipeline: the frequency
// plan, the quick-tune cache, retuning with settling discard, the block
// assembler and the streaming session tying them to a device.
package hop

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/hb9tf/hopper/sdr"
)

const (
	// planEpsilon absorbs floating point error in (stop-start)/step.
	planEpsilon = 1e-9
	// MaxPlanLength bounds the number of planned frequencies.
	MaxPlanLength = 1 << 20
)

// Plan is the ordered list of center frequencies visited by a session, plus a
// cursor that wraps around at the end of each sweep.
type Plan struct {
	freqs []float64
	index atomic.Int64
}

// NewPlan steps from start to stop (inclusive) in increments of step Hz.
func NewPlan(start, stop, step float64) (*Plan, error) {
	switch {
	case !finite(start) || !finite(stop) || !finite(step):
		return nil, sdr.ConfigError("plan", fmt.Errorf("non-finite plan parameters %g:%g:%g", start, stop, step))
	case step <= 0:
		return nil, sdr.ConfigError("plan", fmt.Errorf("step must be positive, got %g", step))
	case stop < start:
		return nil, sdr.ConfigError("plan", fmt.Errorf("stop frequency %.0f Hz below start frequency %.0f Hz", stop, start))
	}

	steps := math.Floor((stop-start)/step + planEpsilon)
	if steps+1 > MaxPlanLength {
		return nil, sdr.ConfigError("plan", fmt.Errorf("%.0f Hz to %.0f Hz in %g Hz steps needs more than %d frequencies", start, stop, step, MaxPlanLength))
	}
	n := int(steps) + 1
	p := &Plan{freqs: make([]float64, n)}
	for i := range p.freqs {
		p.freqs[i] = start + float64(i)*step
	}
	return p, nil
}

func (p *Plan) Len() int {
	return len(p.freqs)
}

func (p *Plan) At(i int) float64 {
	return p.freqs[i]
}

// Frequencies returns a copy of the planned frequencies.
func (p *Plan) Frequencies() []float64 {
	out := make([]float64, len(p.freqs))
	copy(out, p.freqs)
	return out
}

// Index returns the cursor position.
func (p *Plan) Index() int {
	return int(p.index.Load())
}

// Current returns the frequency under the cursor.
func (p *Plan) Current() float64 {
	return p.freqs[p.Index()]
}

// Advance moves the cursor to the next frequency, wrapping to 0 after the last
// one, and returns the new position.
func (p *Plan) Advance() int {
	for {
		cur := p.index.Load()
		next := (cur + 1) % int64(len(p.freqs))
		if p.index.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}
