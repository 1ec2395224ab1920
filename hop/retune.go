package hop

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

// settlingDivisor turns a sample rate into the number of samples received
// during the 5ms the tuner needs to settle (1/200 s).
const settlingDivisor = 200

// SettlingSamples returns how many samples to discard after a retune at the given rate.
func SettlingSamples(sampleRate float64) int {
	if sampleRate <= 0 {
		return 0
	}
	return int(sampleRate / settlingDivisor)
}

// Retuner issues immediate retunes to plan entries and arms the settling
// discard. The flag it sets is only ever cleared by the assembler.
type Retuner struct {
	dev     sdr.Device
	quick   sdr.QuickTuner
	plan    *Plan
	cache   *QuickTuneCache
	retries int
	metrics *metrics.Collector

	mu        sync.Mutex // serializes device tuning calls
	didRetune atomic.Bool
}

// NewRetuner builds a retuner. With a nil cache every retune is a full retune.
func NewRetuner(dev sdr.Device, plan *Plan, cache *QuickTuneCache) *Retuner {
	r := &Retuner{
		dev:   dev,
		plan:  plan,
		cache: cache,
	}
	if qt, ok := dev.(sdr.QuickTuner); ok && cache.Len() == plan.Len() {
		r.quick = qt
	}
	return r
}

// RequestRetune tunes to plan entry i right away. Retunes are addressed by plan
// index so a quick-tune token is never applied to a frequency it wasn't captured at.
func (r *Retuner) RequestRetune(i int) error {
	if i < 0 || i >= r.plan.Len() {
		return sdr.TuneError("retune", fmt.Errorf("plan index %d out of range [0, %d)", i, r.plan.Len()))
	}
	freq := r.plan.At(i)

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if err = r.retune(i, freq); err == nil {
			r.didRetune.Store(true)
			r.metrics.Retuned()
			glog.V(2).Infof("retuned to %.0f Hz (plan index %d)", freq, i)
			return nil
		}
		r.metrics.RetuneFailed()
		if attempt < r.retries {
			glog.Warningf("retune to %.0f Hz failed (attempt %d of %d): %s", freq, attempt+1, r.retries+1, err)
		}
	}
	return sdr.TuneError("retune", fmt.Errorf("failed to tune to %.0f Hz: %w", freq, err))
}

func (r *Retuner) retune(i int, freq float64) error {
	if r.quick != nil {
		if tok, ok := r.cache.Token(i); ok {
			return r.quick.RetuneQuick(tok)
		}
	}
	return r.dev.RetuneNow(freq)
}

// Pending reports whether a settling discard is armed.
func (r *Retuner) Pending() bool {
	return r.didRetune.Load()
}

// consumeRetune clears the settling flag and reports whether it was set.
func (r *Retuner) consumeRetune() bool {
	return r.didRetune.CompareAndSwap(true, false)
}
