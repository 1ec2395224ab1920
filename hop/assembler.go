package hop

import (
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

// Stats counts what the assembler did with the samples it was given.
type Stats struct {
	Blocks          uint64
	Sweeps          uint64
	Discarded       uint64
	Stale           uint64
	OversizedChunks uint64
}

// Assembler turns variably sized chunks into fixed size, frequency tagged blocks.
//
// Consume must not be called concurrently; devices deliver one chunk at a time.
// Samples left in a chunk after its block completed are kept for the next block
// only on single frequency plans. With more than one frequency the retune has
// already been issued, so they belong to the previous frequency and are dropped
// as stale.
type Assembler struct {
	plan    *Plan
	retuner *Retuner
	queue   sdr.SampleQueue
	rate    func() float64
	now     func() time.Time
	metrics *metrics.Collector

	block      []sdr.IQ
	cursor     int
	blockStart time.Time
	// stamped is set once the block opening the current sweep carried its timestamp.
	stamped bool

	blocks    atomic.Uint64
	sweeps    atomic.Uint64
	discarded atomic.Uint64
	stale     atomic.Uint64
	oversized atomic.Uint64
}

// NewAssembler allocates a block of blockSize samples. rate reports the
// currently configured sample rate, used for the settling discard.
func NewAssembler(plan *Plan, retuner *Retuner, queue sdr.SampleQueue, blockSize int, rate func() float64) *Assembler {
	return &Assembler{
		plan:    plan,
		retuner: retuner,
		queue:   queue,
		rate:    rate,
		now:     time.Now,
		block:   make([]sdr.IQ, blockSize),
	}
}

// Consume appends one chunk. The returned error is a fatal retune failure.
func (a *Assembler) Consume(chunk []sdr.IQ) error {
	if a.retuner.consumeRetune() {
		discard := min(SettlingSamples(a.rate()), len(chunk))
		chunk = chunk[discard:]
		a.discarded.Add(uint64(discard))
		a.metrics.Discarded(discard)
		glog.V(3).Infof("discarded %d settling samples", discard)
	}

	size := len(a.block)
	for len(chunk) > 0 {
		if a.cursor == 0 && len(chunk) >= size {
			// Whole blocks straight from the chunk, all captured at the current frequency.
			a.oversized.Add(1)
			a.metrics.Oversized()
			freq, idx, started := a.plan.Current(), a.plan.Index(), a.now()
			n := len(chunk) / size
			for j := 0; j < n; j++ {
				a.emit(chunk[j*size:(j+1)*size], freq, idx, started)
				// On a single frequency plan every block is a sweep of its own.
				if a.plan.Len() == 1 && j < n-1 {
					a.wrap()
				}
			}
			chunk = chunk[n*size:]
		} else {
			if a.cursor == 0 {
				a.blockStart = a.now()
			}
			n := copy(a.block[a.cursor:], chunk)
			a.cursor += n
			chunk = chunk[n:]
			if a.cursor < size {
				return nil
			}
			a.emit(a.block, a.plan.Current(), a.plan.Index(), a.blockStart)
			a.cursor = 0
		}

		retuned, err := a.advance()
		if err != nil {
			return err
		}
		if retuned && len(chunk) > 0 {
			a.stale.Add(uint64(len(chunk)))
			a.metrics.Stale(len(chunk))
			glog.V(3).Infof("dropped %d samples captured after block completion", len(chunk))
			return nil
		}
	}
	return nil
}

// emit copies samples into a fresh envelope payload and hands it to the queue.
func (a *Assembler) emit(samples []sdr.IQ, freq float64, idx int, started time.Time) {
	payload := make([]sdr.IQ, len(samples))
	copy(payload, samples)

	var scanStart time.Time
	if idx == 0 && !a.stamped {
		scanStart = started
		a.stamped = true
	}
	a.queue.AppendSamples(payload, freq, scanStart)
	a.blocks.Add(1)
	a.metrics.BlockEmitted()
}

// advance moves the plan on after a completed block and retunes when there is
// somewhere else to go.
func (a *Assembler) advance() (bool, error) {
	if next := a.plan.Advance(); next == 0 {
		a.wrap()
	}
	if a.plan.Len() <= 1 {
		return false, nil
	}
	if err := a.retuner.RequestRetune(a.plan.Index()); err != nil {
		return false, err
	}
	return true, nil
}

// wrap counts a completed sweep and lets the next block at index 0 carry a timestamp.
func (a *Assembler) wrap() {
	a.sweeps.Add(1)
	a.stamped = false
	a.metrics.SweepCompleted()
}

// Buffered returns the number of samples waiting in the current block. Like
// Consume it must only be called from the goroutine delivering chunks.
func (a *Assembler) Buffered() int {
	return a.cursor
}

// Stats may be called from any goroutine.
func (a *Assembler) Stats() Stats {
	return Stats{
		Blocks:          a.blocks.Load(),
		Sweeps:          a.sweeps.Load(),
		Discarded:       a.discarded.Load(),
		Stale:           a.stale.Load(),
		OversizedChunks: a.oversized.Load(),
	}
}
