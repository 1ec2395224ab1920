package sdr

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/metrics"
)

// SampleQueue receives every completed capture block exactly once.
// Ownership of samples passes to the queue.
type SampleQueue interface {
	AppendSamples(samples []IQ, centerFrequency float64, scanStart time.Time)
}

// Queue is a channel backed SampleQueue. Appending never blocks the capture
// callback: when the channel is full the block is dropped and counted.
type Queue struct {
	Metrics *metrics.Collector

	envelopes chan Envelope
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	sweep  uint64
	drops  atomic.Uint64
}

func NewQueue(size int) *Queue {
	if size < 0 {
		size = 0
	}
	return &Queue{
		envelopes: make(chan Envelope, size),
		now:       time.Now,
	}
}

func (q *Queue) AppendSamples(samples []IQ, centerFrequency float64, scanStart time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		glog.Warningf("dropping block at %.0f Hz appended after queue close", centerFrequency)
		return
	}
	if !scanStart.IsZero() {
		q.sweep++
	}
	env := Envelope{
		Samples:         samples,
		CenterFrequency: centerFrequency,
		ScanStart:       scanStart,
		Sweep:           q.sweep,
		Completed:       q.now(),
	}
	select {
	case q.envelopes <- env:
	default:
		q.drops.Add(1)
		q.Metrics.QueueDropped()
		glog.Warningf("sample queue full, dropping block at %.0f Hz", centerFrequency)
	}
}

// Envelopes returns the channel blocks are delivered on. It is closed by Close.
func (q *Queue) Envelopes() <-chan Envelope {
	return q.envelopes
}

// Drops returns the number of blocks dropped because the queue was full.
func (q *Queue) Drops() uint64 {
	return q.drops.Load()
}

// Close stops accepting blocks and closes the envelope channel. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.envelopes)
}
