package hop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/sdr"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateIllegal State = iota
	StateStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIllegal:
		return "illegal"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	ErrSessionDone   = errors.New("session is done")
	ErrSessionClosed = errors.New("session is closed")
)

// Session drives one device through the frequency plan.
//
// The device's receive goroutine owns the assembler while streaming. The
// controlling goroutine only uses Start, Stop, Wait, Run and Close.
type Session struct {
	dev     sdr.Device
	opts    Options
	plan    *Plan
	cache   *QuickTuneCache
	retuner *Retuner
	asm     *Assembler

	rate atomic.Uint64 // math.Float64bits of the configured sample rate
	stop atomic.Bool

	mu      sync.Mutex
	state   State
	err     error
	done    chan struct{}
	started bool
	closed  bool
}

// NewSession configures dev, builds the frequency plan and, on capable devices,
// the quick-tune cache, then tunes to the first planned frequency. Blocks are
// appended to queue. On error the device has been closed.
func NewSession(ctx context.Context, dev sdr.Device, queue sdr.SampleQueue, opts Options) (*Session, error) {
	s, err := newSession(ctx, dev, queue, opts)
	if err != nil {
		if cerr := dev.Close(); cerr != nil {
			glog.Warningf("error closing %s after failed setup: %s", dev.Name(), cerr)
		}
		return nil, err
	}
	return s, nil
}

func newSession(ctx context.Context, dev sdr.Device, queue sdr.SampleQueue, opts Options) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	plan, err := NewPlan(opts.StartFrequency, opts.StopFrequency, opts.SampleRate)
	if err != nil {
		return nil, err
	}
	glog.Infof("frequency plan: %d frequencies from %.0f Hz to %.0f Hz", plan.Len(), plan.At(0), plan.At(plan.Len()-1))

	s := &Session{
		dev:  dev,
		opts: opts,
		plan: plan,
		done: make(chan struct{}),
	}
	if err := s.configure(); err != nil {
		return nil, err
	}
	if r, ok := dev.(sdr.AsyncErrorReporter); ok {
		r.OnReceiveError(s.receiveFailed)
	}

	if qt, ok := dev.(sdr.QuickTuner); ok && !opts.DisableQuickTune {
		cache, err := PopulateQuickTunes(ctx, dev, qt, plan)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	s.retuner = NewRetuner(dev, plan, s.cache)
	s.retuner.retries = opts.RetuneRetries
	s.retuner.metrics = opts.Metrics

	s.asm = NewAssembler(plan, s.retuner, queue, opts.SampleCount, s.SampleRate)
	s.asm.metrics = opts.Metrics

	if err := s.retuner.RequestRetune(plan.Index()); err != nil {
		return nil, err
	}
	opts.Metrics.SetState(int(StateIllegal))
	return s, nil
}

func (s *Session) configure() error {
	if err := s.dev.SetSampleRate(s.opts.SampleRate); err != nil {
		return sdr.ConfigError("sample rate", fmt.Errorf("error setting sample rate to %gMsps: %w", s.opts.SampleRate/1e6, err))
	}
	s.rate.Store(math.Float64bits(s.opts.SampleRate))
	if err := s.dev.SetBandwidth(s.opts.bandwidth()); err != nil {
		return sdr.ConfigError("bandwidth", fmt.Errorf("error setting bandwidth to %.0f Hz: %w", s.opts.bandwidth(), err))
	}
	if err := s.dev.SetGains(s.opts.Gains); err != nil {
		return sdr.ConfigError("gains", err)
	}
	if sdr.WantsBiasTee(s.opts.DeviceArgs) {
		bt, ok := s.dev.(sdr.BiasTeeController)
		if !ok {
			return sdr.ConfigError("bias tee", fmt.Errorf("%s has no bias tee", s.dev.Name()))
		}
		if err := bt.SetBiasTee(true); err != nil {
			return sdr.ConfigError("bias tee", fmt.Errorf("failed to enable bias tee: %w", err))
		}
		glog.Infof("bias tee enabled on %s", s.dev.Name())
	}
	return nil
}

// SampleRate returns the currently configured sample rate.
func (s *Session) SampleRate() float64 {
	return math.Float64frombits(s.rate.Load())
}

// SetSampleRate reconfigures the device before streaming starts. The plan keeps
// the step it was built with; the settling discard follows the new rate.
func (s *Session) SetSampleRate(hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIllegal {
		return sdr.ConfigError("sample rate", fmt.Errorf("cannot change sample rate while %s", s.state))
	}
	if !finite(hz) || hz <= 0 {
		return sdr.ConfigError("sample rate", fmt.Errorf("sample rate must be positive, got %g", hz))
	}
	if err := s.dev.SetSampleRate(hz); err != nil {
		return sdr.ConfigError("sample rate", err)
	}
	s.rate.Store(math.Float64bits(hz))
	return nil
}

func (s *Session) Plan() *Plan { return s.plan }

// QuickTunes returns the quick-tune cache, nil when the device has none.
func (s *Session) QuickTunes() *QuickTuneCache { return s.cache }

func (s *Session) Stats() Stats { return s.asm.Stats() }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start begins streaming. It is a no-op while streaming; a done session can't be restarted.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateStreaming:
		return nil
	case s.state == StateDone:
		return sdr.StreamingError("start", ErrSessionDone)
	case s.closed:
		return sdr.StreamingError("start", ErrSessionClosed)
	}

	if err := s.dev.StartReceive(s.receive); err != nil {
		s.closed = true
		if cerr := s.dev.Close(); cerr != nil {
			glog.Warningf("error closing %s: %s", s.dev.Name(), cerr)
		}
		return sdr.StreamingError("start", fmt.Errorf("failed to start RX streaming: %w", err))
	}
	s.started = true
	s.state = StateStreaming
	s.opts.Metrics.SetState(int(StateStreaming))
	glog.Infof("streaming from %s at %.0f Hz", s.dev.Name(), s.plan.Current())
	return nil
}

// Stop asks the session to finish. The next receive callback observes the
// request and moves the session to done; a callback in flight is not interrupted.
// A session that never started is done right away.
func (s *Session) Stop() {
	s.stop.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIllegal {
		s.finishLocked(nil)
	}
}

func (s *Session) isDone() bool {
	if s.stop.Load() {
		return true
	}
	return s.opts.Sweeps > 0 && s.asm.sweeps.Load() >= uint64(s.opts.Sweeps)
}

// receive is the device callback.
func (s *Session) receive(chunk []sdr.IQ) {
	select {
	case <-s.done:
		return
	default:
	}
	if s.isDone() {
		s.finish(nil)
		return
	}
	if err := s.asm.Consume(chunk); err != nil {
		glog.Errorf("capture stopped: %s", err)
		s.finish(err)
	}
}

// receiveFailed ends the session when the device's receive loop died.
func (s *Session) receiveFailed(err error) {
	glog.Errorf("%s stopped delivering samples: %s", s.dev.Name(), err)
	s.finish(sdr.StreamingError("receive", err))
}

// finish moves the session to done exactly once.
func (s *Session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(err)
}

// finishLocked is finish for callers holding s.mu.
func (s *Session) finishLocked(err error) {
	if s.state == StateDone {
		return
	}
	s.state = StateDone
	s.err = err
	close(s.done)
	s.opts.Metrics.SetState(int(StateDone))
}

// Done is closed once the session reached StateDone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is done or ctx ends. It returns the error that
// ended the session, or ctx.Err(). A device that stops calling back keeps Wait
// blocked, so callers should bound ctx.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run streams until the configured number of sweeps completed, a fatal error
// occurred or ctx ends. The device is closed when Run returns.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := s.Start(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
	}

	s.Stop()
	timeout := s.opts.stopTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return s.Err()
	case <-timer.C:
		return sdr.StreamingError("stop", fmt.Errorf("%s delivered no samples within %s of the stop request", s.dev.Name(), timeout))
	}
}

// Close stops receiving and releases the device. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	// The device may wait for an in-flight callback, so no lock is held here.
	var errs []error
	if started {
		if err := s.dev.StopReceive(); err != nil {
			errs = append(errs, sdr.StreamingError("stop", fmt.Errorf("failed to stop RX streaming at %.0f Hz: %w", s.plan.Current(), err)))
		}
	}
	if err := s.dev.Close(); err != nil {
		errs = append(errs, sdr.StreamingError("close", fmt.Errorf("error closing %s: %w", s.dev.Name(), err)))
	}
	s.finish(nil)
	glog.Infof("closed %s", s.dev.Name())
	return errors.Join(errs...)
}
