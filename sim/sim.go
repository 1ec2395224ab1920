// Package sim is a software front end. It produces deterministic IQ data that
// encodes the tuned frequency, emulates tuner settling after every retune and
// supports quick-tune tokens and a bias tee.
package sim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/sdr"
)

const (
	SourceName = "sim"

	defaultChunkSize = 8192
	defaultSettling  = 5 * time.Millisecond

	// SettlingQ marks the Q component of samples produced while the tuner settles.
	SettlingQ int8 = math.MinInt8
)

var tokenMagic = []byte("SIMQT")

// SDR is safe for concurrent use.
type SDR struct {
	// ChunkSizes are the sizes, in samples, of consecutive chunks. They repeat.
	ChunkSizes []int
	// Interval between chunks. Zero delivers chunks back to back.
	Interval time.Duration
	// Settling is how long samples stay contaminated after a retune.
	Settling time.Duration
	// FailTune, when set, is consulted before every tuning operation.
	FailTune func(hz float64) error
	// FailReceive, when set, is consulted before producing chunk n (counting
	// from 0). An error ends the receive loop and is reported to OnReceiveError.
	FailReceive func(n int) error

	mu        sync.Mutex
	freq      float64
	rate      float64
	bandwidth float64
	gains     sdr.Gains
	bias      bool
	settle    int // contaminated samples still to produce
	seq       uint64
	tunes     []float64
	quick     int
	closed    bool
	onError   sdr.ErrorFunc

	stop chan struct{}
	wg   sync.WaitGroup
}

func (s *SDR) Name() string {
	return SourceName
}

func (s *SDR) SetFrequency(hz float64) error {
	return s.tune(hz, false)
}

func (s *SDR) RetuneNow(hz float64) error {
	return s.tune(hz, false)
}

func (s *SDR) tune(hz float64, quick bool) error {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("invalid frequency %g", hz)
	}
	if s.FailTune != nil {
		if err := s.FailTune(hz); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("device closed")
	}
	s.freq = hz
	s.tunes = append(s.tunes, hz)
	if quick {
		s.quick++
	}
	settling := s.Settling
	if settling == 0 {
		settling = defaultSettling
	}
	s.settle = int(s.rate * float64(settling) / float64(time.Second))
	return nil
}

func (s *SDR) SetSampleRate(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("unsupported sample rate %g", hz)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = hz
	return nil
}

func (s *SDR) SetBandwidth(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("unsupported bandwidth %g", hz)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bandwidth = hz
	return nil
}

func (s *SDR) SetGains(g sdr.Gains) error {
	if g.LNA < 0 || g.VGA < 0 {
		return fmt.Errorf("negative gain %+v", g)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains = g
	return nil
}

func (s *SDR) SetBiasTee(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bias = on
	return nil
}

// CaptureQuickTune snapshots the tuned frequency.
func (s *SDR) CaptureQuickTune(hz float64) (sdr.QuickTuneToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freq != hz {
		return nil, fmt.Errorf("tuned to %.0f Hz, not %.0f Hz", s.freq, hz)
	}
	tok := make([]byte, len(tokenMagic)+8)
	copy(tok, tokenMagic)
	binary.LittleEndian.PutUint64(tok[len(tokenMagic):], math.Float64bits(hz))
	return tok, nil
}

func (s *SDR) RetuneQuick(tok sdr.QuickTuneToken) error {
	if len(tok) != len(tokenMagic)+8 || !bytes.HasPrefix(tok, tokenMagic) {
		return errors.New("malformed quick tune token")
	}
	return s.tune(math.Float64frombits(binary.LittleEndian.Uint64(tok[len(tokenMagic):])), true)
}

func (s *SDR) StartReceive(fn sdr.ReceiveFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("device closed")
	}
	if s.stop != nil {
		return errors.New("already receiving")
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(fn, s.stop)
	return nil
}

func (s *SDR) run(fn sdr.ReceiveFunc, stop <-chan struct{}) {
	defer s.wg.Done()
	sizes := s.ChunkSizes
	if len(sizes) == 0 {
		sizes = []int{defaultChunkSize}
	}
	var buf []sdr.IQ
	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		default:
		}
		if s.FailReceive != nil {
			if err := s.FailReceive(i); err != nil {
				s.reportError(err)
				return
			}
		}
		size := sizes[i%len(sizes)]
		if cap(buf) < size {
			buf = make([]sdr.IQ, size)
		}
		// The buffer is reused like a driver transfer buffer.
		chunk := buf[:size]
		s.fill(chunk)
		fn(chunk)

		if s.Interval > 0 {
			select {
			case <-stop:
				return
			case <-time.After(s.Interval):
			}
		}
	}
}

func (s *SDR) OnReceiveError(fn sdr.ErrorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

func (s *SDR) reportError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	} else {
		glog.Warningf("sim receive failed: %s", err)
	}
}

// fill writes the running sample counter into I and the tuned frequency in MHz
// (mod 128) into Q, or SettlingQ while the tuner settles.
func (s *SDR) fill(chunk []sdr.IQ) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := FrequencyTag(s.freq)
	for i := range chunk {
		q := tag
		if s.settle > 0 {
			q = SettlingQ
			s.settle--
		}
		chunk[i] = sdr.IQ{int8(s.seq), q}
		s.seq++
	}
}

// FrequencyTag is the Q value of settled samples received at hz.
func FrequencyTag(hz float64) int8 {
	return int8(uint64(hz/1e6) % 128)
}

func (s *SDR) StopReceive() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	s.wg.Wait()
	glog.V(2).Info("sim receive stopped")
	return nil
}

func (s *SDR) Close() error {
	if err := s.StopReceive(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Frequency returns the tuned frequency.
func (s *SDR) Frequency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freq
}

// Tunes returns every frequency tuned to so far, in order.
func (s *SDR) Tunes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.tunes...)
}

// QuickTunes returns how many retunes used a quick-tune token.
func (s *SDR) QuickTunes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quick
}

func (s *SDR) BiasTee() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bias
}

func (s *SDR) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
