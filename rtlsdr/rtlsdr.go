package rtlsdr

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	rtl "github.com/jpoirier/gortlsdr"

	"github.com/hb9tf/hopper/sdr"
)

const (
	SourceName = "rtl_sdr"

	// rtl-sdr samples are unsigned with the zero level at 127.5.
	sampleOffset = 128

	// startGrace is how long StartReceive waits for ReadAsync to fail right away.
	startGrace = 100 * time.Millisecond
)

// Sample rate ranges accepted by the RTL2832U.
var sampleRateRanges = [][2]float64{
	{225001, 300000},
	{900001, 3200000},
}

// SDR drives an RTL2832U based dongle through librtlsdr.
type SDR struct {
	Index int

	dev *rtl.Context

	mu        sync.Mutex
	receiving bool
	onError   sdr.ErrorFunc
	wg        sync.WaitGroup
	buf       []sdr.IQ
}

// Open opens the dongle with the given index.
func Open(index int) (*SDR, error) {
	if rtl.GetDeviceCount() == 0 {
		return nil, sdr.DeviceInitError("open", fmt.Errorf("no rtl-sdr devices connected"))
	}
	dev, err := rtl.Open(index)
	if err != nil {
		return nil, sdr.DeviceInitError("open", fmt.Errorf("failed to open rtl-sdr device %d: %w", index, err))
	}
	glog.Infof("opened rtl-sdr device %d", index)
	return &SDR{Index: index, dev: dev}, nil
}

func (s *SDR) Name() string {
	return SourceName
}

func (s *SDR) SetFrequency(hz float64) error {
	if err := s.dev.SetCenterFreq(int(hz)); err != nil {
		return fmt.Errorf("failed to tune to %.0f Hz: %w", hz, err)
	}
	return nil
}

func (s *SDR) RetuneNow(hz float64) error {
	return s.SetFrequency(hz)
}

func (s *SDR) SetSampleRate(hz float64) error {
	supported := false
	for _, r := range sampleRateRanges {
		if hz >= r[0] && hz <= r[1] {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported samplerate: %gMsps", hz/1e6)
	}
	return s.dev.SetSampleRate(int(hz))
}

// SetBandwidth only validates: the tuner filter follows the sample rate.
func (s *SDR) SetBandwidth(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("invalid bandwidth %.0f Hz", hz)
	}
	glog.V(2).Infof("rtl-sdr bandwidth follows the sample rate, ignoring %.0f Hz", hz)
	return nil
}

// SetGains uses LNA as the tuner gain in dB (0 selects automatic gain) and Amp
// as the RTL2832 AGC.
func (s *SDR) SetGains(g sdr.Gains) error {
	if g.LNA < 0 {
		return fmt.Errorf("invalid tuner gain %d dB", g.LNA)
	}
	if g.LNA == 0 {
		if err := s.dev.SetTunerGainMode(false); err != nil {
			return err
		}
	} else {
		if err := s.dev.SetTunerGainMode(true); err != nil {
			return err
		}
		// librtlsdr takes tenths of a dB.
		if err := s.dev.SetTunerGain(g.LNA * 10); err != nil {
			return err
		}
	}
	return s.dev.SetAgcMode(g.Amp)
}

func (s *SDR) StartReceive(fn sdr.ReceiveFunc) error {
	s.mu.Lock()
	if s.receiving {
		s.mu.Unlock()
		return nil
	}
	if err := s.dev.ResetBuffer(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.receiving = true
	s.mu.Unlock()

	// ReadAsync blocks until CancelAsync. A failure within startGrace is
	// returned from here, a later one goes to the OnReceiveError hook.
	errc := make(chan error)
	graceOver := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.dev.ReadAsync(func(buf []byte) {
			fn(s.convert(buf))
		}, nil, 0, 0)

		s.mu.Lock()
		cancelled := !s.receiving
		s.receiving = false
		onError := s.onError
		s.mu.Unlock()
		if cancelled {
			return
		}
		if err == nil {
			err = errors.New("async read ended without being cancelled")
		}
		select {
		case errc <- err:
			return
		case <-graceOver:
		}
		if onError != nil {
			onError(err)
		} else {
			glog.Warningf("rtl-sdr ReadAsync failed: %s", err)
		}
	}()

	timer := time.NewTimer(startGrace)
	defer timer.Stop()
	select {
	case err := <-errc:
		s.wg.Wait()
		return fmt.Errorf("rtl-sdr ReadAsync failed: %w", err)
	case <-timer.C:
		close(graceOver)
		return nil
	}
}

func (s *SDR) OnReceiveError(fn sdr.ErrorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// convert turns unsigned samples into signed IQ pairs in a reused buffer.
func (s *SDR) convert(buf []byte) []sdr.IQ {
	n := len(buf) / 2
	if cap(s.buf) < n {
		s.buf = make([]sdr.IQ, n)
	}
	out := s.buf[:n]
	for i := range out {
		out[i] = sdr.IQ{int8(int(buf[2*i]) - sampleOffset), int8(int(buf[2*i+1]) - sampleOffset)}
	}
	return out
}

func (s *SDR) StopReceive() error {
	s.mu.Lock()
	if !s.receiving {
		s.mu.Unlock()
		return nil
	}
	s.receiving = false
	s.mu.Unlock()

	err := s.dev.CancelAsync()
	s.wg.Wait()
	return err
}

func (s *SDR) Close() error {
	if err := s.StopReceive(); err != nil {
		glog.Warningf("error cancelling async read: %s", err)
	}
	return s.dev.Close()
}
