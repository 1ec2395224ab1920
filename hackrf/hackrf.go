package hackrf

import (
	"fmt"
	"slices"
	"sync"
	"unsafe"

	"github.com/golang/glog"
	"github.com/samuel/go-hackrf/hackrf"

	"github.com/hb9tf/hopper/sdr"
)

const (
	SourceName = "hackrf"

	maxLNAGain  = 40 // RX LNA (IF) gain, 0-40dB, 8dB steps
	lnaGainStep = 8
	maxVGAGain  = 62 // RX VGA (baseband) gain, 0-62dB, 2dB steps
	vgaGainStep = 2
)

// DefaultGains match what the sweeper used to run with.
var DefaultGains = sdr.Gains{LNA: 8, VGA: 20}

var supportedSampleRates = []float64{8e6, 10e6, 12.5e6, 16e6, 20e6}

// SDR drives a HackRF One through libhackrf.
type SDR struct {
	dev *hackrf.Device

	mu        sync.Mutex
	receiving bool
}

func Open() (*SDR, error) {
	dev, err := hackrf.Open()
	if err != nil {
		return nil, sdr.DeviceInitError("open", fmt.Errorf("failed to open HackRF device: %w", err))
	}
	glog.Infof("opened HackRF device")
	return &SDR{dev: dev}, nil
}

func (s *SDR) Name() string {
	return SourceName
}

func (s *SDR) SetFrequency(hz float64) error {
	if err := s.dev.SetFreq(uint64(hz)); err != nil {
		return fmt.Errorf("failed to tune to %.0f Hz: %w", hz, err)
	}
	return nil
}

func (s *SDR) RetuneNow(hz float64) error {
	return s.SetFrequency(hz)
}

func (s *SDR) SetSampleRate(hz float64) error {
	if !slices.Contains(supportedSampleRates, hz) {
		return fmt.Errorf("unsupported samplerate: %gMsps", hz/1e6)
	}
	if err := s.dev.SetSampleRateManual(int(hz), 1); err != nil {
		return fmt.Errorf("error setting sample rate to %gMsps: %w", hz/1e6, err)
	}
	return nil
}

func (s *SDR) SetBandwidth(hz float64) error {
	return s.dev.SetBasebandFilterBandwidth(int(hz))
}

func (s *SDR) SetGains(g sdr.Gains) error {
	if g.LNA < 0 || g.LNA > maxLNAGain || g.LNA%lnaGainStep != 0 {
		return fmt.Errorf("LNA gain %d dB outside 0-%d dB in %d dB steps", g.LNA, maxLNAGain, lnaGainStep)
	}
	if g.VGA < 0 || g.VGA > maxVGAGain || g.VGA%vgaGainStep != 0 {
		return fmt.Errorf("VGA gain %d dB outside 0-%d dB in %d dB steps", g.VGA, maxVGAGain, vgaGainStep)
	}
	if err := s.dev.SetLNAGain(g.LNA); err != nil {
		return err
	}
	if err := s.dev.SetVGAGain(g.VGA); err != nil {
		return err
	}
	return s.dev.SetAmpEnable(g.Amp)
}

// SetBiasTee switches the antenna port power.
func (s *SDR) SetBiasTee(on bool) error {
	return s.dev.SetAntennaEnable(on)
}

func (s *SDR) StartReceive(fn sdr.ReceiveFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receiving {
		return nil
	}
	if err := s.dev.StartRX(func(buf []byte) error {
		fn(asIQ(buf))
		return nil
	}); err != nil {
		return err
	}
	s.receiving = true
	return nil
}

// asIQ reinterprets an interleaved signed 8 bit transfer buffer as IQ pairs
// without copying. The result aliases buf.
func asIQ(buf []byte) []sdr.IQ {
	if len(buf) < 2 {
		return nil
	}
	return unsafe.Slice((*sdr.IQ)(unsafe.Pointer(unsafe.SliceData(buf))), len(buf)/2)
}

func (s *SDR) StopReceive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.receiving {
		return nil
	}
	s.receiving = false
	return s.dev.StopRX()
}

func (s *SDR) Close() error {
	if err := s.StopReceive(); err != nil {
		glog.Warningf("failed to stop RX streaming: %s", err)
	}
	return s.dev.Close()
}
