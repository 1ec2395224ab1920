package hop

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

const defaultStopTimeout = 5 * time.Second

// Options configures a capture session.
type Options struct {
	// SampleRate in Hz. It is also the step between planned center frequencies.
	SampleRate float64
	// SampleCount is the number of samples per capture block.
	SampleCount int
	// StartFrequency and StopFrequency bound the band in Hz, both inclusive.
	StartFrequency float64
	StopFrequency  float64
	// Bandwidth of the baseband filter in Hz. Zero uses SampleRate.
	Bandwidth float64
	Gains     sdr.Gains
	// DeviceArgs is passed through from the command line. "bias" enables the bias tee.
	DeviceArgs string

	// DisableQuickTune skips building the quick-tune cache on capable devices.
	DisableQuickTune bool
	// RetuneRetries is how often a failed retune is retried before it is fatal.
	RetuneRetries int
	// Sweeps ends the session after this many completed sweeps. Zero runs until stopped.
	Sweeps int
	// StopTimeout bounds how long Run waits for the device to acknowledge a stop.
	StopTimeout time.Duration

	Metrics *metrics.Collector
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (o *Options) Validate() error {
	switch {
	case !finite(o.SampleRate) || o.SampleRate <= 0:
		return sdr.ConfigError("validate", fmt.Errorf("sample rate must be positive, got %g", o.SampleRate))
	case o.SampleCount <= 0:
		return sdr.ConfigError("validate", fmt.Errorf("sample count must be positive, got %d", o.SampleCount))
	case !finite(o.StartFrequency) || !finite(o.StopFrequency) || o.StartFrequency < 0:
		return sdr.ConfigError("validate", fmt.Errorf("invalid band %g-%g Hz", o.StartFrequency, o.StopFrequency))
	case o.StopFrequency < o.StartFrequency:
		return sdr.ConfigError("validate", fmt.Errorf("stop frequency %.0f Hz below start frequency %.0f Hz", o.StopFrequency, o.StartFrequency))
	case !finite(o.Bandwidth) || o.Bandwidth < 0:
		return sdr.ConfigError("validate", fmt.Errorf("bandwidth must not be negative, got %g", o.Bandwidth))
	case o.RetuneRetries < 0:
		return sdr.ConfigError("validate", errors.New("retune retries must not be negative"))
	case o.Sweeps < 0:
		return sdr.ConfigError("validate", errors.New("sweeps must not be negative"))
	case o.StopTimeout < 0:
		return sdr.ConfigError("validate", errors.New("stop timeout must not be negative"))
	}
	return nil
}

func (o *Options) bandwidth() float64 {
	if o.Bandwidth > 0 {
		return o.Bandwidth
	}
	return o.SampleRate
}

func (o *Options) stopTimeout() time.Duration {
	if o.StopTimeout > 0 {
		return o.StopTimeout
	}
	return defaultStopTimeout
}
