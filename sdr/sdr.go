package sdr

import (
	"strings"
	"time"
)

// IQ is a single signed in-phase/quadrature sample pair as delivered by 8 bit front ends.
type IQ [2]int8

// Envelope is one completed capture block as handed to the downstream queue.
type Envelope struct {
	Samples         []IQ
	CenterFrequency float64
	// ScanStart is only set on the block that begins a sweep of the frequency plan.
	ScanStart time.Time
	// Sweep counts sweeps seen by the queue, starting at 1 with the first scan start.
	Sweep     uint64
	Completed time.Time
}

// HasScanStart reports whether the envelope begins a sweep.
func (e Envelope) HasScanStart() bool {
	return !e.ScanStart.IsZero()
}

type Record struct {
	// Metadata
	Identifier string
	Source     string

	// Radio Data
	FreqCenter  uint64
	FreqLow     uint64
	FreqHigh    uint64
	DBHigh      float64
	DBLow       float64
	DBAvg       float64
	SampleCount int64
	Sweep       uint64
	ScanStart   bool
	Start       time.Time
	End         time.Time
}

// Gains describes the receive gain stages. Devices interpret the stages they have
// and reject values outside their range.
type Gains struct {
	// LNA is the RF/IF low noise amplifier gain in dB. For tuners with a single
	// gain stage this is the tuner gain, 0 selecting automatic gain.
	LNA int
	// VGA is the baseband variable gain in dB.
	VGA int
	// Amp enables the RF pre-amplifier (or the AGC on single stage tuners).
	Amp bool
}

// ReceiveFunc is invoked by a device with every chunk of samples it receives.
// The chunk is only valid for the duration of the call. Devices never invoke
// it concurrently with itself.
type ReceiveFunc func(chunk []IQ)

// ErrorFunc is invoked by a device whose receive loop failed after StartReceive
// returned. No further chunks follow.
type ErrorFunc func(err error)

// AsyncErrorReporter is implemented by devices that receive on their own
// goroutine and can fail there.
type AsyncErrorReporter interface {
	OnReceiveError(fn ErrorFunc)
}

// Device is the capability surface every front end family implements.
type Device interface {
	Name() string
	SetFrequency(hz float64) error
	SetSampleRate(hz float64) error
	SetBandwidth(hz float64) error
	SetGains(g Gains) error
	StartReceive(fn ReceiveFunc) error
	StopReceive() error
	// RetuneNow retunes immediately while receiving.
	RetuneNow(hz float64) error
	Close() error
}

// QuickTuneToken is an opaque, device specific tuning descriptor. A token is only
// valid for the frequency it was captured at.
type QuickTuneToken []byte

// QuickTuner is implemented by devices that can snapshot their tuning state and
// restore it without a full tuning computation.
type QuickTuner interface {
	// CaptureQuickTune snapshots the current tuning state, which must be hz.
	CaptureQuickTune(hz float64) (QuickTuneToken, error)
	RetuneQuick(tok QuickTuneToken) error
}

// BiasTeeController is implemented by devices that can power an antenna port.
type BiasTeeController interface {
	SetBiasTee(on bool) error
}

// WantsBiasTee reports whether the device argument string requests the bias tee.
func WantsBiasTee(args string) bool {
	return strings.Contains(strings.ToLower(args), "bias")
}
