package sdr

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrDeviceInit    = errors.New("device init error")
	ErrConfiguration = errors.New("configuration error")
	ErrTune          = errors.New("tune error")
	ErrStreaming     = errors.New("streaming error")
)

// Error ties a driver or validation failure to one of the error kinds.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) error {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func DeviceInitError(op string, err error) error { return newError(ErrDeviceInit, op, err) }
func ConfigError(op string, err error) error     { return newError(ErrConfiguration, op, err) }
func TuneError(op string, err error) error       { return newError(ErrTune, op, err) }
func StreamingError(op string, err error) error  { return newError(ErrStreaming, op, err) }
