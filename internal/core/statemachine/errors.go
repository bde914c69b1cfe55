package statemachine

import (
	"errors"
	"fmt"
)

type FailureKind int

const (
	TransientIO FailureKind = iota
	Timeout
	AttemptsExhausted
	UnexpectedState
	HardwareFault
	UnsupportedDevice
	HandlerPanic
)

func (k FailureKind) String() string {
	switch k {
	case TransientIO:
		return "transient_io"
	case Timeout:
		return "timeout"
	case AttemptsExhausted:
		return "attempts_exhausted"
	case UnexpectedState:
		return "unexpected_state"
	case HardwareFault:
		return "hardware_fault"
	case UnsupportedDevice:
		return "unsupported_device"
	case HandlerPanic:
		return "handler_panic"
	}
	return "unknown"
}

var (
	ErrMissingHandler      = errors.New("statemachine: missing handler")
	ErrNotClusterDevice    = errors.New("statemachine: device does not expose sub-units")
	ErrConfirmationTimeout = errors.New("statemachine: confirmation did not arrive in time")
)

// StepError is the failure a handler reports from Step. The machine turns it
// into a transition to ERROR.
type StepError struct {
	Kind  FailureKind
	State State
	Err   error
}

func NewStepError(kind FailureKind, state State, err error) *StepError {
	return &StepError{Kind: kind, State: state, Err: err}
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.State, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.State, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind FailureKind) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
