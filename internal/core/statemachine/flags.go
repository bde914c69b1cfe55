package statemachine

import (
	"sync"

	"github.com/berfenger/battseq/internal/core/domain"
)

type Flag int

const (
	FlagMaxStartAttempts Flag = iota
	FlagMaxStopAttempts
	FlagUnexpectedStoppedState
	FlagTimeoutStart
	FlagTimeoutStop
	FlagRunFailed
)

// Flags are the failure signals raised by the sequencer itself. They are read
// from outside the control cycle, so access is locked.
type Flags struct {
	mu    sync.Mutex
	flags domain.SequencerFlags
}

func (f *Flags) field(flag Flag) *bool {
	switch flag {
	case FlagMaxStartAttempts:
		return &f.flags.MaxStartAttempts
	case FlagMaxStopAttempts:
		return &f.flags.MaxStopAttempts
	case FlagUnexpectedStoppedState:
		return &f.flags.UnexpectedStoppedState
	case FlagTimeoutStart:
		return &f.flags.TimeoutStart
	case FlagTimeoutStop:
		return &f.flags.TimeoutStop
	case FlagRunFailed:
		return &f.flags.RunFailed
	}
	return nil
}

func (f *Flags) Set(flag Flag, value bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.field(flag); p != nil {
		*p = value
	}
}

func (f *Flags) Get(flag Flag) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.field(flag); p != nil {
		return *p
	}
	return false
}

func (f *Flags) Clear(flags ...Flag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, flag := range flags {
		if p := f.field(flag); p != nil {
			*p = false
		}
	}
}

func (f *Flags) Snapshot() domain.SequencerFlags {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}
