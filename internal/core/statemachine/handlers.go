package statemachine

import (
	"time"

	"github.com/berfenger/battseq/internal/core/domain"

	"go.uber.org/zap"
)

// NewPolledHandlers builds the handler set for devices whose power state and
// inverter release are confirmed through bridge polling.
func NewPolledHandlers() map[State]Handler {
	return map[State]Handler{
		Undefined: &UndefinedHandler{},
		GoRunning: NewPolledGoRunningHandler(),
		Running:   &RunningHandler{},
		GoStopped: NewPolledGoStoppedHandler(),
		Stopped:   &StoppedHandler{},
		Error:     &ErrorHandler{},
	}
}

// NewClusterHandlers builds the handler set for rack clusters driven by
// register writes with a fixed retry budget.
func NewClusterHandlers() map[State]Handler {
	return map[State]Handler{
		Undefined: &UndefinedHandler{},
		GoRunning: NewClusterGoRunningHandler(),
		Running:   &RunningHandler{},
		GoStopped: NewClusterGoStoppedHandler(),
		Stopped:   &StoppedHandler{},
		Error:     &ErrorHandler{},
	}
}

// Undefined

type UndefinedHandler struct {
	entryTime time.Time
}

func (h *UndefinedHandler) OnEntry(ctx *Context) error {
	h.entryTime = ctx.now()
	ctx.Device.MarkStartStop(domain.START_STOP_UNDEFINED)
	return nil
}

func (h *UndefinedHandler) Step(ctx *Context) (State, error) {
	target := ctx.Device.StartStopTarget()
	if ctx.Device.HasFaults() && target == domain.START_STOP_START {
		ctx.Logger.Warn("undefined: device reports faults, start refused")
		return Error, nil
	}
	switch target {
	case domain.START_STOP_START:
		if !h.rearmed(ctx, FlagMaxStartAttempts) {
			return Undefined, nil
		}
		return GoRunning, nil
	case domain.START_STOP_STOP:
		if !h.rearmed(ctx, FlagMaxStopAttempts) {
			return Undefined, nil
		}
		return GoStopped, nil
	}
	return Undefined, nil
}

// rearmed holds a direction whose attempt budget was exhausted until the
// error cool-down has passed since entering UNDEFINED.
func (h *UndefinedHandler) rearmed(ctx *Context, flag Flag) bool {
	if !ctx.Flags.Get(flag) {
		return true
	}
	if ctx.now().Sub(h.entryTime) < ctx.Config.ErrorCooldown {
		return false
	}
	ctx.Logger.Info("undefined: attempt budget re-armed")
	ctx.Flags.Clear(flag)
	return true
}

func (h *UndefinedHandler) OnExit(ctx *Context) error {
	return nil
}

// Running

type RunningHandler struct{}

func (h *RunningHandler) OnEntry(ctx *Context) error {
	return nil
}

func (h *RunningHandler) Step(ctx *Context) (State, error) {
	switch {
	case ctx.Device.HasFaults():
		ctx.Logger.Warn("running: device reports faults")
		return Undefined, nil
	case !ctx.Device.IsRunning():
		ctx.Logger.Warn("running: device is no longer running")
		return Undefined, nil
	case ctx.Device.StartStopTarget() != domain.START_STOP_START:
		return Undefined, nil
	}
	ctx.Device.MarkStartStop(domain.START_STOP_START)
	return Running, nil
}

func (h *RunningHandler) OnExit(ctx *Context) error {
	return nil
}

// Stopped

type StoppedHandler struct{}

func (h *StoppedHandler) OnEntry(ctx *Context) error {
	return nil
}

func (h *StoppedHandler) Step(ctx *Context) (State, error) {
	if ctx.Device.HasFaults() {
		ctx.Logger.Warn("stopped: device reports faults")
		return Error, nil
	}
	if !ctx.Device.IsShutdown() {
		ctx.Logger.Error("stopped: device is not shut down")
		ctx.Flags.Set(FlagUnexpectedStoppedState, true)
		return Error, nil
	}
	ctx.Flags.Clear(FlagUnexpectedStoppedState)
	if ctx.Device.StartStopTarget() == domain.START_STOP_START {
		return Undefined, nil
	}
	ctx.Device.MarkStartStop(domain.START_STOP_STOP)
	return Stopped, nil
}

func (h *StoppedHandler) OnExit(ctx *Context) error {
	return nil
}

// Error

type ErrorHandler struct {
	entryTime time.Time
}

func (h *ErrorHandler) OnEntry(ctx *Context) error {
	h.entryTime = ctx.now()
	ctx.Device.MarkStartStop(domain.START_STOP_UNDEFINED)
	// best effort, the cool-down runs regardless
	if err := ctx.Device.StopDevice(); err != nil {
		ctx.Logger.Warn("error: emergency stop failed", zap.Error(err))
	}
	return nil
}

func (h *ErrorHandler) Step(ctx *Context) (State, error) {
	if err := ctx.Device.ClearFaults(); err != nil {
		ctx.Logger.Debug("error: clear faults failed", zap.Error(err))
	}
	if ctx.now().Sub(h.entryTime) >= ctx.Config.ErrorCooldown {
		return Undefined, nil
	}
	return Error, nil
}

func (h *ErrorHandler) OnExit(ctx *Context) error {
	ctx.Flags.Clear(FlagMaxStartAttempts, FlagMaxStopAttempts)
	return nil
}

// ensure interface compliance
var _ Handler = (*UndefinedHandler)(nil)
var _ Handler = (*RunningHandler)(nil)
var _ Handler = (*StoppedHandler)(nil)
var _ Handler = (*ErrorHandler)(nil)
