package statemachine

import (
	"strings"
	"time"

	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/port"

	"go.uber.org/zap"
)

const (
	SubCheckPowerState           = "CHECK_POWER_STATE"
	SubActivatePowerState        = "ACTIVATE_POWER_STATE"
	SubDeactivatePowerState      = "DEACTIVATE_POWER_STATE"
	SubCheckInverterRelease      = "CHECK_INVERTER_RELEASE"
	SubActivateInverterRelease   = "ACTIVATE_INVERTER_RELEASE"
	SubDeactivateInverterRelease = "DEACTIVATE_INVERTER_RELEASE"
	SubStartDevice               = "START_DEVICE"
	SubStopDevice                = "STOP_DEVICE"
	SubFinished                  = "FINISHED"
	SubError                     = "ERROR"
)

// sequenceStep is either a bridge signal (endpoint set) that is checked and
// commanded until it reads want, or a device operation repeated until done.
type sequenceStep struct {
	check   string
	command string

	endpoint string
	want     int

	run  func(port.Device) error
	done func(port.Device) bool
}

func (s sequenceStep) signal() bool {
	return s.endpoint != ""
}

func (s sequenceStep) firstSubState() string {
	if s.signal() {
		return s.check
	}
	return s.command
}

// PolledHandler is the composite GO_RUNNING / GO_STOPPED handler for devices
// confirmed through bridge polling.
type PolledHandler struct {
	state         State
	target        State
	exhaustedFlag Flag
	timeoutFlag   Flag
	policy        func(Config) attemptPolicy
	steps         []sequenceStep

	polls       *pollSet
	tracker     AttemptTracker
	index       int
	checking    bool
	sub         string
	pending     *port.Future
	triedInStep bool

	// start of the current wait for a check value, zero when not waiting
	waitingSince time.Time
}

func NewPolledGoRunningHandler() *PolledHandler {
	return &PolledHandler{
		state:         GoRunning,
		target:        Running,
		exhaustedFlag: FlagMaxStartAttempts,
		timeoutFlag:   FlagTimeoutStart,
		policy:        Config.startPolicy,
		polls:         newPollSet(EndpointPowerState, EndpointReleaseStatus),
		steps: []sequenceStep{
			{check: SubCheckPowerState, command: SubActivatePowerState, endpoint: EndpointPowerState, want: 1},
			{check: SubCheckInverterRelease, command: SubActivateInverterRelease, endpoint: EndpointReleaseStatus, want: 1},
			{command: SubStartDevice, run: port.Device.StartDevice, done: port.Device.IsRunning},
		},
	}
}

// NewPolledGoStoppedHandler deactivates in reverse order of GO_RUNNING.
func NewPolledGoStoppedHandler() *PolledHandler {
	return &PolledHandler{
		state:         GoStopped,
		target:        Stopped,
		exhaustedFlag: FlagMaxStopAttempts,
		timeoutFlag:   FlagTimeoutStop,
		policy:        Config.stopPolicy,
		polls:         newPollSet(EndpointPowerState, EndpointReleaseStatus),
		steps: []sequenceStep{
			{command: SubStopDevice, run: port.Device.StopDevice, done: port.Device.IsShutdown},
			{check: SubCheckInverterRelease, command: SubDeactivateInverterRelease, endpoint: EndpointReleaseStatus, want: 0},
			{check: SubCheckPowerState, command: SubDeactivatePowerState, endpoint: EndpointPowerState, want: 0},
		},
	}
}

func (h *PolledHandler) prefix() string {
	return strings.ToLower(h.state.String())
}

func (h *PolledHandler) OnEntry(ctx *Context) error {
	h.tracker.Arm(ctx.now(), h.policy(ctx.Config))
	h.index = 0
	h.checking = true
	h.pending = nil
	h.triedInStep = false
	h.waitingSince = time.Time{}
	h.sub = h.steps[0].firstSubState()
	ctx.Flags.Clear(h.timeoutFlag)
	ctx.Device.MarkStartStop(domain.START_STOP_UNDEFINED)
	return h.polls.open(ctx)
}

func (h *PolledHandler) Step(ctx *Context) (State, error) {
	now := ctx.now()
	h.polls.logErrors(ctx, h.prefix())

	if ctx.Device.HasFaults() {
		ctx.Logger.Warn(h.prefix()+": device reports faults", zap.String("step", h.sub))
		h.sub = SubError
		return Error, nil
	}
	if h.tracker.TimedOut(now) {
		ctx.Logger.Error(h.prefix()+": timed out", zap.String("step", h.sub), zap.Int("attempts", h.tracker.Attempts()))
		h.sub = SubError
		ctx.Flags.Set(h.timeoutFlag, true)
		return Error, NewStepError(Timeout, h.state, ErrConfirmationTimeout)
	}

	// several sub-steps may complete in one cycle
	for i := 0; i <= 2*len(h.steps); i++ {
		prev := h.sub
		if next, leave := h.advance(ctx, now); leave {
			return next, nil
		}
		if h.sub == prev {
			break
		}
	}
	return h.state, nil
}

func (h *PolledHandler) advance(ctx *Context, now time.Time) (State, bool) {
	if h.index >= len(h.steps) {
		h.sub = SubFinished
		return h.target, true
	}
	st := h.steps[h.index]

	if !st.signal() {
		if st.done(ctx.Device) {
			h.nextStep()
			return h.state, false
		}
		if !h.due(now) {
			return h.state, false
		}
		if h.tracker.Exhausted() {
			return h.exhausted(ctx), true
		}
		h.attempt(ctx, now)
		if err := st.run(ctx.Device); err != nil {
			ctx.Logger.Warn(h.prefix()+": device command failed", zap.String("step", h.sub), zap.Error(err))
		}
		return h.state, false
	}

	value, ok := h.polls.get(st.endpoint)
	if h.checking {
		if !ok {
			return h.awaitPoll(ctx, now)
		}
		h.waitingSince = time.Time{}
		if value == st.want {
			h.nextStep()
		} else {
			h.checking = false
			h.sub = st.command
		}
		return h.state, false
	}

	if ok && value == st.want {
		h.nextStep()
		return h.state, false
	}
	if h.pending != nil {
		if !h.pending.Done() {
			return h.state, false
		}
		if _, err := h.pending.Result(); err != nil {
			ctx.Logger.Warn(h.prefix()+": command failed", zap.String("step", h.sub), zap.Error(err))
		}
		h.pending = nil
	}
	if !h.due(now) {
		return h.state, false
	}
	if h.tracker.Exhausted() {
		return h.exhausted(ctx), true
	}
	h.attempt(ctx, now)
	h.pending = ctx.Bridge.SendCommand(port.Request{Endpoint: st.endpoint, Write: true, Value: st.want})
	return h.state, false
}

// awaitPoll charges one attempt per retry interval spent without a value to
// check, so polls that keep failing exhaust the budget even with no timeout.
func (h *PolledHandler) awaitPoll(ctx *Context, now time.Time) (State, bool) {
	if h.waitingSince.IsZero() {
		h.waitingSince = now
		return h.state, false
	}
	if now.Sub(h.waitingSince) < ctx.Config.RetryInterval {
		return h.state, false
	}
	if h.tracker.Exhausted() {
		return h.exhausted(ctx), true
	}
	h.waitingSince = now
	n := h.tracker.Attempt(now)
	ctx.Logger.Warn(h.prefix()+": no poll data", zap.String("step", h.sub), zap.Int("attempt", n), zap.Int("max", h.tracker.MaxAttempts()))
	return h.state, false
}

// due lets the first action of a sub-step go out immediately; repeats wait
// for the retry interval.
func (h *PolledHandler) due(now time.Time) bool {
	return !h.triedInStep || h.tracker.Due(now)
}

func (h *PolledHandler) attempt(ctx *Context, now time.Time) {
	n := h.tracker.Attempt(now)
	h.triedInStep = true
	ctx.Logger.Info(h.prefix()+": attempt", zap.String("step", h.sub), zap.Int("attempt", n), zap.Int("max", h.tracker.MaxAttempts()))
}

func (h *PolledHandler) exhausted(ctx *Context) State {
	ctx.Logger.Error(h.prefix()+": max attempts reached", zap.String("step", h.sub), zap.Int("attempts", h.tracker.Attempts()))
	h.sub = SubError
	ctx.Flags.Set(h.exhaustedFlag, true)
	return Undefined
}

func (h *PolledHandler) nextStep() {
	h.index++
	h.checking = true
	h.pending = nil
	h.triedInStep = false
	h.waitingSince = time.Time{}
	if h.index < len(h.steps) {
		h.sub = h.steps[h.index].firstSubState()
	} else {
		h.sub = SubFinished
	}
}

func (h *PolledHandler) OnExit(ctx *Context) error {
	h.pending = nil
	return h.polls.close(ctx)
}

func (h *PolledHandler) SubState() string {
	return h.sub
}

func (h *PolledHandler) Attempts() int {
	return h.tracker.Attempts()
}

// OpenSubscriptions reports the subscriptions held by the current activation.
func (h *PolledHandler) OpenSubscriptions() int {
	return h.polls.openCount()
}

// ensure interface compliance
var _ Handler = (*PolledHandler)(nil)
var _ SubStater = (*PolledHandler)(nil)
var _ AttemptCounter = (*PolledHandler)(nil)
