package statemachine

import (
	"strings"

	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/port"

	"go.uber.org/zap"
)

const (
	SubStartCluster = "START_CLUSTER"
	SubStopCluster  = "STOP_CLUSTER"
)

// ClusterHandler is the composite GO_RUNNING / GO_STOPPED handler for rack
// clusters. It re-issues the command plus rack usage every retry interval
// until the cluster confirms. Running out of attempts lands in UNDEFINED
// with a flag, not in ERROR.
type ClusterHandler struct {
	state         State
	target        State
	exhaustedFlag Flag
	timeoutFlag   Flag
	policy        func(Config) attemptPolicy
	sub           string
	usage         func(domain.SubUnit) domain.SubUnitUsage
	run           func(port.Device) error
	done          func(port.Device) bool

	tracker AttemptTracker
}

func NewClusterGoRunningHandler() *ClusterHandler {
	return &ClusterHandler{
		state:         GoRunning,
		target:        Running,
		exhaustedFlag: FlagMaxStartAttempts,
		timeoutFlag:   FlagTimeoutStart,
		policy:        Config.startPolicy,
		sub:           SubStartCluster,
		usage: func(unit domain.SubUnit) domain.SubUnitUsage {
			if unit.Configured {
				return domain.SUB_UNIT_USED
			}
			return domain.SUB_UNIT_UNUSED
		},
		run:  port.Device.StartDevice,
		done: port.Device.IsRunning,
	}
}

func NewClusterGoStoppedHandler() *ClusterHandler {
	return &ClusterHandler{
		state:         GoStopped,
		target:        Stopped,
		exhaustedFlag: FlagMaxStopAttempts,
		timeoutFlag:   FlagTimeoutStop,
		policy:        Config.stopPolicy,
		sub:           SubStopCluster,
		usage: func(domain.SubUnit) domain.SubUnitUsage {
			return domain.SUB_UNIT_UNUSED
		},
		run:  port.Device.StopDevice,
		done: port.Device.IsShutdown,
	}
}

func (h *ClusterHandler) prefix() string {
	return strings.ToLower(h.state.String())
}

func (h *ClusterHandler) OnEntry(ctx *Context) error {
	h.tracker.Arm(ctx.now(), h.policy(ctx.Config))
	ctx.Flags.Clear(h.timeoutFlag)
	ctx.Device.MarkStartStop(domain.START_STOP_UNDEFINED)
	return nil
}

func (h *ClusterHandler) Step(ctx *Context) (State, error) {
	cluster, ok := ctx.Device.(port.ClusterDevice)
	if !ok {
		return Error, NewStepError(UnsupportedDevice, h.state, ErrNotClusterDevice)
	}
	now := ctx.now()

	if cluster.HasFaults() {
		ctx.Logger.Warn(h.prefix() + ": cluster reports faults")
		return Error, nil
	}
	if h.done(cluster) {
		return h.target, nil
	}
	if h.tracker.TimedOut(now) {
		ctx.Flags.Set(h.timeoutFlag, true)
		return Error, NewStepError(Timeout, h.state, ErrConfirmationTimeout)
	}
	if !h.tracker.Due(now) {
		return h.state, nil
	}
	if h.tracker.Exhausted() {
		ctx.Logger.Error(h.prefix()+": max attempts reached", zap.Int("attempts", h.tracker.Attempts()))
		ctx.Flags.Set(h.exhaustedFlag, true)
		return Undefined, nil
	}

	n := h.tracker.Attempt(now)
	ctx.Logger.Info(h.prefix()+": attempt", zap.Int("attempt", n), zap.Int("max", h.tracker.MaxAttempts()))
	for _, unit := range cluster.SubUnits() {
		usage := h.usage(unit)
		if err := cluster.SetSubUnitUsage(unit, usage); err != nil {
			ctx.Logger.Warn(h.prefix()+": rack usage write failed", zap.Int("rack", unit.Index),
				zap.Stringer("usage", usage), zap.Error(err))
		}
	}
	if err := h.run(cluster); err != nil {
		ctx.Logger.Warn(h.prefix()+": command failed", zap.Error(err))
	}
	return h.state, nil
}

func (h *ClusterHandler) OnExit(ctx *Context) error {
	return nil
}

func (h *ClusterHandler) SubState() string {
	return h.sub
}

func (h *ClusterHandler) Attempts() int {
	return h.tracker.Attempts()
}

// ensure interface compliance
var _ Handler = (*ClusterHandler)(nil)
var _ SubStater = (*ClusterHandler)(nil)
