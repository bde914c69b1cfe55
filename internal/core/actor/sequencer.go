package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/battseq/internal/config"
	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/events"
	"github.com/berfenger/battseq/internal/core/port"
	"github.com/berfenger/battseq/internal/core/statemachine"
	"github.com/berfenger/battseq/internal/metrics"
	. "github.com/berfenger/battseq/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

const (
	SEQUENCER_OPEN_TIMEOUT = 10 * time.Second
	SEQUENCER_SYNC_TIMEOUT = 10 * time.Second
)

// SequencerActor owns one battery and its state machine. The device is
// synced off the actor goroutine, then the machine advances one cycle.
type SequencerActor struct {
	ActorWithStates
	config      *config.Config
	battery     port.Battery
	bridge      port.IOBridge
	machine     *statemachine.Machine
	clock       port.Clock
	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	stash       *Stash
	eventStream *eventstream.EventStream
	lastStatus  *domain.SequencerStatus

	logger *zap.Logger
}

type sequencerTick struct {
}

type batteryOpened struct {
	err error
}

type batterySynced struct {
	err     error
	elapsed time.Duration
}

func NewSequencerActor(config *config.Config, battery port.Battery, bridge port.IOBridge, machine *statemachine.Machine,
	clock port.Clock, eventStream *eventstream.EventStream, logger *zap.Logger) *SequencerActor {
	act := &SequencerActor{
		config:      config,
		battery:     battery,
		bridge:      bridge,
		machine:     machine,
		clock:       clock,
		stash:       &Stash{},
		eventStream: eventStream,
		logger:      ActorLogger(domain.ACTOR_ID_SEQUENCER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(SeqStartingState{
		actor: act,
	})
	return act
}

func (state *SequencerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type SeqStartingState struct {
	ActorState
	actor *SequencerActor
}

func (state SeqStartingState) Name() string {
	return "starting"
}

func (state SeqStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("sequencer@starting started")

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		battery := state.actor.battery
		NewBackgroundTask(ctx, func() (*batteryOpened, error) {
			return &batteryOpened{}, battery.Open()
		}).WithTimeout(SEQUENCER_OPEN_TIMEOUT).Recover(func(err error) batteryOpened {
			return batteryOpened{err: err}
		}).PipeTo(ctx.Self())

		state.actor.Become(SeqOpeningState{
			actor: state.actor,
		})
	case *actor.Restarting:
		state.actor.close()
	default:
		state.actor.logger.Debug("sequencer@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Opening state

type SeqOpeningState struct {
	ActorState
	actor *SequencerActor
}

func (state SeqOpeningState) Name() string {
	return "opening"
}

func (state SeqOpeningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case batteryOpened:
		if msg.err != nil {
			state.actor.logger.Error("sequencer@opening: battery open error", zap.Error(msg.err))
			panic(msg.err)
		}
		state.actor.logger.Info("sequencer@opening: battery connected", zap.String("kind", state.actor.config.Battery.Kind))
		state.actor.Become(SeqReadyState{
			actor: state.actor,
		}.OnEnter(ctx))
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting, *actor.Stopping:
		state.actor.close()
	default:
		state.actor.logger.Debug("sequencer@opening: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Ready state

type SeqReadyState struct {
	ActorState
	actor *SequencerActor
}

func (state SeqReadyState) Name() string {
	return "ready"
}

func (state SeqReadyState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("sequencer@ready: ActorHealthRequest")
		state.actor.respondHealth(ctx, msg, state.Name())
	case domain.GetSequencerStatusRequest:
		state.actor.logger.Debug("sequencer@ready: GetSequencerStatusRequest")
		state.actor.respondStatus(ctx, msg)
	case domain.SetStartStopTargetRequest:
		state.actor.logger.Sugar().Debugf("sequencer@ready: cmd target %s", msg.Target)
		changed := state.actor.battery.SetStartStopTarget(msg.Target)
		if changed {
			// re-evaluate from scratch on the next cycle
			state.actor.logger.Info("sequencer@ready: target changed", zap.Stringer("target", state.actor.battery.StartStopTarget()))
			state.actor.machine.ForceNextState(statemachine.Undefined)
			state.actor.publishStatus()
		}
		ForRequest(msg).Respond(ctx, domain.SetStartStopTargetResponse{
			Target:  state.actor.battery.StartStopTarget(),
			Changed: changed,
		})
	case sequencerTick:
		state.actor.BecomeStacked(SeqSyncingState{
			actor: state.actor,
		}.OnEnterAction(ctx))
	case *actor.Stopping:
		state.actor.stop()
	case *actor.Restarting:
		state.actor.stop()
	default:
		state.actor.logger.Debug("sequencer@ready: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state SeqReadyState) OnEnter(ctx actor.Context) SeqReadyState {
	state.actor.publishStatus()
	ctx.Send(ctx.Self(), sequencerTick{})
	return state
}

// Syncing state

type SeqSyncingState struct {
	ActorState
	actor *SequencerActor
}

func (state SeqSyncingState) Name() string {
	return "syncing"
}

func (state SeqSyncingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case batterySynced:
		act := state.actor
		metrics.RecordSync(act.config.Battery.Kind, msg.err)
		if msg.err != nil {
			act.logger.Warn("sequencer@syncing: battery sync error", zap.Error(msg.err))
		} else {
			act.logger.Debug("sequencer@syncing: battery synced", zap.Duration("elapsed", msg.elapsed))
		}

		// the machine steps even on a failed sync, the device then reports
		// neither running nor shutdown
		act.machine.Advance(act.machineContext())
		act.publishStatus()

		act.cancelTick = act.scheduler.RequestOnce(act.config.Sequencer.ControlInterval(), ctx.Self(), sequencerTick{})
		act.UnbecomeStacked()
		act.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx, msg, state.Name())
	case domain.GetSequencerStatusRequest:
		state.actor.respondStatus(ctx, msg)
	case *actor.Stopping:
		state.actor.stop()
	case *actor.Restarting:
		state.actor.stop()
	default:
		state.actor.logger.Debug("sequencer@syncing: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state SeqSyncingState) OnEnterAction(ctx actor.Context) SeqSyncingState {
	battery := state.actor.battery
	NewBackgroundTask(ctx, func() (*batterySynced, error) {
		syncCtx, cancel := context.WithTimeout(context.Background(), SEQUENCER_SYNC_TIMEOUT)
		defer cancel()
		start := time.Now()
		err := battery.Sync(syncCtx)
		return &batterySynced{err: err, elapsed: time.Since(start)}, nil
	}).WithTimeout(SEQUENCER_SYNC_TIMEOUT).Recover(func(err error) batterySynced {
		return batterySynced{err: err}
	}).PipeTo(ctx.Self())
	return state
}

// Other actor function helpers

func (state *SequencerActor) respondHealth(ctx actor.Context, msg domain.ActorHealthRequest, stateName string) {
	ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_SEQUENCER,
		Healthy: true,
		State:   stateName,
	})
}

func (state *SequencerActor) respondStatus(ctx actor.Context, msg domain.GetSequencerStatusRequest) {
	ForRequest(msg).Respond(ctx, domain.GetSequencerStatusResponse{
		Status: state.status(),
	})
}

func (state *SequencerActor) status() domain.SequencerStatus {
	st := state.machine.Status()
	return domain.SequencerStatus{
		State:          st.State.String(),
		StateCode:      st.State.Code(),
		SubState:       st.SubState,
		Target:         state.battery.StartStopTarget().String(),
		StartStop:      state.battery.StartStop().String(),
		Flags:          st.Flags,
		LastTransition: st.LastTransition,
		Version:        versioninfo.Short(),
	}
}

// publishStatus emits sensor updates when the status differs from the last
// one published.
func (state *SequencerActor) publishStatus() {
	st := state.status()
	if state.lastStatus != nil && *state.lastStatus == st {
		return
	}
	state.lastStatus = &st
	metrics.RecordStatus(state.config.Battery.Kind, st)
	for _, ev := range events.StatusToUpdateEvents(st) {
		state.eventStream.Publish(ev)
	}
}

func (state *SequencerActor) machineContext() *statemachine.Context {
	return &statemachine.Context{
		Device: state.battery,
		Clock:  state.clock,
		Bridge: state.bridge,
		Config: state.config.Sequencer.MachineConfig(),
	}
}

// stop leaves the machine's current state so its poll subscriptions do not
// outlive this actor instance.
func (state *SequencerActor) stop() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	state.machine.Close(state.machineContext())
	state.close()
}

func (state *SequencerActor) close() {
	if err := state.battery.Close(); err != nil {
		state.logger.Warn("sequencer: battery close error", zap.Error(err))
	}
}
