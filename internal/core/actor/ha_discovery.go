package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/battseq/internal/config"
	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type HADiscoveryActor struct {
	config                *config.Config
	behavior              actor.Behavior
	stash                 *actorutil.Stash
	mqttActor             *actor.PID
	sequencerActor        *actor.PID
	mqttActorHealthy      bool
	sequencerActorHealthy bool
	healthyRecv           int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, sequencerActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:         config,
		mqttActor:      mqttActor,
		sequencerActor: sequencerActor,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check MQTT and Sequencer actor healthy
		state.healthyRecv = 0
		state.mqttActorHealthy = false
		state.sequencerActorHealthy = false
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Sequencer Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.sequencerActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_SEQUENCER,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			case domain.ACTOR_ID_SEQUENCER:
				state.sequencerActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.mqttActorHealthy || !state.sequencerActorHealthy {
				panic(errors.New("MQTT Actor or Sequencer Actor are not healthy"))
			}
			state.publishDiscovery(ctx)
			state.behavior.Become(state.Done)
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context) {
	req := DiscoveryRequest(state.config)
	state.logger.Debug("hadiscovery@healthcheck: publish", zap.Int("sensors", len(req.Sensors)),
		zap.Int("switches", len(req.Switches)), zap.Int("selects", len(req.Selects)))
	ctx.Send(state.mqttActor, req)
}

// DiscoveryRequest lists every entity exposed for the configured battery.
func DiscoveryRequest(cfg *config.Config) domain.PublishDiscoveryRequest {
	var sensors []domain.GenericSensor

	bridgeDevice := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	batteryDevice := domain.BatteryDevice(cfg.Battery.Kind, cfg.Endpoint())
	batteryDevice.ViaDevice = bridgeDevice.Id
	batterySensors := domain.SequencerSensors(batteryDevice)
	for i := range batterySensors {
		// full device description only on the first entity
		if i > 0 {
			batterySensors[i].Device = domain.IdDevice(batteryDevice)
		}
		sensors = append(sensors, batterySensors[i])
	}

	return domain.PublishDiscoveryRequest{
		Sensors:  sensors,
		Switches: domain.SequencerSwitches(domain.IdDevice(batteryDevice)),
		Selects:  domain.SequencerSelects(domain.IdDevice(batteryDevice)),
	}
}
