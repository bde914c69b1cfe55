package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/battseq/internal/adapter/actor"
	"github.com/berfenger/battseq/internal/adapter/device"
	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/statemachine"
	"github.com/berfenger/battseq/internal/mqtt"
	"github.com/berfenger/battseq/internal/util"
	"github.com/berfenger/battseq/internal/util/clock"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root
	defer as.Shutdown()

	cfg := util.LoadTestConfig()
	cfg.Sequencer.ControlIntervalMillis = 50
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	client := soltaroRegisters(cfg.Battery.Racks...)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func(es *eventstream.EventStream) *SequencerActor {
			target := device.NewTarget(domain.START_STOP_MODE_AUTO, domain.START_STOP_UNDEFINED)
			dev, err := device.NewSoltaroClusterDevice(client, cfg.Battery.Racks, target, logger)
			if err != nil {
				panic(err)
			}
			machine, err := statemachine.New(statemachine.NewClusterHandlers(), logger)
			if err != nil {
				panic(err)
			}
			return NewSequencerActor(&cfg, dev, nil, machine, clock.Real(), es, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")
	assert.Equal(t, domain.ACTOR_ID_MASTER, healthResp.Id)

	// http api path
	res, err = context.RequestFuture(pid, domain.SetStartStopTargetRequest{Target: domain.START_STOP_START}, 2*time.Second).Result()
	require.NoError(t, err)
	targetResp, ok := res.(domain.SetStartStopTargetResponse)
	require.True(t, ok)
	assert.True(t, targetResp.Changed)

	assert.Eventually(t, func() bool {
		st, err := sequencerStatus(context, pid)
		return err == nil && st.State == statemachine.Running.String()
	}, 5*time.Second, 50*time.Millisecond)

	// mqtt path, fire and forget
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: domain.SELECT_ID_BATTERY_TARGET,
		Command:  "select",
		Payload:  "STOP",
	}})
	assert.Eventually(t, func() bool {
		st, err := sequencerStatus(context, pid)
		return err == nil && st.State == statemachine.Stopped.String()
	}, 5*time.Second, 50*time.Millisecond)

	// invalid payloads are dropped
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: domain.SWITCH_ID_BATTERY_START,
		Command:  "switch",
		Payload:  "MAYBE",
	}})
	st, err := sequencerStatus(context, pid)
	require.NoError(t, err)
	assert.Equal(t, "STOP", st.Target)

	context.Stop(pid)
}

func TestDiscoveryRequest(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	req := DiscoveryRequest(&cfg)

	require.NotEmpty(t, req.Sensors)
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, req.Sensors[0].Id)
	assert.Len(req.Sensors, 11)
	assert.Len(req.Switches, 1)
	assert.Len(req.Selects, 1)

	battery := domain.BatteryDevice(cfg.Battery.Kind, cfg.Endpoint())
	assert.Equal(battery.Id, req.Sensors[1].Device.Id)
	assert.Equal(cfg.Battery.Kind, req.Sensors[1].Device.Model)
	// later entities only reference the device
	assert.Empty(req.Sensors[2].Device.Model)
	assert.Equal(battery.Id, req.Selects[0].Device.Id)
	assert.Equal([]string{"START", "STOP", "UNDEFINED"}, req.Selects[0].Options)
}
