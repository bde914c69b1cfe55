package actor

import (
	"testing"
	"time"

	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/mqtt"
	"github.com/berfenger/battseq/internal/util"
	"github.com/berfenger/battseq/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	mqttActor := NewTestMQTTActor(&cfg, &es, logger)
	props := actor.PropsFromProducer(func() actor.Actor { return mqttActor })
	pid := context.Spawn(props)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)
	assert.Equal(t, domain.ACTOR_ID_MQTT, resp.Id)

	es.Publish(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_SEQUENCER_STATE,
		},
		Value: "RUNNING",
	})
	es.Publish(domain.SelectSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SELECT_ID_BATTERY_TARGET,
		},
		Value: "START",
	})
	// not a sensor update
	es.Publish("noise")

	assert.Eventually(t, func() bool {
		return mqttActor.Received() == 2
	}, 2*time.Second, 20*time.Millisecond)

	context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	// no longer subscribed
	es.Publish(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.BINARY_SENSOR_ID_RUN_FAILED,
		},
		Value: true,
	})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(2), mqttActor.Received())

	as.Shutdown()
}

func TestEvent2MQTTMessage(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	act := NewTestMQTTActor(&cfg, nil, zap.NewNop())
	act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	msg := act.event2MQTTMessage(domain.SelectSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SELECT_ID_BATTERY_TARGET},
		Value:                  "STOP",
	})
	if assert.NotNil(msg) {
		assert.Equal("battseq/select/battery_target/state", msg.topic)
		assert.Equal("STOP", msg.message)
		assert.True(msg.retain)
	}

	msg = act.event2MQTTMessage(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_SEQUENCER_STATE_CODE},
		Value:                  11,
	})
	if assert.NotNil(msg) {
		assert.Equal("battseq/sensor/sequencer_state_code/state", msg.topic)
		assert.Equal("11", msg.message)
		assert.False(msg.retain)
	}

	msg = act.event2MQTTMessage(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.BINARY_SENSOR_ID_RUN_FAILED},
		Value:                  true,
	})
	if assert.NotNil(msg) {
		assert.Equal("battseq/binary_sensor/run_failed/state", msg.topic)
		assert.Equal("on", msg.message)
	}

	assert.Nil(act.event2MQTTMessage(42))
}
