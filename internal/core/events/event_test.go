package events

import (
	"testing"

	"github.com/berfenger/battseq/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestStatusToUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	evs := StatusToUpdateEvents(domain.SequencerStatus{
		State:     "GO_RUNNING",
		StateCode: 10,
		SubState:  "CHECK_POWER_STATE",
		Target:    "START",
		StartStop: "UNDEFINED",
		Flags:     domain.SequencerFlags{RunFailed: true},
	})

	byId := map[string]any{}
	for _, ev := range evs {
		byId[ev.(domain.SensorUpdateEvent).SensorId()] = ev
	}
	assert.Len(byId, len(evs), "sensor ids are unique")

	assert.Equal("GO_RUNNING", byId[domain.SENSOR_ID_SEQUENCER_STATE].(domain.TextSensorUpdateEvent).Value)
	assert.Equal(10.0, byId[domain.SENSOR_ID_SEQUENCER_STATE_CODE].(domain.FloatSensorUpdateEvent).Value)
	assert.Equal("CHECK_POWER_STATE", byId[domain.SENSOR_ID_SEQUENCER_SUB_STATE].(domain.TextSensorUpdateEvent).Value)
	assert.Equal("UNDEFINED", byId[domain.SENSOR_ID_BATTERY_START_STOP].(domain.TextSensorUpdateEvent).Value)
	assert.True(byId[domain.BINARY_SENSOR_ID_RUN_FAILED].(domain.BinarySensorUpdateEvent).Value)
	assert.False(byId[domain.BINARY_SENSOR_ID_TIMEOUT_START].(domain.BinarySensorUpdateEvent).Value)
	assert.True(byId[domain.SWITCH_ID_BATTERY_START].(domain.SwitchSensorUpdateEvent).Value)
	assert.Equal("START", byId[domain.SELECT_ID_BATTERY_TARGET].(domain.SelectSensorUpdateEvent).Value)
}

func TestEmptySubStateIsPublishedAsDash(t *testing.T) {

	evs := StatusToUpdateEvents(domain.SequencerStatus{State: "RUNNING", Target: "STOP"})
	for _, ev := range evs {
		if e, ok := ev.(domain.TextSensorUpdateEvent); ok && e.Id == domain.SENSOR_ID_SEQUENCER_SUB_STATE {
			assert.Equal(t, "-", e.Value)
		}
		if e, ok := ev.(domain.SwitchSensorUpdateEvent); ok {
			assert.False(t, e.Value)
		}
	}
}
