package events

import (
	. "github.com/berfenger/battseq/internal/core/domain"
)

// StatusToUpdateEvents turns a sequencer status into the sensor updates
// published on the event stream.
func StatusToUpdateEvents(st SequencerStatus) []any {
	var events []any

	// Sequencer state
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SEQUENCER_STATE,
		},
		Value: st.State,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SEQUENCER_STATE_CODE,
		},
		Value:    float64(st.StateCode),
		Decimals: 0,
	})
	subState := st.SubState
	if subState == "" {
		subState = "-"
	}
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SEQUENCER_SUB_STATE,
		},
		Value: subState,
	})
	// Settled start/stop
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BATTERY_START_STOP,
		},
		Value: st.StartStop,
	})

	events = append(events, FlagsToUpdateEvents(st.Flags)...)
	events = append(events, TargetToUpdateEvents(st.Target)...)

	return events
}

func FlagsToUpdateEvents(flags SequencerFlags) []any {
	values := []struct {
		id    string
		value bool
	}{
		{BINARY_SENSOR_ID_MAX_START_ATTEMPTS, flags.MaxStartAttempts},
		{BINARY_SENSOR_ID_MAX_STOP_ATTEMPTS, flags.MaxStopAttempts},
		{BINARY_SENSOR_ID_UNEXPECTED_STOPPED, flags.UnexpectedStoppedState},
		{BINARY_SENSOR_ID_TIMEOUT_START, flags.TimeoutStart},
		{BINARY_SENSOR_ID_TIMEOUT_STOP, flags.TimeoutStop},
		{BINARY_SENSOR_ID_RUN_FAILED, flags.RunFailed},
	}
	var events []any
	for _, v := range values {
		events = append(events, BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: v.id,
			},
			Value: v.value,
		})
	}
	return events
}

// TargetToUpdateEvents reports the effective target on both the switch and
// the select entity.
func TargetToUpdateEvents(target string) []any {
	var events []any
	events = append(events, SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_BATTERY_START,
		},
		Value: target == START_STOP_START.String(),
	})
	events = append(events, SelectSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SELECT_ID_BATTERY_TARGET,
		},
		Value: target,
	})
	return events
}
