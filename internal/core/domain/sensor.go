package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE              = "bridge"
	SENSOR_ID_SEQUENCER_STATE           = "sequencer_state"
	SENSOR_ID_SEQUENCER_STATE_CODE      = "sequencer_state_code"
	SENSOR_ID_SEQUENCER_SUB_STATE       = "sequencer_sub_state"
	SENSOR_ID_BATTERY_START_STOP        = "battery_start_stop"
	BINARY_SENSOR_ID_MAX_START_ATTEMPTS = "max_start_attempts"
	BINARY_SENSOR_ID_MAX_STOP_ATTEMPTS  = "max_stop_attempts"
	BINARY_SENSOR_ID_UNEXPECTED_STOPPED = "unexpected_stopped_state"
	BINARY_SENSOR_ID_TIMEOUT_START      = "timeout_start_battery"
	BINARY_SENSOR_ID_TIMEOUT_STOP       = "timeout_stop_battery"
	BINARY_SENSOR_ID_RUN_FAILED         = "run_failed"
	SWITCH_ID_BATTERY_START             = "battery_start"
	SELECT_ID_BATTERY_TARGET            = "battery_target"
	STATE_CLASS_MEASUREMENT             = "measurement"
	DEVICE_CLASS_CONNECTIVITY           = "connectivity"
	DEVICE_CLASS_PROBLEM                = "problem"
	ENTITY_CLASS_DIAGNOSTIC             = "diagnostic"
	SENSOR_TYPE_SENSOR                  = "sensor"
	SENSOR_TYPE_BINARY                  = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("battseq_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Battseq",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Battseq %s", md5HashShort(baseTopic)),
	}
}

func BatteryDevice(kind, endpoint string) Device {
	return Device{
		Id:    fmt.Sprintf("battseq_battery_%s", md5HashShort(kind+endpoint)),
		Model: kind,
		Name:  fmt.Sprintf("Battery %s %s", kind, md5HashShort(endpoint)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func SequencerSensors(batteryDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:     batteryDevice,
		Id:         SENSOR_ID_SEQUENCER_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Sequencer state",
		Icon:       "mdi:state-machine",
		UniqueId:   uniqueId(batteryDevice.Id, SENSOR_ID_SEQUENCER_STATE),
	})

	// numeric code is mostly useful for automations
	sensors = append(sensors, GenericSensor{
		Device:           batteryDevice,
		Id:               SENSOR_ID_SEQUENCER_STATE_CODE,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Sequencer state code",
		StateClass:       STATE_CLASS_MEASUREMENT,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(batteryDevice.Id, SENSOR_ID_SEQUENCER_STATE_CODE),
	})

	sensors = append(sensors, GenericSensor{
		Device:         batteryDevice,
		Id:             SENSOR_ID_SEQUENCER_SUB_STATE,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Sequencer step",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(batteryDevice.Id, SENSOR_ID_SEQUENCER_SUB_STATE),
	})

	sensors = append(sensors, GenericSensor{
		Device:     batteryDevice,
		Id:         SENSOR_ID_BATTERY_START_STOP,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Battery start/stop",
		Icon:       "mdi:battery-sync",
		UniqueId:   uniqueId(batteryDevice.Id, SENSOR_ID_BATTERY_START_STOP),
	})

	flags := []struct {
		id   string
		name string
	}{
		{BINARY_SENSOR_ID_MAX_START_ATTEMPTS, "Max start attempts"},
		{BINARY_SENSOR_ID_MAX_STOP_ATTEMPTS, "Max stop attempts"},
		{BINARY_SENSOR_ID_UNEXPECTED_STOPPED, "Unexpected stopped state"},
		{BINARY_SENSOR_ID_TIMEOUT_START, "Start timeout"},
		{BINARY_SENSOR_ID_TIMEOUT_STOP, "Stop timeout"},
		{BINARY_SENSOR_ID_RUN_FAILED, "Run failed"},
	}
	for _, f := range flags {
		sensors = append(sensors, GenericSensor{
			Device:         batteryDevice,
			Id:             f.id,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           f.name,
			DeviceClass:    DEVICE_CLASS_PROBLEM,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(batteryDevice.Id, f.id),
		})
	}

	return sensors
}

func SequencerSwitches(batteryDevice Device) []GenericSwitch {

	var switches []GenericSwitch

	// on = START, off = STOP
	switches = append(switches, GenericSwitch{
		Device:   batteryDevice,
		Id:       SWITCH_ID_BATTERY_START,
		Name:     "Battery start",
		UniqueId: uniqueId(batteryDevice.Id, SWITCH_ID_BATTERY_START),
		Icon:     "mdi:battery-charging-high",
	})

	return switches
}

func SequencerSelects(batteryDevice Device) []GenericSelect {

	var selects []GenericSelect

	// the only way to request UNDEFINED from Home Assistant
	selects = append(selects, GenericSelect{
		Device:   batteryDevice,
		Id:       SELECT_ID_BATTERY_TARGET,
		Name:     "Battery target",
		UniqueId: uniqueId(batteryDevice.Id, SELECT_ID_BATTERY_TARGET),
		Icon:     "mdi:battery-sync-outline",
		Options: []string{
			START_STOP_START.String(),
			START_STOP_STOP.String(),
			START_STOP_UNDEFINED.String(),
		},
	})

	return selects
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
