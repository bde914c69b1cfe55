package util

import (
	"github.com/berfenger/battseq/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Battery: config.BatteryConfig{
			Kind:      config.BATTERY_KIND_SOLTARO_CLUSTER,
			StartStop: "auto",
			Racks:     []int{1, 2},
			Transport: config.TRANSPORT_TCP,
		},
		ModbusTCP: config.ModbusTCPConfig{
			Host:          "-.-.-.-",
			Port:          502,
			UnitId:        1,
			TimeoutMillis: 1000,
		},
		HTTPBridge: config.HTTPBridgeConfig{
			Host:          "-.-.-.-",
			BaseURI:       "api",
			TimeoutMillis: 2000,
		},
		Sequencer: config.SequencerConfig{
			ControlIntervalMillis: 500,
			PollIntervalSeconds:   1,
			RetryIntervalSeconds:  5,
			MaxAttempts:           5,
			StartTimeoutSeconds:   120,
			StopTimeoutSeconds:    120,
			ErrorCooldownSeconds:  120,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "battseq",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
