package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Battery: BatteryConfig{
			Kind:      BATTERY_KIND_BMW,
			StartStop: "auto",
			Transport: TRANSPORT_TCP,
		},
		ModbusTCP:  ModbusTCPConfig{Host: "10.0.0.5", Port: 502},
		HTTPBridge: HTTPBridgeConfig{Host: "10.0.0.6", TimeoutMillis: 2000},
		Sequencer: SequencerConfig{
			ControlIntervalMillis: 1000,
			PollIntervalSeconds:   2,
			RetryIntervalSeconds:  10,
			MaxAttempts:           5,
		},
	}
}

func TestValidate(t *testing.T) {

	assert := assert.New(t)

	assert.NoError(validConfig().Validate())

	cases := map[string]func(*Config){
		"unknown kind":        func(c *Config) { c.Battery.Kind = "lead_acid" },
		"bmw without bridge":  func(c *Config) { c.HTTPBridge.Host = "" },
		"bad start_stop":      func(c *Config) { c.Battery.StartStop = "maybe" },
		"bad transport":       func(c *Config) { c.Battery.Transport = "can" },
		"rtu without device":  func(c *Config) { c.Battery.Transport = TRANSPORT_RTU },
		"fast control loop":   func(c *Config) { c.Sequencer.ControlIntervalMillis = 100 },
		"no attempts":         func(c *Config) { c.Sequencer.MaxAttempts = 0 },
		"cluster no racks":    func(c *Config) { c.Battery.Kind = BATTERY_KIND_SOLTARO_CLUSTER },
		"cluster bad rack":    func(c *Config) { c.Battery.Kind = BATTERY_KIND_SOLTARO_CLUSTER; c.Battery.Racks = []int{1, 6} },
		"zero poll interval":  func(c *Config) { c.Sequencer.PollIntervalSeconds = 0 },
		"zero retry interval": func(c *Config) { c.Sequencer.RetryIntervalSeconds = 0 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		assert.Error(cfg.Validate(), name)
	}

	cfg := validConfig()
	cfg.Battery.Kind = BATTERY_KIND_SOLTARO_CLUSTER
	cfg.Battery.Racks = []int{1, 3}
	cfg.HTTPBridge = HTTPBridgeConfig{}
	cfg.Battery.Transport = TRANSPORT_RTU
	cfg.ModbusRTU = ModbusRTUConfig{Device: "/dev/ttyUSB0", BaudRate: 9600, SlaveId: 1}
	assert.NoError(cfg.Validate())
	assert.Equal("/dev/ttyUSB0", cfg.Endpoint())
}

func TestMachineConfig(t *testing.T) {

	assert := assert.New(t)

	sc := SequencerConfig{
		ControlIntervalMillis: 1500,
		PollIntervalSeconds:   2,
		RetryIntervalSeconds:  10,
		MaxAttempts:           4,
		StartTimeoutSeconds:   0,
		StopTimeoutSeconds:    90,
		ErrorCooldownSeconds:  120,
	}
	mc := sc.MachineConfig()
	assert.Equal(1500*time.Millisecond, sc.ControlInterval())
	assert.Equal(2*time.Second, mc.PollInterval)
	assert.Equal(10*time.Second, mc.RetryInterval)
	assert.Equal(4, mc.MaxAttempts)
	assert.Equal(time.Duration(0), mc.StartTimeout)
	assert.Equal(90*time.Second, mc.StopTimeout)
	assert.Equal(2*time.Minute, mc.ErrorCooldown)
}

func TestCheckMQTTTopic(t *testing.T) {

	assert := assert.New(t)

	topic, err := CheckMQTTTopic("BattSeq_1")
	assert.NoError(err)
	assert.Equal("battseq_1", topic)

	_, err = CheckMQTTTopic("batt/seq")
	assert.Error(err)
}
