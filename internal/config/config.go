package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/statemachine"

	"go.uber.org/zap/zapcore"
)

const (
	BATTERY_KIND_BMW             = "bmw"
	BATTERY_KIND_SOLTARO_CLUSTER = "soltaro_cluster"
	TRANSPORT_TCP                = "tcp"
	TRANSPORT_RTU                = "rtu"
)

type Config struct {
	LogLevel   zapcore.Level
	Battery    BatteryConfig    `mapstructure:"battery"`
	ModbusTCP  ModbusTCPConfig  `mapstructure:"modbus_tcp"`
	ModbusRTU  ModbusRTUConfig  `mapstructure:"modbus_rtu"`
	HTTPBridge HTTPBridgeConfig `mapstructure:"http_bridge"`
	Sequencer  SequencerConfig  `mapstructure:"sequencer"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Port       uint             `mapstructure:"port"`
	HttpLog    bool             `mapstructure:"http_log"`
}

type BatteryConfig struct {
	Kind      string
	StartStop string `mapstructure:"start_stop"`
	Racks     []int
	Transport string
}

type ModbusTCPConfig struct {
	Host          string
	Port          uint
	UnitId        uint8  `mapstructure:"unit_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type ModbusRTUConfig struct {
	Device        string
	BaudRate      int    `mapstructure:"baud_rate"`
	SlaveId       uint8  `mapstructure:"slave_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type HTTPBridgeConfig struct {
	Host          string
	BaseURI       string `mapstructure:"base_uri"`
	Username      string
	Password      string
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type SequencerConfig struct {
	ControlIntervalMillis uint32 `mapstructure:"control_interval_millis"`
	PollIntervalSeconds   uint32 `mapstructure:"poll_interval_seconds"`
	RetryIntervalSeconds  uint32 `mapstructure:"retry_interval_seconds"`
	MaxAttempts           int    `mapstructure:"max_attempts"`
	StartTimeoutSeconds   uint32 `mapstructure:"start_timeout_seconds"`
	StopTimeoutSeconds    uint32 `mapstructure:"stop_timeout_seconds"`
	ErrorCooldownSeconds  uint32 `mapstructure:"error_cooldown_seconds"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c SequencerConfig) ControlInterval() time.Duration {
	return time.Duration(c.ControlIntervalMillis) * time.Millisecond
}

func (c SequencerConfig) MachineConfig() statemachine.Config {
	return statemachine.Config{
		PollInterval:  time.Duration(c.PollIntervalSeconds) * time.Second,
		RetryInterval: time.Duration(c.RetryIntervalSeconds) * time.Second,
		MaxAttempts:   c.MaxAttempts,
		StartTimeout:  time.Duration(c.StartTimeoutSeconds) * time.Second,
		StopTimeout:   time.Duration(c.StopTimeoutSeconds) * time.Second,
		ErrorCooldown: time.Duration(c.ErrorCooldownSeconds) * time.Second,
	}
}

func (c ModbusTCPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c ModbusRTUConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c HTTPBridgeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// Endpoint identifies the battery connection in device names and metrics.
func (c Config) Endpoint() string {
	if c.Battery.Transport == TRANSPORT_RTU {
		return c.ModbusRTU.Device
	}
	return fmt.Sprintf("%s:%d", c.ModbusTCP.Host, c.ModbusTCP.Port)
}

// Validate checks bounds and cross-field rules.
func (c Config) Validate() error {
	switch c.Battery.Kind {
	case BATTERY_KIND_BMW:
		if c.HTTPBridge.Host == "" {
			return errors.New("config param http_bridge.host is required for bmw batteries")
		}
		if c.HTTPBridge.TimeoutMillis == 0 {
			return errors.New("config param http_bridge.timeout_millis should be > 0")
		}
	case BATTERY_KIND_SOLTARO_CLUSTER:
		if len(c.Battery.Racks) == 0 {
			return errors.New("config param battery.racks must list at least one rack")
		}
		for _, rack := range c.Battery.Racks {
			if rack < 1 || rack > 5 {
				return fmt.Errorf("config param battery.racks: rack %d out of range 1..5", rack)
			}
		}
	default:
		return fmt.Errorf("config param battery.kind must be %s or %s", BATTERY_KIND_BMW, BATTERY_KIND_SOLTARO_CLUSTER)
	}
	if !domain.StartStopMode(c.Battery.StartStop).Valid() {
		return errors.New("config param battery.start_stop must be auto, start or stop")
	}
	switch c.Battery.Transport {
	case TRANSPORT_TCP:
		if c.ModbusTCP.Host == "" {
			return errors.New("config param modbus_tcp.host is required")
		}
	case TRANSPORT_RTU:
		if c.ModbusRTU.Device == "" {
			return errors.New("config param modbus_rtu.device is required")
		}
		if c.ModbusRTU.BaudRate <= 0 {
			return errors.New("config param modbus_rtu.baud_rate should be > 0")
		}
	default:
		return errors.New("config param battery.transport must be tcp or rtu")
	}
	if c.Sequencer.ControlIntervalMillis < 500 {
		return errors.New("config param sequencer.control_interval_millis should be >= 500")
	}
	if c.Sequencer.PollIntervalSeconds == 0 {
		return errors.New("config param sequencer.poll_interval_seconds should be > 0")
	}
	if c.Sequencer.RetryIntervalSeconds == 0 {
		return errors.New("config param sequencer.retry_interval_seconds should be > 0")
	}
	if c.Sequencer.MaxAttempts <= 0 {
		return errors.New("config param sequencer.max_attempts should be > 0")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
