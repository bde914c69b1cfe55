package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/battseq/internal/adapter/actor"
	"github.com/berfenger/battseq/internal/adapter/bridge"
	"github.com/berfenger/battseq/internal/adapter/device"
	"github.com/berfenger/battseq/internal/config"
	"github.com/berfenger/battseq/internal/core/actor"
	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/port"
	"github.com/berfenger/battseq/internal/core/statemachine"
	"github.com/berfenger/battseq/internal/metrics"
	"github.com/berfenger/battseq/internal/server"
	"github.com/berfenger/battseq/internal/util/actorutil"
	"github.com/berfenger/battseq/internal/util/clock"
	"github.com/berfenger/battseq/pkg/bms_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DNS_REFRESH_INTERVAL = 5 * time.Minute

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// io bridge, only polled devices use it
	var ioBridge port.IOBridge
	if cfg.Battery.Kind == config.BATTERY_KIND_BMW {
		poller := bridge.NewPoller(logger)
		pollerCtx, cancelPoller := context.WithCancel(context.Background())
		defer cancelPoller()
		poller.Start(pollerCtx)
		defer poller.Stop()

		if _, err := poller.Schedule(DNS_REFRESH_INTERVAL, func(context.Context) error {
			bridge.RefreshDNS()
			return nil
		}); err != nil {
			panic(err)
		}

		exchanger := bridge.NewHTTPExchanger(bridge.NewHTTPClient(cfg.HTTPBridge.Timeout()), bridge.HTTPConfig{
			Host:     cfg.HTTPBridge.Host,
			BaseURI:  cfg.HTTPBridge.BaseURI,
			Username: cfg.HTTPBridge.Username,
			Password: cfg.HTTPBridge.Password,
		}, logger)
		ioBridge = bridge.NewBridge(poller, exchanger, cfg.HTTPBridge.Timeout(), logger,
			bridge.WithInstrument(metrics.RecordBridgeRequest))
	}

	// init Sequencer actor provider
	sequencerProv, err := sequencerActorProvider(cfg, ioBridge, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, sequencerProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => BATTSEQ_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("BATTSEQ_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("battseq")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func registerClient(cfg *config.Config, logger *zap.Logger) (bms_modbus.RegisterClient, error) {
	switch cfg.Battery.Transport {
	case config.TRANSPORT_RTU:
		return bms_modbus.CreateRTUClient(cfg.ModbusRTU.Device, cfg.ModbusRTU.BaudRate, cfg.ModbusRTU.SlaveId,
			cfg.ModbusRTU.Timeout(), logger, metrics.ModbusInstrument()), nil
	default:
		return bms_modbus.CreateModbusClient(cfg.ModbusTCP.Host, cfg.ModbusTCP.Port, cfg.ModbusTCP.UnitId,
			cfg.ModbusTCP.Timeout(), logger, metrics.ModbusInstrument())
	}
}

// sequencerActorProvider builds the battery once. Every actor instance gets a
// fresh state machine so a restart re-evaluates from UNDEFINED.
func sequencerActorProvider(cfg *config.Config, ioBridge port.IOBridge, logger *zap.Logger) (actor.SequencerActorProvider, error) {

	client, err := registerClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	target := device.NewTarget(domain.StartStopMode(cfg.Battery.StartStop), domain.START_STOP_UNDEFINED)

	var battery port.Battery
	var handlers func() map[statemachine.State]statemachine.Handler
	switch cfg.Battery.Kind {
	case config.BATTERY_KIND_BMW:
		battery = device.NewBMWDevice(client, target, logger)
		handlers = statemachine.NewPolledHandlers
	case config.BATTERY_KIND_SOLTARO_CLUSTER:
		battery, err = device.NewSoltaroClusterDevice(client, cfg.Battery.Racks, target, logger)
		if err != nil {
			return nil, err
		}
		handlers = statemachine.NewClusterHandlers
	default:
		return nil, fmt.Errorf("unknown battery kind %q", cfg.Battery.Kind)
	}

	return func(es *eventstream.EventStream) *actor.SequencerActor {
		machine, err := statemachine.New(handlers(), logger.With(zap.String("component", "statemachine")),
			statemachine.WithObserver(metrics.SequencerObserver(cfg.Battery.Kind)))
		if err != nil {
			panic(err)
		}
		return actor.NewSequencerActor(cfg, battery, ioBridge, machine, clock.Real(), es, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("battery.kind", config.BATTERY_KIND_SOLTARO_CLUSTER)
	viper.SetDefault("battery.start_stop", string(domain.START_STOP_MODE_AUTO))
	viper.SetDefault("battery.racks", []int{1})
	viper.SetDefault("battery.transport", config.TRANSPORT_TCP)
	viper.SetDefault("modbus_tcp.host", "")
	viper.SetDefault("modbus_tcp.port", 502)
	viper.SetDefault("modbus_tcp.unit_id", 1)
	viper.SetDefault("modbus_tcp.timeout_millis", 1000)
	viper.SetDefault("modbus_rtu.device", "")
	viper.SetDefault("modbus_rtu.baud_rate", 9600)
	viper.SetDefault("modbus_rtu.slave_id", 1)
	viper.SetDefault("modbus_rtu.timeout_millis", 1000)
	viper.SetDefault("http_bridge.host", "")
	viper.SetDefault("http_bridge.base_uri", "api")
	viper.SetDefault("http_bridge.username", "")
	viper.SetDefault("http_bridge.password", "")
	viper.SetDefault("http_bridge.timeout_millis", 2000)
	viper.SetDefault("sequencer.control_interval_millis", 1000)
	viper.SetDefault("sequencer.poll_interval_seconds", 2)
	viper.SetDefault("sequencer.retry_interval_seconds", 10)
	viper.SetDefault("sequencer.max_attempts", 5)
	viper.SetDefault("sequencer.start_timeout_seconds", 120)
	viper.SetDefault("sequencer.stop_timeout_seconds", 120)
	viper.SetDefault("sequencer.error_cooldown_seconds", 120)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "battseq")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.HTTPBridge.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
