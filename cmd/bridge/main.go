package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	adactor "sigenbridge/internal/adapter/actor"
	"sigenbridge/internal/config"
	"sigenbridge/internal/core/actor"
	"sigenbridge/internal/server"
	"sigenbridge/internal/util/actorutil"
	"sigenbridge/pkg/sigenergy"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

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

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewFleetMasterActor(*cfg, endpointActorProvider(cfg, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
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

	// alias PORT => SIGENBRIDGE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SIGENBRIDGE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sigenbridge")
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
	if cfg.Fleet.Plant == nil && len(cfg.Fleet.Inverters) == 0 && len(cfg.Fleet.ACChargers) == 0 {
		return nil, errors.New("fleet declares no devices")
	}
	if cfg.Fleet.Poll.PlantIntervalMillis < 1000 {
		return nil, errors.New("config param fleet.poll.plant_interval_millis should be >= 1000")
	}
	if cfg.Fleet.Poll.InverterIntervalMillis < 1000 {
		return nil, errors.New("config param fleet.poll.inverter_interval_millis should be >= 1000")
	}
	if cfg.Fleet.Poll.ChargerIntervalMillis < 1000 {
		return nil, errors.New("config param fleet.poll.charger_interval_millis should be >= 1000")
	}
	if cfg.Fleet.Poll.FailureThreshold < 1 {
		return nil, errors.New("config param fleet.poll.failure_threshold should be >= 1")
	}
	if cfg.Modbus.TimeoutMillis < 100 {
		return nil, errors.New("config param modbus.timeout_millis should be >= 100")
	}
	// device names double as MQTT topic segments
	for _, name := range fleetDeviceNames(cfg.Fleet) {
		if _, err := config.CheckMQTTTopic(name); err != nil {
			return nil, fmt.Errorf("invalid device name %q. can only contain letters, numbers and underscores", name)
		}
	}

	return &cfg, nil
}

func fleetDeviceNames(fleet config.FleetConfig) []string {
	var names []string
	if fleet.Plant != nil {
		names = append(names, fleet.Plant.Name)
	}
	for _, inv := range fleet.Inverters {
		names = append(names, inv.Name)
	}
	for _, ac := range fleet.ACChargers {
		names = append(names, ac.Name)
	}
	for _, dc := range fleet.DCChargers {
		names = append(names, dc.Name)
	}
	return names
}

func endpointActorProvider(cfg *config.Config, logger *zap.Logger) actor.EndpointActorProvider {
	timeout := time.Duration(cfg.Modbus.TimeoutMillis) * time.Millisecond
	return func(endpoint string) *adactor.EndpointActor {
		host, portStr, err := net.SplitHostPort(endpoint)
		if err != nil {
			panic(err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			panic(err)
		}
		session, err := sigenergy.NewTCPSession(host, uint16(port), timeout)
		if err != nil {
			panic(err)
		}
		return adactor.NewEndpointActor(session, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "sigenbridge")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("fleet.poll.plant_interval_millis", 5000)
	viper.SetDefault("fleet.poll.inverter_interval_millis", 5000)
	viper.SetDefault("fleet.poll.charger_interval_millis", 10000)
	viper.SetDefault("fleet.poll.failure_threshold", 3)
	viper.SetDefault("modbus.timeout_millis", 1000)
	viper.SetDefault("read_only", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
