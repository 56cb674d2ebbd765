// Device Bridge - MQTT edge connector
//
// This is the main entry point for the device bridge. The bridge
// connects locally attached sensors and actuators to an MQTT broker:
// telemetry flows out on a periodic schedule, commands flow in over
// per-actuator topics, and retained capability and status messages
// announce the device to consumers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fernvale/devicebridge/internal/api"
	"github.com/fernvale/devicebridge/internal/bridge"
	"github.com/fernvale/devicebridge/internal/device"
	"github.com/fernvale/devicebridge/internal/infrastructure/config"
	"github.com/fernvale/devicebridge/internal/infrastructure/influxdb"
	"github.com/fernvale/devicebridge/internal/infrastructure/logging"
	"github.com/fernvale/devicebridge/internal/infrastructure/mqtt"
	"github.com/fernvale/devicebridge/internal/protocol"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting device bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Resolve the device identity up front so the last will carries the
	// same ID the bridge will publish under.
	cfg.Device.ID = bridge.ResolveDeviceID(cfg.Device.ID)
	log.Info("device identity resolved", "device_id", cfg.Device.ID)

	// Build the MQTT transport with a retained offline last will, so an
	// ungraceful death still flips the retained status for consumers.
	will, err := buildLastWill(cfg)
	if err != nil {
		return fmt.Errorf("building last will: %w", err)
	}
	mqttClient := mqtt.New(cfg.MQTT, will)
	mqttClient.SetLogger(log.Component("mqtt"))

	// Connect to InfluxDB (optional)
	var recorder bridge.Recorder
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorder = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Create the bridge
	b, err := bridge.New(cfg, bridge.Options{
		Transport: mqttClient,
		Recorder:  recorder,
		Logger:    log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer func() {
		log.Info("closing bridge")
		if closeErr := b.Close(); closeErr != nil {
			log.Error("error closing bridge", "error", closeErr)
		}
	}()

	// Register the built-in host devices before going live, so the first
	// capabilities announcement already includes them.
	if err := registerHostDevices(b, log); err != nil {
		return fmt.Errorf("registering host devices: %w", err)
	}

	// Go live: link, transport, telemetry, dispatch, watchdog.
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge online",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"device_id", b.DeviceID(),
	)

	// Start the local status API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Bridge:  b,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating status server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting status server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Status API (if enabled)
	// 2. Bridge (publishes retained offline status, stops loops)
	// 3. InfluxDB (if enabled)

	log.Info("device bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DEVICEBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEVICEBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildLastWill constructs the retained offline status the broker
// publishes on the bridge's behalf after an ungraceful disconnect.
func buildLastWill(cfg *config.Config) (mqtt.Will, error) {
	var topics protocol.Topics

	payload, err := json.Marshal(protocol.NewStatus(cfg.Device.ID, "offline"))
	if err != nil {
		return mqtt.Will{}, fmt.Errorf("encoding will payload: %w", err)
	}

	return mqtt.Will{
		Topic:    topics.Status(cfg.Device.ID),
		Payload:  payload,
		QoS:      byte(cfg.MQTT.QoS.Status),
		Retained: true,
	}, nil
}

// registerHostDevices registers the sensors the bridge host itself
// provides. Hardware-specific sensors and actuators are registered by
// the embedding application through the bridge API; these host metrics
// make a bare deployment observable out of the box.
func registerHostDevices(b *bridge.Bridge, log *logging.Logger) error {
	err := b.RegisterSensor("host-memory", "memory_usage",
		func(ctx context.Context) (float64, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, fmt.Errorf("reading memory stats: %w", err)
			}
			return vm.UsedPercent, nil
		},
		device.SensorMetadata{
			MinRange:    0,
			MaxRange:    100,
			Unit:        "%",
			Description: "Host memory usage",
		})
	if err != nil {
		return err
	}

	err = b.RegisterSensor("host-load", "load_average",
		func(ctx context.Context) (float64, error) {
			avg, err := load.AvgWithContext(ctx)
			if err != nil {
				return 0, fmt.Errorf("reading load average: %w", err)
			}
			return avg.Load1, nil
		},
		device.SensorMetadata{
			MinRange:    0,
			MaxRange:    64,
			Unit:        "load",
			Description: "Host 1-minute load average",
		})
	if err != nil {
		return err
	}

	// A log-only indicator actuator, so command dispatch can be exercised
	// end to end on a host with no attached hardware.
	err = b.RegisterActuator("identify", "indicator",
		func(ctx context.Context, action, value string) error {
			log.Info("identify command", "action", action, "value", value)
			return nil
		},
		device.ActuatorMetadata{
			ValueType:        "boolean",
			Description:      "Log-only identify indicator",
			SupportedActions: []string{"on", "off", "blink"},
		})
	if err != nil {
		return err
	}

	return nil
}
