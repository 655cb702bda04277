// Gray Logic Actuator - room automation service
//
// This is the main entry point for the Gray Logic actuator. It loads the
// building setup once, resolves every device's control surface, subscribes to
// the per-room event streams and drives devices in response:
//   - peopleChanged: lamps, radiators and humidifiers follow occupancy
//   - min/max humidity: humidifiers switch on or off
//   - min/max temperature: radiators switch on or off
//
// Outcomes are optionally published over MQTT, recorded in InfluxDB and
// broadcast to WebSocket clients of the status API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-actuator/internal/api"
	"github.com/nerrad567/gray-logic-actuator/internal/automation"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-actuator/internal/room"
	"github.com/nerrad567/gray-logic-actuator/internal/setup"
	"github.com/nerrad567/gray-logic-actuator/internal/slug"
	"github.com/nerrad567/gray-logic-actuator/internal/stream"
	"github.com/nerrad567/gray-logic-actuator/internal/thing"
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

// backoffMultiplier is the growth factor between stream reconnect delays.
const backoffMultiplier = 2.0

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic actuator",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // best-effort flush on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Fetch the setup feed. This is the only fatal step after infrastructure.
	setupClient := setup.NewClient(cfg.Setup.URL, setup.Options{
		Timeout:    cfg.GetSetupTimeout(),
		RetryCount: cfg.Setup.RetryCount,
	})
	records, err := setupClient.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("loading setup: %w", err)
	}
	log.Info("setup loaded", "url", cfg.Setup.URL, "records", len(records))

	// Build the room registry and resolve device handles.
	things := thing.NewClient(cfg.Devices.BaseURL, thing.Options{
		Timeout: cfg.GetDeviceTimeout(),
	})
	registry, problems := room.Build(ctx, records, things, room.BuildOptions{
		Concurrency: cfg.Devices.ResolveConcurrency,
		Logger:      log,
	})
	for _, p := range problems {
		log.Warn("setup entity skipped", "entity", p.Entity, "error", p.Err)
	}

	endpoints := registry.Endpoints(room.EndpointPolicy(cfg.Events.Endpoints))

	// WebSocket hub, shared by the dispatcher, the stream hook and the API.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
	}

	actuator := automation.NewActuator(registry, cfg.GetActuationTimeout(), log)
	dispatcher := automation.NewDispatcher(registry, actuator, log)
	if mqttClient != nil {
		dispatcher.SetMQTT(mqttClient)
	}
	if influxClient != nil {
		dispatcher.SetMetrics(influxClient)
	}
	if hub != nil {
		dispatcher.SetHub(hub)
	}

	manager := stream.NewManager(stream.Options{
		BaseURL: cfg.Events.BaseURL,
		Backoff: stream.Backoff{
			Initial:    cfg.GetReconnectInitialDelay(),
			Max:        cfg.GetReconnectMaxDelay(),
			Multiplier: backoffMultiplier,
			Jitter:     cfg.Events.Reconnect.Jitter,
		},
		LogEvery: cfg.Events.Reconnect.LogEvery,
		Logger:   log,
	})
	manager.SetOnStateChange(streamStateHook(log, mqttClient, influxClient, hub))

	// Start the status API (optional)
	if cfg.API.Enabled {
		components := make(map[string]api.HealthChecker)
		if mqttClient != nil {
			components["mqtt"] = mqttClient
		}
		if influxClient != nil {
			components["influxdb"] = influxClient
		}

		apiServer, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log,
			Registry:   registry,
			Streams:    manager,
			Stats:      dispatcher,
			Components: components,
			Hub:        hub,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	// Accept events published over MQTT alongside the HTTP streams.
	if mqttClient != nil && cfg.MQTT.Ingress {
		if subErr := subscribeIngress(ctx, mqttClient, dispatcher); subErr != nil {
			return fmt.Errorf("subscribing to MQTT event ingress: %w", subErr)
		}
		log.Info("MQTT event ingress enabled", "topic", mqtt.Topics{}.AllEventIngress())
	}

	log.Info("initialisation complete",
		"rooms", registry.RoomCount(),
		"devices", registry.DeviceCount(),
		"handles", registry.HandleCount(),
		"endpoints", len(endpoints),
		"policy", cfg.Events.Endpoints,
	)

	handler := func(ctx context.Context, ev stream.Event) {
		dispatcher.Dispatch(ctx, ev.Endpoint, ev.Data)
	}
	if err := manager.Run(ctx, endpoints, handler); err != nil {
		return fmt.Errorf("running event streams: %w", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("Gray Logic actuator stopped", "stats", dispatcher.Stats())
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_ACTUATOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies enabled infrastructure before any stream opens.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// streamStateHook fans stream state changes out to the enabled sinks.
// Nil sinks are skipped.
func streamStateHook(log *logging.Logger, mqttClient *mqtt.Client, influxClient *influxdb.Client, hub *api.Hub) func(stream.State) {
	return func(st stream.State) {
		roomID := string(st.Endpoint.Room)
		kind := string(st.Endpoint.Kind)

		if mqttClient != nil {
			if err := mqttClient.PublishStreamState(roomID, kind, st); err != nil {
				log.Debug("stream state publish failed", "room", roomID, "kind", kind, "error", err)
			}
		}
		if influxClient != nil {
			influxClient.WriteStreamState(roomID, kind, string(st.Status), st.Retries, st.Connects)
		}
		if hub != nil {
			hub.Broadcast(api.ChannelStreamStateChange, st)
		}
	}
}

// subscribeIngress feeds graylogic/actuator/events/{room}/{kind} messages to
// the dispatcher. The room segment is normalised like setup identifiers.
func subscribeIngress(ctx context.Context, client *mqtt.Client, dispatcher *automation.Dispatcher) error {
	return client.SubscribeIngress(func(rawRoom, kind string, payload []byte) error {
		ep := room.Endpoint{
			Room: room.RoomID(slug.Normalize(rawRoom)),
			Kind: room.EventKind(kind),
		}
		dispatcher.Dispatch(ctx, ep, string(payload))
		return nil
	})
}
