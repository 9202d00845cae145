// Hearth Core - Thermostat Dispatch & Room Control Engine
//
// This is the main entry point for the thermod daemon. Hearth Core turns a
// SUPLA-compatible device cloud into a multi-room thermostat: it reads room
// thermometers, resolves the scheduled temperature profile and switches
// heating and cooling relays accordingly, exposing the whole thing over a
// REST API with live WebSocket updates.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/hearthctl/hearth-core/migrations"

	"github.com/hearthctl/hearth-core/internal/api"
	"github.com/hearthctl/hearth-core/internal/audit"
	"github.com/hearthctl/hearth-core/internal/auth"
	"github.com/hearthctl/hearth-core/internal/dispatch"
	"github.com/hearthctl/hearth-core/internal/infrastructure/config"
	"github.com/hearthctl/hearth-core/internal/infrastructure/database"
	"github.com/hearthctl/hearth-core/internal/infrastructure/influxdb"
	"github.com/hearthctl/hearth-core/internal/infrastructure/logging"
	"github.com/hearthctl/hearth-core/internal/infrastructure/mqtt"
	"github.com/hearthctl/hearth-core/internal/thermostat"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Hearth Core",
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

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	thermostatRepo := thermostat.NewSQLiteRepository(db.DB)
	userRepo := auth.NewSQLiteUserRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub is shared between the dispatch engine (broadcasting
	// cycle results) and the API server (managing client connections).
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Dispatch engine and its per-user gateway factory
	gatewayFactory := dispatch.NewSuplaGatewayFactory(
		userRepo,
		cfg.Supla.BaseURL,
		cfg.SuplaTimeout(),
		cfg.Supla.ReadOnly,
		log.With("component", "supla"),
	)
	if cfg.Supla.ReadOnly {
		log.Warn("device writes disabled (supla.read_only)")
	}

	// nil interface values must stay nil: a typed nil *mqtt.Client inside
	// the MQTTClient interface would dodge the engine's nil checks.
	var engineMQTT dispatch.MQTTClient
	if mqttClient != nil {
		engineMQTT = mqttClient
	}
	var engineTelemetry dispatch.Telemetry
	if influxClient != nil {
		engineTelemetry = influxClient
	}

	engine := dispatch.NewEngine(
		thermostatRepo,
		gatewayFactory,
		cfg.Dispatch.Hysteresis,
		engineMQTT,
		hub,
		engineTelemetry,
		auditRepo,
		log.With("component", "dispatch"),
	)

	// Broker integrations can request an immediate cycle by publishing to
	// hearth/thermostat/<slug>/adjust; the client restores the subscription
	// on reconnect.
	if mqttClient != nil {
		consumer := dispatch.NewCommandConsumer(
			thermostatRepo,
			engine,
			cfg.BackgroundTimeout(),
			log.With("component", "commands"),
		)
		adjustTopic := mqtt.Topics{}.AllThermostatAdjusts()
		if subErr := mqttClient.Subscribe(adjustTopic, byte(cfg.MQTT.QoS), consumer.HandleAdjust); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", adjustTopic, subErr)
		}
		log.Info("adjust command subscription active", "topic", adjustTopic)
	}

	// Background ticker adjusts every enabled thermostat on an interval
	var ticker *dispatch.Ticker
	if interval := cfg.DispatchInterval(); interval > 0 {
		ticker = dispatch.NewTicker(engine, thermostatRepo, interval, cfg.BackgroundTimeout(), log.With("component", "ticker"))
		if startErr := ticker.Start(); startErr != nil {
			return fmt.Errorf("starting dispatch ticker: %w", startErr)
		}
		defer func() {
			log.Info("stopping dispatch ticker")
			if stopErr := ticker.Stop(context.Background()); stopErr != nil {
				log.Error("error stopping ticker", "error", stopErr)
			}
		}()
		log.Info("dispatch ticker started", "interval", interval)
	} else {
		log.Info("background dispatch disabled (dispatch.interval = 0)")
	}

	// API server
	server, err := api.New(api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Security:       cfg.Security,
		Logger:         log.With("component", "api"),
		Repo:           thermostatRepo,
		Users:          userRepo,
		Engine:         engine,
		Audit:          auditRepo,
		Hysteresis:     cfg.Dispatch.Hysteresis,
		ForceDuration:  cfg.ForceDuration(),
		RequestTimeout: cfg.RequestTimeout(),
		ExternalHub:    hub,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Dispatch ticker
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("Hearth Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HEARTH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HEARTH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

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
