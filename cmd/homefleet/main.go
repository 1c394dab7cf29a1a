// HomeFleet Core - smart home fleet coordinator
//
// This is the main entry point for the HomeFleet core. It wires the
// device registry, the MQTT telemetry bridge, the WebSocket fan-out
// hub and the historical store together and runs until interrupted.
//
// The broker is optional: when it cannot be reached the core starts
// anyway, commands apply locally and the fleet reconnects when the
// broker comes back.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/homefleet/core/migrations"

	"github.com/homefleet/core/internal/bridge"
	"github.com/homefleet/core/internal/device"
	"github.com/homefleet/core/internal/history"
	"github.com/homefleet/core/internal/infrastructure/config"
	"github.com/homefleet/core/internal/infrastructure/database"
	"github.com/homefleet/core/internal/infrastructure/influxdb"
	"github.com/homefleet/core/internal/infrastructure/logging"
	"github.com/homefleet/core/internal/infrastructure/mqtt"
	"github.com/homefleet/core/internal/realtime"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout caps how long the HTTP listener may drain on exit.
const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting HomeFleet Core",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.DeviceCount())

	// Historical store
	store := history.NewSQLiteStore(db.DB)
	sink := history.NewSink(store)
	sink.SetLogger(log)
	registry.SetHistorySink(sink)

	if cfg.History.RetentionDays > 0 {
		interval := time.Duration(cfg.History.CleanupInterval) * time.Hour
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		cleaner := history.NewCleaner(store, cfg.History.RetentionDays, interval, log)
		go cleaner.Run(ctx)
		log.Info("history retention enabled",
			"retention_days", cfg.History.RetentionDays,
			"cleanup_interval", interval,
		)
	} else {
		log.Info("history retention disabled")
	}

	// InfluxDB mirror (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		var influxErr error
		influxClient, influxErr = influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		sink.SetMirror(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Real-time hub
	hub := realtime.NewHub(cfg.WebSocket)
	hub.SetLogger(log)
	hub.SetCommander(registry)
	registry.SetBroadcaster(hub)
	go hub.Run(ctx)

	// MQTT transport and telemetry bridge. An unreachable broker is not
	// fatal: the core runs without a dispatcher, commands still apply
	// locally and clients keep their live view.
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			log.Warn("MQTT broker unreachable, running without transport",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"error", mqttErr,
			)
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			mqttClient.SetLogger(log)
			mqttClient.SetOnConnect(func() {
				log.Info("MQTT connected")
			})
			mqttClient.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)

			qos := byte(cfg.MQTT.QoS)
			registry.SetDispatcher(bridge.NewDispatcher(mqttClient, qos))

			telemetry := bridge.New(mqttClient, registry, qos)
			telemetry.SetLogger(log)
			if influxClient != nil {
				telemetry.SetStatusMirror(influxClient.WriteStatusTransition)
			}
			telemetry.SetOnConfirmation(func(conf bridge.Confirmation) {
				if !conf.Success {
					hub.BroadcastNotification("warning", fmt.Sprintf(
						"device %s rejected command %s: %s",
						conf.DeviceID, conf.ControlKey, conf.Message,
					))
				}
			})
			if startErr := telemetry.Start(); startErr != nil {
				return fmt.Errorf("starting telemetry bridge: %w", startErr)
			}
		}
	} else {
		log.Info("MQTT disabled")
	}

	// WebSocket listener
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.WebSocket.Path, hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck // Best-effort health response
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  cfg.GetIdleTimeout(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("websocket listener started", "addr", server.Addr, "path", cfg.WebSocket.Path)
		if listenErr := server.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serverErr <- listenErr
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case err := <-serverErr:
		return fmt.Errorf("websocket listener: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, cleaning up")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("error shutting down listener", "error", shutdownErr)
	}

	log.Info("HomeFleet Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMEFLEET_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEFLEET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
