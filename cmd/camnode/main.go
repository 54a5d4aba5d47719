// camnode is the camera and proximity node agent.
//
// It pairs with a backend over MQTT, keeps its identity across restarts,
// announces presence with a last will, answers frame requests from the
// camera and reports when a person enters or leaves viewing range.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/camnode/internal/agent"
	"github.com/nerrad567/camnode/internal/api"
	"github.com/nerrad567/camnode/internal/capture"
	"github.com/nerrad567/camnode/internal/console"
	"github.com/nerrad567/camnode/internal/events"
	"github.com/nerrad567/camnode/internal/identity"
	"github.com/nerrad567/camnode/internal/infrastructure/config"
	"github.com/nerrad567/camnode/internal/infrastructure/database"
	"github.com/nerrad567/camnode/internal/infrastructure/influxdb"
	"github.com/nerrad567/camnode/internal/infrastructure/logging"
	"github.com/nerrad567/camnode/internal/infrastructure/mqtt"
	"github.com/nerrad567/camnode/internal/presence"
	"github.com/nerrad567/camnode/internal/router"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/camnode.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting camnode",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	topics := mqtt.Topics{Prefix: cfg.Device.TopicPrefix}
	fanout := events.NewFanout()
	bus := &busAdapter{}

	worker, err := capture.NewWorker(capture.Options{
		Capturer:  newCapturer(cfg.Capture),
		Bus:       bus,
		Topics:    topics,
		Workers:   cfg.Capture.Workers,
		QueueSize: cfg.Capture.QueueSize,
		Timeout:   cfg.GetCaptureTimeout(),
		Events:    fanout,
		Logger:    log.With("component", "capture"),
	})
	if err != nil {
		return fmt.Errorf("creating capture worker: %w", err)
	}

	// #nosec G115 -- QoS values validated to 0..2
	node, err := agent.New(agent.Options{
		Store:             store,
		Bus:               bus,
		Frames:            worker,
		Topics:            topics,
		DeviceTag:         cfg.Device.Tag,
		FallbackThreshold: cfg.Proximity.FallbackThreshold,
		ActiveQoS:         byte(cfg.Presence.ActiveQoS),
		AnnounceOnConnect: cfg.Presence.AnnounceOnConnect,
		Events:            fanout,
		Logger:            log.With("component", "agent"),
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	node.Restore(ctx)

	// The will is keyed to the identity known now. Pairing changes made
	// later in this session leave it pointing at the old identifier.
	will := presence.Will(topics, node.SysID())
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.ConnectOptions{
		Will:      will,
		OnConnect: node.Connected,
		OnConnectionLost: func(err error) {
			fanout.Emit(events.Event{Kind: events.KindConnectionState, Status: "disconnected", Error: err.Error()})
		},
		Logger: log.With("component", "mqtt"),
	})
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
		"client_id", mqttClient.ClientID(),
		"will", will != nil,
	)

	rt := router.New(node, cfg.Device.TopicPrefix, log.With("component", "router"))
	bus.bind(mqttClient, rt.Handle)
	node.Connected()

	influxClient := connectInfluxDB(cfg, log)
	if influxClient != nil {
		fanout.Attach(influxClient)
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{}
		if hc, ok := store.(api.HealthChecker); ok {
			checks["identity_store"] = hc
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}

		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Agent:   node,
			Bus:     mqttClient,
			Checks:  checks,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = srv.Start(gctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		fanout.Attach(srv.Hub())
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	g.Go(func() error { return node.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })

	if startConsole(cfg.Console, log) {
		con := console.New(os.Stdin, os.Stdout, node)
		g.Go(func() error {
			err := con.Run(gctx)
			if errors.Is(err, console.ErrExit) {
				log.Info("exit requested from console")
				cancel()
				return nil
			}
			return err
		})
	}

	log.Info("camnode started", "sys_id", node.SysID())
	err = g.Wait()
	log.Info("shutting down camnode")
	return err
}

// loadConfig reads the configuration file. The default path may be absent,
// in which case built-in defaults apply.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path, explicit := getConfigPath()
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			log.Info("no configuration file, using defaults", "path", path)
			cfg, err := config.Defaults()
			if err != nil {
				return nil, fmt.Errorf("loading config: %w", err)
			}
			return cfg, nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)
	return cfg, nil
}

// getConfigPath returns the configuration file path and whether it was set
// through CAMNODE_CONFIG.
func getConfigPath() (string, bool) {
	if path := os.Getenv("CAMNODE_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// openStore opens the configured identity backend.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (identity.Store, func(), error) {
	if cfg.Identity.Backend != config.IdentityBackendSQLite {
		log.Info("identity store", "backend", "file", "path", cfg.Identity.Path)
		return identity.NewFileStore(cfg.Identity.Path), func() {}, nil
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closeDB := func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}

	store, err := identity.NewSQLiteStore(ctx, db)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("preparing identity store: %w", err)
	}
	log.Info("identity store", "backend", "sqlite", "path", db.Path())
	return store, closeDB, nil
}

func newCapturer(cfg config.CaptureConfig) capture.Capturer {
	if cfg.Driver == config.CaptureDriverFile {
		return capture.NewFileCapturer(cfg.ImagePath)
	}
	return capture.NewExecCapturer(cfg.Command, cfg.Args)
}

// connectInfluxDB returns nil when telemetry is disabled or unreachable.
// Telemetry is optional and never blocks startup.
func connectInfluxDB(cfg *config.Config, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		return nil
	case err != nil:
		log.Warn("InfluxDB unavailable, continuing without telemetry", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Warn("InfluxDB write failed", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	return client
}

// startConsole reports whether the operator console should run.
func startConsole(cfg config.ConsoleConfig, log *logging.Logger) bool {
	if !cfg.Enabled {
		return false
	}
	if cfg.Force || console.Interactive(os.Stdin) {
		return true
	}
	log.Info("stdin is not a terminal, console disabled")
	return false
}
