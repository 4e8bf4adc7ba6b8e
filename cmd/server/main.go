/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the agent tier engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Build the logger
  3. Initialize SQLite store
  4. Build tier engine, event publisher, metrics, service
  5. Start the rollover/sweep scheduler
  6. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional, env vars override it)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (http.shutdown_timeout)
  4. Close the event publisher and database connection
  5. Exit

EXAMPLES:
  # Run with a config file
  ./server -config=./config.yaml

  # Run with in-memory database and Kafka events
  KAFKA_ENABLED=true KAFKA_BROKERS=localhost:9092 ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Configuration sources and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/api"
	"github.com/skyagent/tier-engine/config"
	"github.com/skyagent/tier-engine/events"
	"github.com/skyagent/tier-engine/logging"
	"github.com/skyagent/tier-engine/metrics"
	"github.com/skyagent/tier-engine/store/sqlite"
	"github.com/skyagent/tier-engine/tier"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	table, err := cfg.TierTable()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	publisher := newPublisher(cfg, log)
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := agent.NewService(store, tier.NewEngine(table),
		agent.WithPublisher(publisher),
		agent.WithMetrics(m),
		agent.WithLogger(log),
		agent.WithClock(func() time.Time { return time.Now().In(loc) }),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := api.NewScheduler(svc, log)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Interval = cfg.Scheduler.Interval
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Create router
	handler := api.NewHandler(svc, store, log)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        m,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.HTTP.Port,
			"db":       cfg.Database.Path,
			"timezone": loc.String(),
			"tiers":    table.Len(),
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func newPublisher(cfg *config.Config, log *logrus.Logger) events.Publisher {
	if !cfg.Kafka.Enabled {
		return events.NewLogPublisher(log)
	}
	log.WithFields(logrus.Fields{
		"brokers": cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.Topic,
	}).Info("publishing events to kafka")
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}
