package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lily/config"
	"lily/internal/bus"
	kafkabus "lily/internal/bus/kafka"
	mqttbus "lily/internal/bus/mqtt"
	natsbus "lily/internal/bus/nats"
	rabbitbus "lily/internal/bus/rabbit"
	"lily/internal/inbound"
	"lily/internal/inbound/montecarlo"
	"lily/internal/logger"
	"lily/internal/metrics"
	"lily/internal/outbound"
	"lily/internal/rule"
	"lily/internal/stats"
	"lily/internal/storage"
)

func main() {
	// Command line flag for config
	configPath := flag.String("config", "config/config.json", "path to config file")

	// Optional override flags
	storageOverride := flag.String("storage", "", "override storage backend (empty = use config)")
	busOverride := flag.String("bus", "", "override bus transport (empty = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")
	metricsIntervalOverride := flag.Duration("metrics-interval", 0, "override metrics collection interval (0 = use config)")

	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Apply any command line overrides
	cfg.ApplyOverrides(
		*storageOverride,
		*busOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
		*metricsIntervalOverride,
	)

	// Initialize logger
	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	statsCollector := stats.NewStatsCollector()

	// Setup metrics if enabled
	var metricsService *metrics.Metrics
	var metricsCollector *metrics.MetricsCollector
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		// Initialize metrics
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		// Parse metrics update interval
		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}

		// Create metrics collector
		metricsCollector = metrics.NewMetricsCollector(metricsService, statsCollector, updateInterval)
		metricsCollector.Start()
		defer metricsCollector.Stop()

		// Setup metrics HTTP server
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		// Start metrics server
		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Setup signal handlers
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Create the metadata store
	store, err := storage.NewStore(&cfg.Storage, cfg.RedisTTL())
	if err != nil {
		logger.Fatal("failed to create metadata store", "error", err)
	}
	defer store.Close()

	// Connect the event bus
	eventBus, err := newBus(cfg, logger, metricsService)
	if err != nil {
		logger.Fatal("failed to connect event bus", "error", err)
	}
	defer eventBus.Close()

	// Wire the ingestion and rule pipelines
	client := montecarlo.NewClient(&cfg.MonteCarlo, logger)
	service := rule.NewService(store, logger)
	inboundProc := inbound.NewProcessor(client, store, eventBus, cfg.Bus.EventBus,
		logger, statsCollector, metricsService)
	outboundProc := outbound.NewProcessor(service, store, eventBus, cfg.Bus.EventBus,
		logger, statsCollector, metricsService)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume both work queues
	if err := eventBus.Subscribe(ctx, cfg.Bus.InboundSubject, inboundProc.HandleMessage); err != nil {
		logger.Fatal("failed to subscribe to inbound subject", "error", err)
	}
	if err := eventBus.Subscribe(ctx, cfg.Bus.OutboundSubject, outboundProc.HandleMessage); err != nil {
		logger.Fatal("failed to subscribe to outbound subject", "error", err)
	}

	logger.Info("lily worker started",
		"inboundSubject", cfg.Bus.InboundSubject,
		"outboundSubject", cfg.Bus.OutboundSubject,
		"queueGroup", cfg.Bus.QueueGroup,
		"storage", cfg.Storage.Type,
		"bus", cfg.Bus.Type,
		"metricsEnabled", cfg.Metrics.Enabled)

	// Handle signals
	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reopening logs")
			logger.Sync()
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down...")

			// Graceful shutdown
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			// Shutdown metrics server if enabled
			if cfg.Metrics.Enabled && metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown metrics server", "error", err)
				}
			}

			// Stop consuming before the bus connection drops
			cancel()
			return
		}
	}
}

// newBus connects the bus transport named in the configuration
func newBus(cfg *config.Config, log *logger.Logger, metricsService *metrics.Metrics) (bus.Bus, error) {
	switch cfg.Bus.Type {
	case "nats":
		return natsbus.NewBus(&cfg.Bus, log, metricsService)
	case "mqtt":
		return mqttbus.NewBus(&cfg.Bus, log, metricsService)
	case "kafka":
		return kafkabus.NewBus(&cfg.Bus, log, metricsService)
	case "rabbit":
		return rabbitbus.NewBus(&cfg.Bus, log, metricsService)
	default:
		return nil, fmt.Errorf("unsupported bus type: %s", cfg.Bus.Type)
	}
}
