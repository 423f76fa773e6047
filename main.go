// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hotcirc/hotcirc/app"
	"github.com/hotcirc/hotcirc/config"
	"github.com/hotcirc/hotcirc/pkg/logger"
	"github.com/hotcirc/hotcirc/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	metricsPort := flag.String("metrics-port", "9090", "Port for Prometheus metrics endpoint")
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*configPath))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error", "console")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info().Msg("Starting hot water recirculation controller")
	logger.Info().
		Dur("tick_interval", cfg.Control.TickInterval.Std()).
		Dur("anti_stagnation_interval", cfg.Control.AntiStagnationInterval.Std()).
		Bool("learning", cfg.Control.LearningOn()).
		Msg("Configuration loaded")

	application, err := app.New(cfg, *metricsPort, *configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	setupDebugSignalHandlers(application)

	if err := application.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Application failed")
	}
}

// performHealthCheck checks the storage backend and returns an exit code.
func performHealthCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not load config: %v\n", err)
		return 1
	}

	influxDB, err := storage.NewInfluxDBStorage(cfg.InfluxDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not create InfluxDB client: %v\n", err)
		return 1
	}
	defer influxDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := influxDB.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: InfluxDB is unhealthy: %v\n", err)
		return 1
	}

	fmt.Println("Health check passed: InfluxDB is healthy")
	return 0
}

// performConfigValidation validates the configuration file and returns an
// exit code.
func performConfigValidation(configPath string) int {
	logger.Initialize("info", "console")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(os.Stderr, "\nConfiguration validation FAILED\n")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\nConfiguration validation FAILED\nError: %v\n\n", err)
		return 1
	}

	fmt.Println("\nConfiguration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  MQTT Broker: %s\n", cfg.MQTT.Broker)
	fmt.Printf("  Pump Topic: %s\n", cfg.MQTT.Topics.Pump)
	fmt.Printf("  InfluxDB URL: %s\n", cfg.InfluxDB.URL)
	fmt.Printf("  InfluxDB Organization: %s\n", cfg.InfluxDB.Organization)
	fmt.Printf("  InfluxDB Bucket: %s\n", cfg.InfluxDB.Bucket)
	fmt.Printf("  Tick Interval: %s\n", cfg.Control.TickInterval.Std())
	fmt.Printf("  Anti-Stagnation Interval: %s\n", cfg.Control.AntiStagnationInterval.Std())
	fmt.Printf("  Anti-Stagnation Runtime: %s\n", cfg.Control.AntiStagnationRuntime.Std())
	fmt.Printf("  Learning: %t\n", cfg.Control.LearningOn())
	fmt.Printf("  Cache Directory: %s\n", cfg.Storage.CacheDir)
	fmt.Printf("  State File: %s\n", cfg.Storage.StateFile)
	fmt.Printf("  Log Level: %s\n", cfg.Logging.Level)

	if cfg.Discovery.Enabled {
		fmt.Printf("  Discovery: Enabled (%s, rescan every %s)\n",
			cfg.Discovery.ServiceType, cfg.Discovery.ScanInterval.Std())
	} else {
		fmt.Println("  Discovery: Disabled")
	}
	if cfg.Notifications.SlackWebhookURL != "" {
		fmt.Println("  Slack Notifications: Enabled")
	} else {
		fmt.Println("  Slack Notifications: Disabled")
	}

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return 0
}
