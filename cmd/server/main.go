package main

import (
	"context"
	"flag"
	"log"
	"os"

	"example.com/assethttp/internal/app"
	"example.com/assethttp/internal/config"
	"example.com/assethttp/internal/logger"
)

var (
	configFilePath string
)

func main() {
	flag.StringVar(&configFilePath, "config", "", "Path to the configuration file (JSON or TOML); built-in defaults when empty")
	flag.Parse()

	// 1. Load configuration
	var (
		cfg *config.Config
		err error
	)
	if configFilePath == "" {
		cfg, err = config.Default()
	} else {
		cfg, err = config.LoadConfig(configFilePath)
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	os.Exit(run(cfg, appLogger))
}

// run owns the logger from here on so deferred cleanup happens before exit.
func run(cfg *config.Config, appLogger *logger.Logger) int {
	defer func() {
		if err := appLogger.CloseLogFiles(); err != nil {
			log.Printf("Error closing log files during shutdown: %v", err)
		}
	}()

	// 3. Assemble route table, fallback, router and server
	a, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize server", logger.LogFields{"error": err.Error()})
		return 1
	}

	// 4. Serve until SIGINT/SIGTERM
	if err := a.Run(context.Background()); err != nil {
		appLogger.Error("Server exited with an error", logger.LogFields{"error": err.Error()})
		return 1
	}
	appLogger.Info("Server has shut down gracefully", nil)
	return 0
}
