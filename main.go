// Command assethttp serves a game asset tree with the built-in route table.
// It needs no configuration file: -root names the base directory and -port
// the listening port. Use cmd/server for a configurable deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"example.com/assethttp/internal/app"
	"example.com/assethttp/internal/config"
	"example.com/assethttp/internal/logger"
)

func main() {
	cfg, err := buildConfig(os.Args[1:], os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	lg, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	a, err := app.New(cfg, lg)
	if err != nil {
		lg.Error("Failed to initialize server", logger.LogFields{"error": err.Error()})
		lg.CloseLogFiles()
		os.Exit(1)
	}
	if err := a.Run(context.Background()); err != nil {
		lg.Error("Server stopped with error", logger.LogFields{"error": err.Error()})
		lg.CloseLogFiles()
		os.Exit(1)
	}
	lg.Info("Server shut down gracefully", nil)
	lg.CloseLogFiles()
}

// buildConfig turns command-line flags into a validated configuration with
// the default route table rooted at -root.
func buildConfig(args []string, output io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("assethttp", flag.ContinueOnError)
	fs.SetOutput(output)
	rootDir := fs.String("root", ".", "Base directory holding game_data/, manifests/ and the static site")
	port := fs.String("port", "8080", "Port to listen on")
	debug := fs.Bool("debug", false, "Log rejected asset requests and other diagnostics")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("flag parsing error: %w", err)
	}
	if *rootDir == "" {
		return nil, fmt.Errorf("root directory cannot be empty")
	}
	if *port == "" {
		return nil, fmt.Errorf("port cannot be empty")
	}

	absRoot, err := filepath.Abs(*rootDir)
	if err != nil {
		return nil, fmt.Errorf("error resolving absolute path for root directory '%s': %w", *rootDir, err)
	}

	addr := ":" + *port
	cfg := &config.Config{
		Server: &config.ServerConfig{
			Address: &addr,
			BaseDir: &absRoot,
		},
	}
	if *debug {
		cfg.Logging = &config.LoggingConfig{LogLevel: config.LogLevelDebug}
	}
	if err := config.ApplyDefaults(cfg, absRoot); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
