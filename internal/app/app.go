// Package app assembles the asset server from a validated configuration:
// route table, static fallback, router and HTTP server.
package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"example.com/assethttp/internal/assets"
	"example.com/assethttp/internal/config"
	"example.com/assethttp/internal/handlers/staticfile"
	"example.com/assethttp/internal/logger"
	"example.com/assethttp/internal/router"
	"example.com/assethttp/internal/server"
)

// App is one assembled server instance.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	table  *assets.Table
	server *server.Server
}

// New wires the components described by cfg. cfg must already have defaults
// applied and be validated (config.LoadConfig and config.Default do both).
func New(cfg *config.Config, lg *logger.Logger) (*App, error) {
	if cfg == nil || cfg.Server == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	table, err := cfg.RouteTable()
	if err != nil {
		return nil, err
	}
	fallback, err := staticfile.New(*cfg.Server.BaseDir, *cfg.Server.DefaultDocument, cfg.MimeTypes, lg)
	if err != nil {
		return nil, err
	}
	rt, err := router.NewRouter(table, fallback, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}
	srv, err := server.NewServer(cfg, lg, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return &App{cfg: cfg, log: lg, table: table, server: srv}, nil
}

// Addr returns the bound address once Run has started listening.
func (a *App) Addr() net.Addr {
	return a.server.Addr()
}

// Ready is closed once the listener is bound.
func (a *App) Ready() <-chan struct{} {
	return a.server.Ready()
}

// Run serves until ctx is cancelled or a termination signal arrives. The
// startup banner is logged as soon as the listener is bound.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start(ctx) }()

	select {
	case <-a.server.Ready():
		a.log.Info("Serving game assets", logger.LogFields{
			"url":     LocalURL(a.server.Addr()),
			"base":    *a.cfg.Server.BaseDir,
			"h2c":     a.cfg.Server.H2C(),
			"summary": Summary(a.table),
		})
		a.warnMissingFiles()
	case err := <-errCh:
		return err
	}
	return <-errCh
}

// warnMissingFiles reports configured files that would currently answer 404.
func (a *App) warnMissingFiles() {
	if _, err := os.Stat(a.cfg.Server.DefaultDocumentPath()); err != nil {
		a.log.Warn("Default document not found", logger.LogFields{"path": a.cfg.Server.DefaultDocumentPath()})
	}
	for _, sr := range a.table.Singletons() {
		if _, err := os.Stat(sr.File); err != nil {
			a.log.Warn("Singleton file not found", logger.LogFields{"route": sr.URLPath, "path": sr.File})
		}
	}
}

// LocalURL renders the browser URL for a bound address.
func LocalURL(addr net.Addr) string {
	port := ""
	if addr != nil {
		if _, p, err := net.SplitHostPort(addr.String()); err == nil {
			port = p
		}
	}
	return "http://localhost:" + port + "/"
}

// Summary reports the current matching-file count of every asset route in
// declaration order, e.g. "hlod: 3 | terrain: 0".
func Summary(t *assets.Table) string {
	routes := t.Assets()
	parts := make([]string, 0, len(routes))
	for _, ar := range routes {
		parts = append(parts, fmt.Sprintf("%s: %d", ar.Name, assets.Count(ar.RootDir, ar.Extension)))
	}
	return strings.Join(parts, " | ")
}
