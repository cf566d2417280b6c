package router

import (
	"fmt"
	"net/http"

	"example.com/assethttp/internal/assets"
	"example.com/assethttp/internal/confine"
	"example.com/assethttp/internal/logger"
	"example.com/assethttp/internal/server"
)

// Router holds the route table and dispatches requests to the listing,
// confined-file, singleton or fallback responders.
type Router struct {
	table    *assets.Table
	fallback http.Handler
	logger   *logger.Logger
}

// NewRouter creates a Router over an already-validated table. fallback
// receives every request that no asset or singleton route claims.
func NewRouter(table *assets.Table, fallback http.Handler, lg *logger.Logger) (*Router, error) {
	if table == nil {
		return nil, fmt.Errorf("route table cannot be nil")
	}
	if fallback == nil {
		return nil, fmt.Errorf("fallback handler cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Router{table: table, fallback: fallback, logger: lg}, nil
}

// ServeHTTP classifies the request and invokes the matching responder. Every
// failure on the asset surface is reported to the client as a bare 404; the
// cause only goes to the debug log.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	m := Classify(r.table, req.Method, path)

	switch m.Kind {
	case SingletonMatch:
		if err := server.WriteFile(w, m.Singleton.File, m.Singleton.ContentType); err != nil {
			r.logger.Debug("Singleton not served", logger.LogFields{"path": path, "error": err.Error()})
		}

	case ListMatch:
		names, err := assets.List(m.Asset.RootDir, m.Asset.Extension)
		if err != nil {
			r.logger.Debug("Listing failed", logger.LogFields{"route": m.Asset.Name, "error": err.Error()})
			server.WriteNotFound(w)
			return
		}
		server.WriteJSON(w, names)

	case AssetMatch:
		resolved, err := confine.Resolve(m.Asset.RootDir, m.Candidate)
		if err != nil {
			r.logger.Debug("Asset path rejected", logger.LogFields{"route": m.Asset.Name, "candidate": m.Candidate, "error": err.Error()})
			server.WriteNotFound(w)
			return
		}
		if err := server.WriteFile(w, resolved, m.Asset.ContentType); err != nil {
			r.logger.Debug("Asset not served", logger.LogFields{"route": m.Asset.Name, "path": resolved, "error": err.Error()})
		}

	default:
		r.fallback.ServeHTTP(w, req)
	}
}
