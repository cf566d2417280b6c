// Package staticfile is the generic static responder used when no asset or
// singleton route matches a request.
package staticfile

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"example.com/assethttp/internal/logger"
)

// maxDiscardBody bounds how much of an unexpected request body is drained
// before answering 405.
const maxDiscardBody = 1 << 20

// Handler serves files below a base directory. "/" maps to the default
// document; other paths go to http.FileServer, which also renders directory
// listings.
type Handler struct {
	baseDir    string
	defaultDoc string
	mimeTypes  map[string]string
	files      http.Handler
	logger     *logger.Logger
}

// New creates a static handler rooted at baseDir. customMimeTypes extends or
// overrides the built-in extension table.
func New(baseDir, defaultDocument string, customMimeTypes map[string]string, lg *logger.Logger) (*Handler, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("staticfile: base directory cannot be empty")
	}
	if defaultDocument == "" || defaultDocument == "." || defaultDocument == ".." || strings.ContainsAny(defaultDocument, "/\\") {
		return nil, fmt.Errorf("staticfile: invalid default document %q", defaultDocument)
	}
	if lg == nil {
		return nil, fmt.Errorf("staticfile: logger cannot be nil")
	}
	mt, err := buildMimeTypes(customMimeTypes)
	if err != nil {
		return nil, fmt.Errorf("staticfile: %w", err)
	}
	return &Handler{
		baseDir:    baseDir,
		defaultDoc: defaultDocument,
		mimeTypes:  mt,
		files:      http.FileServer(http.Dir(baseDir)),
		logger:     lg,
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		if req.Body != nil {
			io.CopyN(io.Discard, req.Body, maxDiscardBody)
			req.Body.Close()
		}
		h.logger.Debug("Static fallback: method not allowed", logger.LogFields{"method": req.Method, "path": req.URL.Path})
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if req.URL.Path == "/" {
		docPath := filepath.Join(h.baseDir, h.defaultDoc)
		h.setContentType(w, h.defaultDoc)
		// ServeFile only redirects when the request path itself ends in
		// index.html, so serving the document for "/" is loop-free.
		http.ServeFile(w, req, docPath)
		return
	}

	if !strings.HasSuffix(req.URL.Path, "/") {
		h.setContentType(w, req.URL.Path)
	}
	h.files.ServeHTTP(w, req)
}

func (h *Handler) setContentType(w http.ResponseWriter, name string) {
	ext := path.Ext(name)
	if ext == "" {
		return
	}
	w.Header().Set("Content-Type", ResolveMimeType(ext, h.mimeTypes))
}
