package config

import (
	"path/filepath"
	"time"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Log output formats.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddress                 = ":8080"
	DefaultBaseDir                 = "."
	DefaultDocument                = "index.html"
	DefaultGracefulShutdownTimeout = "30s"
	DefaultReadHeaderTimeout       = "10s"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server     *ServerConfig          `json:"server,omitempty" toml:"server,omitempty"`
	Assets     []AssetRouteConfig     `json:"assets,omitempty" toml:"assets,omitempty"`
	Singletons []SingletonRouteConfig `json:"singletons,omitempty" toml:"singletons,omitempty"`
	Logging    *LoggingConfig         `json:"logging,omitempty" toml:"logging,omitempty"`

	// MimeTypes maps a file extension (".obj") to the content type the static
	// fallback should use for it.
	MimeTypes map[string]string `json:"mime_types,omitempty" toml:"mime_types,omitempty"`
}

// ServerConfig holds general server settings.
type ServerConfig struct {
	Address *string `json:"address,omitempty" toml:"address,omitempty"`
	// BaseDir is the static site root and the anchor for relative route paths.
	// A relative BaseDir is resolved against the config file's directory.
	BaseDir                 *string `json:"base_dir,omitempty" toml:"base_dir,omitempty"`
	DefaultDocument         *string `json:"default_document,omitempty" toml:"default_document,omitempty"`
	GracefulShutdownTimeout *string `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty"` // e.g., "30s"
	ReadHeaderTimeout       *string `json:"read_header_timeout,omitempty" toml:"read_header_timeout,omitempty"`
	EnableH2C               *bool   `json:"enable_h2c,omitempty" toml:"enable_h2c,omitempty"`
}

// AssetRouteConfig declares one asset family. Dir may be relative to BaseDir.
type AssetRouteConfig struct {
	Name        string `json:"name" toml:"name"`
	Dir         string `json:"dir" toml:"dir"`
	Extension   string `json:"extension" toml:"extension"`
	ContentType string `json:"content_type" toml:"content_type"`
}

// SingletonRouteConfig declares one fixed file. File may be relative to BaseDir.
type SingletonRouteConfig struct {
	Path        string `json:"path" toml:"path"`
	File        string `json:"file" toml:"file"`
	ContentType string `json:"content_type" toml:"content_type"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled        *bool    `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Target         *string  `json:"target,omitempty" toml:"target,omitempty"`
	Format         string   `json:"format,omitempty" toml:"format,omitempty"`
	TrustedProxies []string `json:"trusted_proxies,omitempty" toml:"trusted_proxies,omitempty"`
	RealIPHeader   *string  `json:"real_ip_header,omitempty" toml:"real_ip_header,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target *string `json:"target,omitempty" toml:"target,omitempty"`
	Format string  `json:"format,omitempty" toml:"format,omitempty"`
}

// IsFilePath reports whether a log target names a file rather than a
// standard stream.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr"
}

// ShutdownTimeout returns the parsed graceful shutdown timeout. It assumes
// the config has been validated.
func (s *ServerConfig) ShutdownTimeout() time.Duration {
	return mustDuration(s.GracefulShutdownTimeout, DefaultGracefulShutdownTimeout)
}

// HeaderTimeout returns the parsed read-header timeout.
func (s *ServerConfig) HeaderTimeout() time.Duration {
	return mustDuration(s.ReadHeaderTimeout, DefaultReadHeaderTimeout)
}

// H2C reports whether cleartext HTTP/2 is enabled.
func (s *ServerConfig) H2C() bool {
	return s.EnableH2C == nil || *s.EnableH2C
}

// DefaultDocumentPath is the file served for "/".
func (s *ServerConfig) DefaultDocumentPath() string {
	return filepath.Join(*s.BaseDir, *s.DefaultDocument)
}

func mustDuration(v *string, def string) time.Duration {
	s := def
	if v != nil {
		s = *v
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
