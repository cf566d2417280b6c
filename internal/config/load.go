package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"example.com/assethttp/internal/assets"
)

// LoadConfig reads, parses, defaults and validates the configuration file at
// path. The format is chosen from the extension (.json, .toml); any other
// extension is auto-detected by trying JSON first, then TOML.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration file path %s: %w", path, err)
	}
	if err := ApplyDefaults(cfg, filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration, anchored at the current working
// directory.
func Default() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	cfg := &Config{}
	if err := ApplyDefaults(cfg, wd); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration bytes. ext is the file extension including
// the dot, or "" to auto-detect. Unknown keys are rejected in both formats.
func Parse(data []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return parseJSON(data)
	case ".toml":
		return parseTOML(data)
	}

	cfg, jsonErr := parseJSON(data)
	if jsonErr == nil {
		return cfg, nil
	}
	cfg, tomlErr := parseTOML(data)
	if tomlErr == nil {
		return cfg, nil
	}
	return nil, fmt.Errorf("could not auto-detect format (json: %v; toml: %v)", jsonErr, tomlErr)
}

func parseJSON(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return &cfg, nil
}

func parseTOML(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("toml: unknown keys: %s", strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields and resolves relative paths. A relative
// base_dir is resolved against anchorDir; relative route paths are resolved
// against the (absolute) base_dir.
func ApplyDefaults(cfg *Config, anchorDir string) error {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	s := cfg.Server
	if s.Address == nil {
		s.Address = strPtr(DefaultAddress)
	}
	if s.BaseDir == nil || *s.BaseDir == "" {
		s.BaseDir = strPtr(DefaultBaseDir)
	}
	if !filepath.IsAbs(*s.BaseDir) {
		s.BaseDir = strPtr(filepath.Join(anchorDir, *s.BaseDir))
	}
	abs, err := filepath.Abs(*s.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base_dir %s: %w", *s.BaseDir, err)
	}
	s.BaseDir = &abs
	if s.DefaultDocument == nil || *s.DefaultDocument == "" {
		s.DefaultDocument = strPtr(DefaultDocument)
	}
	if s.GracefulShutdownTimeout == nil {
		s.GracefulShutdownTimeout = strPtr(DefaultGracefulShutdownTimeout)
	}
	if s.ReadHeaderTimeout == nil {
		s.ReadHeaderTimeout = strPtr(DefaultReadHeaderTimeout)
	}
	if s.EnableH2C == nil {
		s.EnableH2C = boolPtr(true)
	}

	if cfg.Assets == nil {
		for _, ar := range assets.DefaultAssetRoutes(abs) {
			cfg.Assets = append(cfg.Assets, AssetRouteConfig{
				Name: ar.Name, Dir: ar.RootDir, Extension: ar.Extension, ContentType: ar.ContentType,
			})
		}
	}
	for i := range cfg.Assets {
		cfg.Assets[i].Dir = anchor(abs, cfg.Assets[i].Dir)
	}
	if cfg.Singletons == nil {
		for _, sr := range assets.DefaultSingletonRoutes(abs) {
			cfg.Singletons = append(cfg.Singletons, SingletonRouteConfig{
				Path: sr.URLPath, File: sr.File, ContentType: sr.ContentType,
			})
		}
	}
	for i := range cfg.Singletons {
		cfg.Singletons[i].File = anchor(abs, cfg.Singletons[i].File)
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	l := cfg.Logging
	if l.LogLevel == "" {
		l.LogLevel = LogLevelInfo
	}
	if l.AccessLog == nil {
		l.AccessLog = &AccessLogConfig{}
	}
	if l.AccessLog.Enabled == nil {
		l.AccessLog.Enabled = boolPtr(true)
	}
	if l.AccessLog.Target == nil {
		l.AccessLog.Target = strPtr("stdout")
	}
	if l.AccessLog.Format == "" {
		l.AccessLog.Format = LogFormatJSON
	}
	if l.ErrorLog == nil {
		l.ErrorLog = &ErrorLogConfig{}
	}
	if l.ErrorLog.Target == nil {
		l.ErrorLog.Target = strPtr("stderr")
	}
	if l.ErrorLog.Format == "" {
		l.ErrorLog.Format = LogFormatJSON
	}
	return nil
}

func anchor(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Server == nil || cfg.Server.Address == nil || *cfg.Server.Address == "" {
		return fmt.Errorf("server.address must be set")
	}
	if doc := *cfg.Server.DefaultDocument; doc == "." || doc == ".." || strings.ContainsAny(doc, "/\\") {
		return fmt.Errorf("server.default_document %q must be a bare file name", *cfg.Server.DefaultDocument)
	}
	for name, v := range map[string]*string{
		"server.graceful_shutdown_timeout": cfg.Server.GracefulShutdownTimeout,
		"server.read_header_timeout":       cfg.Server.ReadHeaderTimeout,
	} {
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s: duration cannot be negative", name)
		}
	}

	if _, err := cfg.RouteTable(); err != nil {
		return err
	}

	for ext := range cfg.MimeTypes {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("mime_types: extension %q must start with '.'", ext)
		}
	}

	return validateLogging(cfg.Logging)
}

func validateLogging(l *LoggingConfig) error {
	switch l.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("logging.log_level: unknown level %q", l.LogLevel)
	}
	if err := validateTarget("logging.access_log.target", *l.AccessLog.Target); err != nil {
		return err
	}
	if err := validateFormat("logging.access_log.format", l.AccessLog.Format); err != nil {
		return err
	}
	if err := validateTarget("logging.error_log.target", *l.ErrorLog.Target); err != nil {
		return err
	}
	if err := validateFormat("logging.error_log.format", l.ErrorLog.Format); err != nil {
		return err
	}
	for _, p := range l.AccessLog.TrustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			return fmt.Errorf("logging.access_log.trusted_proxies: empty entry")
		}
		if strings.Contains(p, "/") {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("logging.access_log.trusted_proxies: invalid CIDR %q: %w", p, err)
			}
		} else if net.ParseIP(p) == nil {
			return fmt.Errorf("logging.access_log.trusted_proxies: invalid IP %q", p)
		}
	}
	return nil
}

func validateTarget(field, target string) error {
	if target == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if IsFilePath(target) && !filepath.IsAbs(target) {
		return fmt.Errorf("%s: file path %q must be absolute", field, target)
	}
	return nil
}

func validateFormat(field, format string) error {
	if format != LogFormatJSON && format != LogFormatConsole {
		return fmt.Errorf("%s: unknown format %q (want %q or %q)", field, format, LogFormatJSON, LogFormatConsole)
	}
	return nil
}

// RouteTable builds the immutable route table from the configured routes.
func (c *Config) RouteTable() (*assets.Table, error) {
	ars := make([]assets.AssetRoute, len(c.Assets))
	for i, a := range c.Assets {
		ars[i] = assets.AssetRoute{Name: a.Name, RootDir: a.Dir, Extension: a.Extension, ContentType: a.ContentType}
	}
	srs := make([]assets.SingletonRoute, len(c.Singletons))
	for i, s := range c.Singletons {
		srs[i] = assets.SingletonRoute{URLPath: s.Path, File: s.File, ContentType: s.ContentType}
	}
	tbl, err := assets.NewTable(ars, srs)
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	return tbl, nil
}
