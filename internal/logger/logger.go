package logger

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"example.com/assethttp/internal/config"
)

// LogFields carries structured key/value pairs for a single log entry.
type LogFields map[string]interface{}

// Logger is a general logger that contains specific loggers for access and errors.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *AccessLogger
	closers   []io.Closer
}

// AccessLogger writes one entry per completed request.
type AccessLogger struct {
	logger        zerolog.Logger
	realIPHeader  string
	parsedProxies parsedProxiesContainer
}

// NewLogger creates and configures a new Logger instance. The configuration is
// expected to have passed through config.ApplyDefaults.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}
	if cfg.ErrorLog == nil || cfg.ErrorLog.Target == nil {
		return nil, fmt.Errorf("error log target must be configured")
	}

	l := &Logger{}

	errOut, err := l.openTarget(*cfg.ErrorLog.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	var accessOut io.Writer
	if cfg.AccessLog != nil && (cfg.AccessLog.Enabled == nil || *cfg.AccessLog.Enabled) {
		target := "stdout"
		if cfg.AccessLog.Target != nil {
			target = *cfg.AccessLog.Target
		}
		accessOut, err = l.openTarget(target)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log: %w", err)
		}
	}

	lg, err := New(cfg, errOut, accessOut)
	if err != nil {
		l.CloseLogFiles()
		return nil, err
	}
	lg.closers = l.closers
	return lg, nil
}

// New builds a Logger over explicit writers. A nil accessOut disables access
// logging. Tests use this to capture output in buffers.
func New(cfg *config.LoggingConfig, errOut, accessOut io.Writer) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	errFormat := config.LogFormatJSON
	if cfg.ErrorLog != nil && cfg.ErrorLog.Format != "" {
		errFormat = cfg.ErrorLog.Format
	}
	l := &Logger{
		errorLog: zerolog.New(formatWriter(errOut, errFormat)).
			Level(zerologLevel(cfg.LogLevel)).
			With().Timestamp().Logger(),
	}

	if accessOut != nil && cfg.AccessLog != nil {
		proxies, err := preParseTrustedProxies(cfg.AccessLog.TrustedProxies)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trusted proxies for access log: %w", err)
		}
		header := ""
		if cfg.AccessLog.RealIPHeader != nil {
			header = *cfg.AccessLog.RealIPHeader
		}
		l.accessLog = &AccessLogger{
			logger:        zerolog.New(formatWriter(accessOut, cfg.AccessLog.Format)).With().Timestamp().Logger(),
			realIPHeader:  header,
			parsedProxies: proxies,
		}
	}
	return l, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

func (l *Logger) openTarget(target string) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", target, err)
	}
	l.closers = append(l.closers, f)
	return f, nil
}

func formatWriter(w io.Writer, format string) io.Writer {
	if format != config.LogFormatConsole {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    w != os.Stdout && w != os.Stderr,
	}
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields []LogFields) {
	for _, f := range fields {
		if len(f) > 0 {
			ev = ev.Fields(map[string]interface{}(f))
		}
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...LogFields) { l.log(l.errorLog.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...LogFields)  { l.log(l.errorLog.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...LogFields)  { l.log(l.errorLog.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...LogFields) { l.log(l.errorLog.Error(), msg, fields) }

// Access records a completed request. Requests that ended in 404 are never
// written: routine probes for missing assets would otherwise drown the log.
func (l *Logger) Access(req *http.Request, status int, responseBytes int64, duration time.Duration) {
	if l.accessLog == nil || status == http.StatusNotFound {
		return
	}
	l.accessLog.LogAccess(req, status, responseBytes, duration)
}

// LogAccess writes the access entry for req.
func (al *AccessLogger) LogAccess(req *http.Request, status int, responseBytes int64, duration time.Duration) {
	remoteIP, remotePort := splitRemote(req.RemoteAddr)
	ev := al.logger.Log().
		Str("remote_addr", getRealClientIP(req.RemoteAddr, req.Header, al.realIPHeader, al.parsedProxies)).
		Str("remote_port", remotePort).
		Str("peer_addr", remoteIP).
		Str("protocol", req.Proto).
		Str("method", req.Method).
		Str("uri", req.RequestURI).
		Int("status", status).
		Int64("resp_bytes", responseBytes).
		Int64("duration_ms", duration.Milliseconds())
	if ua := req.UserAgent(); ua != "" {
		ev = ev.Str("user_agent", ua)
	}
	if ref := req.Referer(); ref != "" {
		ev = ev.Str("referer", ref)
	}
	ev.Send()
}

// CloseLogFiles closes any open log files.
func (l *Logger) CloseLogFiles() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}
