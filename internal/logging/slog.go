package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// swapped by tests
var osStdout io.Writer = os.Stdout

// SlogManager manages slog-based logging with optional Graylog shipping.
type SlogManager struct {
	logger  *slog.Logger
	level   slog.LevelVar
	context ContextProvider
	graylog *gelf.Writer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetContextProvider registers attributes added to every record, such as
// the active session. Takes effect on the next Setup.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.context = p
}

// Setup initializes the logging system. Records go to file when one is
// given and to stdout otherwise. A non-empty graylogAddr also ships every
// record as GELF over UDP.
func (m *SlogManager) Setup(file io.Writer, level string, graylogAddr string) error {
	m.level.Set(parseLevel(level))

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: &m.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	if m.graylog != nil {
		_ = m.graylog.Close()
		m.graylog = nil
	}
	var setupErr error
	if graylogAddr != "" {
		w, err := gelf.NewWriter(graylogAddr)
		if err != nil {
			setupErr = fmt.Errorf("graylog writer: %w", err)
		} else {
			m.graylog = w
			handlers = append(handlers, slog.NewJSONHandler(w, handlerOpts))
		}
	}

	var handler slog.Handler = newFanout(handlers...)
	if m.context != nil {
		handler = sessionHandler{next: handler, provider: m.context}
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level, "graylog", m.graylog != nil)
	return setupErr
}

// SetLevel changes the minimum level of an already set up logger.
func (m *SlogManager) SetLevel(level string) {
	m.level.Set(parseLevel(level))
}

// Level returns the current minimum level.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m == nil || m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Close releases the Graylog connection if one is open.
func (m *SlogManager) Close() error {
	if m.graylog == nil {
		return nil
	}
	err := m.graylog.Close()
	m.graylog = nil
	return err
}

// WriteLog writes a log entry with the specified function name, data, and level.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m == nil || m.logger == nil {
		return
	}

	lvl := parseLevel(level)

	switch lvl {
	case slog.LevelDebug:
		m.logger.Debug(data, "function", functionName)
	case slog.LevelInfo:
		m.logger.Info(data, "function", functionName)
	case slog.LevelWarn:
		m.logger.Warn(data, "function", functionName)
	case slog.LevelError:
		m.logger.Error(data, "function", functionName)
	default:
		m.logger.Info(data, "function", functionName)
	}
}
