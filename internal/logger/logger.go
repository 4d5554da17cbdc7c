package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var backendLevels = map[Level]logrus.Level{
	TRACE: logrus.TraceLevel,
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

func (l Level) String() string {
	return levelNames[l]
}

// Component represents the logging component
type Component string

const (
	ComponentApp        Component = "app"
	ComponentServer     Component = "server"
	ComponentCookies    Component = "cookies"
	ComponentClient     Component = "client"
	ComponentFetcher    Component = "fetcher"
	ComponentExtractor  Component = "extractor"
	ComponentBridge     Component = "bridge"
	ComponentNormalizer Component = "normalizer"
)

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration. An empty Components map enables every component.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	Timestamp  bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      INFO,
		Format:     FormatText,
		Output:     os.Stdout,
		Components: map[Component]bool{},
		Timestamp:  true,
	}
}

// Logger routes component entries to a logrus backend.
type Logger struct {
	config  *Config
	backend *logrus.Logger
	mu      sync.RWMutex
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Components == nil {
		config.Components = map[Component]bool{}
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	backend := logrus.New()
	backend.SetLevel(logrus.TraceLevel)
	l := &Logger{config: config, backend: backend}
	l.apply()
	return l
}

// apply pushes format and output into the backend. Callers hold mu or own l exclusively.
func (l *Logger) apply() {
	l.backend.SetOutput(l.config.Output)
	l.backend.SetFormatter(formatter(l.config))
}

func formatter(cfg *Config) logrus.Formatter {
	switch cfg.Format {
	case FormatJSON:
		return &logrus.JSONFormatter{
			DisableTimestamp: !cfg.Timestamp,
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg:  "message",
				logrus.FieldKeyTime: "timestamp",
			},
		}
	case FormatColor:
		return &logrus.TextFormatter{
			ForceColors:      true,
			FullTimestamp:    true,
			DisableTimestamp: !cfg.Timestamp,
			TimestampFormat:  "2006-01-02 15:04:05",
		}
	default:
		return &logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			DisableTimestamp: !cfg.Timestamp,
			TimestampFormat:  "2006-01-02 15:04:05",
		}
	}
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{
		logger:    l,
		component: component,
	}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Format = format
	l.apply()
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
	l.apply()
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = true
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = false
}

func (l *Logger) enabled(level Level, component Component) bool {
	if level < l.config.Level {
		return false
	}
	if len(l.config.Components) == 0 {
		return true
	}
	return l.config.Components[component]
}

func (l *Logger) log(level Level, component Component, message string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.enabled(level, component) {
		return
	}

	entry := l.backend.WithField("component", string(component))
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Log(backendLevels[level], message)
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...map[string]interface{}) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...map[string]interface{}) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...map[string]interface{}) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...map[string]interface{}) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...map[string]interface{}) {
	cl.log(ERROR, message, fields...)
}

func (cl *ComponentLogger) log(level Level, message string, fields ...map[string]interface{}) {
	var merged map[string]interface{}
	switch len(fields) {
	case 0:
	case 1:
		merged = fields[0]
	default:
		merged = make(map[string]interface{})
		for _, f := range fields {
			for k, v := range f {
				merged[k] = v
			}
		}
	}
	cl.logger.log(level, cl.component, message, merged)
}

var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithComponent returns a component logger from global logger
func WithComponent(component Component) *ComponentLogger {
	return GetGlobalLogger().WithComponent(component)
}
