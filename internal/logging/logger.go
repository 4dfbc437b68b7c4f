package logging

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"

	"github.com/devwelkin/cannedhttp/internal/config"
)

var (
	// Global logger instance
	globalLogger = NewLogger(false, os.Stderr)
)

// InitGlobalLogger initializes the global logger with the specified debug level
func InitGlobalLogger(debug bool, cfg *config.LogConfig) {
	var output io.Writer = os.Stderr

	if cfg != nil && cfg.LogToFile {
		// Configure rotating file logger
		fileLogger := &lumberjack.Logger{
			Filename:   cfg.LogFilePath,
			MaxSize:    cfg.MaxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}

		if debug {
			// In debug mode, send logs to both file and stderr
			output = io.MultiWriter(fileLogger, os.Stderr)
		} else {
			output = fileLogger
			// Log initialization message to stderr just this once
			tempLogger := NewLogger(false, os.Stderr)
			tempLogger.Info().Msg("Logging to file only: " + cfg.LogFilePath)
		}
	}

	globalLogger = NewLogger(debug, output)
}

// NewLogger creates a new zerolog logger with the specified debug level
func NewLogger(debug bool, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stderr
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetLogger replaces the global logger.
func SetLogger(l zerolog.Logger) {
	globalLogger = l
}

// Debug logs a message at debug level
func Debug(msg string) {
	globalLogger.Debug().Msg(msg)
}

// Info logs a message at info level
func Info(msg string) {
	globalLogger.Info().Msg(msg)
}

// InfoWith logs a message at info level with additional context
func InfoWith(msg string, fields map[string]interface{}) {
	event := globalLogger.Info()
	for k, v := range fields {
		event = addField(event, k, v)
	}
	event.Msg(msg)
}

// ErrorWith logs a message at error level with additional context
func ErrorWith(msg string, fields map[string]interface{}) {
	event := globalLogger.Error()
	for k, v := range fields {
		event = addField(event, k, v)
	}
	event.Msg(msg)
}

// WithComponent returns a logger with the component field set
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

// addField adds a field to the log event based on its type
func addField(event *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return event.Str(key, v)
	case int:
		return event.Int(key, v)
	case bool:
		return event.Bool(key, v)
	case time.Duration:
		return event.Dur(key, v)
	case error:
		return event.Str(key, v.Error())
	default:
		return event.Interface(key, v)
	}
}
