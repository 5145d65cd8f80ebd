// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"fmt"
	"io"

	"github.com/amarnathcjd/hybridgram/internal/utils"
)

// Logger is the logging interface accepted by every component of the
// package. NewLogger and NewDefaultLogger return the built-in implementation.
type Logger interface {
	SetLevel(level LogLevel) Logger
	GetLevel() LogLevel
	SetOutput(w io.Writer) Logger
	SetJSONMode(enabled bool) Logger

	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger
	WithPrefix(prefix string) Logger

	Trace(msg any, args ...any)
	Debug(msg any, args ...any)
	Info(msg any, args ...any)
	Warn(msg any, args ...any)
	Error(msg any, args ...any)

	CloneInternal() *utils.Logger
}

type LogLevel = utils.LogLevel

const (
	LogTrace   = utils.TraceLevel
	LogDebug   = utils.DebugLevel
	LogInfo    = utils.InfoLevel
	LogWarn    = utils.WarnLevel
	LogError   = utils.ErrorLevel
	LogDisable = utils.NoLevel
)

type LoggerConfig struct {
	Level           LogLevel
	Prefix          string
	Output          io.Writer
	Color           bool
	ShowCaller      bool
	TimestampFormat string
	JSONOutput      bool
}

func NewDefaultLogger(prefix string) Logger {
	return &loggerAdapter{internal: utils.NewLogger(prefix)}
}

func NewLogger(level LogLevel, config ...LoggerConfig) Logger {
	internalConfig := &utils.LoggerConfig{Level: level}
	if len(config) > 0 {
		c := config[0]
		internalConfig.Prefix = c.Prefix
		internalConfig.Output = c.Output
		internalConfig.Color = c.Color
		internalConfig.ShowCaller = c.ShowCaller
		internalConfig.TimestampFormat = c.TimestampFormat
		if c.JSONOutput {
			internalConfig.Formatter = &utils.JSONFormatter{}
		}
	}
	return &loggerAdapter{internal: utils.NewLoggerWithConfig(internalConfig)}
}

// NopLogger discards everything.
func NopLogger() Logger {
	return &loggerAdapter{internal: utils.NopLogger()}
}

// WrapLogger exposes an internal logger through the public interface.
func WrapLogger(l *utils.Logger) Logger {
	return &loggerAdapter{internal: l}
}

type loggerAdapter struct {
	internal *utils.Logger
}

func (l *loggerAdapter) SetLevel(level LogLevel) Logger {
	l.internal.SetLevel(level)
	return l
}

func (l *loggerAdapter) GetLevel() LogLevel {
	return l.internal.GetLevel()
}

func (l *loggerAdapter) SetOutput(w io.Writer) Logger {
	l.internal.SetOutput(w)
	return l
}

func (l *loggerAdapter) SetJSONMode(enabled bool) Logger {
	if enabled {
		l.internal.SetFormatter(&utils.JSONFormatter{})
	} else {
		l.internal.SetFormatter(&utils.TextFormatter{NoColor: true})
	}
	return l
}

func (l *loggerAdapter) WithField(key string, value any) Logger {
	return &loggerAdapter{internal: l.internal.WithField(key, value)}
}

func (l *loggerAdapter) WithFields(fields map[string]any) Logger {
	return &loggerAdapter{internal: l.internal.WithFields(fields)}
}

func (l *loggerAdapter) WithError(err error) Logger {
	return &loggerAdapter{internal: l.internal.WithError(err)}
}

func (l *loggerAdapter) WithPrefix(prefix string) Logger {
	return &loggerAdapter{internal: l.internal.WithPrefix(prefix)}
}

func (l *loggerAdapter) Trace(msg any, args ...any) { l.internal.Trace(toString(msg), args...) }
func (l *loggerAdapter) Debug(msg any, args ...any) { l.internal.Debug(toString(msg), args...) }
func (l *loggerAdapter) Info(msg any, args ...any)  { l.internal.Info(toString(msg), args...) }
func (l *loggerAdapter) Warn(msg any, args ...any)  { l.internal.Warn(toString(msg), args...) }
func (l *loggerAdapter) Error(msg any, args ...any) { l.internal.Error(toString(msg), args...) }

// toString converts any to string for logging
func toString(v any) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (l *loggerAdapter) CloneInternal() *utils.Logger {
	return l.internal.Clone()
}

func internalLogger(l Logger) *utils.Logger {
	if l == nil {
		return utils.NopLogger()
	}
	return l.CloneInternal()
}
