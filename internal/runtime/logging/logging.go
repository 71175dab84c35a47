// Package logging is the logger contract of logflow and its adapters: slog
// through Watermill's slog bridge, any Watermill LoggerAdapter, and entry
// style loggers such as logrus.
package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields are structured key/value pairs attached to one log line.
type LogFields map[string]any

// ServiceLogger is what the service, its workers, senders and receivers log
// through. Nil fields are allowed everywhere.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// EntryLoggerAdapter is the shape of entry style loggers whose With methods
// return their own concrete type.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

var slogLevels = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogServiceLogger logs through log. Trace lines are emitted at debug.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("logflow: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, slogLevels))
}

// NewNopLogger returns a ServiceLogger that discards everything.
func NewNopLogger() ServiceLogger {
	return adapterLogger{inner: watermill.NopLogger{}}
}

// ParseLevel maps the names accepted by the logflow command line onto slog
// levels. "trace" is treated as debug because slog has no finer level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", name)
	}
}

// NewWatermillServiceLogger logs through a Watermill LoggerAdapter.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("logflow: watermill logger cannot be nil")
	}
	return adapterLogger{inner: logger}
}

// NewEntryServiceLogger logs through an entry style logger, adding fields
// one WithField call at a time.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if any(entry) == nil {
		panic("logflow: entry logger cannot be nil")
	}
	return entryLogger[T]{entry: entry}
}

type adapterLogger struct {
	inner watermill.LoggerAdapter
}

func (a adapterLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return a
	}
	return adapterLogger{inner: a.inner.With(watermill.LogFields(fields))}
}

func (a adapterLogger) Debug(msg string, fields LogFields) { a.inner.Debug(msg, toWatermill(fields)) }
func (a adapterLogger) Info(msg string, fields LogFields)  { a.inner.Info(msg, toWatermill(fields)) }
func (a adapterLogger) Trace(msg string, fields LogFields) { a.inner.Trace(msg, toWatermill(fields)) }

func (a adapterLogger) Error(msg string, err error, fields LogFields) {
	a.inner.Error(msg, err, toWatermill(fields))
}

type entryLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return entryLogger[T]{entry: withFields(e.entry, fields)}
}

func (e entryLogger[T]) Debug(msg string, fields LogFields) { withFields(e.entry, fields).Debug(msg) }
func (e entryLogger[T]) Info(msg string, fields LogFields)  { withFields(e.entry, fields).Info(msg) }
func (e entryLogger[T]) Trace(msg string, fields LogFields) { withFields(e.entry, fields).Trace(msg) }

func (e entryLogger[T]) Error(msg string, err error, fields LogFields) {
	entry := withFields(e.entry, fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

func withFields[T EntryLoggerAdapter[T]](entry T, fields LogFields) T {
	for key, value := range fields {
		entry = entry.WithField(key, value)
	}
	return entry
}

// NewWatermillAdapter exposes log to Watermill publishers and subscribers.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("logflow: ServiceLogger cannot be nil")
	}
	if a, ok := log.(adapterLogger); ok {
		return a.inner
	}
	return watermillAdapter{base: log}
}

type watermillAdapter struct {
	base ServiceLogger
}

func (w watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.base.Error(msg, err, LogFields(fields))
}

func (w watermillAdapter) Info(msg string, fields watermill.LogFields) {
	w.base.Info(msg, LogFields(fields))
}

func (w watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	w.base.Debug(msg, LogFields(fields))
}

func (w watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	w.base.Trace(msg, LogFields(fields))
}

func (w watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillAdapter{base: w.base.With(LogFields(fields))}
}

func toWatermill(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}
