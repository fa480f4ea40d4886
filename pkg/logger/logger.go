// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type loggerKey struct{}

var (
	globalLogger zerolog.Logger
	disabled     = zerolog.Nop()
)

func init() {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	globalLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Str("lib", "zapdav").
		Logger().
		Level(level)

	if raw, ok := os.LookupEnv("LOG_SCOPES"); ok {
		SetScopes(ParseScopes(raw))
	}

	log.Logger = globalLogger
}

// Ctx returns the logger attached to ctx, or the global logger when none is.
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &globalLogger
	}
	if l, ok := ctx.Value(loggerKey{}).(*zerolog.Logger); ok && l != nil {
		return l
	}
	return &globalLogger
}

// WithLogger attaches logger to ctx. Operations started with the returned
// context log through it instead of the global logger.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// SetLevel updates the global log level
func SetLevel(level zerolog.Level) {
	globalLogger = globalLogger.Level(level)
	log.Logger = globalLogger
}

// Level returns the global log level.
func Level() zerolog.Level {
	return globalLogger.GetLevel()
}

// For returns the logger for a scope. Disabled scopes get a no-op logger.
func For(ctx context.Context, scope Scope) *zerolog.Logger {
	if !ScopeEnabled(scope) {
		return &disabled
	}
	l := Ctx(ctx).With().Str("scope", scope.String()).Logger()
	return &l
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	return globalLogger.Fatal()
}

// Error logs an error message
func Error() *zerolog.Event {
	return globalLogger.Error()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return globalLogger.Warn()
}

// Info logs an info message
func Info() *zerolog.Event {
	return globalLogger.Info()
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return globalLogger.Debug()
}

// Trace logs a trace message
func Trace() *zerolog.Event {
	return globalLogger.Trace()
}

// Scoped is For with the global logger.
func Scoped(scope Scope) *zerolog.Logger {
	return For(context.Background(), scope)
}
