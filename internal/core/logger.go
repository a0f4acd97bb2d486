package core

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init initializes zap's global logger
// After calling this, we use zap.L() directly.
// An empty level keeps the encoder's default (debug for pretty, info otherwise).
func Init(pretty bool, level string) error {
	var config zap.Config

	if pretty {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		config.Level = zap.NewAtomicLevelAt(parsed)
	}

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// LogSolve logs a remote solve using zap's global logger
func LogSolve(identity string, duration float64, cached bool, err error) {
	fields := []zap.Field{
		zap.String("definition", identity),
		zap.Float64("duration_seconds", duration),
		zap.Bool("cached", cached),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		zap.L().Error("Solve failed", fields...)
		return
	}

	zap.L().Info("Solve completed successfully", fields...)
}

// LogRequest logs a server request using zap's global logger
func LogRequest(method string, duration float64, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.Float64("duration_seconds", duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		zap.L().Error("Request failed", fields...)
		return
	}

	zap.L().Info("Request completed successfully", fields...)
}

// LogPanicRecovery logs a panic recovered in the named component along with its stack
func LogPanicRecovery(component string, r any) {
	zap.L().Error("Panic recovered",
		zap.String("component", component),
		zap.Any("panic_value", r),
		zap.ByteString("stack", debug.Stack()))
}

// LogDeferredError calls fn and logs its error, if any. Meant for defer statements
// such as `defer core.LogDeferredError(f.Close)`.
func LogDeferredError(fn func() error) {
	if err := fn(); err != nil {
		zap.L().Error("Deferred error", zap.Error(err), zap.Stack("stack"))
	}
}
