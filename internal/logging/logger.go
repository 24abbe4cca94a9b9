package logging

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// SetupLogger configures the process-wide logger and returns it
func SetupLogger(level string, format string) logr.Logger {
	logger := NewZapLogger(os.Stderr, level, format)
	ctrl.SetLogger(logger)
	return logger
}

// NewZapLogger builds a zap-backed logger writing to w.
// An unknown level falls back to info.
func NewZapLogger(w io.Writer, level string, format string) logr.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	opts := zap.Options{
		Development: format != "json",
		DestWriter:  w,
		Level:       lvl,
	}

	return zap.New(zap.UseFlagOptions(&opts))
}

// NewLogger creates a new logger with the given name
func NewLogger(name string) logr.Logger {
	return ctrl.Log.WithName(name)
}
