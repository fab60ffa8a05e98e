// Package cliutil holds the small pieces of bootstrap shared by the
// sender and receiver binaries: zap logger construction from config.LogConfig
// and the optional Prometheus metrics HTTP server, both adapted from the
// teacher's cmd/session-service/server.Server (startMetricsServer) and its
// zap.NewProduction call in cmd/session-service/main.go.
package cliutil

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qrudp/qrudp/internal/config"
)

// NewLogger builds a zap logger honoring the config's level and format
// ("console" or "json").
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("cliutil: build logger: %w", err)
	}
	return logger, nil
}

// SplitPositional peels up to maxPositional leading arguments that don't
// look like flags (don't start with "-") off of args, returning them
// separately from the remainder. This lets the sender/receiver binaries
// keep spec.md's fixed positional-argument contract while still accepting
// trailing `-config`/`-metrics-addr` flags, since the stdlib flag package
// only parses flags up to the first non-flag token.
func SplitPositional(args []string, maxPositional int) (positional, rest []string) {
	i := 0
	for i < len(args) && i < maxPositional && len(args[i]) > 0 && args[i][0] != '-' {
		i++
	}
	return args[:i], args[i:]
}

// ServeMetrics starts a background HTTP server exposing the Prometheus
// registry at path, and returns a func that shuts it down.
func ServeMetrics(addr, path string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics server started", zap.String("addr", addr), zap.String("path", path))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
