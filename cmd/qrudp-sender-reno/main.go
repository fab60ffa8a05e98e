// Command qrudp-sender-reno is the Variant B (Reno + SACK) file-transfer
// sender: an adaptive congestion window driven by ACK/loss feedback, with
// cumulative ACK and up to two SACK blocks (spec §4.4, §4.5, §6). The
// third positional argument accepted by the Variant A binary is accepted
// here too, for CLI symmetry, and ignored — cwnd self-regulates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qrudp/qrudp/internal/cliutil"
	"github.com/qrudp/qrudp/internal/config"
	"github.com/qrudp/qrudp/internal/sender"
	"github.com/qrudp/qrudp/internal/socket"
	"github.com/qrudp/qrudp/internal/telemetry/metrics"
	"github.com/qrudp/qrudp/internal/telemetry/tracing"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(rawArgs []string) int {
	positional, flagArgs := cliutil.SplitPositional(rawArgs, 3)
	if len(positional) < 2 {
		fmt.Fprintln(os.Stderr, "usage: qrudp-sender-reno <bind-ip> <bind-port> [window-bytes-ignored] [-config path] [-metrics-addr addr]")
		return 1
	}

	fs := flag.NewFlagSet("qrudp-sender-reno", flag.ContinueOnError)
	configFile := fs.String("config", "", "optional YAML config path overriding the transport defaults")
	metricsAddr := fs.String("metrics-addr", "", "override the metrics listen address from config")
	if err := fs.Parse(flagArgs); err != nil {
		return 1
	}

	bindIP, bindPort := positional[0], positional[1]

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrudp-sender-reno: %v\n", err)
		return 1
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.Addr = *metricsAddr
	}

	logger, err := cliutil.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrudp-sender-reno: build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if len(positional) >= 3 {
		logger.Info("ignoring window-bytes argument (variant B self-regulates cwnd)", zap.String("value", positional[2]))
	}

	tracer, err := tracing.New(&tracing.Config{
		Enable:       cfg.Tracing.Enable,
		ServiceName:  "qrudp-sender-reno",
		Endpoint:     cfg.Tracing.Endpoint,
		Exporter:     cfg.Tracing.Exporter,
		SampleRate:   cfg.Tracing.SampleRate,
		BatchTimeout: 5 * time.Second,
		MaxQueueSize: 2048,
	}, logger)
	if err != nil {
		logger.Error("init tracer", zap.Error(err))
		return 1
	}
	defer tracer.Shutdown(context.Background())

	var mx *metrics.Metrics
	if cfg.Metrics.Enable {
		mx = metrics.New("sender_reno")
		stop := cliutil.ServeMetrics(cfg.Metrics.Addr, cfg.Metrics.Path, logger)
		defer stop()
	}

	conn, err := socket.Listen(bindIP+":"+bindPort, socket.DefaultConfig())
	if err != nil {
		logger.Error("bind failed", zap.String("addr", bindIP+":"+bindPort), zap.Error(err))
		return 1
	}
	defer conn.Close()

	logger.Info("starting variant B sender")
	rn, err := sender.NewReno(conn, cfg.Transport, sender.Deps{Logger: logger, Tracer: tracer, Metrics: mx})
	if err != nil {
		logger.Error("init sender", zap.Error(err))
		return 1
	}

	if err := rn.Run(context.Background()); err != nil {
		logger.Error("transfer failed", zap.Error(err))
		return 1
	}

	logger.Info("transfer complete")
	return 0
}
