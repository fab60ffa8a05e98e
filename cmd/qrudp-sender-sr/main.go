// Command qrudp-sender-sr is the Variant A (Selective Repeat) file-transfer
// sender: a fixed-size byte window, per-packet idempotent ACKs, and
// timeout-only retransmission (spec §4.5, §6). It binds a UDP socket, waits
// for the receiver's handshake datagram, then streams data.txt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
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
	if len(positional) < 3 {
		fmt.Fprintln(os.Stderr, "usage: qrudp-sender-sr <bind-ip> <bind-port> <window-bytes> [-config path] [-metrics-addr addr]")
		return 1
	}

	fs := flag.NewFlagSet("qrudp-sender-sr", flag.ContinueOnError)
	configFile := fs.String("config", "", "optional YAML config path overriding the transport defaults")
	metricsAddr := fs.String("metrics-addr", "", "override the metrics listen address from config")
	if err := fs.Parse(flagArgs); err != nil {
		return 1
	}

	bindIP, bindPort := positional[0], positional[1]
	windowBytes, err := strconv.ParseUint(positional[2], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrudp-sender-sr: invalid window-bytes %q: %v\n", positional[2], err)
		return 1
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrudp-sender-sr: %v\n", err)
		return 1
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.Addr = *metricsAddr
	}

	logger, err := cliutil.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrudp-sender-sr: build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	tracer, err := tracing.New(&tracing.Config{
		Enable:       cfg.Tracing.Enable,
		ServiceName:  "qrudp-sender-sr",
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
		mx = metrics.New("sender_sr")
		stop := cliutil.ServeMetrics(cfg.Metrics.Addr, cfg.Metrics.Path, logger)
		defer stop()
	}

	conn, err := socket.Listen(bindIP+":"+bindPort, socket.DefaultConfig())
	if err != nil {
		logger.Error("bind failed", zap.String("addr", bindIP+":"+bindPort), zap.Error(err))
		return 1
	}
	defer conn.Close()

	logger.Info("starting variant A sender", zap.Uint64("window_bytes", windowBytes))
	sr, err := sender.NewSelectiveRepeat(conn, uint32(windowBytes), cfg.Transport, sender.Deps{Logger: logger, Tracer: tracer, Metrics: mx})
	if err != nil {
		logger.Error("init sender", zap.Error(err))
		return 1
	}

	if err := sr.Run(context.Background()); err != nil {
		logger.Error("transfer failed", zap.Error(err))
		return 1
	}

	logger.Info("transfer complete")
	return 0
}
