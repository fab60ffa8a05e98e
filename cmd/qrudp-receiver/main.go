// Command qrudp-receiver is the file-transfer receiver: it connects to the
// sender, performs the handshake, and reassembles the incoming stream to
// disk. It runs unmodified against either sender variant, since C6/C7 do
// not depend on which congestion scheme drove the far end (spec §4.7).
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
	"github.com/qrudp/qrudp/internal/receiver"
	"github.com/qrudp/qrudp/internal/socket"
	"github.com/qrudp/qrudp/internal/telemetry/metrics"
	"github.com/qrudp/qrudp/internal/telemetry/tracing"
)

const defaultOutputName = "received_data.txt"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(rawArgs []string) int {
	positional, flagArgs := cliutil.SplitPositional(rawArgs, 3)
	if len(positional) < 2 {
		fmt.Fprintln(os.Stderr, "usage: qrudp-receiver <server-ip> <server-port> [<output-prefix>] [-config path] [-metrics-addr addr]")
		return 1
	}

	fs := flag.NewFlagSet("qrudp-receiver", flag.ContinueOnError)
	configFile := fs.String("config", "", "optional YAML config path overriding the transport defaults")
	metricsAddr := fs.String("metrics-addr", "", "override the metrics listen address from config")
	if err := fs.Parse(flagArgs); err != nil {
		return 1
	}

	serverIP, serverPort := positional[0], positional[1]
	outputPath := defaultOutputName
	if len(positional) >= 3 {
		outputPath = positional[2] + defaultOutputName
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrudp-receiver: %v\n", err)
		return 1
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.Addr = *metricsAddr
	}

	logger, err := cliutil.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrudp-receiver: build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	tracer, err := tracing.New(&tracing.Config{
		Enable:       cfg.Tracing.Enable,
		ServiceName:  "qrudp-receiver",
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
		mx = metrics.New("receiver")
		stop := cliutil.ServeMetrics(cfg.Metrics.Addr, cfg.Metrics.Path, logger)
		defer stop()
	}

	conn, err := socket.Dial(serverIP+":"+serverPort, socket.DefaultConfig())
	if err != nil {
		logger.Error("dial failed", zap.String("addr", serverIP+":"+serverPort), zap.Error(err))
		return 1
	}
	defer conn.Close()

	rx := receiver.New(conn, outputPath, cfg.Transport, receiver.Deps{Logger: logger, Tracer: tracer, Metrics: mx})

	if err := rx.Run(context.Background()); err != nil {
		logger.Error("transfer failed", zap.Error(err))
		return 1
	}

	logger.Info("transfer complete", zap.String("output", outputPath))
	return 0
}
