// Command qrudp-bench drives the real sender and receiver engines against
// each other over loopback UDP sockets and reports elapsed time and
// throughput for a generated payload. No network emulation is performed
// (out of scope per spec §1) — this is a timed round trip only, adapted
// from the teacher's tools/stress-test (flag + zap harness) and
// benchmarks/quantum-vs-tcp/throughput.go (payload-size/runs flags and a
// throughput-summary printout), retargeted from synthetic HTTP/simulated
// timings to this repository's own transport.
package main

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/qrudp/qrudp/internal/config"
	"github.com/qrudp/qrudp/internal/receiver"
	"github.com/qrudp/qrudp/internal/sender"
	"github.com/qrudp/qrudp/internal/socket"
	"github.com/qrudp/qrudp/internal/telemetry/tracing"
)

func main() {
	variant := flag.String("variant", "reno", "sender variant to exercise: \"reno\" or \"sr\"")
	payloadSize := flag.Int("size", 1<<20, "payload size in bytes")
	runs := flag.Int("runs", 3, "number of transfer runs")
	configFile := flag.String("config", "", "optional YAML config path overriding the transport defaults")
	windowBytes := flag.Uint("window", 0, "Variant A fixed window size in bytes (0 uses the config/default FixedWindowSize)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrudp-bench: %v\n", err)
		os.Exit(1)
	}
	window := uint32(*windowBytes)
	if window == 0 {
		window = cfg.Transport.FixedWindowSize
	}

	fmt.Println("qrudp throughput bench")
	fmt.Printf("variant=%s size=%d bytes runs=%d window=%d\n\n", *variant, *payloadSize, *runs, window)

	var totalBytes int64
	var totalElapsed time.Duration

	for run := 1; run <= *runs; run++ {
		elapsed, ok := oneRun(*variant, *payloadSize, window, cfg.Transport, logger)
		if !ok {
			fmt.Printf("run %d/%d: FAILED (integrity mismatch or transfer error)\n", run, *runs)
			os.Exit(1)
		}
		mbps := float64(*payloadSize) / elapsed.Seconds() / 1024 / 1024
		fmt.Printf("run %d/%d: %s, %.2f MB/s\n", run, *runs, elapsed, mbps)
		totalBytes += int64(*payloadSize)
		totalElapsed += elapsed
	}

	avgMbps := float64(totalBytes) / totalElapsed.Seconds() / 1024 / 1024
	fmt.Printf("\naverage throughput: %.2f MB/s over %d run(s)\n", avgMbps, *runs)
}

// oneRun spins up a sender and receiver over loopback in a scratch
// directory, transfers a randomly generated payload, and verifies the MD5
// round-trip invariant (spec §8, property 7).
func oneRun(variant string, size int, windowBytes uint32, transport config.TransportConfig, logger *zap.Logger) (time.Duration, bool) {
	dir, err := os.MkdirTemp("", "qrudp-bench-*")
	if err != nil {
		logger.Error("create scratch dir", zap.Error(err))
		return 0, false
	}
	defer os.RemoveAll(dir)

	payload := make([]byte, size)
	rand.Read(payload)
	if err := os.WriteFile(filepath.Join(dir, "data.txt"), payload, 0o644); err != nil {
		logger.Error("write payload", zap.Error(err))
		return 0, false
	}

	cwd, err := os.Getwd()
	if err != nil {
		return 0, false
	}
	if err := os.Chdir(dir); err != nil {
		return 0, false
	}
	defer os.Chdir(cwd)

	senderConn, err := socket.Listen("127.0.0.1:0", socket.DefaultConfig())
	if err != nil {
		logger.Error("bind sender", zap.Error(err))
		return 0, false
	}
	defer senderConn.Close()

	receiverConn, err := socket.Dial(senderConn.LocalAddr().String(), socket.DefaultConfig())
	if err != nil {
		logger.Error("dial receiver", zap.Error(err))
		return 0, false
	}
	defer receiverConn.Close()

	tracer, _ := tracing.New(tracing.DefaultConfig(), logger)
	deps := sender.Deps{Logger: logger, Tracer: tracer}

	var engine interface{ Run(context.Context) error }
	if variant == "sr" {
		engine, err = sender.NewSelectiveRepeat(senderConn, windowBytes, transport, deps)
	} else {
		engine, err = sender.NewReno(senderConn, transport, deps)
	}
	if err != nil {
		logger.Error("init sender", zap.Error(err))
		return 0, false
	}

	rx := receiver.New(receiverConn, "received_data.txt", transport, receiver.Deps{Logger: logger, Tracer: tracer})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	errCh := make(chan error, 2)
	start := time.Now()
	go func() { errCh <- engine.Run(ctx) }()
	go func() { errCh <- rx.Run(ctx) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			logger.Error("transfer leg failed", zap.Error(err))
			return 0, false
		}
	}
	elapsed := time.Since(start)

	got, err := os.ReadFile("received_data.txt")
	if err != nil {
		logger.Error("read received file", zap.Error(err))
		return 0, false
	}

	return elapsed, md5.Sum(got) == md5.Sum(payload)
}
