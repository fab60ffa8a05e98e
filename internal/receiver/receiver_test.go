package receiver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/qrudp/qrudp/internal/config"
	"github.com/qrudp/qrudp/internal/protocol"
	"github.com/qrudp/qrudp/internal/socket"
	"github.com/qrudp/qrudp/internal/telemetry/tracing"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	tr, err := tracing.New(tracing.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("tracing.New: %v", err)
	}
	return Deps{Logger: zap.NewNop(), Tracer: tr}
}

func TestRunHandshakeThenSingleSegmentThenEOF(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "received_data.txt")

	server, err := socket.Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	client, err := socket.Dial(server.LocalAddr().String(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	rcv := New(client, outputPath, config.Default().Transport, testDeps(t))

	done := make(chan error, 1)
	go func() { done <- rcv.Run(context.Background()) }()

	// Fake sender: wait for the handshake byte, then send the whole
	// payload as one segment, then an EOF packet.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dgram, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("receive handshake: %v", err)
	}
	if len(dgram.Payload) != 1 {
		t.Fatalf("expected a single-byte handshake, got %d bytes", len(dgram.Payload))
	}
	peer := dgram.Addr
	dgram.Release()

	payload := []byte("the quick brown fox jumps over the lazy dog")
	dataPkt, err := protocol.EncodeData(0, payload, false)
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	if err := server.SendTo(dataPkt, peer); err != nil {
		t.Fatalf("send data: %v", err)
	}

	eofPkt, err := protocol.EncodeData(uint32(len(payload)), nil, true)
	if err != nil {
		t.Fatalf("EncodeData eof: %v", err)
	}
	if err := server.SendTo(eofPkt, peer); err != nil {
		t.Fatalf("send eof: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not complete in time")
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("output = %q, want %q", got, payload)
	}
}

func TestHandshakeExhaustionIsFatal(t *testing.T) {
	server, err := socket.Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close() // never responds

	client, err := socket.Dial(server.LocalAddr().String(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	r := New(client, filepath.Join(t.TempDir(), "out.txt"), config.Default().Transport, testDeps(t))

	start := time.Now()
	err = r.Run(context.Background())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected handshake exhaustion to be fatal")
	}
	// 5 retries * 2s timeout is the worst case; this just guards against an
	// infinite loop, not precise timing.
	if elapsed > 15*time.Second {
		t.Errorf("handshake took %v, expected to give up well within the retry budget", elapsed)
	}
}
