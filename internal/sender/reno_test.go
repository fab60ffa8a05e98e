package sender

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qrudp/qrudp/internal/config"
	"github.com/qrudp/qrudp/internal/protocol"
	"github.com/qrudp/qrudp/internal/recvbuf"
	"github.com/qrudp/qrudp/internal/socket"
)

// fakeRenoPeer speaks Variant B's cumulative-ACK-plus-SACK protocol back to
// a Reno sender, using the same reassembly buffer the real receiver uses.
func fakeRenoPeer(t *testing.T, conn *socket.Conn, out *[]byte) {
	t.Helper()
	if err := conn.Send([]byte{'D'}); err != nil {
		t.Fatalf("send handshake: %v", err)
	}

	var buf []byte
	buffer := recvbuf.New(&sinkWriter{buf: &buf})

	for !buffer.Complete() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		dgram, err := conn.Receive(ctx)
		cancel()
		if err != nil {
			t.Fatalf("fake peer receive: %v", err)
		}
		pkt, err := protocol.DecodeData(dgram.Payload)
		dgram.Release()
		if err != nil {
			t.Fatalf("decode data: %v", err)
		}

		if err := buffer.Deliver(pkt); err != nil {
			t.Fatalf("deliver: %v", err)
		}
		if !pkt.EOF {
			cum, sacks := buffer.SACK()
			conn.Send(protocol.EncodeAck(cum, sacks))
		}
	}
	*out = buf
}

func TestRenoTransfersFileIntact(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := make([]byte, 20000)
	for i := range content {
		content[i] = byte((i * 7) % 256)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.txt"), content, 0o644); err != nil {
		t.Fatalf("write data.txt: %v", err)
	}

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

	s, err := NewReno(server, config.Default().Transport, testDeps(t))
	if err != nil {
		t.Fatalf("NewReno: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	var received []byte
	fakeRenoPeer(t, client, &received)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("sender did not complete in time")
	}

	if len(received) != len(content) {
		t.Fatalf("received %d bytes, want %d", len(received), len(content))
	}
	for i := range content {
		if received[i] != content[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, received[i], content[i])
		}
	}
}

func TestRenoCwndNeverDropsBelowMSS(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "data.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write data.txt: %v", err)
	}

	server, err := socket.Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	s, err := NewReno(server, config.Default().Transport, testDeps(t))
	if err != nil {
		t.Fatalf("NewReno: %v", err)
	}

	if s.cc.Cwnd() == 0 {
		t.Error("expected a positive initial cwnd")
	}
}
