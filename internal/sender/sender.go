// Package sender implements the C5 sender engine in both of its
// concurrency shapes: Variant A's single-threaded Selective-Repeat loop
// (selective_repeat.go) and Variant B's writer/reader goroutine pair driving
// Reno + SACK (reno.go). Both share the Waiting/Transferring/EOF-phase state
// machine and the logging/tracing/metrics instrumentation defined here, in
// the teacher's style of threading a *zap.Logger through every long-running
// component (internal/quantum/connection.go).
package sender

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qrudp/qrudp/internal/protocol"
	"github.com/qrudp/qrudp/internal/socket"
	"github.com/qrudp/qrudp/internal/telemetry/metrics"
	"github.com/qrudp/qrudp/internal/telemetry/tracing"
)

// Phase names one of the sender's lifecycle states: the three of spec §4.5
// plus a terminal done state.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseTransferring
	PhaseEOF
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseTransferring:
		return "transferring"
	case PhaseEOF:
		return "eof"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

const (
	// WaitingTimeout bounds how long the sender blocks for the initial
	// handshake datagram before giving up (spec §4.5).
	WaitingTimeout = 5 * time.Second

	// EOFBurstCount and EOFBurstSpacing describe the termination burst.
	EOFBurstCount   = 8
	EOFBurstSpacing = 50 * time.Millisecond
)

// Deps bundles the ambient-stack dependencies shared by both variants.
type Deps struct {
	Logger  *zap.Logger
	Tracer  *tracing.Tracer
	Metrics *metrics.Metrics // nil when telemetry is disabled
}

// loadInput reads the fixed input filename from the working directory, per
// spec §6 ("the sender reads a fixed input filename data.txt").
func loadInput() ([]byte, error) {
	data, err := os.ReadFile("data.txt")
	if err != nil {
		return nil, fmt.Errorf("sender: read input file: %w", err)
	}
	return data, nil
}

// waitForPeer blocks for the handshake datagram that establishes the peer
// address, per spec §4.5's Waiting state. Any non-empty arrival qualifies.
func waitForPeer(conn *socket.Conn, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), WaitingTimeout)
	defer cancel()

	dgram, err := conn.Receive(ctx)
	if err != nil {
		return fmt.Errorf("sender: no handshake datagram within %s: %w", WaitingTimeout, err)
	}
	defer dgram.Release()

	if len(dgram.Payload) == 0 {
		return fmt.Errorf("sender: empty handshake datagram")
	}

	conn.SetRemoteAddr(dgram.Addr)
	logger.Info("handshake received", zap.Stringer("peer", dgram.Addr))
	return nil
}

// chunkBounds cuts [next_seq, next_seq+min(DATA_PAYLOAD, remaining)) out of
// the input, per spec §4.5 step 1.
func chunkBounds(nextSeq, fileSize uint32) (end uint32) {
	remaining := fileSize - nextSeq
	size := uint32(protocol.MaxPayload)
	if remaining < size {
		size = remaining
	}
	return nextSeq + size
}

// sendEOFBurst transmits the EOF packet several times at fixed spacing, per
// spec §4.5's EOF phase. seq is the final sequence number (file_size).
func sendEOFBurst(ctx context.Context, conn *socket.Conn, seq uint32, logger *zap.Logger) {
	pkt, err := protocol.EncodeData(seq, nil, true)
	if err != nil {
		logger.Error("encode eof packet", zap.Error(err))
		return
	}

	for i := 0; i < EOFBurstCount; i++ {
		if err := conn.Send(pkt); err != nil {
			logger.Warn("send eof packet", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(EOFBurstSpacing):
		}
	}
	logger.Info("eof burst complete", zap.Int("count", EOFBurstCount))
}
