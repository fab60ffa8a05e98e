// Package receiver implements the C7 receiver engine: handshake with
// bounded retries, a single-threaded transfer loop that feeds arriving
// segments to the C6 reassembler and echoes ACKs, and termination on
// completion. Shared by both sender variants since reassembly does not
// depend on which congestion/ACK scheme drove the far end (spec §4.7).
// Structured in the teacher's single-threaded-loop-plus-zap-logging style
// seen throughout internal/quantum/connection.go.
package receiver

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/qrudp/qrudp/internal/config"
	"github.com/qrudp/qrudp/internal/protocol"
	"github.com/qrudp/qrudp/internal/recvbuf"
	"github.com/qrudp/qrudp/internal/socket"
	"github.com/qrudp/qrudp/internal/telemetry/metrics"
	"github.com/qrudp/qrudp/internal/telemetry/tracing"
)

// HandshakeByte is the conventional single-byte request (spec §6).
const HandshakeByte = 'D'

// Deps bundles the ambient-stack dependencies.
type Deps struct {
	Logger  *zap.Logger
	Tracer  *tracing.Tracer
	Metrics *metrics.Metrics // nil when telemetry is disabled
}

// Receiver drives one file transfer to completion.
type Receiver struct {
	conn       *socket.Conn
	outputPath string
	transport  config.TransportConfig
	deps       Deps
}

// New constructs a Receiver that writes its output to outputPath, tuned by
// transport (handshake/transfer timeouts and retry/abort bounds, spec §4.7).
func New(conn *socket.Conn, outputPath string, transport config.TransportConfig, deps Deps) *Receiver {
	return &Receiver{conn: conn, outputPath: outputPath, transport: transport, deps: deps}
}

// Run performs the handshake, transfers the file, and reports success or a
// fatal error.
func (r *Receiver) Run(ctx context.Context) error {
	logger := r.deps.Logger

	hctx, hspan := r.deps.Tracer.StartHandshake(ctx, r.outputPath)
	first, err := r.handshake(hctx, logger)
	hspan.End()
	if err != nil {
		return err
	}

	out, err := os.Create(r.outputPath)
	if err != nil {
		return fmt.Errorf("receiver: create output file: %w", err)
	}
	defer out.Close()

	buffer := recvbuf.New(out)

	tctx, tspan := r.deps.Tracer.StartTransfer(ctx, 0)
	defer tspan.End()

	if err := r.deliverAndAck(buffer, first, logger); err != nil {
		return err
	}
	if buffer.Complete() {
		logger.Info("transfer complete")
		return nil
	}

	return r.transferLoop(tctx, buffer, logger)
}

// handshake transmits the single-byte request and retries until a response
// arrives or the retry budget is exhausted (spec §4.7).
func (r *Receiver) handshake(ctx context.Context, logger *zap.Logger) (*protocol.DataPacket, error) {
	req := []byte{HandshakeByte}

	for attempt := 1; attempt <= r.transport.HandshakeRetries; attempt++ {
		if err := r.conn.Send(req); err != nil {
			logger.Warn("send handshake request", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, r.transport.HandshakeTimeout)
		dgram, err := r.conn.Receive(rctx)
		cancel()
		if err != nil {
			logger.Info("handshake attempt timed out", zap.Int("attempt", attempt))
			continue
		}
		defer dgram.Release()

		pkt, err := protocol.DecodeData(dgram.Payload)
		if err != nil {
			logger.Debug("malformed handshake response dropped", zap.Error(err))
			continue
		}

		logger.Info("handshake complete", zap.Int("attempt", attempt))
		return pkt, nil
	}

	return nil, fmt.Errorf("receiver: handshake exhausted after %d attempts", r.transport.HandshakeRetries)
}

// deliverAndAck feeds one data packet into the reassembler and always emits
// the resulting ACK, including for EOF arrivals (spec §4.6: "emit an ACK
// after every data arrival" has no EOF carve-out).
func (r *Receiver) deliverAndAck(buffer *recvbuf.Buffer, pkt *protocol.DataPacket, logger *zap.Logger) error {
	if err := buffer.Deliver(pkt); err != nil {
		return fmt.Errorf("receiver: write output: %w", err)
	}

	if r.deps.Metrics != nil {
		r.deps.Metrics.PacketsReceived.WithLabelValues("data").Inc()
		r.deps.Metrics.BytesTransferred.Add(float64(len(pkt.Payload)))
	}

	return r.sendAck(buffer, logger)
}

func (r *Receiver) sendAck(buffer *recvbuf.Buffer, logger *zap.Logger) error {
	cum, sacks := buffer.SACK()
	ack := protocol.EncodeAck(cum, sacks)
	if err := r.conn.Send(ack); err != nil {
		logger.Warn("send ack", zap.Error(err))
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.PacketsSent.WithLabelValues("ack").Inc()
	}
	return nil
}

// transferLoop receives subsequent data packets with a per-call deadline,
// re-emitting the last ACK on timeout and aborting after too many
// consecutive timeouts (spec §4.7).
func (r *Receiver) transferLoop(ctx context.Context, buffer *recvbuf.Buffer, logger *zap.Logger) error {
	consecutiveTimeouts := 0

	for !buffer.Complete() {
		rctx, cancel := context.WithTimeout(ctx, r.transport.ReceiveTimeout)
		dgram, err := r.conn.Receive(rctx)
		cancel()

		if err != nil {
			consecutiveTimeouts++
			logger.Debug("receive timeout", zap.Int("consecutive", consecutiveTimeouts))
			if consecutiveTimeouts >= r.transport.MaxConsecutiveTimeouts {
				return fmt.Errorf("receiver: peer silent for %d consecutive timeouts", r.transport.MaxConsecutiveTimeouts)
			}
			r.sendAck(buffer, logger)
			continue
		}
		consecutiveTimeouts = 0

		pkt, err := protocol.DecodeData(dgram.Payload)
		dgram.Release()
		if err != nil {
			logger.Debug("malformed data packet dropped", zap.Error(err))
			if r.deps.Metrics != nil {
				r.deps.Metrics.PacketsReceived.WithLabelValues("malformed").Inc()
			}
			continue
		}

		if err := r.deliverAndAck(buffer, pkt, logger); err != nil {
			return err
		}
	}

	logger.Info("transfer complete")
	return nil
}
