package sender

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qrudp/qrudp/internal/config"
	"github.com/qrudp/qrudp/internal/protocol"
	"github.com/qrudp/qrudp/internal/rto"
	"github.com/qrudp/qrudp/internal/sendwindow"
	"github.com/qrudp/qrudp/internal/socket"
)

// SelectiveRepeat is Variant A's single-threaded sender: a fixed byte
// window, per-segment idempotent ACKs, and timeout-only retransmission that
// resends every expired segment and doubles the RTO (spec §4.2, §4.5).
type SelectiveRepeat struct {
	conn       *socket.Conn
	window     *sendwindow.Window
	estimator  *rto.Estimator
	windowSize uint32

	file     []byte
	fileSize uint32

	deps Deps
}

// NewSelectiveRepeat constructs a Variant A sender bound to conn, with a
// fixed send window of windowSize bytes (falling back to transport's
// configured FixedWindowSize when the caller passes 0) and RTO bounds from
// transport.SelectiveRepeat.
func NewSelectiveRepeat(conn *socket.Conn, windowSize uint32, transport config.TransportConfig, deps Deps) (*SelectiveRepeat, error) {
	file, err := loadInput()
	if err != nil {
		return nil, err
	}

	if windowSize == 0 {
		windowSize = transport.FixedWindowSize
	}

	estimator := rto.New(rto.ProfileSelectiveRepeat, rto.Tunables{
		InitialRTO: transport.SelectiveRepeat.InitialRTO,
		MinRTO:     transport.SelectiveRepeat.MinRTO,
		MaxRTO:     transport.SelectiveRepeat.MaxBackoff,
	})

	return &SelectiveRepeat{
		conn:       conn,
		window:     sendwindow.New(0),
		estimator:  estimator,
		windowSize: windowSize,
		file:       file,
		fileSize:   uint32(len(file)),
		deps:       deps,
	}, nil
}

// Run drives the sender to completion or fatal error.
func (s *SelectiveRepeat) Run(ctx context.Context) error {
	logger := s.deps.Logger

	logger.Info("waiting for handshake", zap.Uint32("file_size", s.fileSize))
	if err := waitForPeer(s.conn, logger); err != nil {
		return err
	}

	tctx, span := s.deps.Tracer.StartTransfer(ctx, int64(s.fileSize))
	defer span.End()

	logger.Info("transferring", zap.String("phase", PhaseTransferring.String()))
	for {
		s.fillWindow(logger)

		if err := s.checkTimeouts(tctx, logger); err != nil {
			return err
		}

		if err := s.drainAcks(tctx, logger); err != nil {
			return err
		}

		if s.window.NextSeq() == s.fileSize && s.window.IsDrained() {
			break
		}
	}

	logger.Info("transfer drained, entering eof phase")
	sendEOFBurst(ctx, s.conn, s.fileSize, logger)
	return nil
}

func (s *SelectiveRepeat) fillWindow(logger *zap.Logger) {
	for s.window.NextSeq() < s.fileSize {
		next := s.window.NextSeq()
		end := chunkBounds(next, s.fileSize)
		chunk := s.file[next:end]

		if !s.window.CanTransmit(uint32(len(chunk)), s.windowSize) {
			return
		}

		pkt, err := protocol.EncodeData(next, chunk, false)
		if err != nil {
			logger.Error("encode data packet", zap.Error(err))
			return
		}
		if err := s.conn.Send(pkt); err != nil {
			logger.Warn("send data packet", zap.Uint32("seq", next), zap.Error(err))
		}
		s.window.RecordTransmit(next, chunk, time.Now())
		if s.deps.Metrics != nil {
			s.deps.Metrics.PacketsSent.WithLabelValues("data").Inc()
		}
	}
}

func (s *SelectiveRepeat) checkTimeouts(ctx context.Context, logger *zap.Logger) error {
	timedOut := s.window.FindTimedOut(time.Now(), s.estimator.RTO())
	if len(timedOut) == 0 {
		return nil
	}

	logger.Warn("retransmission timeout", zap.Int("segments", len(timedOut)), zap.Duration("rto", s.estimator.RTO()))
	s.estimator.Backoff()

	for _, seq := range timedOut {
		payload, ok := s.window.Payload(seq)
		if !ok {
			continue
		}
		pkt, err := protocol.EncodeData(seq, payload, false)
		if err != nil {
			continue
		}
		if err := s.conn.Send(pkt); err != nil {
			logger.Warn("retransmit data packet", zap.Uint32("seq", seq), zap.Error(err))
		}
		s.window.Touch(seq, time.Now())
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordRetransmit("timeout")
		}
		s.deps.Tracer.RecordRetransmit(ctx, seq, "timeout")
	}
	return nil
}

func (s *SelectiveRepeat) drainAcks(ctx context.Context, logger *zap.Logger) error {
	rctx, cancel := context.WithTimeout(ctx, s.estimator.RTO())
	defer cancel()

	dgram, err := s.conn.Receive(rctx)
	if err != nil {
		return nil // timeout is normal; checked again at the top of the loop
	}
	defer dgram.Release()

	ack, err := protocol.DecodeAck(dgram.Payload)
	if err != nil {
		logger.Debug("malformed ack dropped", zap.Error(err))
		if s.deps.Metrics != nil {
			s.deps.Metrics.PacketsReceived.WithLabelValues("malformed").Inc()
		}
		return nil
	}

	result := s.window.ApplyAckSelective(ack.Ack, time.Now())
	if result.SampledRTT > 0 {
		s.estimator.Sample(result.SampledRTT)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.PacketsReceived.WithLabelValues("ack").Inc()
	}
	if s.window.NextSeq() > s.fileSize {
		return fmt.Errorf("sender: ack sequence exceeds file size")
	}
	return nil
}
