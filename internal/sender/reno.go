package sender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qrudp/qrudp/internal/config"
	"github.com/qrudp/qrudp/internal/congestion"
	"github.com/qrudp/qrudp/internal/pacing"
	"github.com/qrudp/qrudp/internal/protocol"
	"github.com/qrudp/qrudp/internal/rto"
	"github.com/qrudp/qrudp/internal/sendwindow"
	"github.com/qrudp/qrudp/internal/socket"
)

// Reno is Variant B's sender: a writer goroutine that fills the window,
// checks timers, and emits EOF, and a reader goroutine that blocks on
// receive and feeds ACKs to the window and congestion controller. Both
// share one mutex over the inflight/cwnd/RTO/SACK/send_base state (spec
// §5); no I/O happens while that mutex is held.
type Reno struct {
	conn      *socket.Conn
	window    *sendwindow.Window
	estimator *rto.Estimator
	cc        *congestion.Reno
	pacer     *pacing.Pacer

	mu sync.Mutex

	file     []byte
	fileSize uint32

	deps Deps
}

// NewReno constructs a Variant B sender bound to conn, tuned by transport's
// Reno RTO bounds and initial ssthresh. The constructor argument mirroring
// spec §6's ignored window-bytes positional argument is not needed here —
// cwnd self-regulates.
func NewReno(conn *socket.Conn, transport config.TransportConfig, deps Deps) (*Reno, error) {
	file, err := loadInput()
	if err != nil {
		return nil, err
	}

	estimator := rto.New(rto.ProfileReno, rto.Tunables{
		InitialRTO: transport.Reno.InitialRTO,
		MinRTO:     transport.Reno.MinRTO,
		MaxRTO:     transport.Reno.MaxRTO,
	})
	cc := congestion.New(&congestion.Config{InitialSsthresh: transport.InitialSsthresh})

	return &Reno{
		conn:      conn,
		window:    sendwindow.New(0),
		estimator: estimator,
		cc:        cc,
		pacer:     pacing.New(),
		file:      file,
		fileSize:  uint32(len(file)),
		deps:      deps,
	}, nil
}

// Run drives the sender to completion or fatal error.
func (s *Reno) Run(ctx context.Context) error {
	logger := s.deps.Logger

	logger.Info("waiting for handshake", zap.Uint32("file_size", s.fileSize))
	if err := waitForPeer(s.conn, logger); err != nil {
		return err
	}

	tctx, span := s.deps.Tracer.StartTransfer(ctx, int64(s.fileSize))
	defer span.End()

	runCtx, cancel := context.WithCancel(tctx)
	defer cancel()

	var wg sync.WaitGroup
	var runErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writerLoop(runCtx, fail)
	}()
	go func() {
		defer wg.Done()
		s.readerLoop(runCtx, fail)
	}()
	wg.Wait()

	if runErr != nil {
		return runErr
	}

	logger.Info("transfer drained, entering eof phase")
	sendEOFBurst(ctx, s.conn, s.fileSize, logger)
	return nil
}

func (s *Reno) drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.NextSeq() == s.fileSize && s.window.IsDrained()
}

func (s *Reno) writerLoop(ctx context.Context, fail func(error)) {
	logger := s.deps.Logger
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.drained() {
			return
		}

		s.fillWindow(ctx, logger)
		s.checkTimeouts(ctx, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Reno) fillWindow(ctx context.Context, logger *zap.Logger) {
	for {
		s.mu.Lock()
		if s.window.NextSeq() >= s.fileSize {
			s.mu.Unlock()
			return
		}
		next := s.window.NextSeq()
		end := chunkBounds(next, s.fileSize)
		chunk := s.file[next:end]
		effectiveWindow := s.cc.EffectiveWindow()
		canSend := s.window.CanTransmit(uint32(len(chunk)), effectiveWindow)
		s.mu.Unlock()

		if !canSend {
			return
		}

		if err := s.pacer.WaitN(ctx, len(chunk)); err != nil {
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

		s.mu.Lock()
		s.window.RecordTransmit(next, chunk, time.Now())
		s.mu.Unlock()

		if s.deps.Metrics != nil {
			s.deps.Metrics.PacketsSent.WithLabelValues("data").Inc()
		}
	}
}

func (s *Reno) checkTimeouts(ctx context.Context, logger *zap.Logger) {
	s.mu.Lock()
	timedOut := s.window.FindTimedOut(time.Now(), s.estimator.RTO())
	s.mu.Unlock()
	if len(timedOut) == 0 {
		return
	}

	// Variant B retransmits only the lowest expired sequence per spec §4.5
	// step 2; sort is implicit since inflight keys are sequence offsets.
	lowest := timedOut[0]
	for _, seq := range timedOut[1:] {
		if seq < lowest {
			lowest = seq
		}
	}

	s.mu.Lock()
	s.cc.OnTimeout()
	payload, ok := s.window.Payload(lowest)
	if ok {
		s.window.Touch(lowest, time.Now())
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	logger.Warn("retransmission timeout", zap.Uint32("seq", lowest), zap.Uint32("cwnd", s.cc.Cwnd()))
	pkt, err := protocol.EncodeData(lowest, payload, false)
	if err != nil {
		return
	}
	if err := s.conn.Send(pkt); err != nil {
		logger.Warn("retransmit data packet", zap.Uint32("seq", lowest), zap.Error(err))
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRetransmit("timeout")
		s.deps.Metrics.Cwnd.Set(float64(s.cc.Cwnd()))
	}
	s.deps.Tracer.RecordRetransmit(ctx, lowest, "timeout")
}

func (s *Reno) readerLoop(ctx context.Context, fail func(error)) {
	logger := s.deps.Logger

	for {
		if ctx.Err() != nil {
			return
		}

		rctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		dgram, err := s.conn.Receive(rctx)
		cancel()
		if err != nil {
			continue
		}

		ack, err := protocol.DecodeAck(dgram.Payload)
		dgram.Release()
		if err != nil {
			logger.Debug("malformed ack dropped", zap.Error(err))
			if s.deps.Metrics != nil {
				s.deps.Metrics.PacketsReceived.WithLabelValues("malformed").Inc()
			}
			continue
		}

		s.handleAck(ctx, ack, logger)

		s.mu.Lock()
		overrun := s.window.SendBase() > s.fileSize
		s.mu.Unlock()
		if overrun {
			fail(fmt.Errorf("sender: ack advanced send_base past file size"))
			return
		}

		if s.drained() {
			return
		}
	}
}

func (s *Reno) handleAck(ctx context.Context, ack *protocol.AckPacket, logger *zap.Logger) {
	sacks := ack.ActiveSACKs()

	s.mu.Lock()
	result := s.window.ApplyAckCumulative(ack.Ack, sacks, time.Now())
	if result.SampledRTT > 0 {
		s.estimator.Sample(result.SampledRTT)
	}
	if result.BytesAcked > 0 {
		s.cc.OnAck(result.BytesAcked)
	}
	fastRetxSeq := result.FastRetxSeq
	fastRetransmit := result.FastRetransmit
	var payload []byte
	var ok bool
	if fastRetransmit {
		s.cc.OnFastRetransmit()
		payload, ok = s.window.Payload(fastRetxSeq)
		if ok {
			s.window.Touch(fastRetxSeq, time.Now())
		}
	}
	cwnd := s.cc.Cwnd()
	srtt := s.estimator.SRTT()
	s.pacer.SetRate(cwnd, srtt, congestion.MSS)
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.PacketsReceived.WithLabelValues("ack").Inc()
		s.deps.Metrics.Cwnd.Set(float64(cwnd))
		s.deps.Metrics.Ssthresh.Set(float64(s.cc.Ssthresh()))
		s.deps.Metrics.SRTT.Set(srtt.Seconds())
		s.deps.Metrics.RTO.Set(s.estimator.RTO().Seconds())
	}

	// Fast retransmit's actual send happens here, after releasing the lock,
	// per spec §5.
	if fastRetransmit && ok {
		pkt, err := protocol.EncodeData(fastRetxSeq, payload, false)
		if err == nil {
			if err := s.conn.Send(pkt); err != nil {
				logger.Warn("fast retransmit send", zap.Uint32("seq", fastRetxSeq), zap.Error(err))
			}
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordRetransmit("fast")
			}
			s.deps.Tracer.RecordRetransmit(ctx, fastRetxSeq, "fast")
			logger.Info("fast retransmit", zap.Uint32("seq", fastRetxSeq))
		}
	}
}
