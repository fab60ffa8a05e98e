package sendwindow

import (
	"testing"
	"time"

	"github.com/qrudp/qrudp/internal/protocol"
)

func TestCanTransmitRespectsEffectiveWindow(t *testing.T) {
	w := New(0)
	if !w.CanTransmit(1000, 1000) {
		t.Error("expected to fit exactly at the window boundary")
	}

	w.RecordTransmit(0, make([]byte, 600), time.Now())
	if w.CanTransmit(500, 1000) {
		t.Error("expected 600+500 > 1000 to be rejected")
	}
	if !w.CanTransmit(400, 1000) {
		t.Error("expected 600+400 == 1000 to be accepted")
	}
}

func TestRecordTransmitAdvancesNextSeq(t *testing.T) {
	w := New(0)
	w.RecordTransmit(0, make([]byte, 100), time.Now())
	w.RecordTransmit(100, make([]byte, 50), time.Now())

	if w.NextSeq() != 150 {
		t.Errorf("NextSeq = %d, want 150", w.NextSeq())
	}
	if w.InflightBytes() != 150 {
		t.Errorf("InflightBytes = %d, want 150", w.InflightBytes())
	}
}

func TestRecordTransmitRetransmitRefreshesLastSent(t *testing.T) {
	w := New(0)
	t0 := time.Now()
	w.RecordTransmit(0, make([]byte, 10), t0)

	t1 := t0.Add(time.Second)
	w.RecordTransmit(0, make([]byte, 10), t1)

	// Retransmission must not double the inflight accounting.
	if w.InflightBytes() != 10 {
		t.Errorf("InflightBytes = %d, want 10 (no duplicate entry)", w.InflightBytes())
	}
}

func TestApplyAckCumulativeStaleIsDropped(t *testing.T) {
	w := New(100)
	result := w.ApplyAckCumulative(50, nil, time.Now())
	if result.Advanced {
		t.Error("stale ack (cum < base) must not advance the window")
	}
	if w.SendBase() != 100 {
		t.Errorf("SendBase = %d, want unchanged 100", w.SendBase())
	}
}

func TestApplyAckCumulativeAdvancesAndRemoves(t *testing.T) {
	w := New(0)
	now := time.Now()
	w.RecordTransmit(0, make([]byte, 100), now)
	w.RecordTransmit(100, make([]byte, 100), now)

	result := w.ApplyAckCumulative(100, nil, now.Add(10*time.Millisecond))
	if !result.Advanced {
		t.Fatal("expected cumulative ack to advance")
	}
	if result.BytesAcked != 100 {
		t.Errorf("BytesAcked = %d, want 100", result.BytesAcked)
	}
	if w.SendBase() != 100 {
		t.Errorf("SendBase = %d, want 100", w.SendBase())
	}
	if w.InflightBytes() != 100 {
		t.Errorf("InflightBytes = %d, want 100 remaining", w.InflightBytes())
	}
}

func TestApplyAckCumulativeThirdDupTriggersFastRetransmit(t *testing.T) {
	w := New(0)
	now := time.Now()
	w.RecordTransmit(0, make([]byte, 100), now)

	w.ApplyAckCumulative(0, nil, now) // dup 1
	w.ApplyAckCumulative(0, nil, now) // dup 2
	result := w.ApplyAckCumulative(0, nil, now) // dup 3

	if !result.FastRetransmit {
		t.Fatal("expected fast retransmit on third duplicate ack")
	}
	if result.FastRetxSeq != 0 {
		t.Errorf("FastRetxSeq = %d, want 0", result.FastRetxSeq)
	}
}

func TestApplyAckCumulativeSuppressesFastRetransmitWhenSACKCoversBase(t *testing.T) {
	w := New(0)
	now := time.Now()
	w.RecordTransmit(0, make([]byte, 100), now)

	sacks := []protocol.SACKBlock{{Start: 0, End: 100}}
	w.ApplyAckCumulative(0, sacks, now)
	w.ApplyAckCumulative(0, sacks, now)
	result := w.ApplyAckCumulative(0, sacks, now)

	if result.FastRetransmit {
		t.Error("expected fast retransmit to be suppressed when base is SACKed")
	}
}

func TestApplyAckCumulativeSACKRemovesCoveredEntry(t *testing.T) {
	w := New(0)
	now := time.Now()
	w.RecordTransmit(0, make([]byte, 100), now)
	w.RecordTransmit(100, make([]byte, 100), now)
	w.RecordTransmit(200, make([]byte, 100), now)

	// segment 0 arrives, segment 100 is lost, segment 200 arrives out of
	// order: the new cumulative ACK (100) carries a SACK block for 200.
	sacks := []protocol.SACKBlock{{Start: 200, End: 300}}
	w.ApplyAckCumulative(100, sacks, now)

	if _, ok := w.Payload(200); ok {
		t.Error("expected SACK-covered entry to be removed from inflight")
	}
	if _, ok := w.Payload(100); !ok {
		t.Error("expected base entry (not covered) to remain inflight")
	}
}

func TestApplyAckCumulativeResetsDupCounterOnAdvance(t *testing.T) {
	w := New(0)
	now := time.Now()
	w.RecordTransmit(0, make([]byte, 100), now)
	w.RecordTransmit(100, make([]byte, 100), now)

	w.ApplyAckCumulative(0, nil, now)
	w.ApplyAckCumulative(0, nil, now)
	w.ApplyAckCumulative(100, nil, now) // advances, should reset dup counter

	// Two more dup acks at the new base should not yet trigger fast retransmit.
	r1 := w.ApplyAckCumulative(100, nil, now)
	r2 := w.ApplyAckCumulative(100, nil, now)
	if r1.FastRetransmit || r2.FastRetransmit {
		t.Error("dup counter should have reset after the window advanced")
	}
}

func TestApplyAckSelectiveIdempotentAndSlides(t *testing.T) {
	w := New(0)
	now := time.Now()
	w.RecordTransmit(0, make([]byte, 50), now)
	w.RecordTransmit(50, make([]byte, 50), now)
	w.RecordTransmit(100, make([]byte, 50), now)

	// Ack the middle segment first: no slide (base still unacked).
	r := w.ApplyAckSelective(50, now)
	if r.Advanced {
		t.Error("acking a non-base segment should not advance send_base")
	}
	if w.SendBase() != 0 {
		t.Errorf("SendBase = %d, want 0", w.SendBase())
	}

	// Repeat ack for the same segment: idempotent, no new bytes acked.
	r2 := w.ApplyAckSelective(50, now)
	if r2.BytesAcked != 0 {
		t.Errorf("expected idempotent repeat ack to report 0 new bytes, got %d", r2.BytesAcked)
	}

	// Now ack the base: should slide over the contiguous acked run (0, 50).
	r3 := w.ApplyAckSelective(0, now)
	if !r3.Advanced {
		t.Fatal("expected base ack to advance send_base")
	}
	if w.SendBase() != 100 {
		t.Errorf("SendBase = %d, want 100 after sliding over contiguous acked run", w.SendBase())
	}
}

func TestFindTimedOutExcludesSACKCoveredAndAcked(t *testing.T) {
	w := New(0)
	past := time.Now().Add(-time.Second)
	w.RecordTransmit(0, make([]byte, 10), past)
	w.RecordTransmit(10, make([]byte, 10), past)
	w.ApplyAckCumulative(0, []protocol.SACKBlock{{Start: 10, End: 20}}, past)

	timedOut := w.FindTimedOut(time.Now(), 100*time.Millisecond)
	for _, seq := range timedOut {
		if seq == 10 {
			t.Error("expected SACK-covered segment to be excluded from timeout scan")
		}
	}
}

func TestIsDrained(t *testing.T) {
	w := New(0)
	if !w.IsDrained() {
		t.Error("fresh window should be drained")
	}
	w.RecordTransmit(0, make([]byte, 10), time.Now())
	if w.IsDrained() {
		t.Error("window with inflight entry should not be drained")
	}
}
