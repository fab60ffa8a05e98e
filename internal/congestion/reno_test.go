package congestion

import "testing"

func TestNewStartsInSlowStartAtOneMSS(t *testing.T) {
	r := New(nil)
	if r.Cwnd() != MSS {
		t.Errorf("Cwnd = %d, want %d", r.Cwnd(), MSS)
	}
	if !r.InSlowStart() {
		t.Error("expected to start in slow start")
	}
}

func TestSlowStartGrowsByBytesAcked(t *testing.T) {
	r := New(nil)
	r.OnAck(MSS)
	if r.Cwnd() != 2*MSS {
		t.Errorf("Cwnd = %d, want %d", r.Cwnd(), 2*MSS)
	}
}

func TestSlowStartExitsWhenCwndReachesSsthresh(t *testing.T) {
	r := New(&Config{InitialSsthresh: 2 * MSS})
	r.OnAck(MSS)
	if r.InSlowStart() {
		t.Error("expected to exit slow start once cwnd >= ssthresh")
	}
}

func TestCongestionAvoidanceGrowsSubLinearly(t *testing.T) {
	// Slow start ends once cwnd reaches ssthresh (4*MSS). Growth per ACK is
	// then 2*MSS^2/cwnd, which is below one MSS only while cwnd > 2*MSS.
	r := New(&Config{InitialSsthresh: 4 * MSS})
	r.OnAck(3 * MSS)
	before := r.Cwnd()
	r.OnAck(MSS)
	after := r.Cwnd()
	if after <= before {
		t.Errorf("expected cwnd to grow in congestion avoidance: %d -> %d", before, after)
	}
	if after-before >= MSS {
		t.Errorf("expected sub-linear growth in CA, grew by %d (>= 1 MSS)", after-before)
	}
}

func TestZeroBytesAckedIsNoop(t *testing.T) {
	r := New(nil)
	before := r.Cwnd()
	r.OnAck(0)
	if r.Cwnd() != before {
		t.Errorf("cwnd changed on zero-byte ack: %d -> %d", before, r.Cwnd())
	}
}

func TestFastRetransmitHalvesAndExitsSlowStart(t *testing.T) {
	r := New(nil)
	r.OnAck(10 * MSS) // cwnd = 11*MSS
	cwndBefore := r.Cwnd()

	r.OnFastRetransmit()

	wantSsthresh := cwndBefore / 2
	if r.Ssthresh() != wantSsthresh {
		t.Errorf("Ssthresh = %d, want %d", r.Ssthresh(), wantSsthresh)
	}
	if r.Cwnd() != r.Ssthresh() {
		t.Errorf("Cwnd = %d, want == Ssthresh %d", r.Cwnd(), r.Ssthresh())
	}
	if r.InSlowStart() {
		t.Error("expected to leave slow start after fast retransmit")
	}
}

func TestSsthreshFloorIsTwoMSS(t *testing.T) {
	r := New(nil)
	r.OnFastRetransmit() // cwnd == MSS, half == MSS/2 < 2*MSS
	if r.Ssthresh() != 2*MSS {
		t.Errorf("Ssthresh = %d, want floor of %d", r.Ssthresh(), 2*MSS)
	}
}

func TestTimeoutCollapsesToOneMSSAndReentersSlowStart(t *testing.T) {
	r := New(nil)
	r.OnAck(20 * MSS)
	r.OnTimeout()

	if r.Cwnd() != MSS {
		t.Errorf("Cwnd = %d, want %d after timeout", r.Cwnd(), MSS)
	}
	if !r.InSlowStart() {
		t.Error("expected to re-enter slow start after timeout")
	}
}

func TestCwndNeverExceedsCap(t *testing.T) {
	r := New(&Config{InitialSsthresh: maxCwnd * 2})
	for i := 0; i < 10000; i++ {
		r.OnAck(MSS)
	}
	if r.Cwnd() > maxCwnd {
		t.Errorf("Cwnd = %d, want <= cap %d", r.Cwnd(), maxCwnd)
	}
}

func TestStatisticsCountEvents(t *testing.T) {
	r := New(nil)
	r.OnFastRetransmit()
	r.OnTimeout()

	stats := r.Statistics()
	if stats["fast_retransmits"] != 1 {
		t.Errorf("fast_retransmits = %d, want 1", stats["fast_retransmits"])
	}
	if stats["timeouts"] != 1 {
		t.Errorf("timeouts = %d, want 1", stats["timeouts"])
	}
	if stats["congestion_events"] != 2 {
		t.Errorf("congestion_events = %d, want 2", stats["congestion_events"])
	}
}
