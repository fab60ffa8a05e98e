// Package congestion implements the Variant B (Reno + SACK) congestion
// controller: slow start, congestion avoidance, fast retransmit, and
// timeout collapse, in the style of the teacher's BBR state machine
// (internal/quantum/bbr.BBR) but driving TCP Reno's textbook-plus-tunable
// growth rule instead of bottleneck-bandwidth probing.
package congestion

import "sync"

// MSS is the maximum segment size in bytes, per spec §4.4/GLOSSARY.
const MSS = 1200

// maxCwnd is the safety cap against pathological buffer growth (§9).
const maxCwnd = 10000 * MSS

// Config configures the initial state of a Reno controller.
type Config struct {
	// InitialSsthresh sets how high ssthresh starts; left at its zero value
	// it defaults to maxCwnd, acting "unlimited" until the first loss.
	InitialSsthresh uint32
}

// DefaultConfig returns the spec's default Reno configuration.
func DefaultConfig() *Config {
	return &Config{InitialSsthresh: maxCwnd}
}

// Reno is the TCP-Reno-style congestion controller for Variant B.
type Reno struct {
	mu sync.Mutex

	cwnd        uint32
	ssthresh    uint32
	inSlowStart bool

	// Statistics
	fastRetransmits  uint64
	timeouts         uint64
	congestionEvents uint64
}

// New creates a Reno controller with cwnd = MSS and the given ssthresh.
func New(config *Config) *Reno {
	if config == nil {
		config = DefaultConfig()
	}
	ssthresh := config.InitialSsthresh
	if ssthresh == 0 {
		ssthresh = maxCwnd
	}
	return &Reno{
		cwnd:        MSS,
		ssthresh:    ssthresh,
		inSlowStart: true,
	}
}

// OnAck folds a new-data ACK of bytesAcked bytes into the window. It is a
// no-op for bytesAcked == 0 (a pure duplicate ACK carries no new bytes).
func (r *Reno) OnAck(bytesAcked uint32) {
	if bytesAcked == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inSlowStart {
		r.cwnd += bytesAcked
		if r.cwnd >= r.ssthresh {
			r.inSlowStart = false
		}
	} else {
		// Congestion avoidance: cwnd += 2*MSS^2/cwnd per ACK. This is an
		// explicit, more aggressive variant of the textbook MSS^2/cwnd
		// growth rate (spec §4.4) — a tunable, not a correctness
		// requirement.
		growth := (2 * uint64(MSS) * uint64(MSS)) / uint64(r.cwnd)
		r.cwnd += uint32(growth)
		if growth == 0 {
			r.cwnd++
		}
	}

	r.clampCwnd()
}

// OnFastRetransmit reacts to the third duplicate ACK: halve cwnd into
// ssthresh and leave slow start.
func (r *Reno) OnFastRetransmit() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ssthresh = halve(r.cwnd)
	r.cwnd = r.ssthresh
	r.inSlowStart = false
	r.fastRetransmits++
	r.congestionEvents++
}

// OnTimeout reacts to an RTO expiry: collapse cwnd to one MSS and re-enter
// slow start.
func (r *Reno) OnTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ssthresh = halve(r.cwnd)
	r.cwnd = MSS
	r.inSlowStart = true
	r.timeouts++
	r.congestionEvents++
}

// EffectiveWindow returns the byte budget C3 may use for new transmission.
func (r *Reno) EffectiveWindow() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cwnd
}

// Cwnd returns the current congestion window in bytes.
func (r *Reno) Cwnd() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cwnd
}

// Ssthresh returns the current slow-start threshold in bytes.
func (r *Reno) Ssthresh() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ssthresh
}

// InSlowStart reports whether the controller is currently in slow start.
func (r *Reno) InSlowStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inSlowStart
}

// Statistics returns a snapshot of congestion-event counters.
func (r *Reno) Statistics() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]uint64{
		"fast_retransmits":  r.fastRetransmits,
		"timeouts":          r.timeouts,
		"congestion_events": r.congestionEvents,
	}
}

func (r *Reno) clampCwnd() {
	if r.cwnd < MSS {
		r.cwnd = MSS
	}
	if r.cwnd > maxCwnd {
		r.cwnd = maxCwnd
	}
}

// halve implements max(cwnd/2, 2*MSS), shared by fast retransmit and
// timeout handling.
func halve(cwnd uint32) uint32 {
	half := cwnd / 2
	if half < 2*MSS {
		return 2 * MSS
	}
	return half
}
