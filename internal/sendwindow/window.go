// Package sendwindow implements the sender-side sliding-window manager
// (spec §4.3): it tracks in-flight segments, gates new transmission by the
// effective window, and identifies expired timers. It is adapted from the
// teacher's internal/quantum/reliability.SendBuffer, generalized from a
// fixed packet-count window to the spec's byte-addressed sequence space and
// split into the two variants' distinct ACK-processing rules.
package sendwindow

import (
	"time"

	"github.com/qrudp/qrudp/internal/protocol"
)

// Entry is one unacknowledged (or recently-acknowledged, pending removal)
// segment. FirstSent is frozen across retransmissions so Karn's rule can be
// enforced by callers; LastSent updates on every (re)send.
type Entry struct {
	Payload   []byte
	FirstSent time.Time
	LastSent  time.Time
	Acked     bool // only meaningful under Variant A bookkeeping
}

// Window tracks inflight byte ranges keyed by their starting sequence
// number and the send_base/next_seq cursors of spec §3's invariants.
type Window struct {
	sendBase uint32
	nextSeq  uint32
	inflight map[uint32]*Entry

	// Variant B bookkeeping
	dupAckCount int
	sacks       []protocol.SACKBlock
}

// New creates a window starting at the given initial sequence number.
func New(startSeq uint32) *Window {
	return &Window{
		sendBase: startSeq,
		nextSeq:  startSeq,
		inflight: make(map[uint32]*Entry),
	}
}

// SendBase returns the oldest unacknowledged sequence number.
func (w *Window) SendBase() uint32 { return w.sendBase }

// NextSeq returns the next sequence number to assign to new data.
func (w *Window) NextSeq() uint32 { return w.nextSeq }

// InflightBytes sums the payload length of every entry still tracked.
func (w *Window) InflightBytes() uint32 {
	var total uint32
	for _, e := range w.inflight {
		total += uint32(len(e.Payload))
	}
	return total
}

// CanTransmit reports whether n more bytes fit under effectiveWindow.
func (w *Window) CanTransmit(n, effectiveWindow uint32) bool {
	return w.InflightBytes()+n <= effectiveWindow
}

// RecordTransmit inserts a new inflight entry at nextSeq (advancing it by
// len(payload)) or, if seq is already tracked, refreshes LastSent for a
// retransmission.
func (w *Window) RecordTransmit(seq uint32, payload []byte, now time.Time) {
	if e, ok := w.inflight[seq]; ok {
		e.LastSent = now
		return
	}

	w.inflight[seq] = &Entry{
		Payload:   payload,
		FirstSent: now,
		LastSent:  now,
	}
	if end := seq + uint32(len(payload)); end > w.nextSeq {
		w.nextSeq = end
	}
}

// AckResult reports the outcome of processing one ACK.
type AckResult struct {
	Advanced       bool
	BytesAcked     uint32
	FastRetransmit bool
	FastRetxSeq    uint32
	// SampledRTT is non-zero when a Karn-eligible RTT sample was taken;
	// callers feed it to the RTO estimator.
	SampledRTT time.Duration
}

// ApplyAckCumulative implements Variant B's ACK processing (spec §4.3):
// stale ACKs below send_base are discarded; a repeated ACK at send_base
// increments the duplicate counter and, on exactly the third, signals fast
// retransmit (suppressed if the base is itself covered by a reported SACK
// block); a new cumulative ACK removes every inflight entry it or the SACK
// set covers, advances send_base, resets the duplicate counter, and prunes
// stale SACK blocks.
func (w *Window) ApplyAckCumulative(cum uint32, sacks []protocol.SACKBlock, now time.Time) AckResult {
	var result AckResult

	if cum < w.sendBase {
		return result // StaleAck: drop
	}

	w.sacks = pruneSACKs(sacks, cum)

	if cum == w.sendBase {
		w.dupAckCount++
		if w.dupAckCount == 3 {
			baseSize := uint32(0)
			if base, ok := w.inflight[w.sendBase]; ok {
				baseSize = uint32(len(base.Payload))
			}
			if !coveredBySACKs(w.sendBase, baseSize, w.sacks) {
				result.FastRetransmit = true
				result.FastRetxSeq = w.sendBase
			}
		}
		return result
	}

	// cum > sendBase: a new cumulative ACK.
	var acked uint32
	for seq, e := range w.inflight {
		size := uint32(len(e.Payload))
		end := seq + size
		if end <= cum || coveredBySACKs(seq, size, w.sacks) {
			acked += uint32(len(e.Payload))
			if e.FirstSent.Equal(e.LastSent) {
				result.SampledRTT = now.Sub(e.FirstSent)
			}
			delete(w.inflight, seq)
		}
	}

	w.sendBase = cum
	w.dupAckCount = 0
	result.Advanced = true
	result.BytesAcked = acked
	return result
}

// ApplyAckSelective implements Variant A's ACK processing (spec §4.3): the
// ACK identifies one specific segment, marking it acknowledged (idempotent
// on repeats), after which send_base slides over any contiguous run of
// acknowledged sequences starting at the base.
func (w *Window) ApplyAckSelective(ackedSeq uint32, now time.Time) AckResult {
	var result AckResult

	e, ok := w.inflight[ackedSeq]
	if !ok {
		return result
	}
	if !e.Acked {
		e.Acked = true
		result.BytesAcked = uint32(len(e.Payload))
		if e.FirstSent.Equal(e.LastSent) {
			result.SampledRTT = now.Sub(e.FirstSent)
		}
	}

	for {
		base, ok := w.inflight[w.sendBase]
		if !ok || !base.Acked {
			break
		}
		baseSeq := w.sendBase
		w.sendBase += uint32(len(base.Payload))
		delete(w.inflight, baseSeq)
		result.Advanced = true
	}

	return result
}

// FindTimedOut returns sequences whose last send exceeds rto and are not
// currently covered by a reported SACK block. Only ApplyAckCumulative
// records SACK blocks, so under Variant A the coverage check never excludes
// anything; entries already marked Acked are skipped.
func (w *Window) FindTimedOut(now time.Time, timeout time.Duration) []uint32 {
	var out []uint32
	for seq, e := range w.inflight {
		if e.Acked {
			continue
		}
		if coveredBySACKs(seq, uint32(len(e.Payload)), w.sacks) {
			continue
		}
		if now.Sub(e.LastSent) > timeout {
			out = append(out, seq)
		}
	}
	return out
}

// IsDrained reports whether no inflight entries remain.
func (w *Window) IsDrained() bool {
	return len(w.inflight) == 0
}

// Payload returns the tracked payload for seq, for retransmission.
func (w *Window) Payload(seq uint32) ([]byte, bool) {
	e, ok := w.inflight[seq]
	if !ok {
		return nil, false
	}
	return e.Payload, true
}

// Touch refreshes LastSent for seq without altering FirstSent — used when
// retransmitting.
func (w *Window) Touch(seq uint32, now time.Time) {
	if e, ok := w.inflight[seq]; ok {
		e.LastSent = now
	}
}

func coveredBySACKs(seq, size uint32, blocks []protocol.SACKBlock) bool {
	for _, b := range blocks {
		if b.Covers(seq, size) {
			return true
		}
	}
	return false
}

// pruneSACKs drops any block whose end is at or below the new base, per
// §4.3's "prune SACK blocks whose end <= new base".
func pruneSACKs(blocks []protocol.SACKBlock, base uint32) []protocol.SACKBlock {
	var out []protocol.SACKBlock
	for _, b := range blocks {
		if b.Absent() || b.End <= base {
			continue
		}
		out = append(out, b)
	}
	return out
}
