// Package pacing spreads Variant B's burst-fills of the congestion window
// out over time instead of releasing them back-to-back, using a token-bucket
// limiter sized from the current cwnd/RTO in the style of the teacher's
// BBR.CalculatePacingDelay (internal/quantum/bbr.BBR), but built on
// golang.org/x/time/rate rather than a hand-rolled delay calculation.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer limits the rate at which new segments may be sent so that a cwnd's
// worth of data is not released onto the wire in a single burst.
type Pacer struct {
	limiter *rate.Limiter
}

// New creates a pacer with no limit (send immediately). Call SetRate once
// an RTT/cwnd sample is available.
func New() *Pacer {
	return &Pacer{limiter: rate.NewLimiter(rate.Inf, 0)}
}

// SetRate retunes the pacer so that cwnd bytes are spread across rtt: the
// token rate is cwnd/rtt bytes per second, with a burst equal to one MSS so
// individual segments are never itself throttled mid-packet.
func (p *Pacer) SetRate(cwnd uint32, rtt time.Duration, mss int) {
	if rtt <= 0 || cwnd == 0 {
		p.limiter.SetLimit(rate.Inf)
		return
	}
	bytesPerSecond := float64(cwnd) / rtt.Seconds()
	p.limiter.SetLimit(rate.Limit(bytesPerSecond))
	p.limiter.SetBurst(mss)
}

// WaitN blocks until n bytes' worth of tokens are available or ctx is done.
func (p *Pacer) WaitN(ctx context.Context, n int) error {
	return p.limiter.WaitN(ctx, n)
}
