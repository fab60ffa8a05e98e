// Package rto implements RTT smoothing and retransmission-timeout
// derivation shared by both sender variants, adapted from the teacher's
// Jacobson/Karels estimator in internal/quantum/reliability.SendBuffer.
package rto

import "time"

// Profile selects the clamp and backoff rule a variant uses, per spec §4.2.
type Profile int

const (
	// ProfileSelectiveRepeat is Variant A: rto = max(srtt+4*rttvar, 0.1s),
	// initial 0.5s, backoff doubles rto on timeout up to a 2.0s cap.
	ProfileSelectiveRepeat Profile = iota

	// ProfileReno is Variant B: rto = clamp(srtt+max(10ms,4*rttvar), 0.2s, 3.0s),
	// with no direct backoff multiplier — the congestion controller absorbs
	// timeout response instead.
	ProfileReno
)

const (
	alpha = 0.125 // srtt smoothing weight
	beta  = 0.25  // rttvar smoothing weight

	srInitialRTO = 500 * time.Millisecond
	srMinRTO     = 100 * time.Millisecond
	srMaxBackoff = 2 * time.Second

	renoMinRTO     = 200 * time.Millisecond
	renoMaxRTO     = 3 * time.Second
	renoMinRttvar4 = 10 * time.Millisecond
)

// Tunables overlays the initial value and clamp bounds a config file may
// set (internal/config.SelectiveRepeatTuning / RenoTuning). A zero field
// falls back to the profile's spec-mandated default.
type Tunables struct {
	InitialRTO time.Duration
	MinRTO     time.Duration
	// MaxRTO is Variant B's upper clamp under ProfileReno, or Variant A's
	// exponential-backoff cap under ProfileSelectiveRepeat.
	MaxRTO time.Duration
}

// Estimator holds smoothed RTT state and derives the current RTO.
type Estimator struct {
	profile Profile

	initialRTO time.Duration
	minRTO     time.Duration
	maxRTO     time.Duration

	srtt   time.Duration
	rttvar time.Duration
	rto    time.Duration

	// backoffRTO tracks Variant A's exponential-backoff RTO, distinct from
	// the estimator-derived rto: a fresh sample resets it.
	backoffRTO time.Duration
}

// New creates an estimator for the given variant profile, applying tunables
// on top of the profile's spec-mandated defaults.
func New(profile Profile, tunables Tunables) *Estimator {
	e := &Estimator{profile: profile}

	if profile == ProfileSelectiveRepeat {
		e.initialRTO = srInitialRTO
		e.minRTO = srMinRTO
		e.maxRTO = srMaxBackoff
	} else {
		e.initialRTO = renoMaxRTO
		e.minRTO = renoMinRTO
		e.maxRTO = renoMaxRTO
	}

	if tunables.InitialRTO > 0 {
		e.initialRTO = tunables.InitialRTO
	}
	if tunables.MinRTO > 0 {
		e.minRTO = tunables.MinRTO
	}
	if tunables.MaxRTO > 0 {
		e.maxRTO = tunables.MaxRTO
	}

	if profile == ProfileSelectiveRepeat {
		e.rto = e.initialRTO
		e.backoffRTO = e.initialRTO
	} else {
		e.rto = e.initialRTO // unlimited-seeming until the first sample arrives
	}
	return e
}

// Sample folds one RTT measurement into the smoothed estimate. Callers MUST
// only invoke this for segments sent exactly once (Karn's rule) — see
// sendwindow, which tracks first-vs-last send time per inflight entry.
func (e *Estimator) Sample(sample time.Duration) {
	if e.srtt == 0 {
		e.srtt = sample
		e.rttvar = sample / 2
	} else {
		delta := e.srtt - sample
		if delta < 0 {
			delta = -delta
		}
		e.rttvar = time.Duration((1-beta)*float64(e.rttvar) + beta*float64(delta))
		e.srtt = time.Duration((1-alpha)*float64(e.srtt) + alpha*float64(sample))
	}

	switch e.profile {
	case ProfileSelectiveRepeat:
		e.rto = e.srtt + 4*e.rttvar
		if e.rto < e.minRTO {
			e.rto = e.minRTO
		}
		e.backoffRTO = e.rto // a fresh sample clears any prior backoff
	default:
		dev := 4 * e.rttvar
		if dev < renoMinRttvar4 {
			dev = renoMinRttvar4
		}
		e.rto = e.srtt + dev
		if e.rto < e.minRTO {
			e.rto = e.minRTO
		} else if e.rto > e.maxRTO {
			e.rto = e.maxRTO
		}
	}
}

// RTO returns the timeout to use for the next retransmission check.
// Variant A applies its doubled-on-timeout backoff value instead of the raw
// estimate once a timeout has occurred and no fresh sample has arrived.
func (e *Estimator) RTO() time.Duration {
	if e.profile == ProfileSelectiveRepeat {
		return e.backoffRTO
	}
	return e.rto
}

// Backoff doubles Variant A's RTO after a timeout, capped at maxRTO. It is a
// no-op under ProfileReno, where timeout response lives in the congestion
// controller instead (§4.2).
func (e *Estimator) Backoff() {
	if e.profile != ProfileSelectiveRepeat {
		return
	}
	e.backoffRTO *= 2
	if e.backoffRTO > e.maxRTO {
		e.backoffRTO = e.maxRTO
	}
}

// SRTT returns the current smoothed RTT (zero if no sample yet).
func (e *Estimator) SRTT() time.Duration {
	return e.srtt
}
