// Package silence implements the auto-stop policy: a stream of loudness
// samples is reduced to a single "speech has ended" decision.
package silence

import "time"

// Config holds the silence policy knobs. Padding is the trailing audio the
// consumer keeps before the detected boundary when trimming; the detector
// never evaluates it.
type Config struct {
	Threshold float64
	Duration  time.Duration
	Padding   time.Duration
}

// Detector tracks how long the loudness has stayed below the threshold.
// It is single-use: once silence is confirmed the detector is terminal for
// the session and must not be reused.
type Detector struct {
	threshold  float64
	duration   time.Duration
	belowSince time.Time
	below      bool
	confirmed  bool
}

func NewDetector(cfg Config) *Detector {
	return &Detector{
		threshold: cfg.Threshold,
		duration:  cfg.Duration,
	}
}

// Update feeds one loudness sample taken at time now and reports whether
// silence was confirmed by this sample. Any voiced sample resets the
// countdown. The confirming update reports true exactly once.
func (d *Detector) Update(value float64, now time.Time) bool {
	if d.confirmed {
		return false
	}
	if value >= d.threshold {
		d.below = false
		d.belowSince = time.Time{}
		return false
	}
	if !d.below {
		d.below = true
		d.belowSince = now
	}
	if now.Sub(d.belowSince) >= d.duration {
		d.confirmed = true
		return true
	}
	return false
}

// Confirmed reports whether the detector has reached its terminal state.
func (d *Detector) Confirmed() bool {
	return d.confirmed
}
