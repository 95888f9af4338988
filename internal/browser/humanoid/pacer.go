// internal/browser/humanoid/pacer.go
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Pacer turns a Profile into concrete delays and decompositions for one
// session. It is not safe for concurrent use; a session owns exactly one.
type Pacer struct {
	rng *rand.Rand
	p   Profile

	// Persona parameters sampled once per session.
	keyHoldMean  float64
	keyPauseMean float64
}

// NewPacer samples a session persona from the profile. The seed makes the
// persona and every subsequent delay reproducible.
func NewPacer(p Profile, seed int64) *Pacer {
	rng := rand.New(rand.NewSource(seed))
	pc := &Pacer{rng: rng, p: p}

	pc.keyHoldMean = math.Max(20.0, sampleGaussian(rng, p.KeyHoldMeanMs, p.KeyHoldStdDevMs))
	pc.keyPauseMean = math.Max(p.KeyPauseMinMs, sampleGaussian(rng, p.KeyPauseMeanMs, p.KeyPauseStdDevMs))
	return pc
}

// KeyHold returns how long the next key stays pressed.
func (pc *Pacer) KeyHold() time.Duration {
	ms := math.Max(15.0, sampleGaussian(pc.rng, pc.keyHoldMean, pc.p.KeyHoldStdDevMs/2))
	return time.Duration(ms) * time.Millisecond
}

// KeyPause returns the gap before the next keystroke.
func (pc *Pacer) KeyPause() time.Duration {
	ms := math.Max(pc.p.KeyPauseMinMs, sampleGaussian(pc.rng, pc.keyPauseMean, pc.p.KeyPauseStdDevMs))
	return time.Duration(ms) * time.Millisecond
}

// ClickHold returns the press duration of the next click.
func (pc *Pacer) ClickHold() time.Duration {
	lo, hi := pc.p.ClickHoldMinMs, pc.p.ClickHoldMaxMs
	if hi <= lo {
		hi = lo + 1
	}
	return time.Duration(lo+pc.rng.Intn(hi-lo)) * time.Millisecond
}

// MoveDuration returns a Fitts-shaped travel time for a pointer move of the
// given pixel distance.
func (pc *Pacer) MoveDuration(distance float64) time.Duration {
	if distance < 1 {
		distance = 1
	}
	// Target width is folded into a constant; the model only needs the
	// logarithmic distance growth, not pixel-exact physics.
	bits := math.Log2(1 + distance/16.0)
	ms := pc.p.MoveBaseMs + pc.p.MovePerBitMs*bits
	ms *= pc.uniform(0.85, 1.15)
	return time.Duration(ms) * time.Millisecond
}

// ScrollSteps splits a wheel delta into jittered ticks. The sum of the
// returned steps always equals the requested delta; the final step absorbs
// the rounding remainder.
func (pc *Pacer) ScrollSteps(delta int) []int {
	if delta == 0 {
		return nil
	}

	magnitude := delta
	if magnitude < 0 {
		magnitude = -magnitude
	}
	var n int
	if magnitude > pc.p.ScrollChunkThreshold {
		n = pc.intBetween(pc.p.ScrollStepsLargeMin, pc.p.ScrollStepsLargeMax)
	} else {
		n = pc.intBetween(pc.p.ScrollStepsSmallMin, pc.p.ScrollStepsSmallMax)
	}
	if n < 1 {
		n = 1
	}

	steps := make([]int, n)
	base := float64(delta) / float64(n)
	sum := 0
	for i := 0; i < n-1; i++ {
		step := int(math.Round(base * pc.uniform(pc.p.ScrollJitterLow, pc.p.ScrollJitterHigh)))
		steps[i] = step
		sum += step
	}
	steps[n-1] = delta - sum
	return steps
}

// ScrollPause returns the reading pause between scroll ticks.
func (pc *Pacer) ScrollPause() time.Duration {
	return time.Duration(pc.intBetween(pc.p.ScrollPauseMinMs, pc.p.ScrollPauseMaxMs)) * time.Millisecond
}

// Dwell returns the glance pause before interacting with freshly loaded
// content.
func (pc *Pacer) Dwell() time.Duration {
	return time.Duration(pc.intBetween(pc.p.DwellMinMs, pc.p.DwellMaxMs)) * time.Millisecond
}

// Sleep blocks for d or until the context is done.
func (pc *Pacer) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (pc *Pacer) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + pc.rng.Float64()*(hi-lo)
}

// intBetween returns a uniform integer in [lo, hi].
func (pc *Pacer) intBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + pc.rng.Intn(hi-lo+1)
}

// sampleGaussian samples a value from a Gaussian distribution. A nil rng
// returns the mean, which keeps zero-value tests deterministic.
func sampleGaussian(rng *rand.Rand, mean, stdDev float64) float64 {
	if rng == nil {
		return mean
	}
	return mean + rng.NormFloat64()*stdDev
}
