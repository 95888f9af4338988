// internal/browser/humanoid/glide.go
package humanoid

import (
	"math"
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"
)

// Perlin field parameters: smoothness, harmonic scaling, octave count, and
// how fast the drift wanders along the path.
const (
	perlinAlpha   = 2.0
	perlinBeta    = 2.0
	perlinOctaves = int32(3)
	driftFreq     = 0.8
)

// GlidePoint is one pointer position along a glide path.
type GlidePoint struct {
	X float64
	Y float64
}

// Glide generates curved pointer trajectories for humanlike cursor travel.
// The path bows around a jittered control point and carries low-frequency
// drift that fades out toward the endpoints, so the pointer still lands
// exactly where the caller asked.
type Glide struct {
	rng    *rand.Rand
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
	p      Profile
}

// NewGlide builds a generator with the given persona profile. The seed fixes
// both the curvature jitter and the drift field.
func NewGlide(p Profile, seed int64) *Glide {
	return &Glide{
		rng:    rand.New(rand.NewSource(seed)),
		noiseX: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed),
		noiseY: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed+1),
		p:      p,
	}
}

// Path returns the pointer positions for a glide from (sx, sy) to (ex, ey).
// The last point is always exactly the destination; hops under a few pixels
// collapse to a single point.
func (g *Glide) Path(sx, sy, ex, ey float64) []GlidePoint {
	dx, dy := ex-sx, ey-sy
	dist := math.Hypot(dx, dy)
	if dist < 4 {
		return []GlidePoint{{X: ex, Y: ey}}
	}

	// Roughly one event per 8px of travel, clamped to keep long sweeps from
	// flooding the input queue.
	steps := int(dist / 8)
	if steps < 6 {
		steps = 6
	}
	if steps > 120 {
		steps = 120
	}

	// A single control point perpendicular to the travel line bows the path.
	bend := (g.rng.Float64()*2 - 1) * dist * g.p.GlideCurvature
	mx, my := sx+dx/2, sy+dy/2
	px, py := -dy/dist, dx/dist
	cx, cy := mx+px*bend, my+py*bend

	phase := g.rng.Float64() * 1000

	path := make([]GlidePoint, steps)
	for i := 0; i < steps; i++ {
		t := float64(i+1) / float64(steps)
		et := easeInOutCubic(t)

		// Quadratic Bezier through the control point.
		omt := 1 - et
		x := omt*omt*sx + 2*omt*et*cx + et*et*ex
		y := omt*omt*sy + 2*omt*et*cy + et*et*ey

		// Drift fades toward the endpoints so the landing stays exact.
		fade := 4 * t * (1 - t)
		x += g.noiseX.Noise1D(phase+t*driftFreq) * g.p.GlideDriftPx * fade
		y += g.noiseY.Noise1D(phase+t*driftFreq) * g.p.GlideDriftPx * fade

		path[i] = GlidePoint{X: x, Y: y}
	}
	path[steps-1] = GlidePoint{X: ex, Y: ey}
	return path
}

// StepPause returns the inter-event delay while gliding.
func (g *Glide) StepPause() time.Duration {
	return time.Duration(2+g.rng.Intn(4)) * time.Millisecond
}

// easeInOutCubic shapes progress so travel accelerates then settles.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
