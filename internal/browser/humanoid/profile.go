// internal/browser/humanoid/profile.go
package humanoid

// Profile holds the population parameters for humanlike input pacing. A
// session samples its own persona from these distributions once, so two
// sessions with the same Profile still behave measurably differently.
type Profile struct {
	// Typing cadence. Hold is how long a key stays down, pause is the gap
	// between consecutive keys.
	KeyHoldMeanMs    float64
	KeyHoldStdDevMs  float64
	KeyPauseMeanMs   float64
	KeyPauseStdDevMs float64
	KeyPauseMinMs    float64

	// Pointer press duration for clicks.
	ClickHoldMinMs int
	ClickHoldMaxMs int

	// Pointer travel time follows Fitts's law: base plus a per-bit cost of
	// the index of difficulty for the distance moved.
	MoveBaseMs   float64
	MovePerBitMs float64

	// Glide trajectory shaping. Curvature scales how far the path bows off
	// the straight line, drift is the perlin wobble amplitude in pixels.
	GlideCurvature float64
	GlideDriftPx   float64

	// Scroll decomposition. Deltas above ChunkThreshold are split into
	// StepsLarge jittered wheel ticks, smaller ones into StepsSmall.
	ScrollChunkThreshold int
	ScrollStepsLargeMin  int
	ScrollStepsLargeMax  int
	ScrollStepsSmallMin  int
	ScrollStepsSmallMax  int
	ScrollJitterLow      float64
	ScrollJitterHigh     float64
	ScrollPauseMinMs     int
	ScrollPauseMaxMs     int

	// Dwell is the reading glance between loading a page and acting on it.
	DwellMinMs int
	DwellMaxMs int
}

// DefaultProfile returns parameters representing an average user.
func DefaultProfile() Profile {
	return Profile{
		KeyHoldMeanMs:    55.0,
		KeyHoldStdDevMs:  15.0,
		KeyPauseMeanMs:   70.0,
		KeyPauseStdDevMs: 28.0,
		KeyPauseMinMs:    35.0,

		ClickHoldMinMs: 50,
		ClickHoldMaxMs: 120,

		MoveBaseMs:   100.0,
		MovePerBitMs: 120.0,

		GlideCurvature: 0.12,
		GlideDriftPx:   2.5,

		ScrollChunkThreshold: 300,
		ScrollStepsLargeMin:  3,
		ScrollStepsLargeMax:  7,
		ScrollStepsSmallMin:  1,
		ScrollStepsSmallMax:  3,
		ScrollJitterLow:      0.8,
		ScrollJitterHigh:     1.2,
		ScrollPauseMinMs:     100,
		ScrollPauseMaxMs:     400,

		DwellMinMs: 800,
		DwellMaxMs: 2500,
	}
}
