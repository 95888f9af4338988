// internal/browser/navigation_test.go
package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/internal/config"
)

func testNavConfig() config.NavigationConfig {
	return config.NavigationConfig{
		Timeout:    30 * time.Second,
		MinTimeout: 5 * time.Second,
		MaxTimeout: 60 * time.Second,
		Adaptive:   true,
		History:    5,
		Multiplier: 1.5,
	}
}

func TestNavTimerBaseUntilEnoughSamples(t *testing.T) {
	n := newNavTimer(testNavConfig(), zap.NewNop())

	assert.Equal(t, 30*time.Second, n.Timeout())

	n.Record(2 * time.Second)
	n.Record(4 * time.Second)
	assert.Equal(t, 30*time.Second, n.Timeout(), "two samples are not enough to adapt")
	assert.Equal(t, 2, n.Observed())
}

func TestNavTimerAdaptsToRollingAverage(t *testing.T) {
	n := newNavTimer(testNavConfig(), zap.NewNop())

	n.Record(4 * time.Second)
	n.Record(6 * time.Second)
	n.Record(8 * time.Second)

	// avg 6s x 1.5 = 9s.
	assert.Equal(t, 9*time.Second, n.Timeout())
}

func TestNavTimerClampsToBounds(t *testing.T) {
	t.Run("floor", func(t *testing.T) {
		n := newNavTimer(testNavConfig(), zap.NewNop())
		n.Record(500 * time.Millisecond)
		n.Record(500 * time.Millisecond)
		n.Record(500 * time.Millisecond)
		assert.Equal(t, 5*time.Second, n.Timeout(), "fast sites still get the minimum budget")
	})

	t.Run("ceiling", func(t *testing.T) {
		n := newNavTimer(testNavConfig(), zap.NewNop())
		n.Record(90 * time.Second)
		n.Record(90 * time.Second)
		n.Record(90 * time.Second)
		assert.Equal(t, 60*time.Second, n.Timeout(), "slow sites cannot stretch past the ceiling")
	})
}

func TestNavTimerWindowSlides(t *testing.T) {
	n := newNavTimer(testNavConfig(), zap.NewNop())

	// Fill beyond the history limit of 5; only the last five count.
	for _, d := range []time.Duration{
		40 * time.Second,
		10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second,
	} {
		n.Record(d)
	}
	assert.Equal(t, 5, n.Observed())
	// avg 10s x 1.5 = 15s; the 40s outlier fell out of the window.
	assert.Equal(t, 15*time.Second, n.Timeout())
}

func TestNavTimerIgnoresNonPositiveSamples(t *testing.T) {
	n := newNavTimer(testNavConfig(), zap.NewNop())
	n.Record(0)
	n.Record(-3 * time.Second)
	assert.Equal(t, 0, n.Observed())
}

func TestNavTimerAdaptiveDisabled(t *testing.T) {
	cfg := testNavConfig()
	cfg.Adaptive = false
	n := newNavTimer(cfg, zap.NewNop())

	n.Record(2 * time.Second)
	n.Record(2 * time.Second)
	n.Record(2 * time.Second)
	n.Record(2 * time.Second)
	assert.Equal(t, 30*time.Second, n.Timeout())
}
