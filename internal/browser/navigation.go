// internal/browser/navigation.go
package browser

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/internal/config"
)

// minAdaptiveSamples is how many navigations must be observed before the
// adaptive timeout overrides the configured base.
const minAdaptiveSamples = 3

// navTimer derives the navigation timeout from recent page load times. Until
// enough samples exist, or when adaptation is disabled, it reports the
// configured base timeout. Afterwards it reports the multiplier times the
// rolling average of the last History loads, clamped to the configured
// bounds. Slow sites stretch the allowance, snappy ones tighten it.
type navTimer struct {
	cfg    config.NavigationConfig
	logger *zap.Logger

	mu      sync.Mutex
	samples []time.Duration
}

func newNavTimer(cfg config.NavigationConfig, logger *zap.Logger) *navTimer {
	return &navTimer{cfg: cfg, logger: logger}
}

// Timeout reports the budget for the next navigation.
func (n *navTimer) Timeout() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.cfg.Adaptive || len(n.samples) < minAdaptiveSamples {
		return n.cfg.Timeout
	}

	var total time.Duration
	for _, s := range n.samples {
		total += s
	}
	avg := total / time.Duration(len(n.samples))
	adapted := time.Duration(float64(avg) * n.cfg.Multiplier)

	if adapted < n.cfg.MinTimeout {
		adapted = n.cfg.MinTimeout
	}
	if adapted > n.cfg.MaxTimeout {
		adapted = n.cfg.MaxTimeout
	}
	return adapted
}

// Record feeds one completed navigation into the rolling window.
func (n *navTimer) Record(d time.Duration) {
	if d <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.samples = append(n.samples, d)
	if limit := n.cfg.History; limit > 0 && len(n.samples) > limit {
		n.samples = n.samples[len(n.samples)-limit:]
	}
	n.logger.Debug("Recorded navigation time.",
		zap.Duration("elapsed", d),
		zap.Int("window", len(n.samples)),
	)
}

// Observed reports how many navigations are in the current window.
func (n *navTimer) Observed() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.samples)
}
