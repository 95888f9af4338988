// internal/agent/screenshot.go
package agent

import (
	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
)

// ScreenshotPolicy decides, per dispatched action, whether a post-action
// capture is taken. The decision is a pure function of the action's category
// and the configured mode; it carries no state and touches no I/O.
type ScreenshotPolicy struct {
	Mode string
}

// NewScreenshotPolicy builds the policy from the capture configuration.
func NewScreenshotPolicy(cfg config.ScreenshotConfig) ScreenshotPolicy {
	return ScreenshotPolicy{Mode: cfg.Mode}
}

// ShouldCapture reports whether an action of the given category is followed
// by a capture. Waits never are; plain function stubs never touch the target
// so they never are either.
func (p ScreenshotPolicy) ShouldCapture(category schemas.ActionCategory) bool {
	switch p.Mode {
	case config.ScreenshotModeNone:
		return false
	case config.ScreenshotModeSearch:
		return category == schemas.CategorySearch
	case config.ScreenshotModeAll:
		return category == schemas.CategoryVisual || category == schemas.CategorySearch
	default:
		return false
	}
}
