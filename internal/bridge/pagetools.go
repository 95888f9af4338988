// internal/bridge/pagetools.go

package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/internal/agent"
)

// Navigate drives the live page to a URL, vetting it through the safety gate
// first. When waitSelector is non-empty, the call also waits for that element
// to become visible before reporting.
func (b *Bridge) Navigate(ctx context.Context, url, waitSelector string) (*PageReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}

	if decision := comps.gate.CheckURL(url); !decision.Allowed() {
		return nil, agent.Codef(agent.ErrCodeSafetyBlocked, "%s", decision.Reason)
	}

	start := time.Now()
	if err := comps.page.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigating to %q: %w", url, err)
	}
	if waitSelector != "" {
		if err := comps.page.WaitForElement(ctx, waitSelector, "visible", 0); err != nil {
			return nil, fmt.Errorf("waiting for %q after navigation: %w", waitSelector, err)
		}
	}
	return b.pageReport(ctx, comps, fmt.Sprintf("Navigated to %s", url), start), nil
}

// GoBack moves the page one entry back in its history.
func (b *Bridge) GoBack(ctx context.Context) (*PageReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := comps.page.Back(ctx); err != nil {
		return nil, fmt.Errorf("going back: %w", err)
	}
	return b.pageReport(ctx, comps, "Went back", start), nil
}

// ClickElement clicks the first element matching a CSS selector.
func (b *Bridge) ClickElement(ctx context.Context, selector string) (*PageReport, error) {
	if selector == "" {
		return nil, agent.Codef(agent.ErrCodeInvalidParameters, "selector must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := comps.page.ClickSelector(ctx, selector); err != nil {
		return nil, fmt.Errorf("clicking %q: %w", selector, err)
	}
	return b.pageReport(ctx, comps, fmt.Sprintf("Clicked %s", selector), start), nil
}

// TypeText focuses the element matching selector and types text into it.
// When clearFirst is set the element's value is emptied before typing; when
// paced is set the keystrokes are emitted with humanlike cadence.
func (b *Bridge) TypeText(ctx context.Context, selector, text string, clearFirst, paced bool) (*PageReport, error) {
	if selector == "" {
		return nil, agent.Codef(agent.ErrCodeInvalidParameters, "selector must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := comps.page.ClickSelector(ctx, selector); err != nil {
		return nil, fmt.Errorf("focusing %q: %w", selector, err)
	}
	if clearFirst {
		if err := clearElement(ctx, comps.page, selector); err != nil {
			return nil, fmt.Errorf("clearing %q: %w", selector, err)
		}
	}
	if paced {
		err = comps.page.TypePaced(ctx, text)
	} else {
		err = comps.page.Type(ctx, text)
	}
	if err != nil {
		return nil, fmt.Errorf("typing into %q: %w", selector, err)
	}
	return b.pageReport(ctx, comps, fmt.Sprintf("Typed into %s", selector), start), nil
}

// clearElement empties the matching input's value and fires an input event so
// framework-bound fields notice the change.
func clearElement(ctx context.Context, page pageDriver, selector string) error {
	quoted, err := bridgeJSON.Marshal(selector)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); if (el) { el.value = ""; el.dispatchEvent(new Event("input", {bubbles: true})); } })()`,
		quoted,
	)
	return page.EvaluateScript(ctx, script, nil)
}

// PressKeys sends one or more keys, or a chord, to the page.
func (b *Bridge) PressKeys(ctx context.Context, keys []string) (*PageReport, error) {
	if len(keys) == 0 {
		return nil, agent.Codef(agent.ErrCodeInvalidParameters, "keys must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := comps.page.Keypress(ctx, keys); err != nil {
		return nil, fmt.Errorf("pressing keys: %w", err)
	}
	return b.pageReport(ctx, comps, fmt.Sprintf("Pressed %d key(s)", len(keys)), start), nil
}

// ScrollBy scrolls the page vertically by amount pixels. Positive amounts
// scroll down. When humanlike is set the scroll is broken into paced steps.
func (b *Bridge) ScrollBy(ctx context.Context, amount int, humanlike bool) (*PageReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if humanlike {
		err = comps.page.ScrollPaced(ctx, amount)
	} else {
		width, height := comps.page.Dimensions()
		err = comps.page.Scroll(ctx, width/2, height/2, 0, amount)
	}
	if err != nil {
		return nil, fmt.Errorf("scrolling: %w", err)
	}
	return b.pageReport(ctx, comps, fmt.Sprintf("Scrolled by %d", amount), start), nil
}

// AwaitElement waits for the element matching selector to reach a state.
func (b *Bridge) AwaitElement(ctx context.Context, selector, state string, timeout time.Duration) (*PageReport, error) {
	if selector == "" {
		return nil, agent.Codef(agent.ErrCodeInvalidParameters, "selector must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := comps.page.WaitForElement(ctx, selector, state, timeout); err != nil {
		return nil, fmt.Errorf("waiting for %q: %w", selector, err)
	}
	return b.pageReport(ctx, comps, fmt.Sprintf("Element %s reached state %s", selector, state), start), nil
}

// CaptureScreenshot takes a screenshot of the live page and returns it as a
// data URL alongside the page's current URL.
func (b *Bridge) CaptureScreenshot(ctx context.Context) (dataURL, pageURL string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return "", "", err
	}

	dataURL, err = comps.page.Screenshot(ctx)
	if err != nil {
		return "", "", fmt.Errorf("capturing screenshot: %w", err)
	}
	if url, urlErr := comps.page.CurrentURL(ctx); urlErr == nil {
		pageURL = url
	}
	return dataURL, pageURL, nil
}

// pageReport closes out a page operation with where the page ended up. URL
// and title lookups are best effort.
func (b *Bridge) pageReport(ctx context.Context, comps *components, message string, start time.Time) *PageReport {
	report := &PageReport{
		Status:    "success",
		Message:   message,
		ElapsedMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if url, err := comps.page.CurrentURL(ctx); err == nil {
		report.URL = url
	}
	var title string
	if err := comps.page.EvaluateScript(ctx, "document.title", &title); err == nil {
		report.Title = title
	} else {
		b.logger.Debug("Title lookup failed.", zap.Error(err))
	}
	return report
}
