// internal/browser/executor.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
)

// Per-operation guards. Raw input dispatch is near-instant when the target is
// healthy; a hung renderer should fail the single operation, not the session.
const (
	mouseOpTimeout   = 10 * time.Second
	keyOpTimeout     = 10 * time.Second
	chordOpTimeout   = 5 * time.Second
	scriptOpTimeout  = 20 * time.Second
	captureOpTimeout = 15 * time.Second
)

// executor adapts abstract input primitives onto raw CDP dispatch. It runs
// everything through the session's RunActions so context combination lives in
// one place.
type executor struct {
	logger         *zap.Logger
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
}

// buttonsMask returns the CDP "buttons" bitmask for a held button.
func buttonsMask(button schemas.MouseButton) int64 {
	switch button {
	case schemas.ButtonLeft:
		return 1
	case schemas.ButtonRight:
		return 2
	case schemas.ButtonMiddle:
		return 4
	case schemas.ButtonBack:
		return 8
	case schemas.ButtonForward:
		return 16
	}
	return 0
}

// pressMouse dispatches a mousePressed event at (x, y).
func (e *executor) pressMouse(ctx context.Context, x, y float64, button schemas.MouseButton, clickCount int) error {
	p := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.MouseButton(button)).
		WithButtons(buttonsMask(button)).
		WithClickCount(int64(clickCount))
	return e.dispatchMouse(ctx, p, "mousePressed")
}

// releaseMouse dispatches a mouseReleased event at (x, y).
func (e *executor) releaseMouse(ctx context.Context, x, y float64, button schemas.MouseButton, clickCount int) error {
	p := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.MouseButton(button)).
		WithButtons(0).
		WithClickCount(int64(clickCount))
	return e.dispatchMouse(ctx, p, "mouseReleased")
}

// moveMouse dispatches a mouseMoved event. heldButton is None for a free
// move and the pressed button while dragging.
func (e *executor) moveMouse(ctx context.Context, x, y float64, heldButton schemas.MouseButton) error {
	p := input.DispatchMouseEvent(input.MouseMoved, x, y)
	if heldButton != "" {
		p = p.WithButton(input.MouseButton(heldButton)).WithButtons(buttonsMask(heldButton))
	}
	return e.dispatchMouse(ctx, p, "mouseMoved")
}

// wheel dispatches a mouseWheel event with the given deltas at (x, y).
func (e *executor) wheel(ctx context.Context, x, y, deltaX, deltaY float64) error {
	p := input.DispatchMouseEvent(input.MouseWheel, x, y).
		WithDeltaX(deltaX).
		WithDeltaY(deltaY)
	return e.dispatchMouse(ctx, p, "mouseWheel")
}

func (e *executor) dispatchMouse(ctx context.Context, p *input.DispatchMouseEventParams, kind string) error {
	opCtx, cancel := context.WithTimeout(ctx, mouseOpTimeout)
	defer cancel()

	err := e.runActionsFunc(opCtx, p)
	if err != nil && opCtx.Err() == context.DeadlineExceeded {
		e.logger.Debug("Mouse event dispatch timed out.", zap.String("kind", kind), zap.Duration("timeout", mouseOpTimeout))
		return fmt.Errorf("%s dispatch timed out after %v: %w", kind, mouseOpTimeout, opCtx.Err())
	}
	return err
}

// sendText types a string of characters through the keyboard layer.
func (e *executor) sendText(ctx context.Context, text string) error {
	opCtx, cancel := context.WithTimeout(ctx, keyOpTimeout)
	defer cancel()

	err := e.runActionsFunc(opCtx, chromedp.KeyEvent(text))
	if err != nil && opCtx.Err() == context.DeadlineExceeded {
		e.logger.Debug("Text dispatch timed out.", zap.Duration("timeout", keyOpTimeout))
		return fmt.Errorf("text dispatch timed out after %v: %w", keyOpTimeout, opCtx.Err())
	}
	return err
}

// pressChord dispatches a key combination: modifiers held down in order,
// terminal keys tapped under the modifier bitmask, modifiers released in
// reverse. A modifier-only chord taps the modifiers themselves.
func (e *executor) pressChord(ctx context.Context, keys []string) error {
	modifiers, terminals := splitChord(keys)

	var bitmask input.Modifier
	var actions []chromedp.Action

	for _, m := range modifiers {
		actions = append(actions, input.DispatchKeyEvent(input.KeyDown).
			WithModifiers(bitmask).
			WithKey(m))
		bitmask |= modifierBit(m)
	}

	if len(terminals) == 0 {
		// Nothing to press under the modifiers; tap them instead.
		for i := len(modifiers) - 1; i >= 0; i-- {
			bitmask &^= modifierBit(modifiers[i])
			actions = append(actions, input.DispatchKeyEvent(input.KeyUp).
				WithModifiers(bitmask).
				WithKey(modifiers[i]))
		}
	} else {
		for _, k := range terminals {
			actions = append(actions,
				input.DispatchKeyEvent(input.KeyDown).WithModifiers(bitmask).WithKey(k),
				input.DispatchKeyEvent(input.KeyUp).WithModifiers(bitmask).WithKey(k),
			)
		}
		for i := len(modifiers) - 1; i >= 0; i-- {
			bitmask &^= modifierBit(modifiers[i])
			actions = append(actions, input.DispatchKeyEvent(input.KeyUp).
				WithModifiers(bitmask).
				WithKey(modifiers[i]))
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, chordOpTimeout)
	defer cancel()

	if err := e.runActionsFunc(opCtx, actions...); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			e.logger.Debug("Chord dispatch timed out.", zap.Duration("timeout", chordOpTimeout))
			return fmt.Errorf("chord dispatch timed out after %v: %w", chordOpTimeout, opCtx.Err())
		}
		return fmt.Errorf("dispatching chord: %w", err)
	}
	return nil
}

// evaluate runs a script in the page, awaiting promises and returning the
// value by JSON.
func (e *executor) evaluate(ctx context.Context, script string, res *json.RawMessage) error {
	opCtx, cancel := context.WithTimeout(ctx, scriptOpTimeout)
	defer cancel()

	err := e.runActionsFunc(opCtx,
		chromedp.Evaluate(script, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("script evaluation timed out after %v: %w", scriptOpTimeout, opCtx.Err())
		}
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// capture takes a screenshot of the current viewport in the given format.
// Quality only applies to jpeg.
func (e *executor) capture(ctx context.Context, format string, quality int) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, captureOpTimeout)
	defer cancel()

	var buf []byte
	err := e.runActionsFunc(opCtx, chromedp.ActionFunc(func(c context.Context) error {
		p := page.CaptureScreenshot()
		if format == "jpeg" {
			p = p.WithFormat(page.CaptureScreenshotFormatJpeg).WithQuality(int64(quality))
		} else {
			p = p.WithFormat(page.CaptureScreenshotFormatPng)
		}
		var err error
		buf, err = p.Do(c)
		return err
	}))
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("capture timed out after %v: %w", captureOpTimeout, opCtx.Err())
		}
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	return buf, nil
}

// jsonEncode safely encodes a value for embedding in a script literal.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
