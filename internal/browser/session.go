// internal/browser/session.go
package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/agent"
	"github.com/xkilldash9x/operant/internal/browser/humanoid"
	"github.com/xkilldash9x/operant/internal/config"
)

// Session represents an active browser session (a tab). It implements the
// agent.Environment contract on top of raw CDP input dispatch and doubles as
// the page driver for the resilient search controller.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    *config.Config

	// parentCtx is the allocator-level chromedp context the tab derives from;
	// controllerCtx carries the browser connection for target lifecycle commands.
	parentCtx     context.Context
	controllerCtx context.Context

	exec  *executor
	pacer *humanoid.Pacer
	glide *humanoid.Glide
	nav   *navTimer
	store *ScreenshotStore

	onClose func()

	mu               sync.Mutex
	ctx              context.Context
	cancel           context.CancelFunc
	browserContextID cdp.BrowserContextID
	caps             map[string]agent.Capability
	pointerX         float64
	pointerY         float64
	isInitialized    bool
	isClosed         bool
}

// Ensure Session implements the interface.
var _ agent.Environment = (*Session)(nil)

// NewSession creates a new Session wrapper. Initialize must be called before
// the session can drive a page.
func NewSession(parentCtx, controllerCtx context.Context, cfg *config.Config, store *ScreenshotStore, logger *zap.Logger) *Session {
	sessionID := uuid.New().String()
	sessionLogger := logger.Named("session").With(zap.String("session_id", sessionID))

	profile := humanoid.DefaultProfile()
	seed := time.Now().UnixNano()
	s := &Session{
		id:            sessionID,
		logger:        sessionLogger,
		cfg:           cfg,
		parentCtx:     parentCtx,
		controllerCtx: controllerCtx,
		pacer:         humanoid.NewPacer(profile, seed),
		glide:         humanoid.NewGlide(profile, seed),
		nav:           newNavTimer(cfg.Browser.Navigation, sessionLogger),
		store:         store,
		caps:          map[string]agent.Capability{},
		pointerX:      float64(cfg.Browser.Viewport.Width) / 2,
		pointerY:      float64(cfg.Browser.Viewport.Height) / 2,
	}
	s.exec = &executor{logger: sessionLogger, runActionsFunc: s.RunActions}
	s.registerBuiltinCapabilities()
	return s
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// SetOnClose registers a hook invoked exactly once when the session closes.
func (s *Session) SetOnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Initialize creates an isolated browser context and tab for the session,
// then applies the configured viewport and cache mode.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.isInitialized {
		s.mu.Unlock()
		return fmt.Errorf("session already initialized")
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before session setup: %w", err)
	}

	// 1. Create an isolated browser context (an incognito profile) so tab
	// state never bleeds between sessions.
	browserContextID, err := target.CreateBrowserContext().Do(s.controllerCtx)
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	// 2. Create the tab inside it.
	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(browserContextID).
		Do(s.controllerCtx)
	if err != nil {
		s.bestEffortDisposeContext(browserContextID)
		return fmt.Errorf("failed to create target: %w", err)
	}

	// 3. Attach a chromedp context to the new tab.
	sessionCtx, cancelSession := chromedp.NewContext(s.parentCtx, chromedp.WithTargetID(targetID))

	s.mu.Lock()
	s.ctx = sessionCtx
	s.cancel = cancelSession
	s.browserContextID = browserContextID
	s.isInitialized = true
	s.mu.Unlock()

	success := false
	defer func() {
		if !success {
			s.Close(context.Background())
		}
	}()

	// 4. Ensure the CDP connection to the target is live.
	if err := s.RunActions(ctx); err != nil {
		return fmt.Errorf("failed to establish target connection: %w", err)
	}

	// 5. Apply the advertised viewport and cache mode.
	if err := s.applySurface(ctx); err != nil {
		return fmt.Errorf("failed to configure session surface: %w", err)
	}

	success = true
	s.logger.Info("Browser session initialized and ready.")
	return nil
}

// applySurface pins the viewport the model reasons about and disables the
// cache when configured.
func (s *Session) applySurface(ctx context.Context) error {
	width, height := s.Dimensions()
	return s.RunActions(ctx,
		chromedp.ActionFunc(func(c context.Context) error {
			if s.cfg.Browser.DisableCache {
				if err := network.SetCacheDisabled(true).Do(c); err != nil {
					s.logger.Warn("Failed to disable browser cache.", zap.Error(err))
				}
			}
			if width <= 0 || height <= 0 {
				return nil
			}
			return emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1.0, false).
				WithScreenOrientation(&emulation.ScreenOrientation{
					Type:  emulation.OrientationTypeLandscapePrimary,
					Angle: 0,
				}).Do(c)
		}),
	)
}

func (s *Session) bestEffortDisposeContext(id cdp.BrowserContextID) {
	if s.controllerCtx.Err() != nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(s.controllerCtx, 5*time.Second)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(cleanupCtx); err != nil {
		s.logger.Debug("Failed best-effort cleanup of browser context.",
			zap.String("browser_context_id", string(id)), zap.Error(err))
	}
}

// RunActions executes chromedp actions, ensuring they respect both the session
// lifetime and the incoming request context. The combined context derives from
// the session context so CDP target routing stays intact.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	sessionCtx := s.ctx
	active := s.isInitialized && !s.isClosed
	s.mu.Unlock()

	if !active || sessionCtx == nil {
		return fmt.Errorf("session is not active")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := CombineContext(sessionCtx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's cancellation or deadline over the CDP-level
		// error it induced.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// -- Computer operations --

// Click presses and releases a pointer button at (x, y). The history buttons
// translate into history navigation instead of raw pointer events.
func (s *Session) Click(ctx context.Context, x, y int, button schemas.MouseButton) error {
	switch button {
	case schemas.ButtonBack:
		return s.Back(ctx)
	case schemas.ButtonForward:
		return s.Forward(ctx)
	case "":
		button = schemas.ButtonLeft
	}

	fx, fy := float64(x), float64(y)
	if err := s.exec.moveMouse(ctx, fx, fy, ""); err != nil {
		return err
	}
	s.setPointer(fx, fy)
	if err := s.exec.pressMouse(ctx, fx, fy, button, 1); err != nil {
		return err
	}
	if err := s.pacer.Sleep(ctx, s.pacer.ClickHold()); err != nil {
		return err
	}
	return s.exec.releaseMouse(ctx, fx, fy, button, 1)
}

// GlideClick travels the pointer to (x, y) along a humanlike curved path and
// clicks there. The search flows use it so result selection looks organic.
func (s *Session) GlideClick(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)

	s.mu.Lock()
	startX, startY := s.pointerX, s.pointerY
	s.mu.Unlock()

	for _, p := range s.glide.Path(startX, startY, fx, fy) {
		if err := s.exec.moveMouse(ctx, p.X, p.Y, ""); err != nil {
			return err
		}
		if err := s.pacer.Sleep(ctx, s.glide.StepPause()); err != nil {
			return err
		}
	}
	s.setPointer(fx, fy)

	if err := s.exec.pressMouse(ctx, fx, fy, schemas.ButtonLeft, 1); err != nil {
		return err
	}
	if err := s.pacer.Sleep(ctx, s.pacer.ClickHold()); err != nil {
		return err
	}
	return s.exec.releaseMouse(ctx, fx, fy, schemas.ButtonLeft, 1)
}

func (s *Session) setPointer(x, y float64) {
	s.mu.Lock()
	s.pointerX, s.pointerY = x, y
	s.mu.Unlock()
}

// DoubleClick issues the two press/release cycles of a native double click.
func (s *Session) DoubleClick(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)
	if err := s.exec.moveMouse(ctx, fx, fy, ""); err != nil {
		return err
	}
	s.setPointer(fx, fy)
	for count := 1; count <= 2; count++ {
		if err := s.exec.pressMouse(ctx, fx, fy, schemas.ButtonLeft, count); err != nil {
			return err
		}
		if err := s.exec.releaseMouse(ctx, fx, fy, schemas.ButtonLeft, count); err != nil {
			return err
		}
	}
	return nil
}

// Move repositions the pointer without pressing anything.
func (s *Session) Move(ctx context.Context, x, y int) error {
	if err := s.exec.moveMouse(ctx, float64(x), float64(y), ""); err != nil {
		return err
	}
	s.setPointer(float64(x), float64(y))
	return nil
}

// Scroll dispatches a wheel event with the given deltas at (x, y).
func (s *Session) Scroll(ctx context.Context, x, y, deltaX, deltaY int) error {
	return s.exec.wheel(ctx, float64(x), float64(y), float64(deltaX), float64(deltaY))
}

// Type sends the text through the keyboard layer in one burst.
func (s *Session) Type(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return s.exec.sendText(ctx, text)
}

// Keypress dispatches the key combination as a single chord.
func (s *Session) Keypress(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.exec.pressChord(ctx, keys)
}

// Drag presses at the first point, sweeps through the path with the button
// held, and releases at the last point.
func (s *Session) Drag(ctx context.Context, path []schemas.Point) error {
	if len(path) < 2 {
		return fmt.Errorf("drag path needs at least two points, got %d", len(path))
	}
	start := path[0]
	if err := s.exec.moveMouse(ctx, float64(start.X), float64(start.Y), ""); err != nil {
		return err
	}
	if err := s.exec.pressMouse(ctx, float64(start.X), float64(start.Y), schemas.ButtonLeft, 1); err != nil {
		return err
	}
	for _, p := range path[1:] {
		if err := s.exec.moveMouse(ctx, float64(p.X), float64(p.Y), schemas.ButtonLeft); err != nil {
			return err
		}
	}
	end := path[len(path)-1]
	s.setPointer(float64(end.X), float64(end.Y))
	return s.exec.releaseMouse(ctx, float64(end.X), float64(end.Y), schemas.ButtonLeft, 1)
}

// Wait pauses without touching the page.
func (s *Session) Wait(ctx context.Context, d time.Duration) error {
	return s.pacer.Sleep(ctx, d)
}

// Screenshot captures the viewport, feeds the on-disk store, and returns the
// capture as a data URL.
func (s *Session) Screenshot(ctx context.Context) (string, error) {
	data, err := s.exec.capture(ctx, s.cfg.Screenshot.Format, s.cfg.Screenshot.Quality)
	if err != nil {
		return "", err
	}
	if _, err := s.store.Save(data); err != nil {
		s.logger.Warn("Failed to persist screenshot.", zap.Error(err))
	}
	mime := "image/png"
	if s.cfg.Screenshot.Format == "jpeg" {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

// CurrentURL reports the page the tab is currently on.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var url string
	if err := s.RunActions(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("resolving current location: %w", err)
	}
	return url, nil
}

// Dimensions reports the viewport advertised to the model.
func (s *Session) Dimensions() (int, int) {
	return s.cfg.Browser.Viewport.Width, s.cfg.Browser.Viewport.Height
}

// Capability resolves a registered extension operation by name.
func (s *Session) Capability(name string) (agent.Capability, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caps[name]
	return c, ok
}

// RegisterCapability exposes an extension operation to the dispatcher. Later
// registrations under the same name win, which lets composition override the
// builtin page operations.
func (s *Session) RegisterCapability(name string, capability agent.Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[name] = capability
}

// -- Page driving --

// Navigate loads a URL and waits for the document body, within the adaptive
// navigation budget. Completed loads feed the budget for the next one.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.nav.Timeout()
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url), zap.Duration("budget", timeout))
	start := time.Now()
	err := s.RunActions(opCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, timeout, opCtx.Err())
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	s.nav.Record(time.Since(start))
	return nil
}

// Back walks one entry back in tab history.
func (s *Session) Back(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.nav.Timeout())
	defer cancel()
	return s.RunActions(opCtx, chromedp.NavigateBack())
}

// Forward walks one entry forward in tab history.
func (s *Session) Forward(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.nav.Timeout())
	defer cancel()
	return s.RunActions(opCtx, chromedp.NavigateForward())
}

// Reload refreshes the current page and waits for the body.
func (s *Session) Reload(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.nav.Timeout())
	defer cancel()
	return s.RunActions(opCtx, chromedp.Reload(), chromedp.WaitReady("body", chromedp.ByQuery))
}

// HTML returns the serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	var content string
	if err := s.RunActions(opCtx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("retrieving document: %w", err)
	}
	return content, nil
}

// EvaluateScript runs a script in the page and decodes its JSON result into
// out. Pass nil to discard the result.
func (s *Session) EvaluateScript(ctx context.Context, script string, out any) error {
	var raw json.RawMessage
	if err := s.exec.evaluate(ctx, script, &raw); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding script result: %w", err)
	}
	return nil
}

// WaitForElement blocks until the selector reaches the given state. States
// follow the usual DOM vocabulary: visible, hidden, attached, detached.
func (s *Session) WaitForElement(ctx context.Context, selector, state string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.nav.Timeout()
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var action chromedp.Action
	switch state {
	case "", "visible":
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	case "hidden":
		action = chromedp.WaitNotVisible(selector, chromedp.ByQuery)
	case "attached":
		action = chromedp.WaitReady(selector, chromedp.ByQuery)
	case "detached":
		action = chromedp.WaitNotPresent(selector, chromedp.ByQuery)
	default:
		return fmt.Errorf("unknown element state %q", state)
	}

	if err := s.RunActions(opCtx, action); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("element %q did not become %s within %v: %w", selector, state, timeout, opCtx.Err())
		}
		return err
	}
	return nil
}

// ClickSelector clicks the center of the first visible element matching the
// selector, using the same pointer pipeline as coordinate clicks.
func (s *Session) ClickSelector(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(function(sel) {
		const node = document.querySelector(sel);
		if (!node) return null;
		const rect = node.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) return null;
		return { x: Math.round(rect.left + rect.width / 2), y: Math.round(rect.top + rect.height / 2) };
	})(%s);`, jsonEncode(selector))

	var raw json.RawMessage
	if err := s.exec.evaluate(ctx, script, &raw); err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("element %q not found or not visible", selector)
	}
	var center struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	if err := json.Unmarshal(raw, &center); err != nil {
		return fmt.Errorf("decoding element center: %w", err)
	}
	return s.GlideClick(ctx, center.X, center.Y)
}

// TypePaced types text with human key cadence, one character per dispatch
// with sampled gaps.
func (s *Session) TypePaced(ctx context.Context, text string) error {
	for _, r := range text {
		if err := s.exec.sendText(ctx, string(r)); err != nil {
			return err
		}
		if err := s.pacer.Sleep(ctx, s.pacer.KeyPause()); err != nil {
			return err
		}
	}
	return nil
}

// ScrollPaced scrolls by deltaY in human-looking chunks with pauses between
// steps.
func (s *Session) ScrollPaced(ctx context.Context, deltaY int) error {
	width, height := s.Dimensions()
	x, y := float64(width)/2, float64(height)/2
	for _, step := range s.pacer.ScrollSteps(deltaY) {
		if err := s.exec.wheel(ctx, x, y, 0, float64(step)); err != nil {
			return err
		}
		if err := s.pacer.Sleep(ctx, s.pacer.ScrollPause()); err != nil {
			return err
		}
	}
	return nil
}

// Dwell idles for a human-looking reading pause.
func (s *Session) Dwell(ctx context.Context) error {
	return s.pacer.Sleep(ctx, s.pacer.Dwell())
}

// -- Lifecycle --

// Close terminates the browser session gracefully. Safe to call more than
// once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	cancelSession := s.cancel
	browserContextID := s.browserContextID
	onClose := s.onClose
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	// 1. Cancel the session context, detaching from the tab.
	if cancelSession != nil {
		cancelSession()
	}

	// 2. Dispose the isolated browser context, which also closes the tab.
	if browserContextID != "" {
		s.bestEffortDisposeContext(browserContextID)
	}

	// 3. Execute the onClose callback.
	if onClose != nil {
		onClose()
	}
	return nil
}

// -- Builtin capabilities --

func (s *Session) registerBuiltinCapabilities() {
	s.caps["back"] = func(ctx context.Context, args map[string]any) (any, error) {
		if err := s.Back(ctx); err != nil {
			return nil, err
		}
		return s.locationResult(ctx, "went back")
	}
	s.caps["forward"] = func(ctx context.Context, args map[string]any) (any, error) {
		if err := s.Forward(ctx); err != nil {
			return nil, err
		}
		return s.locationResult(ctx, "went forward")
	}
	s.caps["goto"] = func(ctx context.Context, args map[string]any) (any, error) {
		url := stringArg(args, "url")
		if url == "" {
			return nil, agent.Codef(agent.ErrCodeInvalidParameters, "goto requires a url argument")
		}
		if err := s.Navigate(ctx, url); err != nil {
			return nil, err
		}
		return s.locationResult(ctx, "navigated")
	}
	s.caps["refresh"] = func(ctx context.Context, args map[string]any) (any, error) {
		if err := s.Reload(ctx); err != nil {
			return nil, err
		}
		return s.locationResult(ctx, "refreshed")
	}
	s.caps["wait_for_element"] = func(ctx context.Context, args map[string]any) (any, error) {
		selector := stringArg(args, "selector")
		if selector == "" {
			return nil, agent.Codef(agent.ErrCodeInvalidParameters, "wait_for_element requires a selector argument")
		}
		state := stringArg(args, "state")
		if state == "" {
			state = "visible"
		}
		timeout := time.Duration(intArg(args, "timeout_ms")) * time.Millisecond
		if err := s.WaitForElement(ctx, selector, state, timeout); err != nil {
			return nil, err
		}
		return map[string]any{"status": "success", "selector": selector, "state": state}, nil
	}
}

func (s *Session) locationResult(ctx context.Context, status string) (any, error) {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return map[string]any{"status": status}, nil
	}
	return map[string]any{"status": status, "url": url}, nil
}

// stringArg pulls a string argument out of a decoded function payload.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// intArg pulls a numeric argument, tolerating JSON's float64 decoding.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// CombineContext creates a new context derived from sessionCtx that is
// canceled when either sessionCtx or opCtx is canceled. The combined context
// inherits values from sessionCtx, which is what keeps chromedp's target
// routing working while the operational deadline still applies.
func CombineContext(sessionCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(sessionCtx)

	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
