// internal/bridge/bridge.go

// Package bridge adapts the turn controller, the browser environment, and the
// resilient search driver into a Model Context Protocol surface. The Bridge
// owns component lifecycle and the conversation shared across task
// executions; the Server exposes both as MCP tools over stdio or streamable
// HTTP.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/agent"
	"github.com/xkilldash9x/operant/internal/browser"
	"github.com/xkilldash9x/operant/internal/config"
	"github.com/xkilldash9x/operant/internal/modelclient"
	"github.com/xkilldash9x/operant/internal/search"
)

// cleanupBudget bounds the teardown of a live browser during restarts and
// deferred cleanups that no longer have a caller deadline.
const cleanupBudget = 30 * time.Second

var errNotInitialized = errors.New("bridge is not initialized")

// turnRunner drives one full agent turn over a conversation.
type turnRunner interface {
	RunFullTurn(ctx context.Context, input []schemas.Item, tools []schemas.Tool, history []schemas.Item) (*agent.TurnResult, error)
}

// pageDriver is the slice of the browser session the bridge tools drive
// directly, outside of agent turns.
type pageDriver interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	ClickSelector(ctx context.Context, selector string) error
	Type(ctx context.Context, text string) error
	TypePaced(ctx context.Context, text string) error
	Keypress(ctx context.Context, keys []string) error
	Scroll(ctx context.Context, x, y, deltaX, deltaY int) error
	ScrollPaced(ctx context.Context, deltaY int) error
	WaitForElement(ctx context.Context, selector, state string, timeout time.Duration) error
	Screenshot(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	EvaluateScript(ctx context.Context, script string, out any) error
	Dimensions() (int, int)
}

// searcher is the slice of the search controller the bridge tools consume.
type searcher interface {
	Resolve(ctx context.Context, req schemas.SearchRequest) (*schemas.SearchResult, error)
	Weather(ctx context.Context, location, language, region string) (*search.WeatherReport, error)
	Stats() *search.Stats
}

// components are the live collaborators behind an initialized bridge. The
// manager is nil when the components were assembled without a real browser.
// runner is nil when the model client could not be built; runnerErr then
// carries the reason so task execution can surface it.
type components struct {
	manager   *browser.Manager
	page      pageDriver
	search    searcher
	runner    turnRunner
	runnerErr error
	gate      *agent.Gate
	tools     []schemas.Tool
}

// Bridge wires the agent stack together and carries the conversation shared
// across ExecuteTask calls. All operations serialize on one mutex: the
// environment underneath holds a single logical thread of control, so a task,
// a direct page operation, and a restart can never interleave.
type Bridge struct {
	cfg    *config.Config
	logger *zap.Logger

	// assemble builds the live component set. Tests swap it to avoid
	// launching a browser.
	assemble func(ctx context.Context) (*components, error)

	mu          sync.Mutex
	initialized bool
	comps       *components
	history     []schemas.Item
}

// NewBridge creates an uninitialized bridge over the given configuration.
// Nothing is launched until Initialize.
func NewBridge(cfg *config.Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		cfg:    cfg,
		logger: logger.Named("bridge"),
	}
	b.assemble = b.assembleComponents
	return b
}

// Initialize launches the browser, builds the agent stack, and marks the
// bridge ready. Calling it on an initialized bridge is a no-op.
func (b *Bridge) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initializeLocked(ctx)
}

func (b *Bridge) initializeLocked(ctx context.Context) error {
	if b.initialized {
		return nil
	}
	b.logger.Info("Initializing bridge.", zap.Bool("headless", b.cfg.Browser.Headless))

	comps, err := b.assemble(ctx)
	if err != nil {
		return fmt.Errorf("assembling bridge components: %w", err)
	}
	b.comps = comps
	b.initialized = true
	b.logger.Info("Bridge initialized.")
	return nil
}

// assembleComponents builds the real component set: browser manager and
// session, search controller with its capabilities registered, model client,
// and the turn controller on top.
func (b *Bridge) assembleComponents(ctx context.Context) (*components, error) {
	manager, err := browser.NewManager(b.cfg, b.logger)
	if err != nil {
		return nil, err
	}

	session, err := manager.NewSession(ctx)
	if err != nil {
		b.shutdownManager(manager)
		return nil, err
	}

	searchCtl := search.NewController(b.cfg.Search, session, b.logger)
	RegisterSearchCapabilities(session, searchCtl, b.cfg.Search)

	gate := agent.NewGate(b.cfg.Safety, b.logger)
	width, height := session.Dimensions()
	comps := &components{
		manager: manager,
		page:    session,
		search:  searchCtl,
		gate:    gate,
		tools:   Toolset(width, height),
	}

	// A missing API key disables tasks but leaves the page and search tools
	// usable; the error resurfaces on the first task instead.
	model, err := modelclient.NewClient(b.cfg.Model, b.logger)
	if err != nil {
		b.logger.Warn("Model client unavailable; agent tasks are disabled.", zap.Error(err))
		comps.runnerErr = err
		return comps, nil
	}

	policy := agent.NewScreenshotPolicy(b.cfg.Screenshot)
	dispatcher := agent.NewDispatcher(policy, gate, b.cfg.Logger.ParsedLevel(), b.logger)
	comps.runner = agent.NewController(b.cfg.Agent, model, session, dispatcher, gate, b.logger)
	return comps, nil
}

func (b *Bridge) shutdownManager(manager *browser.Manager) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cleanupBudget)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		b.logger.Warn("Browser shutdown after failed assembly reported an error.", zap.Error(err))
	}
}

// Cleanup releases every live component. The conversation history survives a
// cleanup; only Restart discards it. Safe to call more than once.
func (b *Bridge) Cleanup(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanupLocked(ctx)
}

func (b *Bridge) cleanupLocked(ctx context.Context) error {
	if !b.initialized {
		return nil
	}

	var err error
	if b.comps != nil && b.comps.manager != nil {
		err = b.comps.manager.Shutdown(ctx)
	}
	b.comps = nil
	b.initialized = false
	if err != nil {
		return fmt.Errorf("shutting down browser: %w", err)
	}
	b.logger.Info("Bridge cleaned up.")
	return nil
}

// Restart tears the components down and brings up fresh ones, optionally
// switching headless mode, and discards the conversation history. A cleanup
// failure is logged and the restart proceeds.
func (b *Bridge) Restart(ctx context.Context, headless *bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if headless != nil {
		// The config is immutable once built, so the override lives on a copy.
		clone := *b.cfg
		clone.Browser.Headless = *headless
		b.cfg = &clone
	}

	if err := b.cleanupLocked(ctx); err != nil {
		b.logger.Warn("Cleanup during restart failed.", zap.Error(err))
	}
	if err := b.initializeLocked(ctx); err != nil {
		return err
	}

	b.history = nil
	b.logger.Info("Bridge restarted.", zap.Bool("headless", b.cfg.Browser.Headless))
	return nil
}

// Headless reports the browser mode the bridge is configured for.
func (b *Bridge) Headless() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.Browser.Headless
}

// History returns a copy of the shared conversation.
func (b *Bridge) History() []schemas.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]schemas.Item, len(b.history))
	copy(out, b.history)
	return out
}

// live returns the component set, or an error when the bridge has not been
// initialized. The caller holds b.mu.
func (b *Bridge) live() (*components, error) {
	if !b.initialized || b.comps == nil {
		return nil, errNotInitialized
	}
	return b.comps, nil
}

// ExecuteTask runs one full agent turn for the task on top of the shared
// conversation. The turn's items are appended to the history even when the
// turn fails or is cancelled, so the next task sees everything that actually
// happened.
func (b *Bridge) ExecuteTask(ctx context.Context, task string) (*TaskReport, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, agent.Codef(agent.ErrCodeInvalidParameters, "task description must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}
	if comps.runner == nil {
		return nil, fmt.Errorf("agent unavailable: %w", comps.runnerErr)
	}

	b.logger.Info("Executing task.", zap.String("task", task))
	start := time.Now()
	prior := len(b.history)
	input := []schemas.Item{schemas.NewUserMessage(task)}

	result, runErr := comps.runner.RunFullTurn(ctx, input, comps.tools, b.history)
	if result != nil {
		b.history = result.History
	}
	if runErr != nil {
		return nil, runErr
	}

	report := &TaskReport{
		Status:           "success",
		Task:             task,
		Message:          result.FinalText,
		Exchanges:        result.Exchanges,
		ActionsPerformed: countActions(b.history[prior:]),
		ElapsedMs:        time.Since(start).Milliseconds(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
	if report.Message == "" {
		report.Message = "Task executed"
	}

	// Close the report with where the task left the page. Both are best
	// effort; a capture failure does not fail a completed task.
	if url, err := comps.page.CurrentURL(ctx); err == nil {
		report.URL = url
	}
	if shot, err := comps.page.Screenshot(ctx); err == nil {
		report.Screenshot = shot
	} else {
		b.logger.Debug("Final task capture failed.", zap.Error(err))
	}

	b.logger.Info("Task complete.",
		zap.Int("exchanges", report.Exchanges),
		zap.Int("actions", report.ActionsPerformed),
		zap.Int64("elapsed_ms", report.ElapsedMs),
	)
	return report, nil
}

// countActions tallies the action items among the items a turn appended.
func countActions(items []schemas.Item) int {
	n := 0
	for _, it := range items {
		if it.IsPendingAction() {
			n++
		}
	}
	return n
}

// Search resolves a search request through the fallback driver.
func (b *Bridge) Search(ctx context.Context, req schemas.SearchRequest) (*schemas.SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}
	return comps.search.Resolve(ctx, req)
}

// Weather answers a weather lookup for a location through the search driver.
func (b *Bridge) Weather(ctx context.Context, location, language, region string) (*search.WeatherReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}
	return comps.search.Weather(ctx, location, language, region)
}

// SearchStats snapshots the per-engine success and failure tallies.
func (b *Bridge) SearchStats() ([]search.EngineStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	comps, err := b.live()
	if err != nil {
		return nil, err
	}
	return comps.search.Stats().Snapshot(), nil
}

// SearchRequest builds a request for a query from the configured search
// policy, for callers layering their own overrides on top.
func (b *Bridge) SearchRequest(query string) schemas.SearchRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.Search.Request(query)
}
