// internal/bridge/bridge_test.go
package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/agent"
	"github.com/xkilldash9x/operant/internal/config"
	"github.com/xkilldash9x/operant/internal/search"
)

// -- Fakes --

type fakePage struct {
	mu     sync.Mutex
	calls  []string
	script []string
	fail   map[string]error

	url   string
	title string
	shot  string

	typed    []string
	keysSent [][]string
	scrolls  [][4]int
	pacedScrolls []int
}

func newFakePage() *fakePage {
	return &fakePage{
		fail:  map[string]error{},
		url:   "https://example.com/",
		title: "Example Domain",
		shot:  "data:image/png;base64,aGVsbG8=",
	}
}

func (f *fakePage) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakePage) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakePage) Navigate(context.Context, string) error { return f.record("navigate") }
func (f *fakePage) Back(context.Context) error             { return f.record("back") }
func (f *fakePage) ClickSelector(context.Context, string) error {
	return f.record("click_selector")
}

func (f *fakePage) Type(_ context.Context, text string) error {
	f.mu.Lock()
	f.typed = append(f.typed, "plain:"+text)
	f.mu.Unlock()
	return f.record("type")
}

func (f *fakePage) TypePaced(_ context.Context, text string) error {
	f.mu.Lock()
	f.typed = append(f.typed, "paced:"+text)
	f.mu.Unlock()
	return f.record("type_paced")
}

func (f *fakePage) Keypress(_ context.Context, keys []string) error {
	f.mu.Lock()
	f.keysSent = append(f.keysSent, keys)
	f.mu.Unlock()
	return f.record("keypress")
}

func (f *fakePage) Scroll(_ context.Context, x, y, dx, dy int) error {
	f.mu.Lock()
	f.scrolls = append(f.scrolls, [4]int{x, y, dx, dy})
	f.mu.Unlock()
	return f.record("scroll")
}

func (f *fakePage) ScrollPaced(_ context.Context, dy int) error {
	f.mu.Lock()
	f.pacedScrolls = append(f.pacedScrolls, dy)
	f.mu.Unlock()
	return f.record("scroll_paced")
}

func (f *fakePage) WaitForElement(context.Context, string, string, time.Duration) error {
	return f.record("wait_for_element")
}

func (f *fakePage) Screenshot(context.Context) (string, error) {
	if err := f.record("screenshot"); err != nil {
		return "", err
	}
	return f.shot, nil
}

func (f *fakePage) CurrentURL(context.Context) (string, error) {
	if err := f.record("current_url"); err != nil {
		return "", err
	}
	return f.url, nil
}

func (f *fakePage) EvaluateScript(_ context.Context, script string, out any) error {
	f.mu.Lock()
	f.script = append(f.script, script)
	f.mu.Unlock()
	if err := f.record("evaluate"); err != nil {
		return err
	}
	if strings.Contains(script, "document.title") {
		if p, ok := out.(*string); ok {
			*p = f.title
		}
	}
	return nil
}

func (f *fakePage) Dimensions() (int, int) { return 1280, 720 }

type fakeRunner struct {
	mu        sync.Mutex
	calls     int
	histories [][]schemas.Item

	appended  []schemas.Item
	finalText string
	exchanges int
	err       error
	nilResult bool
}

func (f *fakeRunner) RunFullTurn(_ context.Context, input []schemas.Item, _ []schemas.Tool, history []schemas.Item) (*agent.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.histories = append(f.histories, append([]schemas.Item(nil), history...))

	if f.nilResult {
		return nil, f.err
	}
	updated := append([]schemas.Item(nil), history...)
	updated = append(updated, input...)
	updated = append(updated, f.appended...)
	return &agent.TurnResult{
		FinalText: f.finalText,
		History:   updated,
		Exchanges: f.exchanges,
	}, f.err
}

type fakeSearcher struct {
	mu       sync.Mutex
	requests []schemas.SearchRequest
	result   *schemas.SearchResult
	weather  *search.WeatherReport
	err      error
	stats    *search.Stats
}

func (f *fakeSearcher) Resolve(_ context.Context, req schemas.SearchRequest) (*schemas.SearchResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeSearcher) Weather(_ context.Context, location, language, region string) (*search.WeatherReport, error) {
	f.mu.Lock()
	f.requests = append(f.requests, schemas.SearchRequest{Query: location, Language: language, Region: region})
	f.mu.Unlock()
	return f.weather, f.err
}

func (f *fakeSearcher) Stats() *search.Stats {
	if f.stats == nil {
		f.stats = search.NewStats()
	}
	return f.stats
}

type testHarness struct {
	bridge    *Bridge
	page      *fakePage
	runner    *fakeRunner
	search    *fakeSearcher
	assembled int
}

func newTestBridge(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		page:   newFakePage(),
		runner: &fakeRunner{finalText: "done", exchanges: 1},
		search: &fakeSearcher{},
	}

	cfg := config.NewDefaultConfig()
	cfg.Safety.BlockedDomains = []string{"evil.example"}

	h.bridge = NewBridge(cfg, zap.NewNop())
	h.bridge.assemble = func(context.Context) (*components, error) {
		h.assembled++
		return &components{
			page:   h.page,
			search: h.search,
			runner: h.runner,
			gate:   agent.NewGate(cfg.Safety, zap.NewNop()),
			tools:  Toolset(h.page.Dimensions()),
		}, nil
	}
	return h
}

func initTestBridge(t *testing.T) *testHarness {
	t.Helper()
	h := newTestBridge(t)
	require.NoError(t, h.bridge.Initialize(context.Background()))
	return h
}

// -- Lifecycle --

func TestOperationsRequireInitialize(t *testing.T) {
	t.Parallel()
	h := newTestBridge(t)
	ctx := context.Background()

	_, err := h.bridge.ExecuteTask(ctx, "do something")
	assert.ErrorIs(t, err, errNotInitialized)

	_, err = h.bridge.Navigate(ctx, "https://example.com/", "")
	assert.ErrorIs(t, err, errNotInitialized)

	_, err = h.bridge.SearchStats()
	assert.ErrorIs(t, err, errNotInitialized)
}

func TestExecuteTaskWithoutModelClient(t *testing.T) {
	t.Parallel()
	h := newTestBridge(t)
	keyErr := errors.New("model API key is required")
	h.bridge.assemble = func(context.Context) (*components, error) {
		return &components{page: h.page, search: h.search, runnerErr: keyErr}, nil
	}
	require.NoError(t, h.bridge.Initialize(context.Background()))

	_, err := h.bridge.ExecuteTask(context.Background(), "task")
	require.ErrorIs(t, err, keyErr)

	// The search surface stays alive without a model client.
	_, err = h.bridge.SearchStats()
	assert.NoError(t, err)
}

func TestInitializeIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newTestBridge(t)
	ctx := context.Background()

	require.NoError(t, h.bridge.Initialize(ctx))
	require.NoError(t, h.bridge.Initialize(ctx))
	assert.Equal(t, 1, h.assembled)
}

func TestInitializeSurfacesAssemblyFailure(t *testing.T) {
	t.Parallel()
	h := newTestBridge(t)
	boom := errors.New("no browser")
	h.bridge.assemble = func(context.Context) (*components, error) { return nil, boom }

	err := h.bridge.Initialize(context.Background())
	require.ErrorIs(t, err, boom)

	// A failed initialize leaves the bridge uninitialized.
	_, err = h.bridge.ExecuteTask(context.Background(), "x")
	assert.ErrorIs(t, err, errNotInitialized)
}

func TestCleanupIsIdempotent(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()

	require.NoError(t, h.bridge.Cleanup(ctx))
	require.NoError(t, h.bridge.Cleanup(ctx))

	_, err := h.bridge.ExecuteTask(ctx, "x")
	assert.ErrorIs(t, err, errNotInitialized)
}

func TestCleanupKeepsHistory(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()

	_, err := h.bridge.ExecuteTask(ctx, "first")
	require.NoError(t, err)
	require.NotEmpty(t, h.bridge.History())

	require.NoError(t, h.bridge.Cleanup(ctx))
	assert.NotEmpty(t, h.bridge.History(), "cleanup must not discard the conversation")
}

func TestRestartClearsHistoryAndRebuilds(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()

	_, err := h.bridge.ExecuteTask(ctx, "seed the conversation")
	require.NoError(t, err)
	require.NotEmpty(t, h.bridge.History())

	require.NoError(t, h.bridge.Restart(ctx, nil))
	assert.Empty(t, h.bridge.History())
	assert.Equal(t, 2, h.assembled)
}

func TestRestartAppliesHeadlessOverride(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()
	headless := !h.bridge.Headless()

	require.NoError(t, h.bridge.Restart(ctx, &headless))
	assert.Equal(t, headless, h.bridge.Headless())

	// Absent override keeps the current mode.
	require.NoError(t, h.bridge.Restart(ctx, nil))
	assert.Equal(t, headless, h.bridge.Headless())
}

// -- ExecuteTask --

func TestExecuteTaskRejectsBlankTask(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)

	for _, task := range []string{"", "   ", "\n\t"} {
		_, err := h.bridge.ExecuteTask(context.Background(), task)
		require.Error(t, err)
		assert.Equal(t, agent.ErrCodeInvalidParameters, agent.CodeOf(err))
	}
	assert.Zero(t, h.runner.calls)
}

func TestExecuteTaskGrowsSharedConversation(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()

	first, err := h.bridge.ExecuteTask(ctx, "open the site")
	require.NoError(t, err)
	assert.Equal(t, "done", first.Message)
	assert.Equal(t, "success", first.Status)
	require.Len(t, h.bridge.History(), 1)

	_, err = h.bridge.ExecuteTask(ctx, "now click the link")
	require.NoError(t, err)
	assert.Len(t, h.bridge.History(), 2)

	// The second turn ran on top of the first turn's items.
	require.Len(t, h.runner.histories, 2)
	assert.Empty(t, h.runner.histories[0])
	assert.Len(t, h.runner.histories[1], 1)
}

func TestExecuteTaskCountsActionsFromThisTurnOnly(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()
	h.runner.appended = []schemas.Item{
		{Type: schemas.ItemComputerCall, CallID: "c1"},
		schemas.NewComputerCallOutput("c1", schemas.ComputerOutput{Type: "computer_screenshot"}, nil),
		{Type: schemas.ItemFunctionCall, Name: "goto", CallID: "c2"},
		schemas.NewFunctionCallOutput("c2", "success"),
		{Type: schemas.ItemMessage, Role: "assistant"},
	}

	report, err := h.bridge.ExecuteTask(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, 2, report.ActionsPerformed)

	// A later turn counts only its own actions, not the accumulated ones.
	report, err = h.bridge.ExecuteTask(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, 2, report.ActionsPerformed)
}

func TestExecuteTaskFallbackMessage(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	h.runner.finalText = ""

	report, err := h.bridge.ExecuteTask(context.Background(), "quiet task")
	require.NoError(t, err)
	assert.Equal(t, "Task executed", report.Message)
}

func TestExecuteTaskFailurePreservesHistory(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	h.runner.err = agent.Codef(agent.ErrCodeModelRequest, "model unreachable")
	h.runner.appended = []schemas.Item{{Type: schemas.ItemComputerCall, CallID: "c1"}}

	_, err := h.bridge.ExecuteTask(context.Background(), "doomed task")
	require.Error(t, err)
	assert.Equal(t, agent.ErrCodeModelRequest, agent.CodeOf(err))

	// Everything the turn recorded before failing stays visible to the
	// next task.
	assert.Len(t, h.bridge.History(), 2)
}

func TestExecuteTaskNilResultLeavesHistoryUntouched(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	h.runner.nilResult = true
	h.runner.err = errors.New("hard failure")

	_, err := h.bridge.ExecuteTask(context.Background(), "task")
	require.Error(t, err)
	assert.Empty(t, h.bridge.History())
}

func TestExecuteTaskReportIncludesFinalPageState(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)

	report, err := h.bridge.ExecuteTask(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", report.URL)
	assert.Equal(t, h.page.shot, report.Screenshot)
	assert.NotEmpty(t, report.Timestamp)
}

func TestExecuteTaskToleratesCaptureFailure(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	h.page.fail["screenshot"] = errors.New("capture broke")
	h.page.fail["current_url"] = errors.New("no target")

	report, err := h.bridge.ExecuteTask(context.Background(), "task")
	require.NoError(t, err)
	assert.Empty(t, report.Screenshot)
	assert.Empty(t, report.URL)
	assert.Equal(t, "success", report.Status)
}

func TestHistoryReturnsACopy(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)

	_, err := h.bridge.ExecuteTask(context.Background(), "task")
	require.NoError(t, err)

	got := h.bridge.History()
	require.NotEmpty(t, got)
	got[0] = schemas.Item{Type: schemas.ItemComputerCall}
	assert.Equal(t, schemas.ItemMessage, h.bridge.History()[0].Type)
}

// -- Page operations --

func TestNavigateBlocksBlocklistedDomain(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)

	_, err := h.bridge.Navigate(context.Background(), "https://evil.example/login", "")
	require.Error(t, err)
	assert.Equal(t, agent.ErrCodeSafetyBlocked, agent.CodeOf(err))
	assert.Zero(t, h.page.called("navigate"))
}

func TestNavigateWaitsForSelectorWhenAsked(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()

	report, err := h.bridge.Navigate(ctx, "https://example.com/", "#main")
	require.NoError(t, err)
	assert.Equal(t, 1, h.page.called("navigate"))
	assert.Equal(t, 1, h.page.called("wait_for_element"))
	assert.Equal(t, "https://example.com/", report.URL)
	assert.Equal(t, "Example Domain", report.Title)

	_, err = h.bridge.Navigate(ctx, "https://example.com/", "")
	require.NoError(t, err)
	assert.Equal(t, 1, h.page.called("wait_for_element"), "no wait without a selector")
}

func TestTypeTextClearsWhenAsked(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()

	_, err := h.bridge.TypeText(ctx, "#q", "hello", true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.page.called("click_selector"))
	assert.Contains(t, h.page.typed, "plain:hello")

	var cleared bool
	for _, script := range h.page.script {
		if strings.Contains(script, `el.value = ""`) {
			cleared = true
		}
	}
	assert.True(t, cleared, "clear_first must empty the field before typing")
}

func TestTypeTextPacedRoutesToPacedTyping(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)

	_, err := h.bridge.TypeText(context.Background(), "#q", "slow", false, true)
	require.NoError(t, err)
	assert.Contains(t, h.page.typed, "paced:slow")
	for _, script := range h.page.script {
		assert.NotContains(t, script, `el.value = ""`)
	}
}

func TestScrollRoutesOnHumanlike(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()

	_, err := h.bridge.ScrollBy(ctx, 400, true)
	require.NoError(t, err)
	assert.Equal(t, []int{400}, h.page.pacedScrolls)

	_, err = h.bridge.ScrollBy(ctx, -200, false)
	require.NoError(t, err)
	require.Len(t, h.page.scrolls, 1)
	assert.Equal(t, [4]int{640, 360, 0, -200}, h.page.scrolls[0], "plain scroll targets the viewport center")
}

func TestPageOperationsValidateSelectors(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)
	ctx := context.Background()

	_, err := h.bridge.ClickElement(ctx, "")
	assert.Equal(t, agent.ErrCodeInvalidParameters, agent.CodeOf(err))

	_, err = h.bridge.TypeText(ctx, "", "text", true, false)
	assert.Equal(t, agent.ErrCodeInvalidParameters, agent.CodeOf(err))

	_, err = h.bridge.AwaitElement(ctx, "", "visible", 0)
	assert.Equal(t, agent.ErrCodeInvalidParameters, agent.CodeOf(err))

	_, err = h.bridge.PressKeys(ctx, nil)
	assert.Equal(t, agent.ErrCodeInvalidParameters, agent.CodeOf(err))
}

func TestCaptureScreenshotReturnsDataURLAndPage(t *testing.T) {
	t.Parallel()
	h := initTestBridge(t)

	dataURL, pageURL, err := h.bridge.CaptureScreenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.page.shot, dataURL)
	assert.Equal(t, "https://example.com/", pageURL)
}
