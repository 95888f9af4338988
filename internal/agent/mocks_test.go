// internal/agent/mocks_test.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
	"go.uber.org/zap"
)

// -- Environment Fake --

// fakeEnv implements Environment and records every operation in invocation
// order so tests can assert on exactly what reached the target.
type fakeEnv struct {
	mu          sync.Mutex
	ops         []string
	screenshots int
	waits       []time.Duration
	failOn      map[string]error
	opHook      func(op string)
	caps        map[string]Capability
	url         string
	width       int
	height      int
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		failOn: map[string]error{},
		caps:   map[string]Capability{},
		width:  1024,
		height: 768,
	}
}

func (f *fakeEnv) record(op string) error {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	hook := f.opHook
	err := f.failOn[opName(op)]
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return err
}

// opName strips the argument list from a recorded op.
func opName(op string) string {
	for i := 0; i < len(op); i++ {
		if op[i] == '(' {
			return op[:i]
		}
	}
	return op
}

func (f *fakeEnv) Click(ctx context.Context, x, y int, button schemas.MouseButton) error {
	if err := f.record(fmt.Sprintf("click(%d,%d,%s)", x, y, button)); err != nil {
		return err
	}
	return ctx.Err()
}

func (f *fakeEnv) DoubleClick(ctx context.Context, x, y int) error {
	return f.record(fmt.Sprintf("double_click(%d,%d)", x, y))
}

func (f *fakeEnv) Move(ctx context.Context, x, y int) error {
	return f.record(fmt.Sprintf("move(%d,%d)", x, y))
}

func (f *fakeEnv) Scroll(ctx context.Context, x, y, deltaX, deltaY int) error {
	return f.record(fmt.Sprintf("scroll(%d,%d,%d,%d)", x, y, deltaX, deltaY))
}

func (f *fakeEnv) Type(ctx context.Context, text string) error {
	return f.record(fmt.Sprintf("type(%s)", text))
}

func (f *fakeEnv) Keypress(ctx context.Context, keys []string) error {
	return f.record(fmt.Sprintf("keypress(%v)", keys))
}

func (f *fakeEnv) Drag(ctx context.Context, path []schemas.Point) error {
	return f.record(fmt.Sprintf("drag(%d points)", len(path)))
}

func (f *fakeEnv) Wait(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	return f.record(fmt.Sprintf("wait(%s)", d))
}

func (f *fakeEnv) Screenshot(ctx context.Context) (string, error) {
	if err := f.record("screenshot()"); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.screenshots++
	f.mu.Unlock()
	return "data:image/png;base64,ZmFrZQ==", nil
}

func (f *fakeEnv) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeEnv) Dimensions() (int, int) {
	return f.width, f.height
}

func (f *fakeEnv) Capability(name string) (Capability, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.caps[name]
	return c, ok
}

func (f *fakeEnv) opTrace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// targetOps returns the trace without screenshot captures, which are policy
// driven rather than model proposed.
func (f *fakeEnv) targetOps() []string {
	var ops []string
	for _, op := range f.opTrace() {
		if opName(op) != "screenshot" {
			ops = append(ops, op)
		}
	}
	return ops
}

func (f *fakeEnv) captureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screenshots
}

// -- Model Fake --

// scriptedModel returns canned responses in order and snapshots every request
// input it receives.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*schemas.ModelResponse
	calls     int
	inputs    [][]schemas.Item
	onCall    func(call int) error
}

func (m *scriptedModel) CreateResponse(ctx context.Context, input []schemas.Item, tools []schemas.Tool) (*schemas.ModelResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.inputs = append(m.inputs, append([]schemas.Item(nil), input...))
	hook := m.onCall
	m.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if call > len(m.responses) {
		return respWith(assistantMessage("done")), nil
	}
	return m.responses[call-1], nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// -- Item Builders --

func respWith(items ...schemas.Item) *schemas.ModelResponse {
	return &schemas.ModelResponse{ID: "resp", Output: items}
}

func assistantMessage(text string) schemas.Item {
	return schemas.Item{
		Type:    schemas.ItemMessage,
		Role:    "assistant",
		Content: []schemas.ContentPart{{Type: "output_text", Text: text}},
	}
}

func computerCall(callID string, action schemas.ComputerAction, checks ...schemas.SafetyCheck) schemas.Item {
	return schemas.Item{
		Type:                schemas.ItemComputerCall,
		CallID:              callID,
		Action:              &action,
		PendingSafetyChecks: checks,
	}
}

func functionCall(callID, name, arguments string) schemas.Item {
	return schemas.Item{
		Type:      schemas.ItemFunctionCall,
		CallID:    callID,
		Name:      name,
		Arguments: arguments,
	}
}

func clickAt(x, y int) schemas.ComputerAction {
	return schemas.ComputerAction{Type: schemas.ActionClick, X: x, Y: y, Button: schemas.ButtonLeft}
}

// -- Harness --

type harness struct {
	env        *fakeEnv
	model      *scriptedModel
	gate       *Gate
	dispatcher *Dispatcher
	controller *Controller
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	mode    string
	ackMode string
	maxIter int
	level   config.LogLevel
}

func withMode(mode string) harnessOption {
	return func(c *harnessConfig) { c.mode = mode }
}

func withAckMode(mode string) harnessOption {
	return func(c *harnessConfig) { c.ackMode = mode }
}

func withMaxExchanges(n int) harnessOption {
	return func(c *harnessConfig) { c.maxIter = n }
}

func newHarness(opts ...harnessOption) *harness {
	hc := harnessConfig{
		mode:    config.ScreenshotModeAll,
		ackMode: config.AckModeAuto,
		level:   config.LogAll,
	}
	for _, opt := range opts {
		opt(&hc)
	}

	defaults := config.NewDefaultConfig()
	logger := zap.NewNop()

	env := newFakeEnv()
	model := &scriptedModel{}
	gate := NewGate(defaults.Safety, logger)
	dispatcher := NewDispatcher(ScreenshotPolicy{Mode: hc.mode}, gate, hc.level, logger)
	controller := NewController(
		config.AgentConfig{MaxIterations: hc.maxIter, AckMode: hc.ackMode},
		model, env, dispatcher, gate, logger,
	)
	return &harness{env: env, model: model, gate: gate, dispatcher: dispatcher, controller: controller}
}

// standardTools declares the computer surface plus the functions the fakes
// exercise.
func standardTools() []schemas.Tool {
	return []schemas.Tool{
		schemas.NewComputerTool(1024, 768, "browser"),
		schemas.NewFunctionTool("back", "Go back one page.", nil),
		schemas.NewFunctionTool("goto", "Navigate to a URL.", nil),
		schemas.NewFunctionTool("resilient_search", "Search the web.", nil),
		schemas.NewFunctionTool("weather_lookup", "Look up the weather.", nil),
	}
}
