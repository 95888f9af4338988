// internal/agent/dispatcher.go
package agent

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
)

var dispatchJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// stubOutput is the fixed placeholder answering a declared function the
// environment has no capability for. It is byte-identical on every dispatch
// so repeated stub calls cannot leak nondeterminism into the conversation.
const stubOutput = "success"

// defaultWait applies when a wait action arrives without a duration.
const defaultWait = 1 * time.Second

// DispatchResult is the outcome of routing one pending action.
type DispatchResult struct {
	// Outcome is the history item answering the action.
	Outcome schemas.Item
	// Captured reports whether a post-action screenshot was taken.
	Captured bool
}

// Dispatcher routes a single pending action item to the execution target and
// shapes the outcome item the conversation needs in response. Every failure
// mode short of context cancellation is encoded into the outcome; the turn
// loop never stops on a dispatch failure.
type Dispatcher struct {
	policy     ScreenshotPolicy
	gate       *Gate
	logActions bool
	logger     *zap.Logger
}

// NewDispatcher builds a dispatcher. The gate vets post-action navigation
// targets; pre-dispatch checks belong to the controller.
func NewDispatcher(policy ScreenshotPolicy, gate *Gate, level config.LogLevel, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		policy:     policy,
		gate:       gate,
		logActions: level.Enables(config.LogAction),
		logger:     logger.Named("dispatcher"),
	}
}

// Dispatch routes one pending action against env and returns the outcome to
// append to history. The returned error is non-nil only when the context was
// cancelled; everything else is recorded inside the outcome item.
func (d *Dispatcher) Dispatch(ctx context.Context, item schemas.Item, env Environment, tools []schemas.Tool) (DispatchResult, error) {
	if err := ctx.Err(); err != nil {
		return DispatchResult{}, Coded(ErrCodeCancelled, err)
	}

	switch item.Type {
	case schemas.ItemComputerCall:
		return d.dispatchComputerCall(ctx, item, env)
	case schemas.ItemFunctionCall:
		return d.dispatchFunctionCall(ctx, item, env, tools)
	default:
		// The controller only feeds pending actions here; answer anything
		// else with a function style outcome so the conversation can
		// continue.
		d.logger.Error("Dispatch received a non-action item.", zap.String("item_type", string(item.Type)))
		out := failureJSON(ErrCodeUnroutableAction, fmt.Sprintf("item type %q is not dispatchable", item.Type))
		return DispatchResult{Outcome: schemas.NewFunctionCallOutput(item.CallID, out)}, nil
	}
}

// -- Computer Calls --

func (d *Dispatcher) dispatchComputerCall(ctx context.Context, item schemas.Item, env Environment) (DispatchResult, error) {
	out := schemas.ComputerOutput{Type: "input_image"}
	result := DispatchResult{}

	if item.Action == nil {
		out.Error = string(ErrCodeInvalidParameters) + ": computer_call carries no action payload"
		result.Outcome = schemas.NewComputerCallOutput(item.CallID, out, nil)
		return result, nil
	}
	action := *item.Action

	if !action.Type.IsBuiltin() {
		d.logger.Warn("Unroutable computer action.", zap.String("action_type", string(action.Type)))
		out.Error = fmt.Sprintf("%s: unknown computer action %q", ErrCodeUnroutableAction, action.Type)
		result.Outcome = schemas.NewComputerCallOutput(item.CallID, out, nil)
		return result, nil
	}

	if d.logActions {
		d.logger.Info("Executing computer action.",
			zap.String("action_type", string(action.Type)),
			zap.Int("x", action.X),
			zap.Int("y", action.Y),
		)
	}

	if err := d.execute(ctx, env, action); err != nil {
		if ctx.Err() != nil {
			return DispatchResult{}, Coded(ErrCodeCancelled, ctx.Err())
		}
		d.logger.Warn("Computer action failed.",
			zap.String("action_type", string(action.Type)),
			zap.Error(err),
		)
		out.Error = fmt.Sprintf("%s: %v", CodeOf(err), err)
	}

	if d.policy.ShouldCapture(action.Category()) {
		image, err := env.Screenshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return DispatchResult{}, Coded(ErrCodeCancelled, ctx.Err())
			}
			d.logger.Warn("Post-action capture failed.", zap.Error(err))
			if out.Error == "" {
				out.Error = fmt.Sprintf("%s: screenshot failed: %v", ErrCodeExecutionTarget, err)
			}
		} else {
			out.ImageURL = image
			result.Captured = true
		}
	}

	if url, err := env.CurrentURL(ctx); err == nil && url != "" {
		out.CurrentURL = url
		// A builtin action can land the page somewhere the gate forbids, for
		// example a click on an outbound link. Record the violation and keep
		// the capture out of the conversation.
		if decision := d.gate.CheckURL(url); !decision.Allowed() {
			out.Error = fmt.Sprintf("%s: %s", ErrCodeSafetyBlocked, decision.Reason)
			out.ImageURL = ""
		}
	} else if err != nil {
		d.logger.Debug("Could not resolve current URL after action.", zap.Error(err))
	}

	result.Outcome = schemas.NewComputerCallOutput(item.CallID, out, nil)
	return result, nil
}

// execute maps one builtin action onto the environment operation it names.
func (d *Dispatcher) execute(ctx context.Context, env Environment, action schemas.ComputerAction) error {
	switch action.Type {
	case schemas.ActionClick:
		return env.Click(ctx, action.X, action.Y, action.Button)
	case schemas.ActionDoubleClick:
		return env.DoubleClick(ctx, action.X, action.Y)
	case schemas.ActionMove:
		return env.Move(ctx, action.X, action.Y)
	case schemas.ActionScroll:
		return env.Scroll(ctx, action.X, action.Y, action.ScrollX, action.ScrollY)
	case schemas.ActionTypeText:
		return env.Type(ctx, action.Text)
	case schemas.ActionKeypress:
		return env.Keypress(ctx, action.Keys)
	case schemas.ActionDrag:
		return env.Drag(ctx, action.Path)
	case schemas.ActionWait:
		dur := defaultWait
		if action.Ms > 0 {
			dur = time.Duration(action.Ms) * time.Millisecond
		}
		return env.Wait(ctx, dur)
	case schemas.ActionScreenshot:
		// The capture itself is taken by the policy step below; the action
		// has no separate effect on the target.
		return nil
	default:
		return Codef(ErrCodeUnroutableAction, "unknown computer action %q", action.Type)
	}
}

// -- Function Calls --

func (d *Dispatcher) dispatchFunctionCall(ctx context.Context, item schemas.Item, env Environment, tools []schemas.Tool) (DispatchResult, error) {
	result := DispatchResult{}
	name := item.Name

	if !toolDeclared(tools, name) {
		d.logger.Warn("Unroutable function call.", zap.String("function", name))
		out := failureJSON(ErrCodeUnroutableAction, fmt.Sprintf("function %q is not declared for this turn", name))
		result.Outcome = schemas.NewFunctionCallOutput(item.CallID, out)
		return result, nil
	}

	capability, ok := env.Capability(name)
	if !ok {
		// Declared but not implemented by this environment: answer with the
		// fixed placeholder so the model can move on.
		if d.logActions {
			d.logger.Info("Answering declared function with placeholder.", zap.String("function", name))
		}
		result.Outcome = schemas.NewFunctionCallOutput(item.CallID, stubOutput)
		return result, nil
	}

	args := map[string]any{}
	if item.Arguments != "" {
		if err := dispatchJSON.UnmarshalFromString(item.Arguments, &args); err != nil {
			out := failureJSON(ErrCodeInvalidParameters, fmt.Sprintf("decoding arguments for %q: %v", name, err))
			result.Outcome = schemas.NewFunctionCallOutput(item.CallID, out)
			return result, nil
		}
	}

	if d.logActions {
		d.logger.Info("Invoking environment capability.",
			zap.String("function", name),
			zap.Any("args", args),
		)
	}

	value, err := capability(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return DispatchResult{}, Coded(ErrCodeCancelled, ctx.Err())
		}
		d.logger.Warn("Capability failed.", zap.String("function", name), zap.Error(err))
		out := failureJSON(CodeOf(err), err.Error())
		result.Outcome = schemas.NewFunctionCallOutput(item.CallID, out)
	} else {
		result.Outcome = schemas.NewFunctionCallOutput(item.CallID, encodeResult(value))
	}

	// Function outputs are strings with no image slot, so a search-mode
	// capture only feeds the on-disk store inside the environment.
	if d.policy.ShouldCapture(schemas.FunctionCategory(name)) {
		if _, err := env.Screenshot(ctx); err == nil {
			result.Captured = true
		} else if ctx.Err() != nil {
			return DispatchResult{}, Coded(ErrCodeCancelled, ctx.Err())
		} else {
			d.logger.Warn("Post-capability capture failed.", zap.Error(err))
		}
	}

	return result, nil
}

func toolDeclared(tools []schemas.Tool, name string) bool {
	for _, t := range tools {
		if t.Type == schemas.ToolFunction && t.Name == name {
			return true
		}
	}
	return false
}

// encodeResult renders a capability result as the function output string.
// String results pass through untouched; everything else is serialized.
func encodeResult(value any) string {
	switch v := value.(type) {
	case nil:
		return stubOutput
	case string:
		return v
	default:
		s, err := dispatchJSON.MarshalToString(v)
		if err != nil {
			return failureJSON(ErrCodeExecutionTarget, fmt.Sprintf("encoding capability result: %v", err))
		}
		return s
	}
}

// failureJSON renders a structured failure payload for a function output.
func failureJSON(code ErrorCode, detail string) string {
	s, err := dispatchJSON.MarshalToString(map[string]string{
		"error":   string(code),
		"message": detail,
	})
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, code)
	}
	return s
}
