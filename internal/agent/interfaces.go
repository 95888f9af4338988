// internal/agent/interfaces.go
package agent

import (
	"context"
	"time"

	"github.com/xkilldash9x/operant/api/schemas"
)

// Capability is a named operation an execution target exposes beyond the
// builtin computer actions. The model reaches capabilities through declared
// function tools; arguments arrive as the decoded function_call payload.
type Capability func(ctx context.Context, args map[string]any) (any, error)

// Environment is the execution target a dispatched action runs against. The
// builtin operations mirror the computer-use action vocabulary one to one.
// Implementations decide how an abstract operation maps onto their surface;
// the dispatcher never assumes anything beyond this contract.
type Environment interface {
	// -- Builtin computer operations --
	Click(ctx context.Context, x, y int, button schemas.MouseButton) error
	DoubleClick(ctx context.Context, x, y int) error
	Move(ctx context.Context, x, y int) error
	Scroll(ctx context.Context, x, y, deltaX, deltaY int) error
	Type(ctx context.Context, text string) error
	Keypress(ctx context.Context, keys []string) error
	Drag(ctx context.Context, path []schemas.Point) error
	Wait(ctx context.Context, d time.Duration) error

	// Screenshot captures the current viewport and returns it as a data URL.
	Screenshot(ctx context.Context) (string, error)

	// CurrentURL reports the page the target is on. Targets without a notion
	// of location return an empty string and no error.
	CurrentURL(ctx context.Context) (string, error)

	// Dimensions reports the viewport size advertised to the model.
	Dimensions() (width, height int)

	// Capability resolves a named extension operation. The second return is
	// false when the target does not implement the operation, in which case
	// the dispatcher falls back to the placeholder path.
	Capability(name string) (Capability, bool)
}

// ModelRequester produces the next model response for a conversation. The
// controller depends on this interface rather than a concrete client so tests
// can script exchanges.
type ModelRequester interface {
	CreateResponse(ctx context.Context, input []schemas.Item, tools []schemas.Tool) (*schemas.ModelResponse, error)
}

// Acknowledger resolves model-issued safety checks that require an explicit
// acknowledgment before the action may proceed. Returning false declines the
// checks and the action is recorded as blocked.
type Acknowledger func(ctx context.Context, checks []schemas.SafetyCheck) (bool, error)
