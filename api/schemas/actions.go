package schemas

// -- Computer Action Schemas --

// ActionType identifies one of the builtin computer action primitives the
// model may propose inside a computer_call item.
type ActionType string

const (
	ActionClick       ActionType = "click"
	ActionDoubleClick ActionType = "double_click"
	ActionMove        ActionType = "move"
	ActionScroll      ActionType = "scroll"
	ActionKeypress    ActionType = "keypress"
	ActionTypeText    ActionType = "type"
	ActionWait        ActionType = "wait"
	ActionDrag        ActionType = "drag"
	ActionScreenshot  ActionType = "screenshot"
)

// MouseButton identifies the pointer button used by click actions. The
// "back" and "forward" buttons are translated into history navigation by
// browser environments rather than dispatched as raw pointer events.
type MouseButton string

const (
	ButtonLeft    MouseButton = "left"
	ButtonRight   MouseButton = "right"
	ButtonMiddle  MouseButton = "middle"
	ButtonBack    MouseButton = "back"
	ButtonForward MouseButton = "forward"
)

// Point is a single coordinate on the environment surface. Drag actions
// carry an ordered path of points.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ComputerAction is the parameter bundle for one builtin action. Only the
// fields relevant to the Type are populated; the zero values of the rest are
// omitted on the wire.
type ComputerAction struct {
	Type ActionType `json:"type"`

	// Click, DoubleClick, Move.
	X      int         `json:"x,omitempty"`
	Y      int         `json:"y,omitempty"`
	Button MouseButton `json:"button,omitempty"`

	// Scroll. ScrollX/ScrollY are wheel deltas applied at (X, Y).
	ScrollX int `json:"scroll_x,omitempty"`
	ScrollY int `json:"scroll_y,omitempty"`

	// Type.
	Text string `json:"text,omitempty"`

	// Keypress. Keys are pressed in order and released in reverse so that
	// modifier combinations land as a chord.
	Keys []string `json:"keys,omitempty"`

	// Wait duration in milliseconds. Zero means the one second default.
	Ms int `json:"ms,omitempty"`

	// Drag.
	Path []Point `json:"path,omitempty"`
}

// ActionCategory is the coarse classification consumed by the screenshot
// policy. It deliberately collapses the action vocabulary into the few
// distinctions the policy cares about.
type ActionCategory string

const (
	// CategoryVisual covers builtin actions with an observable effect on the
	// rendered surface (clicks, typing, scrolling, drags, key chords).
	CategoryVisual ActionCategory = "visual"
	// CategoryWait covers pure waits, which never change the surface.
	CategoryWait ActionCategory = "wait"
	// CategorySearch covers search-type function calls.
	CategorySearch ActionCategory = "search"
	// CategoryFunction covers every other function call.
	CategoryFunction ActionCategory = "function"
)

// Category maps a builtin action onto its screenshot policy category.
func (a ComputerAction) Category() ActionCategory {
	switch a.Type {
	case ActionWait:
		return CategoryWait
	default:
		return CategoryVisual
	}
}

// IsBuiltin reports whether t names one of the builtin computer action
// primitives the dispatcher can route to an environment operation.
func (t ActionType) IsBuiltin() bool {
	switch t {
	case ActionClick, ActionDoubleClick, ActionMove, ActionScroll,
		ActionKeypress, ActionTypeText, ActionWait, ActionDrag, ActionScreenshot:
		return true
	}
	return false
}

// searchFunctions and visualFunctions classify the well-known declared
// function names for the screenshot policy. Anything unlisted is a plain
// function call with no observable effect on the surface.
var searchFunctions = map[string]bool{
	"search":           true,
	"resilient_search": true,
	"search_weather":   true,
	"web_search":       true,
}

var visualFunctions = map[string]bool{
	"back":             true,
	"forward":          true,
	"goto":             true,
	"navigate":         true,
	"refresh":          true,
	"wait_for_element": true,
}

// FunctionCategory maps a declared function name onto its screenshot policy
// category.
func FunctionCategory(name string) ActionCategory {
	switch {
	case searchFunctions[name]:
		return CategorySearch
	case visualFunctions[name]:
		return CategoryVisual
	default:
		return CategoryFunction
	}
}
