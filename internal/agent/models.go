// internal/agent/models.go
package agent

import (
	"github.com/xkilldash9x/operant/api/schemas"
)

// Verdict is the safety gate's ruling on a single proposed action.
type Verdict string

const (
	VerdictAllow      Verdict = "allow"       // The action may be dispatched as-is.
	VerdictRequireAck Verdict = "require_ack" // The action carries safety checks that need acknowledgment first.
	VerdictBlock      Verdict = "block"       // The action must not reach the execution target.
)

// Decision is the full result of a safety gate check. Reason is only set for
// block verdicts; Checks carries the model-issued safety checks for
// require_ack verdicts.
type Decision struct {
	Verdict Verdict
	Reason  string
	Checks  []schemas.SafetyCheck
}

// Allowed reports whether the action may proceed without further handling.
func (d Decision) Allowed() bool { return d.Verdict == VerdictAllow }

// TurnResult is the outcome of a completed (or cancelled) turn. History holds
// the full conversation including every item produced during this turn, so a
// caller can feed it straight into the next turn. On cancellation the
// controller returns the result alongside the error with History preserved up
// to the abort point.
type TurnResult struct {
	// Response is the last model response of the turn. It is the final
	// response when the turn completed, or the most recent one when the turn
	// was cancelled mid-flight. Nil if cancellation hit before the first
	// model exchange.
	Response *schemas.ModelResponse

	// FinalText is the assistant's closing message, empty if the turn did not
	// reach one.
	FinalText string

	// History is the conversation after this turn: the prior history, the
	// turn's input, and every model output and outcome item appended in
	// order.
	History []schemas.Item

	// Exchanges counts completed model round-trips during this turn.
	Exchanges int

	// Captures counts screenshots taken while dispatching this turn's
	// actions.
	Captures int
}
