// internal/agent/controller.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
)

// fallbackMaxExchanges bounds a turn when the configuration does not.
const fallbackMaxExchanges = 50

// Controller drives one full model turn: it requests responses over the
// conversation, routes every proposed action through the safety gate and the
// dispatcher in strict proposal order, feeds the outcomes back, and repeats
// until the model answers with no pending actions.
type Controller struct {
	model        ModelRequester
	env          Environment
	dispatcher   *Dispatcher
	gate         *Gate
	ackMode      string
	acknowledger Acknowledger
	maxExchanges int
	logger       *zap.Logger
}

// NewController wires the turn loop. The acknowledger is optional and only
// consulted when the ack mode is prompt; without one, prompt behaves like
// deny.
func NewController(cfg config.AgentConfig, model ModelRequester, env Environment, dispatcher *Dispatcher, gate *Gate, logger *zap.Logger) *Controller {
	max := cfg.MaxIterations
	if max <= 0 {
		max = fallbackMaxExchanges
	}
	return &Controller{
		model:        model,
		env:          env,
		dispatcher:   dispatcher,
		gate:         gate,
		ackMode:      cfg.AckMode,
		maxExchanges: max,
		logger:       logger.Named("turn_controller"),
	}
}

// SetAcknowledger installs the callback answering model-raised safety checks
// in prompt mode.
func (c *Controller) SetAcknowledger(ack Acknowledger) {
	c.acknowledger = ack
}

// RunFullTurn executes one complete turn. It appends input to a copy of
// history, exchanges with the model until a response carries no pending
// actions, and returns that response with the updated history.
//
// A cancelled context aborts immediately; the returned TurnResult still
// carries the history accumulated so far, so the caller keeps every exchange
// that completed before the abort.
func (c *Controller) RunFullTurn(ctx context.Context, input []schemas.Item, tools []schemas.Tool, history []schemas.Item) (*TurnResult, error) {
	working := make([]schemas.Item, 0, len(history)+len(input))
	working = append(working, history...)
	working = append(working, input...)

	result := &TurnResult{History: working}
	c.logger.Info("Turn started.",
		zap.Int("history_items", len(history)),
		zap.Int("input_items", len(input)),
		zap.Int("tools", len(tools)),
	)

	for result.Exchanges < c.maxExchanges {
		if err := ctx.Err(); err != nil {
			result.History = working
			return result, Coded(ErrCodeCancelled, err)
		}

		resp, err := c.model.CreateResponse(ctx, working, tools)
		if err != nil {
			result.History = working
			if ctx.Err() != nil {
				return result, Coded(ErrCodeCancelled, ctx.Err())
			}
			return result, Coded(ErrCodeModelRequest, err)
		}
		result.Response = resp
		result.Exchanges++
		working = append(working, resp.Output...)

		pending := resp.PendingActions()
		if len(pending) == 0 {
			result.FinalText = resp.FinalText()
			result.History = working
			c.logger.Info("Turn completed.",
				zap.Int("exchanges", result.Exchanges),
				zap.Int("captures", result.Captures),
			)
			return result, nil
		}

		c.logger.Debug("Processing proposed actions.",
			zap.Int("exchange", result.Exchanges),
			zap.Int("pending", len(pending)),
		)

		// Actions run one at a time in exactly the order the model proposed
		// them. Outcomes append in the same order, so the conversation the
		// model sees next exchange mirrors what actually happened.
		for _, item := range resp.Output {
			if !item.IsPendingAction() {
				continue
			}

			outcome, captured, err := c.processAction(ctx, item, tools)
			if err != nil {
				result.History = working
				return result, err
			}
			working = append(working, outcome)
			if captured {
				result.Captures++
			}
		}
	}

	result.History = working
	return result, Codef(ErrCodeTurnLimit, "turn exceeded %d model exchanges", c.maxExchanges)
}

// processAction gates and dispatches a single proposed action, returning the
// outcome item to append. The error is non-nil only for cancellation.
func (c *Controller) processAction(ctx context.Context, item schemas.Item, tools []schemas.Tool) (schemas.Item, bool, error) {
	decision := c.gate.Check(&item)

	var acked []schemas.SafetyCheck
	switch decision.Verdict {
	case VerdictBlock:
		return c.blockedOutcome(item, decision.Reason), false, nil

	case VerdictRequireAck:
		accepted, err := c.resolveAcknowledgment(ctx, decision.Checks)
		if err != nil {
			if ctx.Err() != nil {
				return schemas.Item{}, false, Coded(ErrCodeCancelled, ctx.Err())
			}
			return c.blockedOutcome(item, fmt.Sprintf("safety acknowledgment failed: %v", err)), false, nil
		}
		if !accepted {
			return c.blockedOutcome(item, "safety checks were declined"), false, nil
		}
		acked = decision.Checks

	case VerdictAllow:
		acked = decision.Checks
	}

	dres, err := c.dispatcher.Dispatch(ctx, item, c.env, tools)
	if err != nil {
		return schemas.Item{}, false, err
	}
	outcome := dres.Outcome
	if outcome.Type == schemas.ItemComputerCallOutput && len(acked) > 0 {
		outcome.AcknowledgedSafetyChecks = acked
	}
	return outcome, dres.Captured, nil
}

// resolveAcknowledgment answers model-raised safety checks according to the
// configured mode.
func (c *Controller) resolveAcknowledgment(ctx context.Context, checks []schemas.SafetyCheck) (bool, error) {
	switch c.ackMode {
	case config.AckModeAuto:
		c.logger.Warn("Auto-acknowledging model safety checks.", zap.Int("checks", len(checks)))
		return true, nil
	case config.AckModePrompt:
		if c.acknowledger == nil {
			c.logger.Warn("No acknowledger installed; declining safety checks.")
			return false, nil
		}
		return c.acknowledger(ctx, checks)
	default:
		return false, nil
	}
}

// blockedOutcome shapes the outcome item recording a safety refusal. The
// action never reached the execution target.
func (c *Controller) blockedOutcome(item schemas.Item, reason string) schemas.Item {
	c.logger.Warn("Action blocked by safety gate.",
		zap.String("item_type", string(item.Type)),
		zap.String("reason", reason),
	)
	if item.Type == schemas.ItemComputerCall {
		out := schemas.ComputerOutput{
			Type:  "input_image",
			Error: fmt.Sprintf("%s: %s", ErrCodeSafetyBlocked, reason),
		}
		return schemas.NewComputerCallOutput(item.CallID, out, nil)
	}
	return schemas.NewFunctionCallOutput(item.CallID, failureJSON(ErrCodeSafetyBlocked, reason))
}
