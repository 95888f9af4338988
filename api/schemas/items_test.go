package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/operant/api/schemas"
)

func TestNewComputerCallOutput(t *testing.T) {
	t.Parallel()

	acked := []schemas.SafetyCheck{{ID: "sc_1", Code: "malicious_instructions", Message: "review this"}}
	item := schemas.NewComputerCallOutput("call_42", schemas.ComputerOutput{
		Type:       "input_image",
		ImageURL:   "data:image/jpeg;base64,AAAA",
		CurrentURL: "https://example.com/",
	}, acked)

	assert.Equal(t, schemas.ItemComputerCallOutput, item.Type)
	assert.Equal(t, "call_42", item.CallID)
	assert.Equal(t, acked, item.AcknowledgedSafetyChecks)

	out, err := item.ComputerOutput()
	require.NoError(t, err)
	assert.Equal(t, "input_image", out.Type)
	assert.Equal(t, "https://example.com/", out.CurrentURL)
}

func TestFunctionOutputRoundTrip(t *testing.T) {
	t.Parallel()

	item := schemas.NewFunctionCallOutput("call_7", `{"status":"success"}`)
	out, err := item.FunctionOutput()
	require.NoError(t, err)
	assert.Equal(t, `{"status":"success"}`, out)

	// Asking a function output item for a computer output must fail, and
	// vice versa. The union is strict on purpose.
	_, err = item.ComputerOutput()
	assert.Error(t, err)
}

func TestSanitizedOmitsImagePayload(t *testing.T) {
	t.Parallel()

	item := schemas.NewComputerCallOutput("call_1", schemas.ComputerOutput{
		Type:       "input_image",
		ImageURL:   "data:image/jpeg;base64,averylongpayload",
		CurrentURL: "https://example.com/a",
	}, nil)

	clean := item.Sanitized()
	out, err := clean.ComputerOutput()
	require.NoError(t, err)
	assert.Equal(t, "[omitted]", out.ImageURL)
	assert.Equal(t, "https://example.com/a", out.CurrentURL)

	// The original item keeps its payload untouched.
	orig, err := item.ComputerOutput()
	require.NoError(t, err)
	assert.Contains(t, orig.ImageURL, "base64")

	// Items without an image pass through unchanged.
	msg := schemas.NewUserMessage("hello")
	assert.Equal(t, msg, msg.Sanitized())

	history := schemas.SanitizedHistory([]schemas.Item{msg, item})
	require.Len(t, history, 2)
	assert.Equal(t, msg, history[0])
	out, err = history[1].ComputerOutput()
	require.NoError(t, err)
	assert.Equal(t, "[omitted]", out.ImageURL)
}

func TestPendingActionsPreserveOrder(t *testing.T) {
	t.Parallel()

	resp := &schemas.ModelResponse{Output: []schemas.Item{
		{Type: schemas.ItemReasoning},
		{Type: schemas.ItemComputerCall, CallID: "a", Action: &schemas.ComputerAction{Type: schemas.ActionClick}},
		{Type: schemas.ItemMessage, Role: "assistant", Content: []schemas.ContentPart{{Type: "output_text", Text: "clicking"}}},
		{Type: schemas.ItemFunctionCall, CallID: "b", Name: "back"},
		{Type: schemas.ItemComputerCall, CallID: "c", Action: &schemas.ComputerAction{Type: schemas.ActionWait}},
	}}

	pending := resp.PendingActions()
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{pending[0].CallID, pending[1].CallID, pending[2].CallID})
}

func TestFinalTextJoinsAssistantMessages(t *testing.T) {
	t.Parallel()

	resp := &schemas.ModelResponse{Output: []schemas.Item{
		{Type: schemas.ItemMessage, Role: "assistant", Content: []schemas.ContentPart{{Type: "output_text", Text: "first"}}},
		{Type: schemas.ItemMessage, Role: "user", Content: []schemas.ContentPart{{Type: "input_text", Text: "ignored"}}},
		{Type: schemas.ItemMessage, Role: "assistant", Content: []schemas.ContentPart{{Type: "output_text", Text: "second"}}},
	}}
	assert.Equal(t, "first\nsecond", resp.FinalText())
}

func TestActionCategory(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		action   schemas.ComputerAction
		expected schemas.ActionCategory
	}{
		{schemas.ComputerAction{Type: schemas.ActionClick}, schemas.CategoryVisual},
		{schemas.ComputerAction{Type: schemas.ActionScroll}, schemas.CategoryVisual},
		{schemas.ComputerAction{Type: schemas.ActionTypeText}, schemas.CategoryVisual},
		{schemas.ComputerAction{Type: schemas.ActionDrag}, schemas.CategoryVisual},
		{schemas.ComputerAction{Type: schemas.ActionWait}, schemas.CategoryWait},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, tc.action.Category(), "action %s", tc.action.Type)
	}
}

func TestIsBuiltin(t *testing.T) {
	t.Parallel()

	for _, typ := range []schemas.ActionType{
		schemas.ActionClick, schemas.ActionDoubleClick, schemas.ActionMove,
		schemas.ActionScroll, schemas.ActionKeypress, schemas.ActionTypeText,
		schemas.ActionWait, schemas.ActionDrag, schemas.ActionScreenshot,
	} {
		assert.True(t, typ.IsBuiltin(), "%s must be builtin", typ)
	}
	assert.False(t, schemas.ActionType("teleport").IsBuiltin())
}

func TestSearchEngineValid(t *testing.T) {
	t.Parallel()

	for _, e := range schemas.SupportedEngines {
		assert.True(t, e.Valid())
	}
	assert.True(t, schemas.EngineAuto.Valid())
	assert.False(t, schemas.SearchEngine("altavista").Valid())

	// The default fallback ordering is part of the contract; a reorder here
	// changes which providers absorb traffic first.
	assert.Equal(t, []schemas.SearchEngine{
		schemas.EngineGoogle, schemas.EngineBing, schemas.EngineDuckDuckGo, schemas.EngineYahoo,
	}, schemas.SupportedEngines)
}
