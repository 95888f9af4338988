package schemas

import (
	"encoding/json"
	"fmt"
)

// -- Conversation Item Schemas --
//
// These types mirror the Responses API item vocabulary. History is an
// append-only []Item; the turn controller never edits an item after it has
// been appended.

// ItemType discriminates the members of a conversation history.
type ItemType string

const (
	ItemMessage            ItemType = "message"
	ItemReasoning          ItemType = "reasoning"
	ItemComputerCall       ItemType = "computer_call"
	ItemComputerCallOutput ItemType = "computer_call_output"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
)

// SafetyCheck is a model-raised safety flag attached to a computer_call. The
// call must not execute until every pending check has been acknowledged.
type SafetyCheck struct {
	ID      string `json:"id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ContentPart is one entry of a message item's content list.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Item is one entry of the conversation history. It is a tagged union over
// ItemType: only the fields belonging to the given type are populated, and
// the codec omits the rest.
type Item struct {
	Type ItemType `json:"type,omitempty"`
	ID   string   `json:"id,omitempty"`

	// Message items.
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// Reasoning items. The summary shape is owned by the model API and is
	// carried opaquely so it survives the round trip back into history.
	Summary json.RawMessage `json:"summary,omitempty"`

	// computer_call items.
	Action              *ComputerAction `json:"action,omitempty"`
	PendingSafetyChecks []SafetyCheck   `json:"pending_safety_checks,omitempty"`
	Status              string          `json:"status,omitempty"`

	// function_call items.
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// Shared by the call and output item kinds.
	CallID string `json:"call_id,omitempty"`

	// Output carries a string for function_call_output and a ComputerOutput
	// object for computer_call_output, so it stays raw here. Use the
	// constructors and accessors below instead of touching it directly.
	Output json.RawMessage `json:"output,omitempty"`

	// computer_call_output items echo the checks the caller accepted.
	AcknowledgedSafetyChecks []SafetyCheck `json:"acknowledged_safety_checks,omitempty"`
}

// ComputerOutput is the payload of a computer_call_output item: the captured
// surface plus, for browser environments, the URL it was captured at.
type ComputerOutput struct {
	Type       string `json:"type"`
	ImageURL   string `json:"image_url,omitempty"`
	CurrentURL string `json:"current_url,omitempty"`
	// Error is set instead of ImageURL when the action failed. The model
	// reads it and decides how to recover.
	Error string `json:"error,omitempty"`
}

// NewUserMessage builds a plain user text message item.
func NewUserMessage(text string) Item {
	return Item{
		Type:    ItemMessage,
		Role:    "user",
		Content: []ContentPart{{Type: "input_text", Text: text}},
	}
}

// NewFunctionCallOutput builds the output item answering a function_call.
func NewFunctionCallOutput(callID, output string) Item {
	raw, _ := json.Marshal(output)
	return Item{
		Type:   ItemFunctionCallOutput,
		CallID: callID,
		Output: raw,
	}
}

// NewComputerCallOutput builds the output item answering a computer_call.
func NewComputerCallOutput(callID string, out ComputerOutput, acked []SafetyCheck) Item {
	raw, _ := json.Marshal(out)
	return Item{
		Type:                     ItemComputerCallOutput,
		CallID:                   callID,
		Output:                   raw,
		AcknowledgedSafetyChecks: acked,
	}
}

// ComputerOutput decodes the Output payload of a computer_call_output item.
func (it Item) ComputerOutput() (ComputerOutput, error) {
	var out ComputerOutput
	if it.Type != ItemComputerCallOutput {
		return out, fmt.Errorf("item type %q carries no computer output", it.Type)
	}
	if err := json.Unmarshal(it.Output, &out); err != nil {
		return out, fmt.Errorf("decoding computer output: %w", err)
	}
	return out, nil
}

// FunctionOutput decodes the Output payload of a function_call_output item.
func (it Item) FunctionOutput() (string, error) {
	if it.Type != ItemFunctionCallOutput {
		return "", fmt.Errorf("item type %q carries no function output", it.Type)
	}
	var s string
	if err := json.Unmarshal(it.Output, &s); err != nil {
		return "", fmt.Errorf("decoding function output: %w", err)
	}
	return s, nil
}

// Text extracts the concatenated text of a message item. Non-message items
// return the empty string.
func (it Item) Text() string {
	if it.Type != ItemMessage {
		return ""
	}
	var s string
	for _, part := range it.Content {
		s += part.Text
	}
	return s
}

// IsPendingAction reports whether the item demands an outcome before the
// turn may continue. A model response with no pending actions is terminal.
func (it Item) IsPendingAction() bool {
	return it.Type == ItemComputerCall || it.Type == ItemFunctionCall
}

// Sanitized returns a copy safe for logging: the image payload of a
// computer_call_output is replaced with a short placeholder so log lines stay
// readable.
func (it Item) Sanitized() Item {
	if it.Type != ItemComputerCallOutput {
		return it
	}
	out, err := it.ComputerOutput()
	if err != nil {
		return it
	}
	if out.ImageURL != "" {
		out.ImageURL = "[omitted]"
	}
	clone := it
	clone.Output, _ = json.Marshal(out)
	return clone
}

// SanitizedHistory maps Sanitized over a history slice for wire-level log
// dumps.
func SanitizedHistory(items []Item) []Item {
	clean := make([]Item, len(items))
	for i, it := range items {
		clean[i] = it.Sanitized()
	}
	return clean
}

// -- Tool Declaration Schemas --

// ToolType discriminates the tool declarations sent with each model request.
type ToolType string

const (
	ToolComputer ToolType = "computer-preview"
	ToolFunction ToolType = "function"
)

// Tool declares one capability to the model: either the computer surface
// (display size and environment kind) or a named function with a JSON schema
// for its arguments.
type Tool struct {
	Type ToolType `json:"type"`

	// Computer tool fields.
	DisplayWidth  int    `json:"display_width,omitempty"`
	DisplayHeight int    `json:"display_height,omitempty"`
	Environment   string `json:"environment,omitempty"`

	// Function tool fields.
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// NewComputerTool declares the computer surface for the given environment
// kind ("browser", "mac", "windows", "ubuntu").
func NewComputerTool(width, height int, environment string) Tool {
	return Tool{
		Type:          ToolComputer,
		DisplayWidth:  width,
		DisplayHeight: height,
		Environment:   environment,
	}
}

// NewFunctionTool declares a callable function with a raw JSON parameter
// schema.
func NewFunctionTool(name, description string, parameters json.RawMessage) Tool {
	return Tool{
		Type:        ToolFunction,
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}
}

// -- Model Response Schemas --

// Usage reports the token accounting of one model exchange.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ModelResponse is the decoded body of one Responses API exchange.
type ModelResponse struct {
	ID     string `json:"id,omitempty"`
	Model  string `json:"model,omitempty"`
	Output []Item `json:"output"`
	Usage  *Usage `json:"usage,omitempty"`
}

// PendingActions returns the action items of the response in proposal order.
func (r *ModelResponse) PendingActions() []Item {
	var pending []Item
	for _, it := range r.Output {
		if it.IsPendingAction() {
			pending = append(pending, it)
		}
	}
	return pending
}

// FinalText returns the assistant message text of a terminal response.
func (r *ModelResponse) FinalText() string {
	var s string
	for _, it := range r.Output {
		if it.Type == ItemMessage && it.Role == "assistant" {
			if s != "" {
				s += "\n"
			}
			s += it.Text()
		}
	}
	return s
}
