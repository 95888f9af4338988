// internal/bridge/types.go
package bridge

import (
	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/search"
)

// TaskReport is the outcome of one agent task executed through the bridge.
// Message carries the assistant's closing answer; Screenshot is a data URL of
// the page the task finished on.
type TaskReport struct {
	Status           string `json:"status"`
	Task             string `json:"task"`
	Message          string `json:"message"`
	Exchanges        int    `json:"exchanges"`
	ActionsPerformed int    `json:"actions_performed"`
	URL              string `json:"url,omitempty"`
	Screenshot       string `json:"screenshot,omitempty"`
	ElapsedMs        int64  `json:"elapsed_ms"`
	Timestamp        string `json:"timestamp"`
}

// PageReport is the outcome of one direct browser operation.
type PageReport struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Timestamp string `json:"timestamp"`
}

// StatsReport wraps the per-engine search tallies for tool consumers.
type StatsReport struct {
	Status  string               `json:"status"`
	Engines []search.EngineStats `json:"engines"`
}

// ExhaustionReport shapes a search that ran out of engines. Attempts list
// every engine tried in order with its outcome.
type ExhaustionReport struct {
	Status   string                  `json:"status"`
	Message  string                  `json:"message"`
	Query    string                  `json:"query"`
	Attempts []schemas.SearchAttempt `json:"attempts"`
}

// ResetReport is the outcome of a bridge restart.
type ResetReport struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Headless bool   `json:"headless"`
}
