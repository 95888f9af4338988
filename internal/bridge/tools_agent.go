// internal/bridge/tools_agent.go

package bridge

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xkilldash9x/operant/internal/agent"
)

func (s *Server) handleExecuteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	task := stringParam(args, "task", "")
	if task == "" {
		return toolFailure(agent.Codef(agent.ErrCodeInvalidParameters, "task is required"))
	}

	report, err := s.bridge.ExecuteTask(ctx, task)
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(report)
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	// The headless override only applies when the caller sent the key;
	// absence keeps the current mode.
	var headless *bool
	if _, ok := args["headless"]; ok {
		v := boolParam(args, "headless", false)
		headless = &v
	}

	if err := s.bridge.Restart(ctx, headless); err != nil {
		return toolFailure(err)
	}
	return resultJSON(ResetReport{
		Status:   "success",
		Message:  "Browser restarted and conversation cleared",
		Headless: s.bridge.Headless(),
	})
}
