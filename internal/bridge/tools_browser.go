// internal/bridge/tools_browser.go

package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xkilldash9x/operant/internal/agent"
)

// failureReport is the structured payload carried inside error tool results.
type failureReport struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// toolFailure renders an error as an error tool result. Coded failures keep
// their code so callers can react without parsing the message.
func toolFailure(err error) (*mcp.CallToolResult, error) {
	report := failureReport{Status: "error", Message: err.Error()}
	var coded *agent.CodedError
	if errors.As(err, &coded) {
		report.Code = string(coded.Code)
	}
	return errorJSON(report)
}

func (s *Server) handleNavigate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	url := stringParam(args, "url", "")
	if url == "" {
		return toolFailure(agent.Codef(agent.ErrCodeInvalidParameters, "url is required"))
	}

	report, err := s.bridge.Navigate(ctx, url, stringParam(args, "wait_selector", ""))
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(report)
}

func (s *Server) handleGoBack(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.bridge.GoBack(ctx)
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(report)
}

func (s *Server) handleClick(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	report, err := s.bridge.ClickElement(ctx, stringParam(args, "selector", ""))
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(report)
}

func (s *Server) handleTypeText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	report, err := s.bridge.TypeText(ctx,
		stringParam(args, "selector", ""),
		stringParam(args, "text", ""),
		boolParam(args, "clear_first", true),
		boolParam(args, "paced", false),
	)
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(report)
}

func (s *Server) handleKeypress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	report, err := s.bridge.PressKeys(ctx, stringsParam(args, "keys"))
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(report)
}

func (s *Server) handleScroll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	report, err := s.bridge.ScrollBy(ctx,
		intParam(args, "amount", 0),
		boolParam(args, "humanlike", false),
	)
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(report)
}

func (s *Server) handleWaitForElement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	timeout := time.Duration(intParam(args, "timeout_ms", 0)) * time.Millisecond
	report, err := s.bridge.AwaitElement(ctx,
		stringParam(args, "selector", ""),
		stringParam(args, "state", "visible"),
		timeout,
	)
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(report)
}

func (s *Server) handleScreenshot(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dataURL, _, err := s.bridge.CaptureScreenshot(ctx)
	if err != nil {
		return toolFailure(err)
	}
	mime, data, err := splitDataURL(dataURL)
	if err != nil {
		return toolFailure(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.ImageContent{
				Type:     "image",
				Data:     data,
				MIMEType: mime,
			},
		},
	}, nil
}
