// internal/bridge/tools_search.go

package bridge

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/agent"
	"github.com/xkilldash9x/operant/internal/search"
)

// searchFailure renders a search error, expanding exhaustion into the full
// per-engine attempt trail.
func searchFailure(query string, err error) (*mcp.CallToolResult, error) {
	var exhausted *search.ExhaustedError
	if errors.As(err, &exhausted) {
		return errorJSON(ExhaustionReport{
			Status:   "error",
			Message:  exhausted.Error(),
			Query:    query,
			Attempts: exhausted.Attempts,
		})
	}
	return toolFailure(err)
}

func (s *Server) handleSearchWeb(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query := stringParam(args, "query", "")
	if query == "" {
		return toolFailure(agent.Codef(agent.ErrCodeInvalidParameters, "query is required"))
	}

	req, err := applySearchOverrides(s.bridge.SearchRequest(query), args)
	if err != nil {
		return toolFailure(err)
	}

	result, err := s.bridge.Search(ctx, req)
	if err != nil {
		return searchFailure(query, err)
	}
	return resultJSON(result)
}

func (s *Server) handleSearchNews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query := stringParam(args, "query", "")
	if query == "" {
		return toolFailure(agent.Codef(agent.ErrCodeInvalidParameters, "query is required"))
	}

	req, err := applySearchOverrides(s.bridge.SearchRequest(query), args)
	if err != nil {
		return toolFailure(err)
	}
	req.ContentType = schemas.ContentNews

	result, err := s.bridge.Search(ctx, req)
	if err != nil {
		return searchFailure(query, err)
	}
	return resultJSON(result)
}

func (s *Server) handleSearchWeather(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	location := stringParam(args, "location", "")
	if location == "" {
		return toolFailure(agent.Codef(agent.ErrCodeInvalidParameters, "location is required"))
	}

	report, err := s.bridge.Weather(ctx,
		location,
		stringParam(args, "language", ""),
		stringParam(args, "region", ""),
	)
	if err != nil {
		return searchFailure(location, err)
	}
	return resultJSON(report)
}

func (s *Server) handleSearchStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	engines, err := s.bridge.SearchStats()
	if err != nil {
		return toolFailure(err)
	}
	return resultJSON(StatsReport{Status: "success", Engines: engines})
}
