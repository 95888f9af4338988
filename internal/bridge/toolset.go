// internal/bridge/toolset.go

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/agent"
	"github.com/xkilldash9x/operant/internal/config"
	"github.com/xkilldash9x/operant/internal/search"
)

// Parameter schemas for the function tools offered to the model. These are
// raw JSON schema objects, passed through to the model verbatim.
var (
	emptyParams = json.RawMessage(`{"type":"object","properties":{}}`)

	gotoParams = json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "Absolute URL to load."}
		},
		"required": ["url"]
	}`)

	waitForElementParams = json.RawMessage(`{
		"type": "object",
		"properties": {
			"selector": {"type": "string", "description": "CSS selector of the element to wait for."},
			"state": {"type": "string", "enum": ["visible", "hidden", "attached", "detached"], "description": "State the element must reach. Defaults to visible."},
			"timeout_ms": {"type": "integer", "description": "Wait budget in milliseconds. Defaults to the navigation budget."}
		},
		"required": ["selector"]
	}`)

	searchParams = json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query text."},
			"engine": {"type": "string", "enum": ["auto", "google", "bing", "duckduckgo", "yahoo"], "description": "Preferred engine. Auto uses the default fallback order."},
			"language": {"type": "string", "description": "Two-letter interface language code."},
			"region": {"type": "string", "description": "Two-letter region code."},
			"safe_search": {"type": "boolean", "description": "Filter explicit results."},
			"time_period": {"type": "string", "enum": ["day", "week", "month", "year"], "description": "Restrict results to a recency window."},
			"content_type": {"type": "string", "enum": ["web", "news", "images", "videos", "shopping"], "description": "Result vertical to search."},
			"site": {"type": "string", "description": "Restrict results to one site."},
			"result_count": {"type": "integer", "description": "Maximum organic results to return."},
			"humanlike": {"type": "boolean", "description": "Pace the search like a person typing."}
		},
		"required": ["query"]
	}`)

	weatherParams = json.RawMessage(`{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "Place to report the weather for."},
			"language": {"type": "string", "description": "Two-letter interface language code."},
			"region": {"type": "string", "description": "Two-letter region code."}
		},
		"required": ["location"]
	}`)
)

// Toolset declares the tools the model may call during a turn: the computer
// tool sized to the live viewport plus the page and search functions.
func Toolset(width, height int) []schemas.Tool {
	return []schemas.Tool{
		schemas.NewComputerTool(width, height, "browser"),
		schemas.NewFunctionTool("back", "Go back one entry in the browser history.", emptyParams),
		schemas.NewFunctionTool("forward", "Go forward one entry in the browser history.", emptyParams),
		schemas.NewFunctionTool("goto", "Navigate the browser to a URL.", gotoParams),
		schemas.NewFunctionTool("refresh", "Reload the current page.", emptyParams),
		schemas.NewFunctionTool("wait_for_element", "Wait for an element to reach a state before continuing.", waitForElementParams),
		schemas.NewFunctionTool("resilient_search", "Search the web, falling back across engines until one yields results.", searchParams),
		schemas.NewFunctionTool("search_weather", "Look up the current weather for a location.", weatherParams),
	}
}

// capabilityRegistry is the slice of the environment that accepts extension
// operations.
type capabilityRegistry interface {
	RegisterCapability(name string, capability agent.Capability)
}

// searchResolver is the slice of the search controller the capabilities
// drive.
type searchResolver interface {
	Resolve(ctx context.Context, req schemas.SearchRequest) (*schemas.SearchResult, error)
	Weather(ctx context.Context, location, language, region string) (*search.WeatherReport, error)
}

// RegisterSearchCapabilities wires the fallback search driver into the
// environment so model-issued resilient_search and search_weather calls
// route through it.
func RegisterSearchCapabilities(registry capabilityRegistry, resolver searchResolver, cfg config.SearchConfig) {
	registry.RegisterCapability("resilient_search", searchCapability(resolver, cfg))
	registry.RegisterCapability("search_weather", weatherCapability(resolver))
}

func searchCapability(resolver searchResolver, cfg config.SearchConfig) agent.Capability {
	return func(ctx context.Context, args map[string]any) (any, error) {
		query := stringParam(args, "query", "")
		if query == "" {
			return nil, agent.Codef(agent.ErrCodeInvalidParameters, "query must not be empty")
		}

		req, err := requestFromParams(cfg, query, args)
		if err != nil {
			return nil, err
		}

		result, err := resolver.Resolve(ctx, req)
		if err != nil {
			var exhausted *search.ExhaustedError
			if errors.As(err, &exhausted) {
				return nil, agent.Coded(agent.ErrCodeSearchExhausted, err)
			}
			return nil, err
		}
		return result, nil
	}
}

func weatherCapability(resolver searchResolver) agent.Capability {
	return func(ctx context.Context, args map[string]any) (any, error) {
		location := stringParam(args, "location", "")
		if location == "" {
			return nil, agent.Codef(agent.ErrCodeInvalidParameters, "location must not be empty")
		}

		report, err := resolver.Weather(ctx,
			location,
			stringParam(args, "language", ""),
			stringParam(args, "region", ""),
		)
		if err != nil {
			var exhausted *search.ExhaustedError
			if errors.As(err, &exhausted) {
				return nil, agent.Coded(agent.ErrCodeSearchExhausted, err)
			}
			return nil, err
		}
		return report, nil
	}
}

// requestFromParams layers caller-supplied overrides on top of the
// configured search defaults for one query.
func requestFromParams(cfg config.SearchConfig, query string, args map[string]any) (schemas.SearchRequest, error) {
	return applySearchOverrides(cfg.Request(query), args)
}

// applySearchOverrides folds the recognized search parameters from args into
// a base request. Absent keys leave the base values untouched.
func applySearchOverrides(req schemas.SearchRequest, args map[string]any) (schemas.SearchRequest, error) {
	if raw := stringParam(args, "engine", ""); raw != "" {
		engine := schemas.SearchEngine(strings.ToLower(raw))
		if !engine.Valid() {
			return req, agent.Codef(agent.ErrCodeInvalidParameters, "unknown search engine %q", raw)
		}
		req.Engine = engine
	}
	if raw := stringParam(args, "content_type", ""); raw != "" {
		ct := schemas.SearchContentType(strings.ToLower(raw))
		if !validContentType(ct) {
			return req, agent.Codef(agent.ErrCodeInvalidParameters, "unknown content type %q", raw)
		}
		req.ContentType = ct
	}
	if v := stringParam(args, "language", ""); v != "" {
		req.Language = v
	}
	if v := stringParam(args, "region", ""); v != "" {
		req.Region = v
	}
	if v := stringParam(args, "time_period", ""); v != "" {
		req.TimePeriod = v
	}
	if v := stringParam(args, "site", ""); v != "" {
		req.Site = v
	}
	req.SafeSearch = boolParam(args, "safe_search", req.SafeSearch)
	req.Humanlike = boolParam(args, "humanlike", req.Humanlike)
	req.ResultCount = intParam(args, "result_count", req.ResultCount)
	return req, nil
}

func validContentType(ct schemas.SearchContentType) bool {
	switch ct {
	case schemas.ContentWeb, schemas.ContentNews, schemas.ContentImages, schemas.ContentVideos, schemas.ContentShopping:
		return true
	}
	return false
}
