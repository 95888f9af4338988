// internal/bridge/server.go

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var bridgeJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Supported MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "streamable-http"
)

// shutdownBudget bounds the graceful drain of the HTTP listener.
const shutdownBudget = 10 * time.Second

// ServeConfig selects how the MCP server is exposed.
type ServeConfig struct {
	Transport string
	Port      int
}

// Server exposes the bridge's operations as MCP tools.
type Server struct {
	bridge *Bridge
	logger *zap.Logger
	mcp    *mcpserver.MCPServer
}

// NewServer builds the MCP server around a bridge and registers the tool
// surface. The bridge does not need to be initialized yet; Serve does that.
func NewServer(bridge *Bridge, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		bridge: bridge,
		logger: logger.Named("mcp"),
	}
	s.mcp = mcpserver.NewMCPServer("operant", version)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	// Page tools.
	s.mcp.AddTool(
		mcp.NewTool("browser_navigate",
			mcp.WithDescription("Navigate the browser to a URL. Blocklisted domains are refused."),
			mcp.WithString("url", mcp.Description("Absolute URL to load"), mcp.Required()),
			mcp.WithString("wait_selector", mcp.Description("CSS selector to wait for after the page loads")),
		),
		s.handleNavigate,
	)
	s.mcp.AddTool(
		mcp.NewTool("browser_go_back",
			mcp.WithDescription("Go back one entry in the browser history"),
		),
		s.handleGoBack,
	)
	s.mcp.AddTool(
		mcp.NewTool("browser_click",
			mcp.WithDescription("Click the first element matching a CSS selector"),
			mcp.WithString("selector", mcp.Description("CSS selector of the element to click"), mcp.Required()),
		),
		s.handleClick,
	)
	s.mcp.AddTool(
		mcp.NewTool("browser_type_text",
			mcp.WithDescription("Focus an element and type text into it"),
			mcp.WithString("selector", mcp.Description("CSS selector of the input element"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Text to type"), mcp.Required()),
			mcp.WithBoolean("clear_first", mcp.Description("Empty the field before typing (default true)")),
			mcp.WithBoolean("paced", mcp.Description("Type with humanlike cadence")),
		),
		s.handleTypeText,
	)
	s.mcp.AddTool(
		mcp.NewTool("browser_keypress",
			mcp.WithDescription("Press one key or a chord, e.g. [\"Control\", \"a\"]"),
			mcp.WithArray("keys", mcp.Description("Keys to press together"), mcp.Required()),
		),
		s.handleKeypress,
	)
	s.mcp.AddTool(
		mcp.NewTool("browser_scroll",
			mcp.WithDescription("Scroll the page vertically. Positive amounts scroll down."),
			mcp.WithNumber("amount", mcp.Description("Scroll distance in pixels"), mcp.Required()),
			mcp.WithBoolean("humanlike", mcp.Description("Break the scroll into paced steps")),
		),
		s.handleScroll,
	)
	s.mcp.AddTool(
		mcp.NewTool("browser_wait_for_element",
			mcp.WithDescription("Wait for an element to reach a state"),
			mcp.WithString("selector", mcp.Description("CSS selector of the element"), mcp.Required()),
			mcp.WithString("state", mcp.Description("visible, hidden, attached, or detached (default visible)")),
			mcp.WithNumber("timeout_ms", mcp.Description("Wait budget in milliseconds")),
		),
		s.handleWaitForElement,
	)
	s.mcp.AddTool(
		mcp.NewTool("browser_screenshot",
			mcp.WithDescription("Capture a screenshot of the current page"),
		),
		s.handleScreenshot,
	)

	// Search tools.
	s.mcp.AddTool(
		mcp.NewTool("search_web",
			mcp.WithDescription("Search the web, falling back across engines until one yields results"),
			mcp.WithString("query", mcp.Description("Search query text"), mcp.Required()),
			mcp.WithString("engine", mcp.Description("Preferred engine: auto, google, bing, duckduckgo, yahoo")),
			mcp.WithString("language", mcp.Description("Two-letter interface language code")),
			mcp.WithString("region", mcp.Description("Two-letter region code")),
			mcp.WithBoolean("safe_search", mcp.Description("Filter explicit results")),
			mcp.WithString("time_period", mcp.Description("Recency window: day, week, month, year")),
			mcp.WithString("content_type", mcp.Description("Result vertical: web, news, images, videos, shopping")),
			mcp.WithString("site", mcp.Description("Restrict results to one site")),
			mcp.WithNumber("result_count", mcp.Description("Maximum organic results to return")),
			mcp.WithBoolean("humanlike", mcp.Description("Pace the search like a person typing")),
		),
		s.handleSearchWeb,
	)
	s.mcp.AddTool(
		mcp.NewTool("search_news",
			mcp.WithDescription("Search recent news coverage for a query"),
			mcp.WithString("query", mcp.Description("Search query text"), mcp.Required()),
			mcp.WithString("engine", mcp.Description("Preferred engine: auto, google, bing, duckduckgo, yahoo")),
			mcp.WithString("language", mcp.Description("Two-letter interface language code")),
			mcp.WithString("region", mcp.Description("Two-letter region code")),
			mcp.WithString("time_period", mcp.Description("Recency window: day, week, month, year")),
			mcp.WithNumber("result_count", mcp.Description("Maximum results to return")),
		),
		s.handleSearchNews,
	)
	s.mcp.AddTool(
		mcp.NewTool("search_weather",
			mcp.WithDescription("Look up the current weather for a location"),
			mcp.WithString("location", mcp.Description("Place to report the weather for"), mcp.Required()),
			mcp.WithString("language", mcp.Description("Two-letter interface language code")),
			mcp.WithString("region", mcp.Description("Two-letter region code")),
		),
		s.handleSearchWeather,
	)
	s.mcp.AddTool(
		mcp.NewTool("search_stats",
			mcp.WithDescription("Report per-engine search success and failure tallies"),
		),
		s.handleSearchStats,
	)

	// Agent tools.
	s.mcp.AddTool(
		mcp.NewTool("agent_execute_task",
			mcp.WithDescription("Run the autonomous agent on a task in the live browser. The conversation persists across calls."),
			mcp.WithString("task", mcp.Description("Natural language task description"), mcp.Required()),
		),
		s.handleExecuteTask,
	)
	s.mcp.AddTool(
		mcp.NewTool("agent_reset",
			mcp.WithDescription("Restart the browser and clear the agent's conversation"),
			mcp.WithBoolean("headless", mcp.Description("Switch headless mode for the fresh browser")),
		),
		s.handleReset,
	)
}

// Serve initializes the bridge, exposes the MCP server over the configured
// transport, and tears the bridge down when the transport returns.
func (s *Server) Serve(ctx context.Context, cfg ServeConfig) error {
	if err := s.bridge.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupBudget)
		defer cancel()
		if err := s.bridge.Cleanup(cleanupCtx); err != nil {
			s.logger.Warn("Bridge cleanup on shutdown failed.", zap.Error(err))
		}
	}()

	switch cfg.Transport {
	case TransportStdio:
		s.logger.Info("Bridge MCP server starting on stdio.")
		return mcpserver.ServeStdio(s.mcp)
	case TransportHTTP:
		return s.serveHTTP(ctx, cfg.Port)
	default:
		return fmt.Errorf("unsupported transport %q (use %s or %s)", cfg.Transport, TransportStdio, TransportHTTP)
	}
}

// serveHTTP mounts the streamable MCP handler on a chi router next to a
// health endpoint and drains gracefully when the context ends.
func (s *Server) serveHTTP(ctx context.Context, port int) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Mount("/mcp", mcpserver.NewStreamableHTTPServer(s.mcp))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	s.logger.Info("Bridge MCP server starting.", zap.String("address", httpServer.Addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
		defer cancel()
		return httpServer.Shutdown(drainCtx)
	})
	return g.Wait()
}

// resultJSON serializes a payload into a text tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := bridgeJSON.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorJSON serializes a structured failure payload into an error tool
// result so callers get more than a bare message.
func errorJSON(v any) (*mcp.CallToolResult, error) {
	data, err := bridgeJSON.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultError(string(data)), nil
}
