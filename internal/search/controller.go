// internal/search/controller.go

// Package search implements the resilient web search driver. A single
// fallback loop walks an ordered list of engines, delegating the
// engine-specific parts (query URL construction, block detection, result
// extraction) to a strategy table. The first engine that yields a parseable
// results page wins; engines that are blocked or fail are recorded and the
// loop moves on.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
)

// resultsSettleTimeout bounds how long an attempt waits for the results
// container to render before reading the page anyway. Blocked interstitials
// never render the container, so the classifier still sees them.
const resultsSettleTimeout = 8 * time.Second

// Transport is the browser surface the controller drives. *browser.Session
// satisfies it.
type Transport interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	WaitForElement(ctx context.Context, selector, state string, timeout time.Duration) error
	ClickSelector(ctx context.Context, selector string) error
	TypePaced(ctx context.Context, text string) error
	Keypress(ctx context.Context, keys []string) error
	ScrollPaced(ctx context.Context, deltaY int) error
	Dwell(ctx context.Context) error
}

// ExhaustedError reports that every engine in the fallback order was tried
// without producing a result. Attempts preserves the order in which the
// engines were tried.
type ExhaustedError struct {
	Query    string
	Attempts []schemas.SearchAttempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("search exhausted after %d attempts for query %q", len(e.Attempts), e.Query)
}

// Controller runs search requests against real engines through a browser
// session, falling back across engines until one answers.
type Controller struct {
	cfg        config.SearchConfig
	logger     *zap.Logger
	transport  Transport
	stats      *Stats
	limiter    *rate.Limiter
	strategies map[schemas.SearchEngine]*strategy
}

// NewController builds a controller over the given transport. The pace
// interval from the configuration throttles consecutive engine attempts; a
// zero interval disables pacing.
func NewController(cfg config.SearchConfig, transport Transport, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.PaceInterval > 0 {
		limit = rate.Every(cfg.PaceInterval)
	}
	return &Controller{
		cfg:        cfg,
		logger:     logger.Named("search"),
		transport:  transport,
		stats:      NewStats(),
		limiter:    rate.NewLimiter(limit, 1),
		strategies: engineStrategies(),
	}
}

// Stats exposes the per-engine attempt counters accumulated so far.
func (c *Controller) Stats() *Stats {
	return c.stats
}

// EngineOrder computes the fallback order for an engine preference. A
// concrete preference goes first and the remaining engines follow in the
// default order; auto, empty, or unknown preferences use the default order
// unchanged.
func EngineOrder(pref schemas.SearchEngine) []schemas.SearchEngine {
	if !pref.Valid() {
		pref = schemas.EngineAuto
	}
	order := make([]schemas.SearchEngine, 0, len(schemas.SupportedEngines))
	if pref != schemas.EngineAuto {
		order = append(order, pref)
	}
	for _, e := range schemas.SupportedEngines {
		if e != pref {
			order = append(order, e)
		}
	}
	return order
}

// Resolve runs the fallback sequence for one request. It returns the first
// engine's extracted result, or an *ExhaustedError carrying every recorded
// attempt when no engine answers. Context cancellation aborts the sequence
// immediately.
func (c *Controller) Resolve(ctx context.Context, req schemas.SearchRequest) (*schemas.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("search query must not be empty")
	}

	order := EngineOrder(req.Engine)
	if !c.cfg.Resilient && len(order) > 1 {
		order = order[:1]
	}
	perEngine := c.cfg.AttemptsPerEngine
	if perEngine < 1 {
		perEngine = 1
	}

	attempts := make([]schemas.SearchAttempt, 0, len(order)*perEngine)
	ordinal := 0
	for _, engine := range order {
		strat, ok := c.strategies[engine]
		if !ok {
			c.logger.Warn("No strategy registered for engine, skipping.", zap.String("engine", string(engine)))
			continue
		}
		for n := 0; n < perEngine; n++ {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, err
			}

			ordinal++
			result, attempt := c.attempt(ctx, strat, req)
			attempt.Ordinal = ordinal
			attempts = append(attempts, attempt)
			c.stats.Record(engine, attempt.Outcome)

			if result != nil {
				c.logger.Info("Search resolved.",
					zap.String("engine", string(engine)),
					zap.Int("attempts", ordinal),
					zap.Int("organic", len(result.Organic)),
					zap.Duration("elapsed", result.Elapsed))
				return result, nil
			}
			c.logger.Warn("Search attempt did not produce a result.",
				zap.String("engine", string(engine)),
				zap.Int("ordinal", ordinal),
				zap.String("outcome", string(attempt.Outcome)),
				zap.String("detail", attempt.Detail))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
	}
	return nil, &ExhaustedError{Query: req.Query, Attempts: attempts}
}

// attempt runs one engine once: fetch the results page, classify it, then
// extract. A nil result means the attempt failed and the sequence should
// fall through.
func (c *Controller) attempt(ctx context.Context, strat *strategy, req schemas.SearchRequest) (res *schemas.SearchResult, att schemas.SearchAttempt) {
	att = schemas.SearchAttempt{Engine: strat.engine}
	start := time.Now()
	defer func() { att.Elapsed = time.Since(start) }()

	page, err := c.fetch(ctx, strat, req)
	if err != nil {
		att.Outcome = schemas.AttemptError
		att.Detail = err.Error()
		return nil, att
	}

	outcome, detail := strat.classify(page, c.cfg.BlockedMarkers)
	if outcome != schemas.AttemptSuccess {
		att.Outcome = outcome
		att.Detail = detail
		return nil, att
	}

	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		att.Outcome = schemas.AttemptError
		att.Detail = fmt.Sprintf("parse results page: %v", err)
		return nil, att
	}
	extract := strat.parse(doc, resultLimit(req))
	if len(extract.organic) == 0 && extract.featured == nil {
		att.Outcome = schemas.AttemptError
		att.Detail = "no results extracted from page"
		return nil, att
	}

	att.Outcome = schemas.AttemptSuccess
	elapsed := time.Since(start)
	return &schemas.SearchResult{
		Query:           req.Query,
		EngineUsed:      strat.engine,
		TotalResults:    extract.total,
		Organic:         extract.organic,
		Featured:        extract.featured,
		RelatedSearches: extract.related,
		Elapsed:         elapsed,
		ElapsedMs:       elapsed.Milliseconds(),
	}, att
}

// fetch loads the engine's results page for the request, either by direct
// URL navigation or, in humanlike mode, by typing the query into the
// engine's own search box.
func (c *Controller) fetch(ctx context.Context, strat *strategy, req schemas.SearchRequest) (string, error) {
	if req.Humanlike {
		if err := c.humanlikeQuery(ctx, strat, req); err != nil {
			return "", err
		}
	} else {
		if err := c.transport.Navigate(ctx, strat.build(req)); err != nil {
			return "", fmt.Errorf("navigate to %s: %w", strat.engine, err)
		}
	}

	// Best effort settle; a blocked interstitial never renders the results
	// container and the classifier handles that case from the raw page.
	if strat.resultsHint != "" {
		_ = c.transport.WaitForElement(ctx, strat.resultsHint, "visible", resultsSettleTimeout)
	}
	if req.Humanlike {
		_ = c.transport.ScrollPaced(ctx, 320)
		_ = c.transport.Dwell(ctx)
	}

	page, err := c.transport.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read results page: %w", err)
	}
	return page, nil
}

// humanlikeQuery drives the engine the way a person would: open the home
// page, focus the box, type the query with natural cadence, hit enter.
// Engine URL parameters cannot be expressed this way, so only the query
// text (including any site restriction) is carried over.
func (c *Controller) humanlikeQuery(ctx context.Context, strat *strategy, req schemas.SearchRequest) error {
	if err := c.transport.Navigate(ctx, strat.home); err != nil {
		return fmt.Errorf("open %s home: %w", strat.engine, err)
	}
	if err := c.transport.WaitForElement(ctx, strat.searchBox, "visible", resultsSettleTimeout); err != nil {
		return fmt.Errorf("search box on %s: %w", strat.engine, err)
	}
	if err := c.transport.ClickSelector(ctx, strat.searchBox); err != nil {
		return fmt.Errorf("focus search box on %s: %w", strat.engine, err)
	}
	if err := c.transport.TypePaced(ctx, effectiveQuery(req)); err != nil {
		return fmt.Errorf("type query on %s: %w", strat.engine, err)
	}
	if err := c.transport.Keypress(ctx, []string{"enter"}); err != nil {
		return fmt.Errorf("submit query on %s: %w", strat.engine, err)
	}
	return nil
}

// effectiveQuery folds the site restriction into the query text. The site:
// operator is the one piece of request policy every engine understands as
// plain query syntax.
func effectiveQuery(req schemas.SearchRequest) string {
	query := strings.TrimSpace(req.Query)
	if site := strings.TrimSpace(req.Site); site != "" {
		query = "site:" + site + " " + query
	}
	return query
}

// resultLimit clamps the requested organic result count to a sane window.
func resultLimit(req schemas.SearchRequest) int {
	if req.ResultCount < 1 {
		return 10
	}
	if req.ResultCount > 50 {
		return 50
	}
	return req.ResultCount
}
