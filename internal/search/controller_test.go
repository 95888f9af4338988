// internal/search/controller_test.go
package search

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
)

// stubPage routes a canned results page to any URL containing its fragment.
type stubPage struct {
	urlContains string
	body        string
}

type fakeTransport struct {
	mu        sync.Mutex
	routes    []stubPage
	navErrors map[string]error

	navigated []string
	current   string
	typed     []string
	chords    [][]string
	clicked   []string
	waited    []string
	scrolls   int
	dwells    int

	// cancelAfter cancels the hooked context once that many navigations
	// have happened.
	cancelAfter int
	cancel      context.CancelFunc
}

func (f *fakeTransport) Navigate(_ context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, u)
	f.current = u
	if f.cancel != nil && len(f.navigated) >= f.cancelAfter {
		f.cancel()
	}
	for fragment, err := range f.navErrors {
		if strings.Contains(u, fragment) {
			return err
		}
	}
	return nil
}

func (f *fakeTransport) CurrentURL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeTransport) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, route := range f.routes {
		if strings.Contains(f.current, route.urlContains) {
			return route.body, nil
		}
	}
	return "<html><body><div>nothing here</div></body></html>", nil
}

func (f *fakeTransport) WaitForElement(_ context.Context, selector, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited = append(f.waited, selector)
	return nil
}

func (f *fakeTransport) ClickSelector(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakeTransport) TypePaced(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeTransport) Keypress(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chords = append(f.chords, keys)
	return nil
}

func (f *fakeTransport) ScrollPaced(context.Context, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls++
	return nil
}

func (f *fakeTransport) Dwell(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dwells++
	return nil
}

func (f *fakeTransport) navigatedHosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	hosts := make([]string, 0, len(f.navigated))
	for _, u := range f.navigated {
		switch {
		case strings.Contains(u, "google.com"):
			hosts = append(hosts, "google")
		case strings.Contains(u, "bing.com"):
			hosts = append(hosts, "bing")
		case strings.Contains(u, "duckduckgo.com"):
			hosts = append(hosts, "duckduckgo")
		case strings.Contains(u, "yahoo.com"):
			hosts = append(hosts, "yahoo")
		default:
			hosts = append(hosts, u)
		}
	}
	return hosts
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		Resilient:         true,
		Engine:            "auto",
		ContentType:       "web",
		ResultCount:       10,
		AttemptsPerEngine: 1,
		BlockedMarkers:    []string{"unusual traffic", "captcha", "verify you are human"},
	}
}

const blockedInterstitial = `<html><body>
<div>Our systems have detected unusual traffic from your computer network.</div>
</body></html>`

const googleSERP = `<!doctype html><html><body>
<div id="result-stats">About 1,230,000 results (0.42 seconds)</div>
<div id="search">
  <div class="g Ww4FFb">
    <a href="https://go.dev/doc/"><h3>Go documentation</h3></a>
    <div class="VwiC3b">The official Go documentation portal.</div>
  </div>
  <div class="g">
    <a href="/url?q=https://go.dev/blog/&amp;sa=U"><h3>The Go Blog</h3></a>
    <div class="VwiC3b">Articles from the Go team.</div>
  </div>
</div>
</body></html>`

const bingSERP = `<!doctype html><html><body>
<ol id="b_results">
  <li class="b_algo">
    <h2><a href="https://pkg.go.dev/">Go Packages</a></h2>
    <div class="b_caption"><p>Package discovery for the Go ecosystem.</p></div>
  </li>
</ol>
<span class="sb_count">1-10 of 2,400,000 results</span>
</body></html>`

const duckduckgoSERP = `<!doctype html><html><body>
<div data-testid="mainline">
  <article id="r1-0" data-testid="result">
    <a data-testid="result-title-a" href="https://golang.org/"><span>Golang home</span></a>
    <div data-result="snippet">Build simple, secure, scalable systems.</div>
  </article>
</div>
</body></html>`

const yahooSERP = `<!doctype html><html><body>
<div id="web">
  <div class="algo-sr">
    <h3 class="title"><a href="https://gobyexample.com/">Go by Example</a></h3>
    <div class="compText"><p>Hands-on introduction to Go.</p></div>
  </div>
</div>
</body></html>`

func newTestController(cfg config.SearchConfig, routes ...stubPage) (*Controller, *fakeTransport) {
	transport := &fakeTransport{routes: routes}
	return NewController(cfg, transport, zap.NewNop()), transport
}

func TestEngineOrder(t *testing.T) {
	t.Parallel()

	t.Run("AutoUsesDefaultOrder", func(t *testing.T) {
		order := EngineOrder(schemas.EngineAuto)
		assert.Equal(t, schemas.SupportedEngines, order)
	})

	t.Run("ExplicitPreferenceGoesFirst", func(t *testing.T) {
		order := EngineOrder(schemas.EngineBing)
		assert.Equal(t, []schemas.SearchEngine{
			schemas.EngineBing, schemas.EngineGoogle, schemas.EngineDuckDuckGo, schemas.EngineYahoo,
		}, order)
	})

	t.Run("PreferenceAlreadyFirstIsNotDuplicated", func(t *testing.T) {
		order := EngineOrder(schemas.EngineGoogle)
		assert.Equal(t, schemas.SupportedEngines, order)
		assert.Len(t, order, len(schemas.SupportedEngines))
	})

	t.Run("UnknownPreferenceFallsBackToDefault", func(t *testing.T) {
		assert.Equal(t, schemas.SupportedEngines, EngineOrder(schemas.SearchEngine("altavista")))
		assert.Equal(t, schemas.SupportedEngines, EngineOrder(schemas.SearchEngine("")))
	})
}

func TestResolveShortCircuitsOnFirstSuccess(t *testing.T) {
	t.Parallel()
	ctrl, transport := newTestController(testSearchConfig(), stubPage{"google.com", googleSERP})

	result, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{Query: "golang"})
	require.NoError(t, err)

	assert.Equal(t, schemas.EngineGoogle, result.EngineUsed)
	assert.Equal(t, "golang", result.Query)
	require.Len(t, result.Organic, 2)
	assert.Equal(t, "Go documentation", result.Organic[0].Title)
	assert.Equal(t, []string{"google"}, transport.navigatedHosts(), "a success must stop the fallback sequence")

	snapshot := ctrl.Stats().Snapshot()
	require.Len(t, snapshot, len(schemas.SupportedEngines))
	assert.Equal(t, 1, snapshot[0].Successes)
	assert.Equal(t, 0, snapshot[0].Failures)
	for _, entry := range snapshot[1:] {
		assert.Zero(t, entry.Successes)
		assert.Zero(t, entry.Failures)
	}
}

func TestResolveFallsThroughBlockedEngines(t *testing.T) {
	t.Parallel()
	ctrl, transport := newTestController(testSearchConfig(),
		stubPage{"google.com", blockedInterstitial},
		stubPage{"bing.com", blockedInterstitial},
		stubPage{"duckduckgo.com", duckduckgoSERP},
	)

	result, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{Query: "golang"})
	require.NoError(t, err)

	assert.Equal(t, schemas.EngineDuckDuckGo, result.EngineUsed)
	require.Len(t, result.Organic, 1)
	assert.Equal(t, "https://golang.org/", result.Organic[0].URL)
	assert.Equal(t, []string{"google", "bing", "duckduckgo"}, transport.navigatedHosts(),
		"the fourth engine must never be touched once the third answers")

	snapshot := ctrl.Stats().Snapshot()
	assert.Equal(t, 1, snapshot[0].Failures, "google")
	assert.Equal(t, 1, snapshot[1].Failures, "bing")
	assert.Equal(t, 1, snapshot[2].Successes, "duckduckgo")
	assert.Zero(t, snapshot[3].Successes, "yahoo untouched")
	assert.Zero(t, snapshot[3].Failures, "yahoo untouched")
}

func TestResolveExhaustsAllEngines(t *testing.T) {
	t.Parallel()
	ctrl, transport := newTestController(testSearchConfig(),
		stubPage{"google.com", blockedInterstitial},
		stubPage{"bing.com", blockedInterstitial},
		stubPage{"duckduckgo.com", blockedInterstitial},
		stubPage{"yahoo.com", blockedInterstitial},
	)

	result, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{Query: "golang"})
	require.Error(t, err)
	assert.Nil(t, result)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "golang", exhausted.Query)
	require.Len(t, exhausted.Attempts, 4)
	for i, attempt := range exhausted.Attempts {
		assert.Equal(t, i+1, attempt.Ordinal)
		assert.Equal(t, schemas.SupportedEngines[i], attempt.Engine)
		assert.Equal(t, schemas.AttemptBlocked, attempt.Outcome)
		assert.Contains(t, attempt.Detail, "unusual traffic")
	}
	assert.Contains(t, err.Error(), `"golang"`)
	assert.Equal(t, []string{"google", "bing", "duckduckgo", "yahoo"}, transport.navigatedHosts())
}

func TestResolveRecordsTransportFailuresAndContinues(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{
		routes:    []stubPage{{"bing.com", bingSERP}},
		navErrors: map[string]error{"google.com": assert.AnError},
	}
	ctrl := NewController(testSearchConfig(), transport, zap.NewNop())

	result, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{Query: "golang"})
	require.NoError(t, err)
	assert.Equal(t, schemas.EngineBing, result.EngineUsed)

	snapshot := ctrl.Stats().Snapshot()
	assert.Equal(t, 1, snapshot[0].Failures, "google navigate error counts as a failed attempt")
	assert.Equal(t, 1, snapshot[1].Successes)
}

func TestResolveEmptyQueryRejected(t *testing.T) {
	t.Parallel()
	ctrl, transport := newTestController(testSearchConfig())

	_, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{Query: "   "})
	require.Error(t, err)
	assert.Empty(t, transport.navigated)
}

func TestResolveExplicitPreferenceTriedFirst(t *testing.T) {
	t.Parallel()
	ctrl, transport := newTestController(testSearchConfig(), stubPage{"duckduckgo.com", duckduckgoSERP})

	result, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{
		Query:  "golang",
		Engine: schemas.EngineDuckDuckGo,
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.EngineDuckDuckGo, result.EngineUsed)
	assert.Equal(t, []string{"duckduckgo"}, transport.navigatedHosts())
}

func TestResolveNonResilientStopsAfterPreferredEngine(t *testing.T) {
	t.Parallel()
	cfg := testSearchConfig()
	cfg.Resilient = false
	ctrl, transport := newTestController(cfg, stubPage{"google.com", blockedInterstitial})

	_, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{Query: "golang"})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 1)
	assert.Equal(t, []string{"google"}, transport.navigatedHosts())
}

func TestResolveRetriesEngineBeforeFallingThrough(t *testing.T) {
	t.Parallel()
	cfg := testSearchConfig()
	cfg.AttemptsPerEngine = 2
	ctrl, transport := newTestController(cfg,
		stubPage{"google.com", blockedInterstitial},
		stubPage{"bing.com", bingSERP},
	)

	result, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{Query: "golang"})
	require.NoError(t, err)
	assert.Equal(t, schemas.EngineBing, result.EngineUsed)
	assert.Equal(t, []string{"google", "google", "bing"}, transport.navigatedHosts())
	assert.Equal(t, 2, ctrl.Stats().Snapshot()[0].Failures)
}

func TestResolveCancelledContextBeforeStart(t *testing.T) {
	t.Parallel()
	ctrl, transport := newTestController(testSearchConfig(), stubPage{"google.com", googleSERP})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ctrl.Resolve(ctx, schemas.SearchRequest{Query: "golang"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, transport.navigated)
}

func TestResolveCancellationAbortsFallback(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	transport := &fakeTransport{
		routes:      []stubPage{{"google.com", blockedInterstitial}, {"bing.com", bingSERP}},
		cancelAfter: 1,
		cancel:      cancel,
	}
	ctrl := NewController(testSearchConfig(), transport, zap.NewNop())

	_, err := ctrl.Resolve(ctx, schemas.SearchRequest{Query: "golang"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"google"}, transport.navigatedHosts(),
		"no further engine may be tried after cancellation")
}

func TestResolveHumanlikeDrivesTheSearchBox(t *testing.T) {
	t.Parallel()
	ctrl, transport := newTestController(testSearchConfig(), stubPage{"google.com", googleSERP})

	result, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{
		Query:     "golang concurrency",
		Humanlike: true,
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.EngineGoogle, result.EngineUsed)

	require.NotEmpty(t, transport.navigated)
	assert.Equal(t, "https://www.google.com", transport.navigated[0], "humanlike mode starts from the engine home page")
	require.Len(t, transport.typed, 1)
	assert.Equal(t, "golang concurrency", transport.typed[0])
	require.Len(t, transport.chords, 1)
	assert.Equal(t, []string{"enter"}, transport.chords[0])
	assert.NotEmpty(t, transport.clicked, "the search box is focused before typing")
	assert.Positive(t, transport.scrolls)
	assert.Positive(t, transport.dwells)
}

func TestResolvePacesConsecutiveAttempts(t *testing.T) {
	t.Parallel()
	cfg := testSearchConfig()
	cfg.PaceInterval = 30 * time.Millisecond
	ctrl, _ := newTestController(cfg,
		stubPage{"google.com", blockedInterstitial},
		stubPage{"bing.com", bingSERP},
	)

	start := time.Now()
	result, err := ctrl.Resolve(context.Background(), schemas.SearchRequest{Query: "golang"})
	require.NoError(t, err)
	assert.Equal(t, schemas.EngineBing, result.EngineUsed)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond,
		"the second attempt must wait out the pace interval")
}
