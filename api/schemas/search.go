package schemas

import "time"

// -- Search Schemas --

// SearchEngine identifies one supported web search provider. EngineAuto is a
// configuration value only: it selects the default fallback ordering and
// never appears inside a computed engine order.
type SearchEngine string

const (
	EngineAuto       SearchEngine = "auto"
	EngineGoogle     SearchEngine = "google"
	EngineBing       SearchEngine = "bing"
	EngineDuckDuckGo SearchEngine = "duckduckgo"
	EngineYahoo      SearchEngine = "yahoo"
)

// SupportedEngines is the fixed default fallback ordering used when no
// explicit engine preference is configured.
var SupportedEngines = []SearchEngine{EngineGoogle, EngineBing, EngineDuckDuckGo, EngineYahoo}

// Valid reports whether e names a concrete engine or the auto preference.
func (e SearchEngine) Valid() bool {
	switch e {
	case EngineAuto, EngineGoogle, EngineBing, EngineDuckDuckGo, EngineYahoo:
		return true
	}
	return false
}

// SearchContentType selects the result vertical of a search request.
type SearchContentType string

const (
	ContentWeb      SearchContentType = "web"
	ContentNews     SearchContentType = "news"
	ContentImages   SearchContentType = "images"
	ContentVideos   SearchContentType = "videos"
	ContentShopping SearchContentType = "shopping"
)

// SearchRequest is one resolved search invocation. It is immutable once
// constructed; the fallback controller computes its engine order from the
// request and never mutates it mid-flight.
type SearchRequest struct {
	Query string `json:"query"`

	// Engine is the explicit preference; EngineAuto defers to the default
	// fallback ordering.
	Engine SearchEngine `json:"engine,omitempty"`

	Language    string            `json:"language,omitempty"`
	Region      string            `json:"region,omitempty"`
	SafeSearch  bool              `json:"safe_search,omitempty"`
	TimePeriod  string            `json:"time_period,omitempty"`
	ContentType SearchContentType `json:"content_type,omitempty"`
	Site        string            `json:"site,omitempty"`
	ResultCount int               `json:"result_count,omitempty"`

	// Humanlike paces the attempt and varies interaction patterns to lower
	// the automated-detection profile.
	Humanlike bool `json:"humanlike,omitempty"`
}

// OrganicResult is one standard result extracted from a results page.
type OrganicResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet,omitempty"`
	Position int    `json:"position"`
}

// FeaturedSnippet is the highlighted answer box some engines render above
// the organic results.
type FeaturedSnippet struct {
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url,omitempty"`
}

// SearchResult is the successful outcome of a search request, extracted from
// whichever engine answered first.
type SearchResult struct {
	Query           string           `json:"query"`
	EngineUsed      SearchEngine     `json:"engine_used"`
	TotalResults    string           `json:"total_results,omitempty"`
	Organic         []OrganicResult  `json:"organic_results"`
	Featured        *FeaturedSnippet `json:"featured_snippet,omitempty"`
	RelatedSearches []string         `json:"related_searches,omitempty"`
	Elapsed         time.Duration    `json:"-"`
	ElapsedMs       int64            `json:"search_time_ms"`
}

// AttemptOutcome classifies one engine attempt inside a fallback sequence.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptBlocked AttemptOutcome = "blocked"
	AttemptError   AttemptOutcome = "error"
)

// SearchAttempt records one engine invocation within a request's fallback
// sequence, in the order it was tried.
type SearchAttempt struct {
	Engine  SearchEngine   `json:"engine"`
	Ordinal int            `json:"ordinal"`
	Outcome AttemptOutcome `json:"outcome"`
	Detail  string         `json:"detail,omitempty"`
	Elapsed time.Duration  `json:"-"`
}
