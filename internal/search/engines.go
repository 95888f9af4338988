// internal/search/engines.go
package search

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/operant/api/schemas"
)

// strategy bundles everything engine-specific: how to build a query URL in
// the engine's native syntax, how to recognize a block page, and how to
// pull results out of the markup. The fallback driver in Resolve only ever
// talks to engines through this table.
type strategy struct {
	engine schemas.SearchEngine

	// home and searchBox drive humanlike mode; resultsHint is the container
	// the driver waits on before reading the page.
	home        string
	searchBox   string
	resultsHint string

	build    func(req schemas.SearchRequest) string
	classify func(page string, markers []string) (schemas.AttemptOutcome, string)
	parse    func(doc *html.Node, limit int) extraction
}

func engineStrategies() map[schemas.SearchEngine]*strategy {
	return map[schemas.SearchEngine]*strategy{
		schemas.EngineGoogle: {
			engine:      schemas.EngineGoogle,
			home:        "https://www.google.com",
			searchBox:   "textarea[name=q], input[name=q]",
			resultsHint: "#search",
			build:       buildGoogleURL,
			classify:    classifyWith("our systems have detected", "sorry/index"),
			parse:       parseGoogle,
		},
		schemas.EngineBing: {
			engine:      schemas.EngineBing,
			home:        "https://www.bing.com",
			searchBox:   "#sb_form_q, input[name=q]",
			resultsHint: "#b_results",
			build:       buildBingURL,
			classify:    classifyWith("confirm you are not a robot"),
			parse:       parseBing,
		},
		schemas.EngineDuckDuckGo: {
			engine:      schemas.EngineDuckDuckGo,
			home:        "https://duckduckgo.com",
			searchBox:   "#searchbox_input, input[name=q]",
			resultsHint: "[data-testid=mainline], #links",
			build:       buildDuckDuckGoURL,
			classify:    classifyWith("anomaly.duckduckgo.com"),
			parse:       parseDuckDuckGo,
		},
		schemas.EngineYahoo: {
			engine:      schemas.EngineYahoo,
			home:        "https://search.yahoo.com",
			searchBox:   "#yschsp, input[name=p]",
			resultsHint: "#web, #results",
			build:       buildYahooURL,
			classify:    classifyWith("we've detected unusual activity"),
			parse:       parseYahoo,
		},
	}
}

// buildGoogleURL renders the request in Google's query syntax: hl/gl for
// locale, safe=active, tbs=qdr:* for freshness, tbm for the vertical.
func buildGoogleURL(req schemas.SearchRequest) string {
	q := url.Values{}
	q.Set("q", effectiveQuery(req))
	if req.Language != "" {
		q.Set("hl", strings.ToLower(req.Language))
	}
	if req.Region != "" {
		q.Set("gl", strings.ToLower(req.Region))
	}
	if req.SafeSearch {
		q.Set("safe", "active")
	}
	if p := googleTimePeriod(req.TimePeriod); p != "" {
		q.Set("tbs", "qdr:"+p)
	}
	switch req.ContentType {
	case schemas.ContentNews:
		q.Set("tbm", "nws")
	case schemas.ContentImages:
		q.Set("tbm", "isch")
	case schemas.ContentVideos:
		q.Set("tbm", "vid")
	case schemas.ContentShopping:
		q.Set("tbm", "shop")
	}
	if req.ResultCount > 0 {
		q.Set("num", strconv.Itoa(resultLimit(req)))
	}
	return "https://www.google.com/search?" + q.Encode()
}

func googleTimePeriod(period string) string {
	switch period {
	case "hour":
		return "h"
	case "day":
		return "d"
	case "week":
		return "w"
	case "month":
		return "m"
	case "year":
		return "y"
	}
	return ""
}

// buildBingURL renders the request in Bing's syntax. Freshness buckets on
// the web endpoint stop at a month, so year falls back to unbounded.
func buildBingURL(req schemas.SearchRequest) string {
	path := "/search"
	switch req.ContentType {
	case schemas.ContentNews:
		path = "/news/search"
	case schemas.ContentImages:
		path = "/images/search"
	case schemas.ContentVideos:
		path = "/videos/search"
	case schemas.ContentShopping:
		path = "/shop"
	}
	q := url.Values{}
	q.Set("q", effectiveQuery(req))
	if req.Language != "" {
		q.Set("setlang", strings.ToLower(req.Language))
	}
	if req.Region != "" {
		q.Set("cc", strings.ToLower(req.Region))
	}
	if req.SafeSearch {
		q.Set("adlt", "strict")
	}
	switch req.TimePeriod {
	case "hour", "day":
		q.Set("filters", `ex1:"ez1"`)
	case "week":
		q.Set("filters", `ex1:"ez2"`)
	case "month":
		q.Set("filters", `ex1:"ez3"`)
	}
	if req.ResultCount > 0 {
		q.Set("count", strconv.Itoa(resultLimit(req)))
	}
	return "https://www.bing.com" + path + "?" + q.Encode()
}

// buildDuckDuckGoURL renders the request for the DuckDuckGo SERP: kl for
// region-language, kp for safe search, df for freshness, ia/iax for the
// vertical.
func buildDuckDuckGoURL(req schemas.SearchRequest) string {
	q := url.Values{}
	q.Set("q", effectiveQuery(req))
	if kl := duckDuckGoLocale(req.Region, req.Language); kl != "" {
		q.Set("kl", kl)
	}
	if req.SafeSearch {
		q.Set("kp", "1")
	} else {
		q.Set("kp", "-2")
	}
	if p := googleTimePeriod(req.TimePeriod); p != "" {
		q.Set("df", p)
	}
	switch req.ContentType {
	case schemas.ContentNews:
		q.Set("ia", "news")
	case schemas.ContentImages:
		q.Set("ia", "images")
		q.Set("iax", "images")
	case schemas.ContentVideos:
		q.Set("ia", "videos")
		q.Set("iax", "videos")
	case schemas.ContentShopping:
		q.Set("ia", "shopping")
	}
	return "https://duckduckgo.com/?" + q.Encode()
}

// duckDuckGoLocale builds the kl parameter, which wants region-language
// pairs like us-en. Without a region there is no valid pair to send.
func duckDuckGoLocale(region, language string) string {
	region = strings.ToLower(strings.TrimSpace(region))
	language = strings.ToLower(strings.TrimSpace(language))
	if region == "" {
		return ""
	}
	if language == "" {
		language = region
	}
	return region + "-" + language
}

// buildYahooURL renders the request for Yahoo search. Verticals live on
// their own subdomains; locale has no stable query parameter and is left to
// the engine.
func buildYahooURL(req schemas.SearchRequest) string {
	host := "search.yahoo.com"
	switch req.ContentType {
	case schemas.ContentNews:
		host = "news.search.yahoo.com"
	case schemas.ContentImages:
		host = "images.search.yahoo.com"
	case schemas.ContentVideos:
		host = "video.search.yahoo.com"
	case schemas.ContentShopping:
		host = "shopping.yahoo.com"
	}
	q := url.Values{}
	q.Set("p", effectiveQuery(req))
	if req.SafeSearch {
		q.Set("vm", "r")
	}
	switch req.TimePeriod {
	case "hour":
		q.Set("btf", "h")
	case "day":
		q.Set("btf", "d")
	case "week":
		q.Set("btf", "w")
	case "month":
		q.Set("btf", "m")
	}
	if req.ResultCount > 0 {
		q.Set("n", strconv.Itoa(resultLimit(req)))
	}
	return "https://" + host + "/search?" + q.Encode()
}
