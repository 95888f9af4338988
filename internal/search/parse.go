// internal/search/parse.go
package search

import (
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/operant/api/schemas"
)

// maxRelated caps the related searches carried into a result.
const maxRelated = 5

// extraction is everything pulled out of one results page.
type extraction struct {
	organic  []schemas.OrganicResult
	featured *schemas.FeaturedSnippet
	related  []string
	total    string
}

// serpRules is the XPath selector set for one engine's results markup.
type serpRules struct {
	organic  organicRule
	featured featuredRule
	related  string
	total    string
}

type organicRule struct {
	// block selects each result container; anchor and title resolve inside
	// a block. snippets are tried in order until one yields text.
	block    string
	anchor   string
	title    string
	snippets []string
}

type featuredRule struct {
	block    string
	title    string
	contents []string
	source   string
}

func parseGoogle(doc *html.Node, limit int) extraction {
	return extract(doc, schemas.EngineGoogle, serpRules{
		organic: organicRule{
			block:    "//div[contains(concat(' ', normalize-space(@class), ' '), ' g ')]",
			anchor:   ".//a[.//h3]",
			title:    ".//h3",
			snippets: []string{".//div[contains(@class,'VwiC3b')]", ".//span[@class='st']", ".//div[@class='s']"},
		},
		featured: featuredRule{
			block:    "//div[contains(@class,'kp-blk')] | //div[contains(@class,'xpdopen')]",
			title:    ".//h3",
			contents: []string{".//span[contains(@class,'hgKElc')]", ".//div[@data-attrid='wa:/description']", ".//span"},
			source:   ".//a[@href]",
		},
		related: "//div[@id='brs']//a | //div[@id='botstuff']//a[.//b]",
		total:   "//div[@id='result-stats']",
	}, limit)
}

func parseBing(doc *html.Node, limit int) extraction {
	return extract(doc, schemas.EngineBing, serpRules{
		organic: organicRule{
			block:    "//li[contains(@class,'b_algo')]",
			anchor:   ".//h2/a",
			title:    ".//h2/a",
			snippets: []string{".//div[contains(@class,'b_caption')]//p", ".//p"},
		},
		featured: featuredRule{
			block:    "//li[contains(@class,'b_ans')] | //div[contains(@class,'b_ans')]",
			title:    ".//h2",
			contents: []string{".//div[contains(@class,'b_focusTextMedium')]", ".//p"},
			source:   ".//a[@href]",
		},
		related: "//div[contains(@class,'b_rs')]//a",
		total:   "//span[@class='sb_count']",
	}, limit)
}

func parseDuckDuckGo(doc *html.Node, limit int) extraction {
	return extract(doc, schemas.EngineDuckDuckGo, serpRules{
		organic: organicRule{
			// The scripted SERP tags results with data-testid; the static
			// fallback still uses result__ classes.
			block:    "//article[@data-testid='result'] | //div[contains(concat(' ', normalize-space(@class), ' '), ' result ')]",
			anchor:   ".//a[@data-testid='result-title-a'] | .//a[contains(@class,'result__a')]",
			title:    ".//a[@data-testid='result-title-a'] | .//a[contains(@class,'result__a')]",
			snippets: []string{".//div[@data-result='snippet']", ".//a[contains(@class,'result__snippet')]", ".//div[contains(@class,'result__snippet')]"},
		},
		featured: featuredRule{
			block:    "//article[@data-testid='instant-answer'] | //div[@id='zero_click_abstract']",
			contents: []string{".//p", ".//span"},
			source:   ".//a[@href]",
		},
		related: "//a[@data-testid='related-searches-link']",
	}, limit)
}

func parseYahoo(doc *html.Node, limit int) extraction {
	return extract(doc, schemas.EngineYahoo, serpRules{
		organic: organicRule{
			block:    "//div[contains(concat(' ', normalize-space(@class), ' '), ' algo ')] | //div[contains(@class,'algo-sr')]",
			anchor:   ".//h3//a",
			title:    ".//h3//a",
			snippets: []string{".//div[contains(@class,'compText')]", ".//p"},
		},
		featured: featuredRule{
			block:    "//div[contains(@class,'answer')] | //div[contains(@class,'sys_dictionary')]",
			title:    ".//h3",
			contents: []string{".//p", ".//span"},
			source:   ".//a[@href]",
		},
		related: "//div[contains(@class,'AlsoTry')]//a",
		total:   "//div[contains(@class,'compPagination')]//span",
	}, limit)
}

func extract(doc *html.Node, engine schemas.SearchEngine, rules serpRules, limit int) extraction {
	ex := extraction{
		organic:  organicResults(doc, engine, rules.organic, limit),
		featured: featuredSnippet(doc, engine, rules.featured),
		related:  relatedSearches(doc, rules.related),
	}
	if rules.total != "" {
		if n := htmlquery.FindOne(doc, rules.total); n != nil {
			ex.total = nodeText(n)
		}
	}
	return ex
}

func organicResults(doc *html.Node, engine schemas.SearchEngine, rule organicRule, limit int) []schemas.OrganicResult {
	blocks := htmlquery.Find(doc, rule.block)
	results := make([]schemas.OrganicResult, 0, len(blocks))
	seen := make(map[string]struct{}, len(blocks))
	for _, block := range blocks {
		if len(results) >= limit {
			break
		}
		anchor := htmlquery.FindOne(block, rule.anchor)
		if anchor == nil {
			continue
		}
		link := cleanResultURL(engine, htmlquery.SelectAttr(anchor, "href"))
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		title := ""
		if n := htmlquery.FindOne(block, rule.title); n != nil {
			title = nodeText(n)
		}
		if title == "" {
			title = nodeText(anchor)
		}
		if title == "" {
			continue
		}
		seen[link] = struct{}{}
		results = append(results, schemas.OrganicResult{
			Title:    title,
			URL:      link,
			Snippet:  firstText(block, rule.snippets...),
			Position: len(results) + 1,
		})
	}
	return results
}

func featuredSnippet(doc *html.Node, engine schemas.SearchEngine, rule featuredRule) *schemas.FeaturedSnippet {
	if rule.block == "" {
		return nil
	}
	block := htmlquery.FindOne(doc, rule.block)
	if block == nil {
		return nil
	}
	content := firstText(block, rule.contents...)
	if content == "" {
		return nil
	}
	snippet := &schemas.FeaturedSnippet{Content: content}
	if rule.title != "" {
		if n := htmlquery.FindOne(block, rule.title); n != nil {
			snippet.Title = nodeText(n)
		}
	}
	if rule.source != "" {
		if n := htmlquery.FindOne(block, rule.source); n != nil {
			snippet.SourceURL = cleanResultURL(engine, htmlquery.SelectAttr(n, "href"))
		}
	}
	return snippet
}

func relatedSearches(doc *html.Node, xpath string) []string {
	if xpath == "" {
		return nil
	}
	nodes := htmlquery.Find(doc, xpath)
	related := make([]string, 0, maxRelated)
	seen := make(map[string]struct{}, maxRelated)
	for _, n := range nodes {
		if len(related) >= maxRelated {
			break
		}
		text := nodeText(n)
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		related = append(related, text)
	}
	return related
}

// nodeText returns the node's inner text with whitespace collapsed.
func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}

// firstText tries each XPath under n and returns the first non-empty text.
func firstText(n *html.Node, xpaths ...string) string {
	for _, xp := range xpaths {
		if found := htmlquery.FindOne(n, xp); found != nil {
			if text := nodeText(found); text != "" {
				return text
			}
		}
	}
	return ""
}

// cleanResultURL unwraps engine redirect wrappers and drops links that are
// not real external results: fragments, javascript handlers, and the
// engine's own navigation.
func cleanResultURL(engine schemas.SearchEngine, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	switch engine {
	case schemas.EngineGoogle:
		// Classic /url?q= redirect wrapper.
		if strings.HasPrefix(href, "/url?") {
			if u, err := url.Parse(href); err == nil {
				if q := u.Query().Get("q"); q != "" {
					href = q
				}
			}
		}
	case schemas.EngineDuckDuckGo:
		if strings.Contains(href, "uddg=") {
			if u, err := url.Parse(href); err == nil {
				if wrapped := u.Query().Get("uddg"); wrapped != "" {
					href = wrapped
				}
			}
		}
	case schemas.EngineYahoo:
		href = unwrapYahooRedirect(href)
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if engineOwnHost(engine, u.Host) {
		return ""
	}
	return u.String()
}

// unwrapYahooRedirect decodes r.search.yahoo.com hrefs, which embed the
// destination percent-encoded between /RU= and the next /RK= or /RS=
// segment.
func unwrapYahooRedirect(href string) string {
	idx := strings.Index(href, "/RU=")
	if idx < 0 {
		return href
	}
	rest := href[idx+len("/RU="):]
	if end := strings.Index(rest, "/RK="); end >= 0 {
		rest = rest[:end]
	}
	if end := strings.Index(rest, "/RS="); end >= 0 {
		rest = rest[:end]
	}
	if decoded, err := url.QueryUnescape(rest); err == nil && decoded != "" {
		return decoded
	}
	return href
}

func engineOwnHost(engine schemas.SearchEngine, host string) bool {
	host = strings.ToLower(host)
	var own []string
	switch engine {
	case schemas.EngineGoogle:
		own = []string{"google.com"}
	case schemas.EngineBing:
		own = []string{"bing.com", "msn.com", "microsoft.com"}
	case schemas.EngineDuckDuckGo:
		own = []string{"duckduckgo.com"}
	case schemas.EngineYahoo:
		own = []string{"yahoo.com", "yahoo.net"}
	}
	for _, domain := range own {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
