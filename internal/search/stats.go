// internal/search/stats.go
package search

import (
	"sync"

	"github.com/xkilldash9x/operant/api/schemas"
)

// EngineStats is the attempt tally for one engine since process start.
type EngineStats struct {
	Engine    schemas.SearchEngine `json:"engine"`
	BaseURL   string               `json:"base_url"`
	Successes int                  `json:"successes"`
	Failures  int                  `json:"failures"`
}

// Stats accumulates per-engine attempt counters. Blocked and errored
// attempts both count as failures; only an extracted result counts as a
// success.
type Stats struct {
	mu     sync.Mutex
	counts map[schemas.SearchEngine]*EngineStats
}

func NewStats() *Stats {
	return &Stats{counts: make(map[schemas.SearchEngine]*EngineStats, len(schemas.SupportedEngines))}
}

// Record tallies one attempt outcome for an engine.
func (s *Stats) Record(engine schemas.SearchEngine, outcome schemas.AttemptOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.counts[engine]
	if !ok {
		entry = &EngineStats{Engine: engine, BaseURL: engineBaseURL(engine)}
		s.counts[engine] = entry
	}
	if outcome == schemas.AttemptSuccess {
		entry.Successes++
	} else {
		entry.Failures++
	}
}

// Snapshot returns the current tallies for every supported engine in the
// default fallback order, including engines that have not been tried yet.
func (s *Stats) Snapshot() []EngineStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EngineStats, 0, len(schemas.SupportedEngines))
	for _, engine := range schemas.SupportedEngines {
		if entry, ok := s.counts[engine]; ok {
			out = append(out, *entry)
			continue
		}
		out = append(out, EngineStats{Engine: engine, BaseURL: engineBaseURL(engine)})
	}
	return out
}

func engineBaseURL(engine schemas.SearchEngine) string {
	switch engine {
	case schemas.EngineGoogle:
		return "https://www.google.com"
	case schemas.EngineBing:
		return "https://www.bing.com"
	case schemas.EngineDuckDuckGo:
		return "https://duckduckgo.com"
	case schemas.EngineYahoo:
		return "https://search.yahoo.com"
	}
	return ""
}
