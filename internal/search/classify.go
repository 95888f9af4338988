// internal/search/classify.go
package search

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/operant/api/schemas"
)

// classifyWith builds a page classifier from the shared configured markers
// plus any engine-specific ones. Marker matching is case-insensitive
// substring search over the raw page, which catches interstitials that
// render no parseable result structure at all.
func classifyWith(extra ...string) func(page string, markers []string) (schemas.AttemptOutcome, string) {
	return func(page string, markers []string) (schemas.AttemptOutcome, string) {
		if strings.TrimSpace(page) == "" {
			return schemas.AttemptError, "empty results page"
		}
		lowered := strings.ToLower(page)
		for _, marker := range markers {
			if m := strings.ToLower(strings.TrimSpace(marker)); m != "" && strings.Contains(lowered, m) {
				return schemas.AttemptBlocked, fmt.Sprintf("block marker %q", marker)
			}
		}
		for _, marker := range extra {
			if m := strings.ToLower(marker); m != "" && strings.Contains(lowered, m) {
				return schemas.AttemptBlocked, fmt.Sprintf("block marker %q", marker)
			}
		}
		return schemas.AttemptSuccess, ""
	}
}
