// internal/agent/safety.go
package agent

import (
	"fmt"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
)

var gateJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// keyAliases folds the key spellings the model is known to emit onto a single
// canonical form so combo matching is spelling-independent.
var keyAliases = map[string]string{
	"control": "ctrl",
	"command": "cmd",
	"meta":    "cmd",
	"super":   "cmd",
	"win":     "cmd",
	"option":  "alt",
}

// urlArgFunctions names the declared functions whose arguments carry a
// navigation target the gate must vet before dispatch.
var urlArgFunctions = map[string]bool{
	"goto":     true,
	"navigate": true,
}

// Gate rules on every proposed action before it reaches the execution target.
// A block verdict is recorded as an outcome in the conversation; it never
// fails the turn.
type Gate struct {
	blockedDomains []string
	combos         [][]string
	requireAck     bool
	logger         *zap.Logger
}

// NewGate builds a gate from the safety configuration. Domains and combo keys
// are normalized once here so per-action checks stay allocation-light.
func NewGate(cfg config.SafetyConfig, logger *zap.Logger) *Gate {
	domains := make([]string, 0, len(cfg.BlockedDomains))
	for _, d := range cfg.BlockedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	combos := make([][]string, 0, len(cfg.DestructiveCombos))
	for _, combo := range cfg.DestructiveCombos {
		normalized := make([]string, 0, len(combo))
		for _, k := range combo {
			normalized = append(normalized, canonicalKey(k))
		}
		if len(normalized) > 0 {
			combos = append(combos, normalized)
		}
	}
	return &Gate{
		blockedDomains: domains,
		combos:         combos,
		requireAck:     cfg.RequireAck,
		logger:         logger.Named("safety_gate"),
	}
}

// Check rules on a single pending action item. Block conditions take
// precedence over acknowledgment requirements.
func (g *Gate) Check(item *schemas.Item) Decision {
	switch item.Type {
	case schemas.ItemComputerCall:
		if item.Action != nil && item.Action.Type == schemas.ActionKeypress {
			if combo := g.matchCombo(item.Action.Keys); combo != "" {
				g.logger.Warn("Blocked destructive key combination.", zap.String("combo", combo))
				return Decision{Verdict: VerdictBlock, Reason: fmt.Sprintf("destructive key combination %q is not permitted", combo)}
			}
		}
	case schemas.ItemFunctionCall:
		if urlArgFunctions[item.Name] {
			if d := g.checkNavigationArgs(item.Arguments); !d.Allowed() {
				return d
			}
		}
	}

	if len(item.PendingSafetyChecks) > 0 {
		if g.requireAck {
			return Decision{Verdict: VerdictRequireAck, Checks: item.PendingSafetyChecks}
		}
		// Acknowledgment disabled: pass the checks through so the outcome
		// still records them as acknowledged.
		return Decision{Verdict: VerdictAllow, Checks: item.PendingSafetyChecks}
	}
	return Decision{Verdict: VerdictAllow}
}

// CheckURL rules on a navigation target. A hostname is blocked when it equals
// a blocklisted domain or is a subdomain of one.
func (g *Gate) CheckURL(raw string) Decision {
	if raw == "" {
		return Decision{Verdict: VerdictAllow}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return Decision{Verdict: VerdictBlock, Reason: fmt.Sprintf("unparseable navigation target %q", raw)}
	}
	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return Decision{Verdict: VerdictAllow}
	}
	for _, blocked := range g.blockedDomains {
		if hostname == blocked || strings.HasSuffix(hostname, "."+blocked) {
			g.logger.Warn("Blocked navigation to blocklisted domain.",
				zap.String("hostname", hostname),
				zap.String("blocked_domain", blocked),
			)
			return Decision{Verdict: VerdictBlock, Reason: fmt.Sprintf("navigation to blocklisted domain %q", hostname)}
		}
	}
	return Decision{Verdict: VerdictAllow}
}

func (g *Gate) checkNavigationArgs(arguments string) Decision {
	if arguments == "" {
		return Decision{Verdict: VerdictAllow}
	}
	var args struct {
		URL string `json:"url"`
	}
	if err := gateJSON.UnmarshalFromString(arguments, &args); err != nil {
		// Malformed arguments are the dispatcher's problem, not a safety call.
		return Decision{Verdict: VerdictAllow}
	}
	return g.CheckURL(args.URL)
}

// matchCombo returns a printable rendering of the first configured combo the
// pressed keys match, or "" if none do. Matching is order-independent.
func (g *Gate) matchCombo(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	pressed := make(map[string]bool, len(keys))
	for _, k := range keys {
		pressed[canonicalKey(k)] = true
	}
	for _, combo := range g.combos {
		if len(combo) != len(pressed) {
			continue
		}
		matched := true
		for _, k := range combo {
			if !pressed[k] {
				matched = false
				break
			}
		}
		if matched {
			return strings.Join(combo, "+")
		}
	}
	return ""
}

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}
