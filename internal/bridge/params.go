// internal/bridge/params.go
package bridge

import (
	"fmt"
	"strings"
)

// The tool layer receives arguments as decoded JSON objects, both from MCP
// call requests and from model-issued function calls. These helpers pull
// typed values out of such a map, falling back when a key is absent or of the
// wrong shape.

func stringParam(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return fallback
}

func boolParam(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

// intParam tolerates JSON's float64 decoding of numbers.
func intParam(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}

// stringsParam decodes a JSON string array argument, dropping non-string
// entries.
func stringsParam(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitDataURL splits a data URL into its MIME type and base64 payload.
func splitDataURL(dataURL string) (mime, data string, err error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", "", fmt.Errorf("not a data URL")
	}
	mime, data, ok = strings.Cut(rest, ";base64,")
	if !ok || mime == "" || data == "" {
		return "", "", fmt.Errorf("malformed data URL")
	}
	return mime, data, nil
}
