package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxErrSnippet = 200       // limit error snippet size
)

// ErrNoJSON is reported when the model answered without any JSON object.
var ErrNoJSON = fmt.Errorf("no json object in llm output")

// ExtractJSONObject decodes the object spanning the first '{' to the last '}'.
// Code fences and surrounding prose are tolerated; the parser never panics.
func ExtractJSONObject(content string) (out map[string]any, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "json_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("json parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			out = nil
		}
	}()

	// content length guard
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "json_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errx.New(ErrNoJSON, http.StatusUnprocessableEntity, errx.InvalidInputMessage)
	}

	raw := content[start : end+1]
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errx.New(fmt.Errorf("decode %q: %w", safeSnippet(raw), err), http.StatusUnprocessableEntity, errx.InvalidInputMessage)
	}
	return out, nil
}

// String returns a trimmed string field; "null" and non-strings read as "".
func String(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

// Float returns a numeric field clamped to [0,1], or def when missing or invalid.
func Float(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	var f float64
	switch vv := v.(type) {
	case float64:
		f = vv
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return math.Max(0, math.Min(1, f))
}

// Object returns a nested object field, or an empty map.
func Object(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok && v != nil {
		return v
	}
	return map[string]any{}
}

// --- helpers ---

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
