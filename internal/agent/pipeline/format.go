package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// simulatorTimeScale is the number of simulated minutes per real minute.
const simulatorTimeScale = 12

// FormatDurationMinutes renders a real-time duration on the simulation
// clock. Negative durations count as zero; anything under a simulated minute
// is shown in seconds.
func FormatDurationMinutes(minutes float64) string {
	sim := math.Max(minutes, 0) * simulatorTimeScale
	if sim < 1 {
		seconds := max(1, int(math.RoundToEven(sim*60)))
		return fmt.Sprintf("%d sec (sim)", seconds)
	}
	if sim >= 60 {
		hours := int(math.Floor(sim / 60))
		rest := int(math.Mod(sim, 60))
		switch {
		case rest != 0:
			return fmt.Sprintf("%dh %dm", hours, rest)
		case hours == 1:
			return "1 ora"
		default:
			return fmt.Sprintf("%d ore", hours)
		}
	}
	return fmt.Sprintf("%d min", int(math.RoundToEven(sim)))
}

// FormatDurationValue formats a JSON-decoded duration, or "n.d." when v is not numeric.
func FormatDurationValue(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return "n.d."
	}
	return FormatDurationMinutes(f)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func floatOr(payload map[string]any, key string, fallback float64) float64 {
	if f, ok := toFloat(payload[key]); ok {
		return f
	}
	return fallback
}

func stringOr(payload map[string]any, key, fallback string) string {
	if s, ok := payload[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// unityID renders a simulator id as a string whether it was decoded as a number or text.
func unityID(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// wireUnityID sends numeric ids as numbers, which is what the simulator expects.
func wireUnityID(id string) any {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}
