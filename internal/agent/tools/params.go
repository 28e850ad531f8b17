package tools

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/taxi-assistant/server/internal/agent/model"
)

var genreWords = []keyword{
	{"jazz", "Jazz"}, {"rock", "Rock"}, {"pop", "Pop"}, {"classica", "Classica"},
	{"hip hop", "HipHop"}, {"hiphop", "HipHop"}, {"hip-hop", "HipHop"},
	{"elettronica", "Elettronica"}, {"electronic", "Elettronica"},
}

var (
	volumeAfterWordRe = regexp.MustCompile(`volume\s*(?:a|al)?\s*(\d+)`)
	volumeAfterPrepRe = regexp.MustCompile(`\b(?:a|al)\s*(\d+)\b`)
	bareNumberRe      = regexp.MustCompile(`\b(\d+)\b`)
)

// ExtractGenre finds a catalogue genre mentioned in message.
func ExtractGenre(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, g := range genreWords {
		if strings.Contains(lower, g.word) {
			return g.value, true
		}
	}
	return "", false
}

// ExtractVolume finds a volume level in message. Values above 10 are read
// as percentages.
func ExtractVolume(message string) (int, bool) {
	lower := strings.ToLower(message)
	for _, re := range []*regexp.Regexp{volumeAfterWordRe, volumeAfterPrepRe} {
		if m := re.FindStringSubmatch(lower); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				return model.ClampVolume(scalePercent(v)), true
			}
		}
	}
	if m := bareNumberRe.FindStringSubmatch(lower); m != nil {
		v, err := strconv.Atoi(m[1])
		if err != nil || v < 1 {
			return 0, false
		}
		return model.ClampVolume(scalePercent(v)), true
	}
	return 0, false
}

func scalePercent(v int) int {
	if v > 10 {
		return int(math.RoundToEven(float64(v) / 10))
	}
	return v
}

// EnrichParams fills parameters the classifier left out using the raw
// message: a genre for music tools and a level for volume_set.
func EnrichParams(toolID, message string, params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	switch toolID {
	case "music_play", "change_genre":
		if g, _ := out["genre"].(string); g == "" {
			if genre, ok := ExtractGenre(message); ok {
				out["genre"] = genre
			}
		}
	case "volume_set":
		if _, ok := out["volume"]; !ok {
			if v, ok := ExtractVolume(message); ok {
				out["volume"] = v
			}
		}
	}
	return out
}
