package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVolume(t *testing.T) {
	tests := []struct {
		in    string
		want  int
		found bool
	}{
		{"metti il volume a 8", 8, true},
		{"volume al 50%", 5, true},
		{"volume al 75", 8, true},
		{"volume 45", 4, true},
		{"volume a 0", 1, true},
		{"mettilo al 3", 3, true},
		{"portalo a 7 grazie", 7, true},
		{"diciamo 6", 6, true},
		{"0", 0, false},
		{"alza un po'", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ExtractVolume(tt.in)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractGenre(t *testing.T) {
	g, ok := ExtractGenre("Metti un po' di HIP-HOP")
	assert.True(t, ok)
	assert.Equal(t, "HipHop", g)

	_, ok = ExtractGenre("metti la musica")
	assert.False(t, ok)
}

func TestEnrichParams(t *testing.T) {
	in := map[string]any{}
	out := EnrichParams("music_play", "metti del jazz", in)
	assert.Equal(t, map[string]any{"genre": "Jazz"}, out)
	assert.Empty(t, in)

	out = EnrichParams("change_genre", "metti del jazz", map[string]any{"genre": "Rock"})
	assert.Equal(t, "Rock", out["genre"])

	out = EnrichParams("volume_set", "volume a 9", nil)
	assert.Equal(t, 9, out["volume"])

	out = EnrichParams("volume_set", "volume a 9", map[string]any{"volume": float64(2)})
	assert.Equal(t, float64(2), out["volume"])

	out = EnrichParams("poi_need", "ho fame", nil)
	assert.Empty(t, out)
}
