package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeConfirmation(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ok", true},
		{"sì grazie", true},
		{"va bene", true},
		{"perfetto!", true},
		{"ok perfetto grazie", true},
		{"d'accordo", true},
		{"vai piano ok", false},
		{"ok metti jazz", false},
		{"non va bene", false},
		{"musica", false},
		{"ok allora va bene così", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.in).IsSimpleConfirmation)
		})
	}
}

func TestAnalyzeRejection(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"no grazie", true},
		{"no", true},
		{"lascia stare", true},
		{"annulla", true},
		{"basta così", true},
		{"niente", true},
		{"non mi piace questa musica per niente davvero", false},
		{"nonna", false},
		{"notte", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.in).IsSimpleRejection)
		})
	}
}

func TestHasNegation(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"non voglio musica", true},
		{"non", true},
		{"non importa", true},
		{"mai", true},
		{"niente musica", true},
		{"senza fretta", true},
		{"no, grazie", true},
		{"no", true},
		{"no grazie", false},
		{"niente", false},
		{"nonna", false},
		{"suonami qualcosa", false},
		{"buonanotte", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, HasNegation(tt.in))
		})
	}
}

func TestStandaloneNonAlwaysNegates(t *testing.T) {
	for _, in := range []string{"non serve", "non importa", "io non", "NON so"} {
		a := Analyze(in)
		assert.True(t, a.HasNegation, in)
	}
	assert.True(t, Analyze("non serve").IsSimpleRejection)
}

func TestCleanedText(t *testing.T) {
	assert.Equal(t, "ciao come va", Analyze("  Ciao!!  come   va?? ").CleanedText)
}

func TestIsGreeting(t *testing.T) {
	assert.True(t, IsGreeting("ciao"))
	assert.True(t, IsGreeting("Buongiorno a te"))
	assert.True(t, IsGreeting("hey!"))
	assert.False(t, IsGreeting("ciao ho fame adesso"))
	assert.False(t, IsGreeting("chi sei"))
}

func TestIsHelpRequest(t *testing.T) {
	assert.True(t, IsHelpRequest("aiuto"))
	assert.True(t, IsHelpRequest("Cosa puoi fare?"))
	assert.True(t, IsHelpRequest("mostrami il menu"))
	assert.False(t, IsHelpRequest("ho fame"))
}

func TestExtractNumber(t *testing.T) {
	tests := []struct {
		in    string
		want  int
		found bool
	}{
		{"volume a 8", 8, true},
		{"metti a 0", 1, true},
		{"volume al 50%", 5, true},
		{"volume al 25%", 2, true},
		{"volume al 100", 10, true},
		{"volume al massimo", 0, false},
		{"traccia mp3", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ExtractNumber(tt.in)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainsWord(t *testing.T) {
	assert.True(t, ContainsWord("sì", "sì"))
	assert.True(t, ContainsWord("ecco l'eco", "eco"))
	assert.False(t, ContainsWord("ecco", "eco"))
	assert.False(t, ContainsWord("musica", "si"))
	assert.True(t, ContainsWord("va bene così", "va bene"))
	assert.Equal(t, 5, FindWordIndex("ciao ok", "ok"))
	assert.Equal(t, -1, FindWordIndex("ciao", "ok"))
}

func TestFirstInt(t *testing.T) {
	n, ok := FirstInt("il numero 12 grazie")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = FirstInt("mp3 player")
	assert.False(t, ok)
}

func TestWordBoundaryAt(t *testing.T) {
	assert.True(t, WordBoundaryAt("n 2", 0))
	assert.True(t, WordBoundaryAt("n 2", 3))
	assert.False(t, WordBoundaryAt("an2", 1))
	assert.False(t, WordBoundaryAt("", 0))
}
