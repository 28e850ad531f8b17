// Package text holds the pure Italian text heuristics used ahead of any LLM call.
package text

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Analysis is the result of Analyze.
type Analysis struct {
	HasNegation          bool
	IsSimpleConfirmation bool
	IsSimpleRejection    bool
	CleanedText          string
}

var simpleConfirmations = []string{
	"ok", "okay", "sì", "si", "va bene", "perfetto", "grazie",
	"d'accordo", "capito", "certo", "esatto", "giusto",
	"benissimo", "ottimo", "fantastico", "eccellente",
}

var simpleRejections = []string{
	"no", "no grazie", "niente", "lascia stare", "annulla",
	"non importa", "non serve", "lascia perdere", "basta così",
}

// action verbs veto a confirmation, so "vai piano" is not read as "ok".
var actionIndicators = []string{"metti", "ferma", "cambia", "vai", "portami", "voglio", "cerco", "trova"}

var greetings = []string{
	"ciao", "salve", "buongiorno", "buonasera", "buonanotte",
	"hey", "ehi", "hello", "hi",
}

var helpPatterns = []string{
	"aiuto", "help", "cosa puoi fare", "cosa sai fare",
	"come funziona", "che puoi fare", "cosa fai",
	"quali sono le opzioni", "menu", "comandi",
}

var (
	punctuationRe = regexp.MustCompile(`[!?.,;:]+`)
	spacesRe      = regexp.MustCompile(`\s+`)
	digitsRe      = regexp.MustCompile(`\d+`)
)

// Analyze detects negation, short confirmation and short rejection.
func Analyze(s string) Analysis {
	lower := strings.ToLower(strings.TrimSpace(s))
	words := len(strings.Fields(lower))

	a := Analysis{HasNegation: HasNegation(lower)}

	if words <= 3 && !a.HasNegation && ContainsAnyWord(lower, simpleConfirmations) {
		a.IsSimpleConfirmation = true
		for _, verb := range actionIndicators {
			if strings.Contains(lower, verb) {
				a.IsSimpleConfirmation = false
				break
			}
		}
	}

	if words <= 5 && ContainsAnyWord(lower, simpleRejections) {
		a.IsSimpleRejection = true
	}

	a.CleanedText = Clean(s)
	return a
}

// Clean replaces punctuation runs with spaces, collapses whitespace and lower-cases.
func Clean(s string) string {
	out := punctuationRe.ReplaceAllString(s, " ")
	out = spacesRe.ReplaceAllString(strings.TrimSpace(out), " ")
	return strings.ToLower(out)
}

// HasNegation reports a standalone negation marker.
// "no" directly followed by "grazie" is a polite decline, not a negation.
func HasNegation(s string) bool {
	lower := strings.ToLower(s)
	if ContainsWord(lower, "non") || ContainsWord(lower, "mai") {
		return true
	}
	if prefixFollowedBySpace(lower, "niente") || prefixFollowedBySpace(lower, "senza") {
		return true
	}
	for _, idx := range wordIndexes(lower, "no") {
		rest := lower[idx+len("no"):]
		trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
		if len(trimmed) < len(rest) && strings.HasPrefix(trimmed, "grazie") {
			continue
		}
		return true
	}
	return false
}

// IsGreeting reports a short utterance containing a greeting word.
func IsGreeting(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	return len(strings.Fields(lower)) <= 3 && ContainsAnyWord(lower, greetings)
}

// IsHelpRequest reports a request for the capability menu.
func IsHelpRequest(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range helpPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ExtractNumber returns the first integer in s scaled to a 1..10 level.
// Values above 10 are read as percentages.
func ExtractNumber(s string) (int, bool) {
	m := firstNumber(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 10, true
	}
	if n > 10 {
		n = int(math.RoundToEven(float64(n) / 10))
	}
	return clamp(n, 1, 10), true
}

// FirstInt returns the first digit run standing as a whole word.
func FirstInt(s string) (int, bool) {
	m := firstNumber(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ContainsWord reports whether phrase occurs in s delimited by non-word characters.
// Letters and digits of any script count as word characters.
func ContainsWord(s, phrase string) bool {
	return len(wordIndexes(s, phrase)) > 0
}

// ContainsAnyWord reports whether any phrase occurs as a whole word.
func ContainsAnyWord(s string, phrases []string) bool {
	for _, p := range phrases {
		if ContainsWord(s, p) {
			return true
		}
	}
	return false
}

// FindWordIndex returns the byte offset of the first whole-word match, or -1.
func FindWordIndex(s, phrase string) int {
	idx := wordIndexes(s, phrase)
	if len(idx) == 0 {
		return -1
	}
	return idx[0]
}

func wordIndexes(s, phrase string) []int {
	if phrase == "" {
		return nil
	}
	var out []int
	for start := 0; start <= len(s)-len(phrase); {
		i := strings.Index(s[start:], phrase)
		if i < 0 {
			break
		}
		i += start
		if boundaryBefore(s, i, phrase) && boundaryAfter(s, i+len(phrase), phrase) {
			out = append(out, i)
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		start = i + size
	}
	return out
}

// WordBoundaryAt reports whether byte offset i sits between a word and a
// non-word character, the way \b does.
func WordBoundaryAt(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

// boundaryBefore mirrors \b: a boundary exists only where word-ness changes.
func boundaryBefore(s string, i int, phrase string) bool {
	first, _ := utf8.DecodeRuneInString(phrase)
	if !isWordRune(first) {
		return true
	}
	if i == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(prev)
}

func boundaryAfter(s string, end int, phrase string) bool {
	last, _ := utf8.DecodeLastRuneInString(phrase)
	if !isWordRune(last) {
		return true
	}
	if end >= len(s) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(s[end:])
	return !isWordRune(next)
}

// firstNumber returns the first digit run that stands as a whole word.
func firstNumber(s string) string {
	for _, loc := range digitsRe.FindAllStringIndex(s, -1) {
		if boundaryBefore(s, loc[0], "0") && boundaryAfter(s, loc[1], "0") {
			return s[loc[0]:loc[1]]
		}
	}
	return ""
}

func prefixFollowedBySpace(s, word string) bool {
	for _, i := range indexesWithLeftBoundary(s, word) {
		rest := s[i+len(word):]
		r, _ := utf8.DecodeRuneInString(rest)
		if rest != "" && unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

func indexesWithLeftBoundary(s, word string) []int {
	var out []int
	for start := 0; start <= len(s)-len(word); {
		i := strings.Index(s[start:], word)
		if i < 0 {
			break
		}
		i += start
		if boundaryBefore(s, i, word) {
			out = append(out, i)
		}
		start = i + len(word)
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
