package classifier

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/parsers"
	"github.com/taxi-assistant/server/internal/agent/prompts"
	"github.com/taxi-assistant/server/internal/agent/text"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

// FallbackReply answers off-topic messages when the model is unavailable.
const FallbackReply = "Come posso aiutarti? Dimmi se hai fame, sete, o se vuoi visitare qualche posto!"

// defaultToolConfidence applies when the model omits a confidence for a tool choice.
const defaultToolConfidence = 0.8

var (
	validNeeds = []string{
		model.NeedFame,
		model.NeedSete,
		model.NeedMalessere,
		model.NeedDivertimento,
		model.NeedShopping,
	}
	validSubcategories = []string{"colazione", "pranzo", "cena", "spuntino"}

	cancelPhrases = []string{"no", "niente", "annulla", "non voglio", "lascia stare"}

	ordinals = []struct {
		word  string
		index int
	}{
		{"primo", 1}, {"prima", 1},
		{"secondo", 2}, {"seconda", 2},
		{"terzo", 3}, {"terza", 3},
		{"quarto", 4}, {"quarta", 4},
		{"quinto", 5}, {"quinta", 5},
		{"sesto", 6}, {"sesta", 6},
		{"settimo", 7}, {"settima", 7},
		{"ottavo", 8}, {"ottava", 8},
		{"nono", 9}, {"nona", 9},
		{"decimo", 10}, {"decima", 10},
	}

	numberedRe   = regexp.MustCompile(`(?:numero|n\.?|n°|nº)\s*(\d+)`)
	prefixedIDRe = regexp.MustCompile(`poi:POI_\d+`)
	bareIDRe     = regexp.MustCompile(`POI_\d+`)
)

// Classifier resolves intents with constrained LLM prompts. Every operation
// degrades to a documented default instead of returning an error.
type Classifier struct {
	llm model.Completer
}

// New returns a Classifier backed by llm.
func New(llm model.Completer) *Classifier {
	return &Classifier{llm: llm}
}

// ClassifyNeed maps a free-text message onto one of the five needs.
func (c *Classifier) ClassifyNeed(ctx context.Context, message string) model.NeedResult {
	prompt, err := prompts.RenderNeed(ctx, message)
	if err != nil {
		logx.Error().Err(err).Msg("need prompt render failed")
		return model.NeedResult{}
	}
	obj, err := c.completeJSON(ctx, "need", prompt)
	if err != nil {
		return model.NeedResult{}
	}

	res := model.NeedResult{
		Need:        CleanNeed(parsers.String(obj, "need")),
		Confidence:  parsers.Float(obj, "confidence", 0),
		Subcategory: CleanSubcategory(parsers.String(obj, "subcategory")),
	}
	logx.Info().
		Str("text", snippet(message)).
		Str("need", res.Need).
		Float64("confidence", res.Confidence).
		Str("subcategory", res.Subcategory).
		Msg("need classified")
	return res
}

// MatchOption maps a reply onto one of the offered options. Cancellation
// phrases and ordinals are resolved before any model call.
func (c *Classifier) MatchOption(ctx context.Context, message string, options []model.UIOption) model.MatchResult {
	if len(options) == 0 {
		return model.MatchResult{Action: model.ActionUnclear}
	}

	lower := strings.ToLower(message)
	if text.ContainsAnyWord(lower, cancelPhrases) {
		return model.MatchResult{Action: model.ActionCancel}
	}
	if idx, ok := OptionIndex(lower, len(options)); ok && options[idx-1].ID != "" {
		return model.MatchResult{SelectedID: options[idx-1].ID, Action: model.ActionSelect}
	}

	prompt, err := prompts.RenderOption(ctx, message, options)
	if err != nil {
		logx.Error().Err(err).Msg("option prompt render failed")
		return model.MatchResult{Action: model.ActionUnclear}
	}
	obj, err := c.completeJSON(ctx, "option", prompt)
	if err != nil {
		return model.MatchResult{Action: model.ActionUnclear}
	}

	res := normalizeMatch(parsers.String(obj, "selected_id"), parsers.String(obj, "action"), options)
	logx.Info().
		Str("text", snippet(message)).
		Str("selected_id", res.SelectedID).
		Str("action", string(res.Action)).
		Msg("option matched")
	return res
}

// ClassifyWithTools asks the model to pick a tool from toolsPrompt.
func (c *Classifier) ClassifyWithTools(ctx context.Context, message, toolsPrompt, contextInfo string) model.ToolClassification {
	prompt, err := prompts.RenderTools(ctx, message, toolsPrompt, contextInfo)
	if err != nil {
		logx.Error().Err(err).Msg("tools prompt render failed")
		return model.NoTool()
	}
	logx.Debug().
		Str("text", snippet(message)).
		Str("context", contextInfo).
		Int("tools_prompt_chars", len(toolsPrompt)).
		Msg("tool classification start")

	obj, err := c.completeJSON(ctx, "tools", prompt)
	if err != nil {
		return model.NoTool()
	}

	toolID := parsers.String(obj, "tool_id")
	if toolID == "" || strings.EqualFold(toolID, "none") {
		logx.Info().Str("text", snippet(message)).Msg("no tool classified")
		return model.NoTool()
	}
	res := model.ToolClassification{
		ToolID:     toolID,
		Params:     parsers.Object(obj, "params"),
		Confidence: parsers.Float(obj, "confidence", defaultToolConfidence),
	}
	logx.Info().
		Str("tool_id", res.ToolID).
		Interface("params", res.Params).
		Float64("confidence", res.Confidence).
		Msg("tool classified")
	return res
}

// ConversationalResponse produces a short redirecting reply for off-topic messages.
func (c *Classifier) ConversationalResponse(ctx context.Context, message string) string {
	prompt, err := prompts.RenderConversational(ctx, message)
	if err != nil {
		logx.Error().Err(err).Msg("conversational prompt render failed")
		return FallbackReply
	}
	out, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		logx.Error().Err(err).Msg("conversational response failed")
		return FallbackReply
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return FallbackReply
	}
	return out
}

func (c *Classifier) completeJSON(ctx context.Context, kind, prompt string) (map[string]any, error) {
	start := time.Now()
	out, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		logx.Error().Err(err).Str("kind", kind).Msg("classification call failed")
		return nil, err
	}
	obj, err := parsers.ExtractJSONObject(out)
	if err != nil {
		logx.Warn().Err(err).Str("kind", kind).Str("response", snippet(out)).Msg("classification output unparsable")
		return nil, err
	}
	logx.Debug().Str("kind", kind).Dur("elapsed", time.Since(start)).Msg("classification parsed")
	return obj, nil
}

// CleanNeed maps a raw model value onto an allow-listed need, or "".
// Spurious values such as "Shopping|null" keep the first need they contain.
func CleanNeed(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return ""
	}
	for _, need := range validNeeds {
		if raw == need {
			return need
		}
	}
	lower := strings.ToLower(raw)
	for _, need := range validNeeds {
		if strings.Contains(lower, strings.ToLower(need)) {
			return need
		}
	}
	return ""
}

// CleanSubcategory maps a raw model value onto an allow-listed subcategory, or "".
func CleanSubcategory(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" || lower == "null" {
		return ""
	}
	for _, sub := range validSubcategories {
		if lower == sub {
			return sub
		}
	}
	if strings.Contains(lower, "|") {
		for _, part := range strings.Split(lower, "|") {
			part = strings.TrimSpace(part)
			for _, sub := range validSubcategories {
				if part == sub {
					return sub
				}
			}
		}
	}
	for _, sub := range validSubcategories {
		if strings.Contains(lower, sub) {
			return sub
		}
	}
	return ""
}

// OptionIndex extracts a 1-based option position from an ordinal, a
// "numero N" reference or a bare integer. Positions outside [1,count] are ignored.
func OptionIndex(lower string, count int) (int, bool) {
	if count <= 0 {
		return 0, false
	}
	for _, o := range ordinals {
		if o.index <= count && text.ContainsWord(lower, o.word) {
			return o.index, true
		}
	}
	if n, ok := numberedIndex(lower); ok && n >= 1 && n <= count {
		return n, true
	}
	if n, ok := text.FirstInt(lower); ok && n >= 1 && n <= count {
		return n, true
	}
	return 0, false
}

// numberedIndex finds the first "numero N" style reference that stands as whole words.
func numberedIndex(lower string) (int, bool) {
	for _, loc := range numberedRe.FindAllStringSubmatchIndex(lower, -1) {
		if !text.WordBoundaryAt(lower, loc[0]) || !text.WordBoundaryAt(lower, loc[1]) {
			continue
		}
		n, err := strconv.Atoi(lower[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

func normalizeMatch(selectedID, action string, options []model.UIOption) model.MatchResult {
	act := model.MatchAction(strings.ToLower(action))
	switch act {
	case model.ActionSelect, model.ActionCancel, model.ActionUnclear:
	default:
		act = model.ActionUnclear
	}
	if strings.EqualFold(selectedID, "cancel") {
		return model.MatchResult{Action: model.ActionCancel}
	}
	if act != model.ActionSelect {
		return model.MatchResult{SelectedID: selectedID, Action: act}
	}

	id := resolveOptionID(selectedID, options)
	if id == "" {
		return model.MatchResult{Action: model.ActionUnclear}
	}
	return model.MatchResult{SelectedID: id, Action: model.ActionSelect}
}

// resolveOptionID extracts a clean id from model output such as
// "ID: poi:POI_008|Nome: Stadio".
func resolveOptionID(raw string, options []model.UIOption) string {
	if raw == "" {
		return ""
	}
	if m := prefixedIDRe.FindString(raw); m != "" {
		return m
	}
	if m := bareIDRe.FindString(raw); m != "" {
		return "poi:" + m
	}
	for _, opt := range options {
		if opt.ID == raw {
			return opt.ID
		}
	}
	lower := strings.ToLower(raw)
	for _, opt := range options {
		label := strings.ToLower(opt.Label)
		if label == "" {
			continue
		}
		if strings.Contains(lower, label) || strings.Contains(label, lower) {
			return opt.ID
		}
	}
	return ""
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= 30 {
		return s
	}
	return string(r[:30]) + "..."
}
