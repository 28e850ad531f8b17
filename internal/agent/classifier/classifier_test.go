package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxi-assistant/server/internal/agent/agenttest"
	"github.com/taxi-assistant/server/internal/agent/model"
)

var threeOptions = []model.UIOption{
	{ID: "poi:POI_001", Label: "Trattoria da Mario"},
	{ID: "poi:POI_002", Label: "Ristorante La Terrazza"},
	{ID: "cancel", Label: "❌ No grazie"},
}

func TestClassifyNeed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  model.NeedResult
	}{
		{"clean", `{"need": "Fame", "confidence": 0.9, "subcategory": "pranzo"}`, model.NeedResult{Need: "Fame", Confidence: 0.9, Subcategory: "pranzo"}},
		{"fenced", "```json\n{\"need\": \"Sete\", \"confidence\": 0.8, \"subcategory\": null}\n```", model.NeedResult{Need: "Sete", Confidence: 0.8}},
		{"spurious pipe", `{"need": "Shopping|null", "confidence": 0.7, "subcategory": "cena|pranzo"}`, model.NeedResult{Need: "Shopping", Confidence: 0.7, Subcategory: "cena"}},
		{"null need", `{"need": "null", "confidence": 0.2}`, model.NeedResult{Confidence: 0.2}},
		{"unknown need", `{"need": "Banana", "confidence": 0.9}`, model.NeedResult{Confidence: 0.9}},
		{"malformed", `need: Fame`, model.NeedResult{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := agenttest.NewScriptedCompleter().On(agenttest.KindNeed, tt.reply)
			got := New(llm).ClassifyNeed(context.Background(), "ho fame")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, llm.Calls(agenttest.KindNeed))
		})
	}
}

func TestClassifyNeedLLMFailure(t *testing.T) {
	llm := agenttest.NewScriptedCompleter()
	llm.Err = errors.New("timeout")
	got := New(llm).ClassifyNeed(context.Background(), "ho fame")
	assert.False(t, got.Found())
	assert.Zero(t, got.Confidence)
}

func TestCleanNeed(t *testing.T) {
	assert.Equal(t, "Fame", CleanNeed("Fame"))
	assert.Equal(t, "Shopping", CleanNeed("Shopping|null"))
	assert.Equal(t, "Malessere", CleanNeed("malessere"))
	assert.Equal(t, "", CleanNeed("Banana"))
	assert.Equal(t, "", CleanNeed("null"))
	assert.Equal(t, "", CleanNeed(""))
}

func TestCleanSubcategory(t *testing.T) {
	assert.Equal(t, "colazione", CleanSubcategory("Colazione"))
	assert.Equal(t, "pranzo", CleanSubcategory("x|pranzo|cena"))
	assert.Equal(t, "spuntino", CleanSubcategory("uno spuntino veloce"))
	assert.Equal(t, "", CleanSubcategory("merenda"))
}

func TestMatchOptionPrechecksSkipLLM(t *testing.T) {
	tests := []struct {
		msg  string
		want model.MatchResult
	}{
		{"no grazie", model.MatchResult{Action: model.ActionCancel}},
		{"lascia stare", model.MatchResult{Action: model.ActionCancel}},
		{"il primo", model.MatchResult{SelectedID: "poi:POI_001", Action: model.ActionSelect}},
		{"la seconda", model.MatchResult{SelectedID: "poi:POI_002", Action: model.ActionSelect}},
		{"numero 2", model.MatchResult{SelectedID: "poi:POI_002", Action: model.ActionSelect}},
		{"n. 1", model.MatchResult{SelectedID: "poi:POI_001", Action: model.ActionSelect}},
		{"n°2", model.MatchResult{SelectedID: "poi:POI_002", Action: model.ActionSelect}},
		{"vado col 1", model.MatchResult{SelectedID: "poi:POI_001", Action: model.ActionSelect}},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			llm := agenttest.NewScriptedCompleter()
			got := New(llm).MatchOption(context.Background(), tt.msg, threeOptions)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, llm.TotalCalls())
		})
	}
}

func TestMatchOptionEmptyOptions(t *testing.T) {
	llm := agenttest.NewScriptedCompleter()
	got := New(llm).MatchOption(context.Background(), "il primo", nil)
	assert.Equal(t, model.ActionUnclear, got.Action)
	assert.Zero(t, llm.TotalCalls())
}

func TestMatchOptionOutOfRangeFallsToLLM(t *testing.T) {
	llm := agenttest.NewScriptedCompleter().On(agenttest.KindOption, `{"selected_id": "null", "action": "unclear"}`)
	got := New(llm).MatchOption(context.Background(), "il quinto", threeOptions)
	assert.Equal(t, model.MatchResult{Action: model.ActionUnclear}, got)
	require.Equal(t, 1, llm.Calls(agenttest.KindOption))
	assert.Contains(t, llm.LastPrompt(), "- ID: poi:POI_001 | Nome: Trattoria da Mario")
}

func TestMatchOptionNormalizesLLMIDs(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  model.MatchResult
	}{
		{"prefixed id in prose", `{"selected_id": "ID: poi:POI_002|Nome: Ristorante La Terrazza", "action": "select"}`, model.MatchResult{SelectedID: "poi:POI_002", Action: model.ActionSelect}},
		{"bare id", `{"selected_id": "POI_001", "action": "select"}`, model.MatchResult{SelectedID: "poi:POI_001", Action: model.ActionSelect}},
		{"label", `{"selected_id": "la terrazza", "action": "select"}`, model.MatchResult{SelectedID: "poi:POI_002", Action: model.ActionSelect}},
		{"cancel id", `{"selected_id": "cancel", "action": "select"}`, model.MatchResult{Action: model.ActionCancel}},
		{"no match", `{"selected_id": "Pizzeria Bella", "action": "select"}`, model.MatchResult{Action: model.ActionUnclear}},
		{"bad action", `{"selected_id": null, "action": "maybe"}`, model.MatchResult{Action: model.ActionUnclear}},
		{"garbage", `boh`, model.MatchResult{Action: model.ActionUnclear}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := agenttest.NewScriptedCompleter().On(agenttest.KindOption, tt.reply)
			got := New(llm).MatchOption(context.Background(), "quella con la vista", threeOptions)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionIndex(t *testing.T) {
	tests := []struct {
		in    string
		count int
		want  int
		found bool
	}{
		{"il terzo", 3, 3, true},
		{"il decimo", 3, 0, false},
		{"numero 9 oppure 2", 3, 0, false},
		{"numero 2 o 9", 3, 2, true},
		{"prima", 1, 1, true},
		{"qualsiasi", 3, 0, false},
		{"il 1", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := OptionIndex(tt.in, tt.count)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyWithTools(t *testing.T) {
	llm := agenttest.NewScriptedCompleter().On(agenttest.KindTools, `Ecco: {"tool_id": "music_play", "params": {"genre": "jazz"}}`)
	got := New(llm).ClassifyWithTools(context.Background(), "metti del jazz", "Tool disponibili:", "")

	assert.Equal(t, "music_play", got.ToolID)
	assert.Equal(t, map[string]any{"genre": "jazz"}, got.Params)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Contains(t, llm.LastPrompt(), "CONTESTO CORRENTE: Nessun contesto speciale")
}

func TestClassifyWithToolsNone(t *testing.T) {
	for _, reply := range []string{`{"tool_id": "none"}`, `{"tool_id": null, "confidence": 0.9}`, `nessun json`} {
		llm := agenttest.NewScriptedCompleter().On(agenttest.KindTools, reply)
		got := New(llm).ClassifyWithTools(context.Background(), "non ho fame", "", "")
		assert.False(t, got.Found(), reply)
		assert.Zero(t, got.Confidence)
		assert.NotNil(t, got.Params)
	}
}

func TestClassifyWithToolsLogsUserText(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	llm := agenttest.NewScriptedCompleter().On(agenttest.KindTools, `{"tool_id": "none"}`)
	New(llm).ClassifyWithTools(context.Background(), "il secondo", "", "")

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["message"] == "no tool classified" {
			found = true
			assert.Equal(t, "il secondo", entry["text"])
			assert.Equal(t, 1, bytes.Count(line, []byte(`"message":`)), string(line))
		}
	}
	assert.True(t, found)
}

func TestConversationalResponse(t *testing.T) {
	llm := agenttest.NewScriptedCompleter().On(agenttest.KindConversational, "  Non posso aiutarti con questo 🙂 ma posso trovarti un bar!  ")
	assert.Equal(t, "Non posso aiutarti con questo 🙂 ma posso trovarti un bar!", New(llm).ConversationalResponse(context.Background(), "capitale della Francia?"))

	failing := agenttest.NewScriptedCompleter()
	failing.Err = errors.New("down")
	assert.Equal(t, FallbackReply, New(failing).ConversationalResponse(context.Background(), "x"))

	empty := agenttest.NewScriptedCompleter().On(agenttest.KindConversational, "   ")
	assert.Equal(t, FallbackReply, New(empty).ConversationalResponse(context.Background(), "x"))
}
