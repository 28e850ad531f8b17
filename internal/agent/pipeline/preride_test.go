package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxi-assistant/server/internal/agent/agenttest"
	"github.com/taxi-assistant/server/internal/agent/model"
)

func (h *harness) sayPreRide(sessionID, text string) *model.Response {
	return h.p.HandlePreRideMessage(context.Background(), model.PreRideMessage{
		Type:      model.TypePreRideMessage,
		SessionID: sessionID,
		UserID:    "U1",
		Text:      text,
	})
}

func TestPreRideGreeting(t *testing.T) {
	h := newHarness(t)

	resp := h.sayPreRide("s1", "buongiorno")
	assert.Equal(t, "Ciao! 👋 Dimmi dove vuoi andare. Puoi dirmi il nome del posto o descrivermi cosa cerchi!", resp.Message)
	assert.Equal(t, []string{"quick:fame", "quick:sete", "quick:shopping"}, optionIDs(resp.UIOptions))
	assert.Contains(t, toJSON(t, resp), `"selected_poi":null`)

	s := h.session(t, "s1")
	assert.Equal(t, model.ModePreRide, s.Mode)
	assert.Equal(t, "Palermo", s.City)
	assert.Equal(t, "U1", s.UserID)
}

func TestPreRideHelp(t *testing.T) {
	h := newHarness(t)

	resp := h.sayPreRide("s1", "cosa puoi fare?")
	assert.Equal(t, preRideHelp, resp.Message)
	assert.Equal(t, "🍕 Cibo", resp.UIOptions[0].Label)
	assert.Zero(t, h.llm.TotalCalls())
}

func TestPreRideDirectDestination(t *testing.T) {
	h := newHarness(t)
	h.llm.On(agenttest.KindTools, `{"tool_id": "poi_direct", "params": {"poi_name": "Bar Centrale"}, "confidence": 0.65}`)

	resp := h.sayPreRide("s1", "voglio andare al Bar Centrale")
	assert.Equal(t, "📍 Ho trovato questo posto:", resp.Message)
	assert.Equal(t, []string{"poi:POI_003", "cancel"}, optionIDs(resp.UIOptions))
	assert.Nil(t, resp.SelectedPOI)

	prompt := h.llm.LastPrompt()
	assert.Contains(t, prompt, "- poi_direct:")
	assert.NotContains(t, prompt, "- music_play:")
	assert.Contains(t, prompt, preRideContext)

	resp = h.sayPreRide("s1", "il primo")
	assert.Equal(t, "Perfetto! Ti sto portando a Bar Centrale. 🚕", resp.Message)
	require.NotNil(t, resp.SelectedPOI)
	assert.Equal(t, "POI_003", resp.SelectedPOI["poi_id"])
	assert.Equal(t, "7", resp.SelectedPOI["id_unity"])
	assert.Contains(t, toJSON(t, resp), `"selected_poi":{`)

	// no ride yet, so the reroute stays on the client
	assert.Empty(t, h.frames())
	assert.Equal(t, 1, h.repo.VisitCount("U1", "POI_003"))
}

func TestPreRideToolThresholdIsInclusive(t *testing.T) {
	tests := []struct {
		confidence string
		want       string
	}{
		{"0.60", "📍 Ho trovato questo posto:"},
		{"0.59", "🍺 Ecco cosa ho trovato:"},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.llm.
			On(agenttest.KindTools, `{"tool_id": "poi_direct", "params": {"poi_name": "Bar Centrale"}, "confidence": `+tt.confidence+`}`).
			On(agenttest.KindNeed, `{"need": "Sete", "confidence": 0.55}`)

		resp := h.sayPreRide("s1", "voglio andare al Bar Centrale")
		assert.Equal(t, tt.want, resp.Message, "confidence=%s", tt.confidence)
	}
}

func TestPreRideNeedUsesLowerThreshold(t *testing.T) {
	h := newHarness(t)
	h.llm.On(agenttest.KindNeed, `{"need": "Sete", "confidence": 0.55}`)

	resp := h.sayPreRide("s1", "qualcosa da bere")
	assert.Equal(t, "🍺 Ecco cosa ho trovato:", resp.Message)
	assert.Equal(t, []string{"poi:POI_003", "cancel"}, optionIDs(resp.UIOptions))
	assert.Equal(t, []string{"POI_003"}, h.session(t, "s1").LastPOISuggestions)
}

func TestPreRideClarify(t *testing.T) {
	h := newHarness(t)

	resp := h.sayPreRide("s1", "boh vedi tu")
	assert.Equal(t, "🤔 Non ho capito bene. Dimmi dove vuoi andare o cosa stai cercando!", resp.Message)
	assert.Equal(t, []string{
		"quick:fame", "quick:sete", "quick:malessere", "quick:divertimento", "quick:shopping",
	}, optionIDs(resp.UIOptions))
}
