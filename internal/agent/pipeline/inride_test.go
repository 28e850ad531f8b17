package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxi-assistant/server/internal/agent/agenttest"
	"github.com/taxi-assistant/server/internal/agent/classifier"
	"github.com/taxi-assistant/server/internal/agent/model"
)

func TestHandleFrameRouting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.p.HandleFrame(ctx, []byte(`not json`))
	assert.Equal(t, model.TypeError, resp.Type)
	assert.Equal(t, "Invalid JSON format", resp.Message)

	resp = h.p.HandleFrame(ctx, []byte(`{"type":"bogus","session_id":"s1"}`))
	assert.Equal(t, model.TypeError, resp.Type)
	assert.Equal(t, "Unknown message type: bogus", resp.Message)

	resp = h.p.HandleFrame(ctx, []byte(`{"type":"user_message","session_id":"s1","text":42}`))
	assert.Equal(t, model.TypeError, resp.Type)

	resp = h.p.HandleFrame(ctx, []byte(`{"type":"unity_message","session_id":"unity","action":"ping"}`))
	assert.Equal(t, model.TypeUnityResponse, resp.Type)
	assert.Equal(t, "pong", resp.Action)

	resp = h.p.HandleFrame(ctx, []byte(`{"type":"user_message","session_id":"s1","user_id":"U1","city":"Roma","taxi":{"x":3,"y":4},"text":"ciao"}`))
	assert.Equal(t, "Ciao! 👋 Come posso aiutarti durante il viaggio?", resp.Message)
	s := h.session(t, "s1")
	assert.Equal(t, "U1", s.UserID)
	assert.Equal(t, "Roma", s.City)
	assert.Equal(t, model.Position{X: 3, Y: 4}, s.Taxi)
}

func TestInRideShortCircuits(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		message string
		options []string
	}{
		{"rejection", "no grazie", "Va bene, nessun problema! Se hai bisogno di qualcosa, sono qui. 🚕", nil},
		{"confirmation", "ok", "👍 Ricevuto! Continuiamo verso la destinazione.", nil},
		{"help", "aiuto", inRideHelp, []string{"quick:fame", "quick:sete", "ask_music"}},
		{"greeting", "ciao", "Ciao! 👋 Come posso aiutarti durante il viaggio?", []string{"quick:fame", "quick:sete", "ask_music"}},
		{"negation", "non voglio la pizza", "Ho capito. C'è qualcos'altro che posso fare per te?", []string{"quick:fame", "quick:sete", "ask_music", "cancel"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			resp := h.say("s1", tt.text)
			assert.Equal(t, model.TypeAssistantResponse, resp.Type)
			assert.Equal(t, tt.message, resp.Message)
			if tt.options == nil {
				assert.Empty(t, resp.UIOptions)
			} else {
				assert.Equal(t, tt.options, optionIDs(resp.UIOptions))
			}
			assert.Zero(t, h.llm.TotalCalls())
		})
	}
}

func TestRejectionClearsSelections(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "s1", func(s *model.Session) {
		s.SetPOISuggestions([]string{"POI_001"})
		s.LastUIOptions = []model.UIOption{{ID: "poi:POI_001", Label: "Pizzeria"}}
		s.SetPending(model.PendingMusicGenre)
	})

	h.say("s1", "no grazie")

	s := h.session(t, "s1")
	assert.Empty(t, s.LastPOISuggestions)
	assert.Empty(t, s.LastUIOptions)
	assert.Empty(t, s.PendingQuestion)
}

func TestOptionMatchReplaysSelection(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "s1", func(s *model.Session) { s.UserID = "U1" })

	list := h.click("s1", "quick:fame", nil)
	assert.Equal(t, "🍕 In base alle tue preferenze, ecco cosa ho trovato:", list.Message)
	assert.Equal(t, []string{"poi:POI_001", "poi:POI_002", "cancel"}, optionIDs(list.UIOptions))

	s := h.session(t, "s1")
	assert.Equal(t, []string{"POI_001", "POI_002"}, s.LastPOISuggestions)
	assert.Len(t, s.LastUIOptions, 3)

	resp := h.say("s1", "il primo")
	assert.Equal(t, "Perfetto! Ti sto portando a Pizzeria Bella Napoli. 🚕", resp.Message)
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, model.RerouteTo("POI_001", "Pizzeria Bella Napoli", "21"), resp.Commands[0])
	assert.Zero(t, h.llm.TotalCalls())
	assert.Equal(t, 1, h.repo.VisitCount("U1", "POI_001"))

	// no ride is active, so nothing reaches the simulator
	assert.Empty(t, h.frames())

	s = h.session(t, "s1")
	assert.Empty(t, s.LastPOISuggestions)
	assert.Empty(t, s.LastUIOptions)
}

func TestOptionMatchDuringRideReroutes(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "s1", func(s *model.Session) {
		activeRide(s)
		s.LastUIOptions = []model.UIOption{
			{ID: "poi:POI_003", Label: "Bar Centrale"},
			{ID: "cancel", Label: "❌ Annulla"},
		}
	})

	resp := h.say("s1", "il primo")
	assert.Empty(t, resp.Message)

	frames := h.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, model.SimChangeDestination, frames[0].Type)
	assert.Equal(t, map[string]any{
		"poi_id":       "POI_003",
		"nome":         "Bar Centrale",
		"poi_id_unity": 7,
	}, frames[0].Payload["nuova_destinazione"])

	s := h.session(t, "s1")
	assert.Equal(t, "Bar Centrale", s.Ride.DestinationName)
	assert.Equal(t, "7", s.Ride.DestinationID)
}

func TestToolStage(t *testing.T) {
	t.Run("executes confident choice", func(t *testing.T) {
		h := newHarness(t)
		h.llm.On(agenttest.KindTools, `{"tool_id": "music_play", "params": {"genre": "rock"}, "confidence": 0.9}`)

		resp := h.say("s1", "metti un po' di rock")
		assert.Equal(t, "🎵 Avvio Rock! Buon ascolto!", resp.Message)
		assert.Equal(t, []model.Command{model.PlayMusic("Rock")}, resp.Commands)
		assert.Contains(t, h.llm.LastPrompt(), "Musica: SPENTA | Modalità: normal")

		s := h.session(t, "s1")
		assert.True(t, s.Music.Playing)
		assert.Equal(t, "Rock", s.Music.Genre)
	})

	t.Run("unknown tool", func(t *testing.T) {
		h := newHarness(t)
		h.llm.On(agenttest.KindTools, `{"tool_id": "teleport", "confidence": 0.95}`)

		resp := h.say("s1", "teletrasportami sulla luna")
		assert.Equal(t, "Tool 'teleport' non trovato.", resp.Message)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		tests := []struct {
			confidence string
			want       string
		}{
			{"0.70", "🎵 Avvio Rock! Buon ascolto!"},
			{"0.69", "🍺 Ecco cosa ho trovato:"},
		}
		for _, tt := range tests {
			h := newHarness(t)
			h.llm.
				On(agenttest.KindTools, `{"tool_id": "music_play", "params": {"genre": "rock"}, "confidence": `+tt.confidence+`}`).
				On(agenttest.KindNeed, `{"need": "Sete", "confidence": 0.9}`)

			resp := h.say("s1", "metti un po' di rock")
			assert.Equal(t, tt.want, resp.Message, "confidence=%s", tt.confidence)
		}
	})

	t.Run("low confidence falls through to need", func(t *testing.T) {
		h := newHarness(t)
		h.llm.
			On(agenttest.KindTools, `{"tool_id": "poi_need", "confidence": 0.5}`).
			On(agenttest.KindNeed, `{"need": "Sete", "confidence": 0.9}`)

		resp := h.say("s1", "avrei bisogno di bere qualcosa")
		assert.Equal(t, "🍺 Ecco cosa ho trovato:", resp.Message)
		assert.Equal(t, []string{"poi:POI_003", "cancel"}, optionIDs(resp.UIOptions))
	})
}

func TestContextInfo(t *testing.T) {
	s := model.NewSession("s1")
	assert.Equal(t, "Musica: SPENTA | Modalità: normal", contextInfo(s))

	s.StartMusic("Jazz")
	s.SetVolume(7)
	s.SetPOISuggestions([]string{"POI_001", "POI_002"})
	assert.Equal(t, "Musica: IN RIPRODUZIONE (Jazz), volume: 7/10 | POI suggeriti attivi: 2 | Modalità: normal", contextInfo(s))

	s.PauseMusic()
	s.EnterPreRide()
	assert.Equal(t, "Musica: PAUSA (Jazz) | POI suggeriti attivi: 2 | Modalità: pre_ride", contextInfo(s))
}

func TestPolicyKeywordStage(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "s1", func(s *model.Session) { s.UserID = "U1" })

	resp := h.say("s1", "vai più piano")
	assert.Equal(t, "Richiesta inviata: sto verificando se posso passare a Comfort.", resp.Message)

	frames := h.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, model.SimChangePolicy, frames[0].Type)
	assert.Equal(t, "Comfort", frames[0].Payload["nuova_policy"])

	// the policy only changes once the simulator confirms it
	assert.Equal(t, model.PolicySport, h.session(t, "s1").DrivingPolicy)
}

func TestStaleSuggestions(t *testing.T) {
	t.Run("ordinal is not a policy keyword", func(t *testing.T) {
		for _, msg := range []string{"il secondo", "la seconda"} {
			h := newHarness(t)
			h.seed(t, "s1", func(s *model.Session) {
				activeRide(s)
				s.SetPOISuggestions([]string{"POI_001", "POI_002"})
			})
			h.llm.On(agenttest.KindTools, `{"tool_id": "none", "confidence": 0.0}`)

			h.say("s1", msg)

			frames := h.frames()
			require.Len(t, frames, 1, msg)
			assert.Equal(t, model.SimChangeDestination, frames[0].Type)
			assert.Equal(t, "FastFood Express", h.session(t, "s1").Ride.DestinationName)
			assert.Equal(t, model.PolicySport, h.session(t, "s1").DrivingPolicy)
		}
	})

	t.Run("select", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, "s1", func(s *model.Session) {
			activeRide(s)
			s.SetPOISuggestions([]string{"POI_003"})
		})
		h.llm.On(agenttest.KindOption, `{"selected_id": "poi:POI_003", "action": "select"}`)

		resp := h.say("s1", "portami al bar centrale")
		assert.Empty(t, resp.Message)
		require.Len(t, h.frames(), 1)
		assert.Contains(t, h.llm.LastPrompt(), "Bar Centrale")

		s := h.session(t, "s1")
		assert.Empty(t, s.LastPOISuggestions)
		assert.Equal(t, "Bar Centrale", s.Ride.DestinationName)
	})

	t.Run("cancel", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, "s1", func(s *model.Session) { s.SetPOISuggestions([]string{"POI_003"}) })
		h.llm.On(agenttest.KindOption, `{"selected_id": "", "action": "cancel"}`)

		resp := h.say("s1", "preferisco continuare il viaggio")
		assert.Equal(t, "Va bene! Continuiamo verso la destinazione. 🚕", resp.Message)
		assert.Empty(t, h.session(t, "s1").LastPOISuggestions)
	})
}

func TestNeedStage(t *testing.T) {
	h := newHarness(t)
	h.llm.On(agenttest.KindNeed, `{"need": "Fame", "confidence": 0.7}`)

	resp := h.say("s1", "avrei proprio voglia di mangiare")
	assert.Equal(t, []string{"poi:POI_001", "poi:POI_002", "cancel"}, optionIDs(resp.UIOptions))

	t.Run("below threshold", func(t *testing.T) {
		h := newHarness(t)
		h.llm.
			On(agenttest.KindNeed, `{"need": "Fame", "confidence": 0.6}`).
			On(agenttest.KindConversational, "Sono qui per il tuo viaggio!")

		resp := h.say("s1", "avrei proprio voglia di mangiare")
		assert.Equal(t, "Sono qui per il tuo viaggio!", resp.Message)
	})

	t.Run("nothing found", func(t *testing.T) {
		h := newHarness(t)
		h.llm.On(agenttest.KindNeed, `{"need": "Shopping", "confidence": 0.9}`)

		resp := h.say("s1", "vorrei comprare un regalo")
		assert.Equal(t, "Mi dispiace, non ho trovato luoghi per 'Shopping' nelle vicinanze.", resp.Message)
	})
}

func TestConversationalFallback(t *testing.T) {
	h := newHarness(t)
	h.llm.On(agenttest.KindConversational, "Sono qui per aiutarti con il viaggio!")

	resp := h.say("s1", "chi ha vinto la partita ieri")
	assert.Equal(t, "Sono qui per aiutarti con il viaggio!", resp.Message)
	assert.Equal(t, []string{"quick:fame", "quick:sete", "quick:malessere"}, optionIDs(resp.UIOptions))

	t.Run("model down", func(t *testing.T) {
		h := newHarness(t)
		h.llm.Err = errors.New("quota exceeded")

		resp := h.say("s1", "chi ha vinto la partita ieri")
		assert.Equal(t, classifier.FallbackReply, resp.Message)
	})
}

func TestHistoryBookkeeping(t *testing.T) {
	h := newHarness(t)
	h.p.maxTurns = 4

	h.say("s1", "ciao")
	s := h.session(t, "s1")
	require.Len(t, s.History, 2)
	assert.Equal(t, "user", s.History[0].Role)
	assert.Equal(t, "ciao", s.History[0].Content)
	assert.Equal(t, "assistant", s.History[1].Role)
	assert.Equal(t, []string{"quick:fame", "quick:sete", "ask_music"}, optionIDs(s.LastUIOptions))

	h.say("s1", "ok")
	h.say("s1", "aiuto")
	s = h.session(t, "s1")
	require.Len(t, s.History, 4)
	assert.Equal(t, "ok", s.History[0].Content)
	assert.Equal(t, inRideHelp, s.History[3].Content)
}
