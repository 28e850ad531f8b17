package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taxi-assistant/server/internal/agent/agenttest"
	"github.com/taxi-assistant/server/internal/agent/classifier"
	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/session"
	"github.com/taxi-assistant/server/internal/agent/tools"
)

type harness struct {
	p     *Pipeline
	store *session.MemoryStore
	repo  *agenttest.MemoryRepository
	sim   *agenttest.RecordingSimulator
	chat  *agenttest.RecordingNotifier
	llm   *agenttest.ScriptedCompleter
}

func rating(v float64) *float64 { return &v }

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := agenttest.NewMemoryRepository().
		AddPOI(model.POI{ID: "POI_001", Name: "Pizzeria Bella Napoli", IDUnity: "21", Category: "Ristorazione", Rating: rating(4.6), Liked: true}, "Fame").
		AddPOI(model.POI{ID: "POI_002", Name: "FastFood Express", IDUnity: "5", Category: "Fast Food", Rating: rating(3.9)}, "Fame").
		AddPOI(model.POI{ID: "POI_003", Name: "Bar Centrale", IDUnity: "7", Category: "Bar"}, "Sete").
		AddPOI(model.POI{ID: "POI_004", Name: "Teatro Massimo", IDUnity: "12", Category: "Cultura", Rating: rating(4.8)}, "Svago").
		AddPOI(model.POI{ID: "POI_005", Name: "Parco della Favorita", Category: "Parco", Rating: rating(4.1)}, "Svago")
	repo.Users["U1"] = model.User{ID: "U1", Name: "Marco Rossi"}
	repo.Users["U2"] = model.User{ID: "U2", Name: "Laura Bianchi", Conditions: []string{"pregnancy"}}

	store := session.NewMemoryStore(model.SessionConfig{TTL: time.Hour})
	llm := agenttest.NewScriptedCompleter()
	sim := &agenttest.RecordingSimulator{Connected: true}
	chat := &agenttest.RecordingNotifier{}

	p := New(Deps{
		Store:           store,
		Classifier:      classifier.New(llm),
		Registry:        tools.NewRegistry(tools.Deps{Repo: repo, Simulator: sim}),
		Repo:            repo,
		Simulator:       sim,
		Notifier:        chat,
		Config:          model.DefaultPipelineConfig(),
		POI:             model.POIConfig{DefaultLimit: 5, ToolLimit: 4},
		MaxHistoryTurns: 10,
	})
	return &harness{p: p, store: store, repo: repo, sim: sim, chat: chat, llm: llm}
}

// seed stores a session prepared by fn.
func (h *harness) seed(t *testing.T, id string, fn func(s *model.Session)) {
	t.Helper()
	s := model.NewSession(id)
	fn(s)
	require.NoError(t, h.store.Save(context.Background(), s))
}

func (h *harness) session(t *testing.T, id string) *model.Session {
	t.Helper()
	s, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (h *harness) say(sessionID, text string) *model.Response {
	return h.p.HandleUserMessage(context.Background(), model.UserMessage{
		Type:      model.TypeUserMessage,
		SessionID: sessionID,
		Text:      text,
	})
}

func (h *harness) click(sessionID, actionID string, payload map[string]any) *model.Response {
	return h.p.HandleUIAction(context.Background(), model.UIAction{
		Type:      model.TypeUIAction,
		SessionID: sessionID,
		ActionID:  actionID,
		Payload:   payload,
	})
}

func (h *harness) frames() []model.SimulatorFrame {
	var out []model.SimulatorFrame
	for _, f := range h.sim.Sent() {
		if frame, ok := f.(model.SimulatorFrame); ok {
			out = append(out, frame)
		}
	}
	return out
}

func (h *harness) notified(sessionID string) []*model.Response {
	var out []*model.Response
	for _, m := range h.chat.Sent(sessionID) {
		if r, ok := m.(*model.Response); ok {
			out = append(out, r)
		}
	}
	return out
}

func optionIDs(opts []model.UIOption) []string {
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	return ids
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func activeRide(s *model.Session) {
	s.UserID = "U1"
	s.StartRide("Stazione Centrale", "1", "U1")
}
