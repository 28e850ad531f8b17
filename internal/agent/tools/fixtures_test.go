package tools

import (
	"github.com/taxi-assistant/server/internal/agent/agenttest"
	"github.com/taxi-assistant/server/internal/agent/model"
)

func rating(v float64) *float64 { return &v }

func newFixtureRepo() *agenttest.MemoryRepository {
	repo := agenttest.NewMemoryRepository().
		AddPOI(model.POI{ID: "POI_001", Name: "Pizzeria Bella Napoli", IDUnity: "U_001", Rating: rating(4.6), Liked: true}, "Fame").
		AddPOI(model.POI{ID: "POI_002", Name: "FastFood Express", IDUnity: "U_002", Rating: rating(3.9), Visited: true}, "Fame").
		AddPOI(model.POI{ID: "POI_003", Name: "Bar Centrale", IDUnity: "U_003"}, "Sete").
		AddPOI(model.POI{ID: "POI_004", Name: "Cinema Rouge et Noir", IDUnity: "U_004", Rating: rating(4.2)}, "Cinema").
		AddPOI(model.POI{ID: "POI_005", Name: "Casa Rossi", IDUnity: "U_005"}).
		AddPOI(model.POI{ID: "POI_006", Name: "Stadio Renzo Barbera", IDUnity: "U_006", Rating: rating(4.0)}).
		Tag("pizza", "POI_001").
		Tag("hamburger", "POI_002").
		Tag("film", "POI_004").
		Tag("partita", "POI_006")
	repo.Users["U1"] = model.User{ID: "U1", Name: "Marco", HomePOIID: "POI_005"}
	repo.Users["U2"] = model.User{ID: "U2", Name: "Giulia", Conditions: []string{"pregnancy"}}
	repo.Users["U3"] = model.User{ID: "U3", Name: "Luca"}
	return repo
}

func toolCtx(s *model.Session, message string, params map[string]any) model.ToolContext {
	return model.ToolContext{
		SessionID: s.ID,
		UserID:    s.UserID,
		Message:   message,
		City:      s.City,
		Taxi:      s.Taxi,
		Params:    params,
		Music:     s.MusicSnapshot(),
		State:     s,
	}
}

func optionIDs(opts []model.UIOption) []string {
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	return ids
}

func toolIDs(ts []Tool) []string {
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	return ids
}
