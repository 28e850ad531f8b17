package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/tools"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

// pendingTour tags a ride-start tour offer awaiting an answer.
const pendingTour = "tour"

const defaultPOIReason = "Consigliato"

var quickNeeds = map[string]string{
	"quick:fame":         model.NeedFame,
	"quick:sete":         model.NeedSete,
	"quick:malessere":    model.NeedMalessere,
	"quick:divertimento": model.NeedDivertimento,
	"quick:shopping":     model.NeedShopping,
}

// HandleUIAction handles a button click.
func (p *Pipeline) HandleUIAction(ctx context.Context, a model.UIAction) *model.Response {
	return p.withSession(ctx, a.SessionID, "", func(s *model.Session) *model.Response {
		payload := a.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		return p.uiAction(ctx, s, a.ActionID, payload)
	})
}

// uiAction dispatches an action id. Any action closes the active options.
func (p *Pipeline) uiAction(ctx context.Context, s *model.Session, actionID string, payload map[string]any) *model.Response {
	s.LastUIOptions = []model.UIOption{}
	logx.Info().Str("session_id", s.ID).Str("action_id", actionID).Msg("handling ui action")

	switch {
	case actionID == "poi_select" || strings.HasPrefix(actionID, "poi:"):
		stage(pipelineUIAction, "poi_select", s)
		poiID := stringOr(payload, "poi_id", strings.TrimPrefix(actionID, "poi:"))
		resp := p.selectPOI(ctx, s, poiID)
		p.processSideEffects(ctx, resp, s)
		return resp

	case strings.HasPrefix(actionID, "genre:"):
		stage(pipelineUIAction, "genre", s)
		return p.selectGenre(ctx, s, strings.TrimPrefix(actionID, "genre:"))

	case strings.HasPrefix(actionID, "policy:"):
		stage(pipelineUIAction, "policy", s)
		tc := model.ToolContext{SessionID: s.ID, UserID: userIDOf(s), State: s}
		policy := tools.NormalizePolicy(strings.TrimPrefix(actionID, "policy:"))
		return p.policy.Request(ctx, tc, policy).Response(s.ID)

	case actionID == "cancel" || actionID == "no_music" || actionID == "no_tour":
		stage(pipelineUIAction, "cancel", s)
		return p.cancel(s, actionID)

	case strings.HasPrefix(actionID, "poi_need:"):
		stage(pipelineUIAction, "poi_need", s)
		return p.needRequest(ctx, s, strings.TrimPrefix(actionID, "poi_need:"), 0)

	case strings.HasPrefix(actionID, "quick:"):
		if need, ok := quickNeeds[actionID]; ok {
			stage(pipelineUIAction, "quick", s)
			return p.needRequest(ctx, s, need, 0)
		}
	}

	switch actionID {
	case "stop_music":
		stage(pipelineUIAction, "stop_music", s)
		s.StopMusic()
		s.ClearPending()
		return model.Text("🔇 Musica fermata. Se hai bisogno di altro, sono qui!").
			WithCommands(model.Simple(model.CommandStopMusic)).Response(s.ID)

	case "change_music":
		stage(pipelineUIAction, "change_music", s)
		s.StopMusic()
		s.SetPending(model.PendingMusicGenre)
		return model.Text("Che genere preferisci?").
			WithOptions(tools.GenreOptions(false)...).
			WithCommands(model.Simple(model.CommandStopMusic)).Response(s.ID)

	case "ask_music":
		stage(pipelineUIAction, "ask_music", s)
		return p.musicTrigger(ctx, s)

	case "show_pois":
		stage(pipelineUIAction, "show_pois", s)
		return p.showPOIs(ctx, s)

	case "music_ok":
		stage(pipelineUIAction, "music_ok", s)
		s.ClearPending()
		return model.Reply(s.ID, "Perfetto, buon viaggio! 🎵 Se hai bisogno di altro, sono qui.")

	case "pause_music":
		stage(pipelineUIAction, "pause_music", s)
		s.PauseMusic()
		return model.Text("Musica in pausa. ⏸️").WithCommands(model.Simple(model.CommandPauseMusic)).Response(s.ID)

	case "resume_music":
		stage(pipelineUIAction, "resume_music", s)
		s.ResumeMusic()
		return model.Text("Riprendo la musica! 🎵").WithCommands(model.Simple(model.CommandResumeMusic)).Response(s.ID)

	case "volume_set":
		stage(pipelineUIAction, "volume_set", s)
		tc := model.ToolContext{Params: payload}
		v, ok := tc.IntParam("volume")
		if !ok {
			v = model.DefaultVolume
		}
		v = s.SetVolume(v)
		return model.Text(fmt.Sprintf("Volume impostato a %d. 🔊", v)).WithCommands(model.SetVolume(v)).Response(s.ID)
	}

	stage(pipelineUIAction, "unknown", s)
	logx.Warn().Str("session_id", s.ID).Str("action_id", actionID).Msg("unhandled ui action")
	return model.Reply(s.ID, "Azione ricevuta.")
}

// cancel answers according to the question being declined.
func (p *Pipeline) cancel(s *model.Session, actionID string) *model.Response {
	pending := s.PendingQuestion
	if actionID == "no_music" || pending == model.PendingMusicGenre || pending == model.PendingMusicFeedback {
		s.ClearPending()
		return model.Reply(s.ID, "Ok, niente musica! Se cambi idea, dimmelo. 🎵")
	}
	if actionID == "no_tour" || pending == pendingTour {
		s.ClearPending()
		return model.Reply(s.ID, "Va bene, continuiamo verso la destinazione! 🚕")
	}
	s.ClearSelections()
	s.ClearPending()
	return model.Reply(s.ID, "Va bene, continuiamo verso la destinazione originale. 🚕")
}

// =========== Music ===========

// musicTrigger proposes music: the stored genre when known, a genre choice otherwise.
func (p *Pipeline) musicTrigger(ctx context.Context, s *model.Session) *model.Response {
	genre, err := p.repo.MusicPreference(ctx, userIDOf(s))
	if err != nil {
		logx.Warn().Err(err).Str("user_id", s.UserID).Msg("music preference lookup failed")
		genre = ""
	}
	if genre != "" {
		s.StartMusic(genre)
		s.SetPending(model.PendingMusicFeedback)
		return model.Text(fmt.Sprintf("Ho visto che ti piace il %s, ho selezionato questa canzone per te! 🎵", genre)).
			WithOptions(
				model.UIOption{ID: "music_ok", Label: "Perfetto!"},
				model.UIOption{ID: "change_music", Label: "Cambia genere"},
				model.UIOption{ID: "stop_music", Label: "Ferma la musica"},
			).
			WithCommands(model.PlayMusic(genre)).Response(s.ID)
	}
	s.SetPending(model.PendingMusicGenre)
	return model.Text("Che ne dici di un po' di musica? Che genere preferisci?").
		WithOptions(tools.GenreOptions(true)...).Response(s.ID)
}

// selectGenre stores the chosen genre as the user preference and plays it.
func (p *Pipeline) selectGenre(ctx context.Context, s *model.Session, genre string) *model.Response {
	if g, ok := model.NormalizeGenre(genre); ok {
		genre = g
	}
	if err := p.repo.SetMusicPreference(ctx, userIDOf(s), genre); err != nil {
		logx.Warn().Err(err).Str("user_id", s.UserID).Str("genre", genre).Msg("failed to store music preference")
	}
	s.ClearPending()
	s.StartMusic(genre)
	return model.Text(fmt.Sprintf("Perfetto! Ho salvato la tua preferenza e avviato %s. 🎵", genre)).
		WithCommands(model.PlayMusic(genre)).Response(s.ID)
}

// =========== Points of interest ===========

func (p *Pipeline) showPOIs(ctx context.Context, s *model.Session) *model.Response {
	pois, err := p.repo.POIsByNeed(ctx, userIDOf(s), "Svago", p.poi.DefaultLimit)
	if err != nil {
		logx.Warn().Err(err).Msg("tour lookup failed")
	}
	if len(pois) == 0 {
		return model.Reply(s.ID, "Mi dispiace, non ho trovato punti di interesse nelle vicinanze.")
	}

	ids := make([]string, len(pois))
	opts := make([]model.UIOption, 0, len(pois)+1)
	var b strings.Builder
	b.WriteString("Ecco alcuni punti di interesse nelle vicinanze:\n\n")
	for i, poi := range pois {
		ids[i] = poi.ID
		fmt.Fprintf(&b, "• **%s** - %s\n", poi.Name, poiReason(poi))
		opts = append(opts, model.UIOption{ID: "poi:" + poi.ID, Label: poi.Name})
	}
	b.WriteString("\nDove vorresti andare?")
	opts = append(opts, model.UIOption{ID: "cancel", Label: "Continua verso destinazione"})

	s.SetPOISuggestions(ids)
	return model.Text(b.String()).WithOptions(opts...).Response(s.ID)
}

// poiReason explains a recommendation from preference, category and rating.
func poiReason(poi model.POI) string {
	var parts []string
	if poi.Liked {
		parts = append(parts, "⭐ Tra i tuoi preferiti")
	}
	if poi.Category != "" {
		parts = append(parts, poi.Category)
	}
	switch r := poi.RatingValue(); {
	case r >= 4.5:
		parts = append(parts, "ottima valutazione")
	case r >= 4.0:
		parts = append(parts, "ben valutato")
	}
	if len(parts) == 0 {
		return defaultPOIReason
	}
	return strings.Join(parts, " - ")
}
