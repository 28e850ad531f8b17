package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/text"
	"github.com/taxi-assistant/server/internal/agent/tools"
	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

const inRideHelp = "🚕 **Ecco cosa posso fare per te:**\n\n" +
	"🍕 **Cibo** - Dimmi se hai fame e ti trovo un posto dove mangiare\n" +
	"🍺 **Bevande** - Bar, caffè, cocktail\n" +
	"💊 **Farmacia** - Se ti senti male\n" +
	"🛍️ **Shopping** - Negozi, regali, spesa\n" +
	"🎵 **Musica** - Metti, ferma, cambia genere\n" +
	"🚗 **Guida** - Veloce, lenta, normale\n" +
	"🗺️ **Tour** - Ti mostro i posti interessanti\n\n" +
	"Dimmi cosa ti serve!"

var (
	quickFame      = model.UIOption{ID: "quick:fame", Label: "🍕 Ho fame"}
	quickSete      = model.UIOption{ID: "quick:sete", Label: "🍺 Ho sete"}
	quickMalessere = model.UIOption{ID: "quick:malessere", Label: "💊 Sto male"}
	quickFun       = model.UIOption{ID: "quick:divertimento", Label: "🎉 Divertimento"}
	quickShopping  = model.UIOption{ID: "quick:shopping", Label: "🛍️ Shopping"}
	askMusic       = model.UIOption{ID: "ask_music", Label: "🎵 Metti musica"}
)

// HandleUserMessage runs the in-ride cascade for one free-text message.
func (p *Pipeline) HandleUserMessage(ctx context.Context, m model.UserMessage) *model.Response {
	msg := strings.TrimSpace(m.Text)
	return p.withSession(ctx, m.SessionID, msg, func(s *model.Session) *model.Response {
		p.updateFromMessage(s, m)
		return p.inRide(ctx, s, msg)
	})
}

func (p *Pipeline) updateFromMessage(s *model.Session, m model.UserMessage) {
	if m.UserID != "" {
		s.UserID = m.UserID
	}
	if m.RideID != "" {
		s.RideID = m.RideID
	}
	switch {
	case m.City != "":
		s.City = m.City
	case s.City == "":
		s.City = p.config.DefaultCity
	}
	s.Taxi = m.Taxi
}

func (p *Pipeline) inRide(ctx context.Context, s *model.Session, msg string) *model.Response {
	analysis := text.Analyze(msg)

	if analysis.IsSimpleRejection {
		stage(pipelineInRide, "rejection", s)
		s.ClearSelections()
		s.ClearPending()
		return model.Reply(s.ID, "Va bene, nessun problema! Se hai bisogno di qualcosa, sono qui. 🚕")
	}
	if analysis.IsSimpleConfirmation {
		stage(pipelineInRide, "confirmation", s)
		return model.Reply(s.ID, "👍 Ricevuto! Continuiamo verso la destinazione.")
	}
	if text.IsHelpRequest(msg) {
		stage(pipelineInRide, "help", s)
		return model.Text(inRideHelp).WithOptions(quickFame, quickSete, askMusic).Response(s.ID)
	}
	if text.IsGreeting(msg) {
		stage(pipelineInRide, "greeting", s)
		return model.Text("Ciao! 👋 Come posso aiutarti durante il viaggio?").
			WithOptions(quickFame, quickSete, askMusic).Response(s.ID)
	}
	if analysis.HasNegation {
		stage(pipelineInRide, "negation", s)
		return model.Text("Ho capito. C'è qualcos'altro che posso fare per te?").
			WithOptions(
				quickFame,
				quickSete,
				model.UIOption{ID: "ask_music", Label: "🎵 Musica"},
				model.UIOption{ID: "cancel", Label: "❌ Niente, grazie"},
			).Response(s.ID)
	}

	if resp := p.matchActiveOptions(ctx, s, msg); resp != nil {
		stage(pipelineInRide, "option_match", s)
		return resp
	}

	choice := p.classifier.ClassifyWithTools(ctx, msg, p.registry.BuildToolsPrompt(s), contextInfo(s))
	if choice.Found() && choice.Confidence >= p.config.ToolThreshold {
		stage(pipelineInRide, "tool", s)
		logx.Info().Str("tool", choice.ToolID).Float64("confidence", choice.Confidence).Msg("tool selected")
		resp := p.executeTool(ctx, s, msg, choice.ToolID, choice.Params)
		p.processSideEffects(ctx, resp, s)
		return resp
	}

	if s.Mode == model.ModeNormal {
		if policy := tools.DetectPolicy(msg); policy != "" {
			stage(pipelineInRide, "policy_keyword", s)
			resp := p.executeTool(ctx, s, msg, "change_driving_policy", map[string]any{"policy": policy})
			p.processSideEffects(ctx, resp, s)
			return resp
		}
	}

	if resp := p.matchSuggestions(ctx, s, msg); resp != nil {
		stage(pipelineInRide, "poi_suggestion", s)
		return resp
	}

	need := p.classifier.ClassifyNeed(ctx, msg)
	if need.Found() && need.Confidence >= p.config.NeedThreshold {
		stage(pipelineInRide, "need", s)
		s.ClearPOISuggestions()
		return p.needRequest(ctx, s, need.Need, 0)
	}

	stage(pipelineInRide, "conversational", s)
	reply := p.classifier.ConversationalResponse(ctx, msg)
	return model.Text(reply).WithOptions(quickFame, quickSete, quickMalessere).Response(s.ID)
}

// matchActiveOptions maps msg onto the buttons of the previous reply and
// replays the choice as a UI action. It returns nil when the reply is unclear.
func (p *Pipeline) matchActiveOptions(ctx context.Context, s *model.Session, msg string) *model.Response {
	if len(s.LastUIOptions) == 0 {
		return nil
	}
	match := p.classifier.MatchOption(ctx, msg, s.LastUIOptions)
	switch {
	case match.Action == model.ActionSelect && match.SelectedID != "":
		logx.Info().Str("session_id", s.ID).Str("option", match.SelectedID).Msg("option matched")
		s.ClearSelections()
		return p.uiAction(ctx, s, match.SelectedID, map[string]any{})
	case match.Action == model.ActionCancel:
		s.ClearSelections()
		return p.uiAction(ctx, s, "cancel", map[string]any{})
	}
	return nil
}

// matchSuggestions resolves a reply to POIs suggested earlier whose buttons
// are no longer active.
func (p *Pipeline) matchSuggestions(ctx context.Context, s *model.Session, msg string) *model.Response {
	if len(s.LastPOISuggestions) == 0 {
		return nil
	}
	opts := make([]model.UIOption, 0, len(s.LastPOISuggestions)+1)
	for _, id := range s.LastPOISuggestions {
		label := id
		poi, err := p.repo.POIByID(ctx, id)
		switch {
		case err == nil:
			label = poi.Name
		case !errx.IsNotFound(err):
			logx.Warn().Err(err).Str("poi_id", id).Msg("poi lookup failed")
		}
		opts = append(opts, model.UIOption{ID: "poi:" + id, Label: label})
	}
	opts = append(opts, model.UIOption{ID: "cancel", Label: "Annulla"})

	match := p.classifier.MatchOption(ctx, msg, opts)
	switch {
	case match.Action == model.ActionSelect && match.SelectedID != "":
		poiID := strings.TrimPrefix(match.SelectedID, "poi:")
		resp := p.selectPOI(ctx, s, poiID)
		s.ClearPOISuggestions()
		p.processSideEffects(ctx, resp, s)
		return resp
	case match.Action == model.ActionCancel:
		s.ClearPOISuggestions()
		return model.Reply(s.ID, "Va bene! Continuiamo verso la destinazione. 🚕")
	}
	return nil
}

// contextInfo summarizes the session for the tool classifier.
func contextInfo(s *model.Session) string {
	var parts []string
	switch {
	case s.Music.Playing && s.Music.Paused:
		parts = append(parts, fmt.Sprintf("Musica: PAUSA (%s)", s.Music.Genre))
	case s.Music.Playing:
		parts = append(parts, fmt.Sprintf("Musica: IN RIPRODUZIONE (%s), volume: %d/10", s.Music.Genre, s.Music.Volume))
	default:
		parts = append(parts, "Musica: SPENTA")
	}
	if n := len(s.LastPOISuggestions); n > 0 {
		parts = append(parts, fmt.Sprintf("POI suggeriti attivi: %d", n))
	}
	parts = append(parts, "Modalità: "+string(s.Mode))
	return strings.Join(parts, " | ")
}
