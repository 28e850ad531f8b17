package pipeline

import (
	"context"
	"strings"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/text"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

const preRideHelp = "🚕 Dimmi dove vuoi andare! Puoi:\n\n" +
	"• Cercare un posto per nome (es. 'FastFood Express')\n" +
	"• Dirmi cosa ti serve (es. 'ho fame', 'voglio una pizza')\n" +
	"• Chiedere un posto per un bisogno (es. 'un bar per un aperitivo')"

const preRideContext = "Modalità: pre_ride (selezione destinazione)"

// HandlePreRideMessage runs the booking-screen cascade. Every response
// carries selected_poi, set when a destination was chosen.
func (p *Pipeline) HandlePreRideMessage(ctx context.Context, m model.PreRideMessage) *model.Response {
	msg := strings.TrimSpace(m.Text)
	return p.withSession(ctx, m.SessionID, msg, func(s *model.Session) *model.Response {
		if m.UserID != "" {
			s.UserID = m.UserID
		}
		s.City = m.City
		if s.City == "" {
			s.City = p.config.DefaultCity
		}
		s.EnterPreRide()

		resp := p.preRide(ctx, s, msg)
		resp.PreRide = true
		resp.SelectedPOI = resp.RerouteTarget()
		return resp
	})
}

func (p *Pipeline) preRide(ctx context.Context, s *model.Session, msg string) *model.Response {
	if text.IsGreeting(msg) {
		stage(pipelinePreRide, "greeting", s)
		return model.Text("Ciao! 👋 Dimmi dove vuoi andare. Puoi dirmi il nome del posto o descrivermi cosa cerchi!").
			WithOptions(quickFame, quickSete, quickShopping).Response(s.ID)
	}
	if text.IsHelpRequest(msg) {
		stage(pipelinePreRide, "help", s)
		return model.Text(preRideHelp).WithOptions(
			model.UIOption{ID: "quick:fame", Label: "🍕 Cibo"},
			model.UIOption{ID: "quick:sete", Label: "🍺 Bevande"},
			quickShopping,
		).Response(s.ID)
	}

	if resp := p.matchActiveOptions(ctx, s, msg); resp != nil {
		stage(pipelinePreRide, "option_match", s)
		return resp
	}

	choice := p.classifier.ClassifyWithTools(ctx, msg, p.registry.BuildToolsPrompt(s), preRideContext)
	if choice.Found() && choice.Confidence >= p.config.PreRideToolThreshold {
		stage(pipelinePreRide, "tool", s)
		logx.Info().Str("tool", choice.ToolID).Float64("confidence", choice.Confidence).Msg("pre-ride tool selected")
		resp := p.executeTool(ctx, s, msg, choice.ToolID, choice.Params)
		p.processSideEffects(ctx, resp, s)
		return resp
	}

	need := p.classifier.ClassifyNeed(ctx, msg)
	if need.Found() && need.Confidence >= p.config.PreRideNeedThreshold {
		stage(pipelinePreRide, "need", s)
		return p.needRequest(ctx, s, need.Need, 0)
	}

	stage(pipelinePreRide, "clarify", s)
	return model.Text("🤔 Non ho capito bene. Dimmi dove vuoi andare o cosa stai cercando!").
		WithOptions(quickFame, quickSete, quickMalessere, quickFun, quickShopping).Response(s.ID)
}
