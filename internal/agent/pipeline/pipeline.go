// Package pipeline routes decoded frames through the staged dialogue cascade
// and owns the per-session bookkeeping around every handler.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/taxi-assistant/server/internal/agent/classifier"
	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/session"
	"github.com/taxi-assistant/server/internal/agent/tools"
	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/metrics"
)

const (
	pipelineInRide   = "in_ride"
	pipelinePreRide  = "pre_ride"
	pipelineUIAction = "ui_action"
	pipelineTrigger  = "trigger"
	pipelineUnity    = "unity"
)

// Deps are the collaborators of a Pipeline. Simulator and Notifier may be nil.
type Deps struct {
	Store      model.SessionStore
	Locker     *session.Locker
	Classifier *classifier.Classifier
	Registry   *tools.Registry
	Repo       model.POIRepository
	Simulator  model.Simulator
	Notifier   model.ClientNotifier
	Config     model.PipelineConfig
	POI        model.POIConfig
	// MaxHistoryTurns bounds the conversation window; zero keeps every turn.
	MaxHistoryTurns int
}

// Pipeline handles every inbound frame type.
type Pipeline struct {
	store      model.SessionStore
	locker     *session.Locker
	classifier *classifier.Classifier
	registry   *tools.Registry
	repo       model.POIRepository
	simulator  model.Simulator
	notifier   model.ClientNotifier
	policy     tools.PolicyChanger
	config     model.PipelineConfig
	poi        model.POIConfig
	maxTurns   int
}

func New(d Deps) *Pipeline {
	if d.Locker == nil {
		d.Locker = session.NewLocker()
	}
	if d.POI.DefaultLimit <= 0 {
		d.POI.DefaultLimit = 5
	}
	if d.Config.DefaultCity == "" {
		d.Config.DefaultCity = model.DefaultPipelineConfig().DefaultCity
	}
	return &Pipeline{
		store:      d.Store,
		locker:     d.Locker,
		classifier: d.Classifier,
		registry:   d.Registry,
		repo:       d.Repo,
		simulator:  d.Simulator,
		notifier:   d.Notifier,
		policy:     tools.PolicyChanger{Repo: d.Repo, Simulator: d.Simulator},
		config:     d.Config,
		poi:        d.POI,
		maxTurns:   d.MaxHistoryTurns,
	}
}

// =========== Frame routing ===========

// HandleFrame decodes one raw frame and dispatches it by type. The returned
// response is what the sender receives.
func (p *Pipeline) HandleFrame(ctx context.Context, raw []byte) *model.Response {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logx.Warn().Err(err).Msg("invalid frame")
		return model.ErrorResponse("", "Invalid JSON format")
	}

	switch env.Type {
	case model.TypeUserMessage:
		var m model.UserMessage
		if !decode(raw, &m) {
			break
		}
		return p.HandleUserMessage(ctx, m)
	case model.TypePreRideMessage:
		var m model.PreRideMessage
		if !decode(raw, &m) {
			break
		}
		return p.HandlePreRideMessage(ctx, m)
	case model.TypeUIAction:
		var a model.UIAction
		if !decode(raw, &a) {
			break
		}
		return p.HandleUIAction(ctx, a)
	case model.TypeTrigger:
		var t model.Trigger
		if !decode(raw, &t) {
			break
		}
		return p.HandleTrigger(ctx, t)
	case model.TypeUnityMessage:
		var m model.UnityMessage
		if !decode(raw, &m) {
			break
		}
		m.Raw = raw
		return p.HandleUnityMessage(ctx, m)
	case model.TypeBookingOutcome, model.TypeEndRideOutcome:
		var e model.RideEvent
		if !decode(raw, &e) {
			break
		}
		return p.HandleRideEvent(ctx, e)
	default:
		logx.Warn().Str("type", env.Type).Str("session_id", env.SessionID).Msg("unknown message type")
		return model.ErrorResponse(env.SessionID, "Unknown message type: "+env.Type)
	}
	return model.ErrorResponse(env.SessionID, "Invalid JSON format")
}

func decode(raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		logx.Warn().Err(err).Msg("frame does not match its declared type")
		return false
	}
	return true
}

// =========== Session bookkeeping ===========

// withSession runs fn under the session lock and persists the session
// afterwards. userText, when not empty, is appended to the history together
// with the assistant reply; any offered buttons become the active options.
func (p *Pipeline) withSession(ctx context.Context, sessionID, userText string, fn func(s *model.Session) *model.Response) *model.Response {
	unlock := p.locker.Lock(sessionID)
	defer unlock()

	s, err := p.store.Get(ctx, sessionID)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session")
		return model.ErrorResponse(sessionID, errx.SystemErrorMessage)
	}

	resp := fn(s)
	if resp == nil {
		resp = model.Reply(sessionID, "")
	}
	p.record(s, userText, resp)

	if err := p.store.Save(ctx, s); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to save session")
	}
	return resp
}

func (p *Pipeline) record(s *model.Session, userText string, resp *model.Response) {
	if resp.Type != model.TypeAssistantResponse {
		return
	}
	if len(resp.UIOptions) > 0 {
		s.LastUIOptions = append([]model.UIOption(nil), resp.UIOptions...)
	}
	if userText != "" {
		s.AppendTurn("user", userText, p.maxTurns)
	}
	if resp.Message != "" {
		s.AppendTurn("assistant", resp.Message, p.maxTurns)
	}
}

// notify pushes an unsolicited frame to the chat client of s and applies the
// same option bookkeeping as a direct reply.
func (p *Pipeline) notify(ctx context.Context, s *model.Session, resp *model.Response) bool {
	if p.notifier == nil {
		logx.Warn().Str("session_id", s.ID).Msg("no chat notifier configured")
		return false
	}
	if len(resp.UIOptions) > 0 {
		s.LastUIOptions = append([]model.UIOption(nil), resp.UIOptions...)
	}
	if resp.Message != "" && resp.Type == model.TypeAssistantResponse {
		s.AppendTurn("assistant", resp.Message, p.maxTurns)
	}
	ok := p.notifier.Notify(ctx, s.ID, resp)
	if !ok {
		logx.Warn().Str("session_id", s.ID).Msg("chat client not connected")
	}
	return ok
}

func stage(pipeline, name string, s *model.Session) {
	metrics.RecordStage(pipeline, name)
	logx.Info().Str("pipeline", pipeline).Str("stage", name).Str("session_id", s.ID).Msg("stage answered")
}

func userIDOf(s *model.Session) string {
	if s.UserID == "" {
		return "unknown"
	}
	return s.UserID
}

// =========== Shared handlers ===========

// executeTool enriches params, runs the tool and converts its result.
func (p *Pipeline) executeTool(ctx context.Context, s *model.Session, message, toolID string, params map[string]any) *model.Response {
	tc := model.ToolContext{
		SessionID: s.ID,
		UserID:    userIDOf(s),
		Message:   message,
		City:      s.City,
		Taxi:      s.Taxi,
		Params:    tools.EnrichParams(toolID, message, params),
		Music:     s.MusicSnapshot(),
		State:     s,
	}
	res, found, err := p.registry.Execute(ctx, toolID, tc)
	if !found {
		return model.Reply(s.ID, "Tool '"+toolID+"' non trovato.")
	}
	if err != nil {
		logx.Error().Err(err).Str("tool", toolID).Str("session_id", s.ID).Msg("tool execution failed")
		return model.Reply(s.ID, "Mi dispiace, si è verificato un errore. Riprova tra poco.")
	}
	logx.Info().Str("tool", toolID).Str("session_id", s.ID).Msg("tool executed")
	return res.Response(s.ID)
}

// needRequest lists the POIs serving need and stores them as suggestions.
func (p *Pipeline) needRequest(ctx context.Context, s *model.Session, need string, limit int) *model.Response {
	if limit <= 0 {
		limit = p.poi.DefaultLimit
	}
	pois, err := p.repo.POIsByNeed(ctx, userIDOf(s), need, limit)
	if err != nil {
		logx.Warn().Err(err).Str("need", need).Msg("need lookup failed")
		pois = nil
	}
	if len(pois) == 0 {
		return model.Reply(s.ID, "Mi dispiace, non ho trovato luoghi per '"+need+"' nelle vicinanze.")
	}
	res := tools.POIListResult(pois, need, s)
	for _, poi := range pois {
		if poi.Liked {
			if head, ok := strings.CutSuffix(res.Message, "Ecco cosa ho trovato:"); ok {
				res.Message = head + "In base alle tue preferenze, ecco cosa ho trovato:"
			}
			break
		}
	}
	return res.Response(s.ID)
}

// selectPOI reroutes toward poiID and records the visit.
func (p *Pipeline) selectPOI(ctx context.Context, s *model.Session, poiID string) *model.Response {
	poi, err := p.repo.POIByID(ctx, poiID)
	if err != nil {
		if !errx.IsNotFound(err) {
			logx.Warn().Err(err).Str("poi_id", poiID).Msg("poi lookup failed")
		}
		return model.Reply(s.ID, "Mi dispiace, non ho trovato il luogo selezionato.")
	}
	if err := p.repo.RecordVisit(ctx, userIDOf(s), poi.ID); err != nil {
		logx.Warn().Err(err).Str("poi_id", poi.ID).Str("user_id", s.UserID).Msg("failed to record visit")
	}
	s.ClearPOISuggestions()

	message := ""
	if !s.RideActive() {
		message = "Perfetto! Ti sto portando a " + poi.Name + ". 🚕"
	}
	return model.Text(message).WithCommands(model.RerouteTo(poi.ID, poi.Name, poi.IDUnity)).Response(s.ID)
}
