package pipeline

import (
	"context"
	"fmt"

	"github.com/taxi-assistant/server/internal/agent/model"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/metrics"
)

// Trigger names raised by the simulator or the chat client.
const (
	TriggerAskMusic      = "ASK_MUSIC"
	TriggerArrivedPickup = "ARRIVED_PICKUP"
	TriggerRideStart     = "RIDE_START"
	TriggerRideEnd       = "RIDE_END"
	TriggerEndRide       = "END_RIDE"
)

const defaultETAMinutes = 10

// HandleTrigger handles a ride lifecycle trigger.
func (p *Pipeline) HandleTrigger(ctx context.Context, t model.Trigger) *model.Response {
	logx.Info().Str("session_id", t.SessionID).Str("trigger", t.Name).Msg("handling trigger")
	if t.Name == TriggerRideEnd || t.Name == TriggerEndRide {
		metrics.RecordStage(pipelineTrigger, "ride_end")
		return p.RequestEndRide(ctx, t.SessionID)
	}

	return p.withSession(ctx, t.SessionID, "", func(s *model.Session) *model.Response {
		payload := t.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		switch t.Name {
		case TriggerAskMusic:
			stage(pipelineTrigger, "ask_music", s)
			return p.musicTrigger(ctx, s)
		case TriggerArrivedPickup:
			stage(pipelineTrigger, "arrived_pickup", s)
			return model.Reply(s.ID, "Benvenuto a bordo! Dove la porto oggi?")
		case TriggerRideStart:
			stage(pipelineTrigger, "ride_start", s)
			return p.rideStart(ctx, s, t.RideID, payload)
		}
		stage(pipelineTrigger, "unknown", s)
		return model.Reply(s.ID, "Trigger ricevuto: "+t.Name)
	})
}

// rideStart greets the passenger and offers music. The ride itself is
// activated by the booking confirmation, not by this trigger.
func (p *Pipeline) rideStart(ctx context.Context, s *model.Session, rideID string, payload map[string]any) *model.Response {
	if userID := stringOr(payload, "user_id", ""); userID != "" {
		s.UserID = userID
	}
	if rideID != "" {
		s.RideID = rideID
	}
	if city := stringOr(payload, "city", ""); city != "" {
		s.City = city
	}
	destination := stringOr(payload, "destination", "destinazione")
	eta := floatOr(payload, "eta_minutes", defaultETAMinutes)

	name := "ospite"
	if u, err := p.repo.User(ctx, userIDOf(s)); err == nil && u.Name != "" {
		name = u.Name
	}

	msg := fmt.Sprintf("Ciao %s, benvenuto in questo taxi! Siamo diretti a %s con un tempo stimato di %s.\n\nVuoi ascoltare un po' di musica?",
		name, destination, FormatDurationMinutes(eta))
	return model.Text(msg).WithOptions(
		model.UIOption{ID: "ask_music", Label: "Sì, metti della musica 🎵"},
		model.UIOption{ID: "no_music", Label: "No grazie"},
	).Response(s.ID)
}

// RequestEndRide asks the simulator to stop the ride. The outcome arrives
// later as an end-of-ride event, so a connected simulator yields an ack.
func (p *Pipeline) RequestEndRide(ctx context.Context, sessionID string) *model.Response {
	frame := model.SimulatorFrame{Type: model.SimEndRide, SessionID: sessionID, Payload: map[string]any{}}
	if p.simulator != nil && p.simulator.IsConnected() && p.simulator.Send(ctx, frame) {
		logx.Info().Str("session_id", sessionID).Msg("end ride request forwarded")
		return &model.Response{Type: model.TypeAck, SessionID: sessionID, Status: "processing"}
	}
	logx.Warn().Str("session_id", sessionID).Msg("simulator offline, end ride request dropped")
	return model.Reply(sessionID, "❌ Impossibile terminare la corsa: veicolo non connesso.")
}
