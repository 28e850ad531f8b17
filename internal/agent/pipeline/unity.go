package pipeline

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/tools"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/metrics"
)

// Simulator actions carried by unity_message frames.
const (
	UnityPing            = "ping"
	UnityStatus          = "status"
	UnityDestination     = "destination"
	UnityMissionComplete = "mission_complete"
	UnityPassengerPickup = "passenger_pickup"
	UnityExplainability  = "explainability"
)

const lowBatteryPct = 20

var (
	ecoSwitchPhrases = []string{"Passo a ECO", "ECO per"}
	policyChangedRe  = regexp.MustCompile(`(?i)Policy cambiata in\s+([A-Za-z]+)`)
)

func unityReply(sessionID, action, message string, payload map[string]any) *model.Response {
	return &model.Response{
		Type:      model.TypeUnityResponse,
		SessionID: sessionID,
		Action:    action,
		Message:   message,
		Payload:   payload,
	}
}

// HandleUnityMessage answers a status or event frame from the simulator.
func (p *Pipeline) HandleUnityMessage(ctx context.Context, m model.UnityMessage) *model.Response {
	payload := m.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	recordUnity(m.Action)
	logx.Info().Str("session_id", m.SessionID).Str("action", m.Action).Msg("simulator message")

	switch m.Action {
	case UnityPing:
		return unityReply(m.SessionID, "pong", "Backend connected! WebSocket active.", map[string]any{
			"server_time": time.Now().UTC().Format(time.RFC3339),
			"status":      "ok",
		})

	case UnityStatus:
		battery := floatOr(payload, "battery", 0)
		status := stringOr(payload, "status", "unknown")
		return unityReply(m.SessionID, "status_ack", "Status received: "+status, map[string]any{
			"received":        true,
			"battery_warning": battery < lowBatteryPct,
		})

	case UnityDestination:
		name := stringOr(payload, "poi_name", "")
		return unityReply(m.SessionID, "destination_ack", "Navigating to "+name, map[string]any{
			"poi_name":  name,
			"confirmed": true,
		})

	case UnityMissionComplete:
		success, ok := payload["success"].(bool)
		if !ok {
			success = true
		}
		return unityReply(m.SessionID, "mission_ack", "Mission completed! Ready for next passenger.", map[string]any{
			"next_action": "idle",
			"success":     success,
		})

	case UnityPassengerPickup:
		return p.passengerPickup(ctx, m.SessionID, payload)

	case UnityExplainability:
		return p.explainability(ctx, m.SessionID, payload)
	}

	logx.Warn().Str("action", m.Action).Msg("unknown simulator action")
	return unityReply(m.SessionID, "echo", "Received unknown action: "+m.Action, payload)
}

func recordUnity(action string) {
	switch action {
	case UnityPing, UnityStatus, UnityDestination, UnityMissionComplete, UnityPassengerPickup, UnityExplainability,
		model.TypeBookingOutcome, model.TypeEndRideOutcome:
	default:
		action = "unknown"
	}
	metrics.RecordStage(pipelineUnity, action)
}

func (p *Pipeline) passengerPickup(ctx context.Context, sessionID string, payload map[string]any) *model.Response {
	passenger := stringOr(payload, "passenger_name", "Unknown")
	p.withSession(ctx, sessionID, "", func(s *model.Session) *model.Response {
		resp := model.Reply(s.ID, "🚕 Il taxi è arrivato, la corsa sta iniziando.")
		resp.BookingStatus = model.BookingRideStarted
		resp.Payload = map[string]any{}
		if eta, ok := toFloat(payload["eta_minutes"]); ok {
			resp.Payload["eta_minutes"] = eta
		}
		if dest := stringOr(payload, "destination", ""); dest != "" {
			resp.Payload["destination"] = dest
		}
		p.notify(ctx, s, resp)
		return &model.Response{Type: model.TypeAck, SessionID: s.ID}
	})
	return unityReply(sessionID, "pickup_ack", fmt.Sprintf("Welcome aboard, %s!", passenger), map[string]any{
		"confirmed": true,
	})
}

// explainability applies a confirmed policy change and relays the
// simulator's explanation to the passenger.
func (p *Pipeline) explainability(ctx context.Context, sessionID string, payload map[string]any) *model.Response {
	msg := strings.TrimSpace(stringOr(payload, "message", ""))
	p.withSession(ctx, sessionID, "", func(s *model.Session) *model.Response {
		if policy := confirmedPolicy(msg, payload); policy != "" {
			logx.Info().Str("session_id", s.ID).Str("policy", policy).Msg("driving policy confirmed by simulator")
			s.DrivingPolicy = policy
		}
		text := msg
		if eta, ok := payload["eta_minutes"]; ok && eta != nil {
			text += "\n\n⏱️ Nuovo tempo stimato: " + FormatDurationValue(eta)
		}
		if text != "" {
			resp := model.Reply(s.ID, text)
			resp.MessageType = UnityExplainability
			p.notify(ctx, s, resp)
		}
		return &model.Response{Type: model.TypeAck, SessionID: s.ID}
	})
	return unityReply(sessionID, "explainability_ack", "Explainability received", map[string]any{"received": true})
}

// confirmedPolicy extracts the policy the simulator switched to, if any. An
// explicit "Policy cambiata in X" wins over the payload field, which wins
// over a forced switch to Eco.
func confirmedPolicy(msg string, payload map[string]any) string {
	if m := policyChangedRe.FindStringSubmatch(msg); m != nil {
		return tools.NormalizePolicy(m[1])
	}
	if raw := stringOr(payload, "policy", ""); raw != "" {
		return tools.NormalizePolicy(raw)
	}
	for _, phrase := range ecoSwitchPhrases {
		if strings.Contains(msg, phrase) {
			return model.PolicyEco
		}
	}
	return ""
}

// =========== Ride lifecycle outcomes ===========

// HandleRideEvent applies a booking or end-of-ride outcome, relays it to the
// chat client and acknowledges the simulator.
func (p *Pipeline) HandleRideEvent(ctx context.Context, e model.RideEvent) *model.Response {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	logx.Info().Str("session_id", e.SessionID).Str("type", e.Type).Str("esito", e.Esito).Msg("ride outcome")

	switch e.Type {
	case model.TypeBookingOutcome:
		recordUnity(e.Type)
		if e.Confirmed() {
			p.withSession(ctx, e.SessionID, "", func(s *model.Session) *model.Response {
				p.confirmBooking(ctx, s, payload)
				return &model.Response{Type: model.TypeAck, SessionID: s.ID}
			})
		}
		return unityReply(e.SessionID, "booking_ack", "Booking response processed", map[string]any{"esito": e.Esito})

	case model.TypeEndRideOutcome:
		recordUnity(e.Type)
		p.withSession(ctx, e.SessionID, "", func(s *model.Session) *model.Response {
			p.finishRide(ctx, s, e, payload)
			return &model.Response{Type: model.TypeAck, SessionID: s.ID}
		})
		return unityReply(e.SessionID, "end_ride_ack", "End ride response processed", map[string]any{"esito": e.Esito})
	}
	return model.ErrorResponse(e.SessionID, "Unknown message type: "+e.Type)
}

func (p *Pipeline) confirmBooking(ctx context.Context, s *model.Session, payload map[string]any) {
	eta := floatOr(payload, "tempo_stimato_minuti", 5)
	distance := floatOr(payload, "distanza_km", 0)
	battery := floatOr(payload, "batteria_attuale", 100)

	dest, _ := payload["destinazione"].(map[string]any)
	s.StartRide(stringOr(dest, "nome", "Unknown"), unityID(dest["poi_id_unity"]), s.UserID)
	logx.Info().Str("session_id", s.ID).Str("destination", s.Ride.DestinationName).Msg("ride started")

	resp := model.Reply(s.ID, fmt.Sprintf("⏱️ Tempo stimato: %s\n📍 Distanza: %.1f km\n🔋 Batteria taxi: %.0f%%",
		FormatDurationMinutes(eta), distance, battery))
	resp.BookingStatus = model.BookingConfirmed
	resp.Payload = map[string]any{
		"eta_minutes": max(1, int(math.RoundToEven(eta))),
		"distance_km": distance,
		"battery_pct": battery,
	}
	p.notify(ctx, s, resp)
}

func (p *Pipeline) finishRide(ctx context.Context, s *model.Session, e model.RideEvent, payload map[string]any) {
	if !e.Confirmed() {
		reason := stringOr(payload, "messaggio", "Errore sconosciuto")
		resp := model.Reply(s.ID, "❌ **Impossibile terminare la corsa ora.**\n\n"+reason)
		resp.BookingStatus = model.BookingError
		p.notify(ctx, s, resp)
		return
	}

	resp := model.Text("✅ Corsa terminata con successo!\n🙏 Grazie per aver viaggiato con noi!").
		WithCommands(model.Command{Type: model.CommandRedirectToMain, Payload: map[string]any{"delay_ms": 8000}}).
		Response(s.ID)
	resp.BookingStatus = model.BookingEnded
	p.notify(ctx, s, resp)

	// the session outlives the ride and starts the next booking clean
	s.Reset()
	logx.Info().Str("session_id", s.ID).Msg("ride ended")
}
