package pipeline

import (
	"context"

	"github.com/taxi-assistant/server/internal/agent/model"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/metrics"
)

// ProcessSideEffects forwards the simulator commands of resp for a session
// outside of a handler. Handlers call processSideEffects under their lock.
func (p *Pipeline) ProcessSideEffects(ctx context.Context, resp *model.Response, sessionID string) {
	p.withSession(ctx, sessionID, "", func(s *model.Session) *model.Response {
		p.processSideEffects(ctx, resp, s)
		return &model.Response{Type: model.TypeAck, SessionID: s.ID}
	})
}

// processSideEffects sends a cambio_destinazione frame for every REROUTE_TO
// command when a ride is active and the simulator is connected. Commands
// that cannot be forwarded are dropped with a log line; the response itself
// is never altered.
func (p *Pipeline) processSideEffects(ctx context.Context, resp *model.Response, s *model.Session) {
	for _, cmd := range resp.Commands {
		if cmd.Type != model.CommandRerouteTo {
			continue
		}
		poiID, _ := cmd.Payload["poi_id"].(string)
		name, _ := cmd.Payload["name"].(string)
		warn := func(msg string) {
			logx.Warn().Str("session_id", s.ID).Str("poi_id", poiID).Msg(msg)
		}

		if !s.RideActive() {
			warn("reroute ignored, no active ride")
			metrics.RecordDroppedSideEffect("no_ride")
			continue
		}

		idUnity := unityID(cmd.Payload["id_unity"])
		if idUnity == "" {
			if poi, err := p.repo.POIByID(ctx, poiID); err == nil {
				idUnity = poi.IDUnity
			}
		}
		if idUnity == "" {
			logx.Error().Str("session_id", s.ID).Str("poi_id", poiID).Msg("reroute dropped, poi has no simulator id")
			metrics.RecordDroppedSideEffect("no_unity_id")
			continue
		}

		if p.simulator == nil || !p.simulator.IsConnected() {
			warn("reroute dropped, simulator offline")
			metrics.RecordDroppedSideEffect("disconnected")
			continue
		}
		frame := model.SimulatorFrame{
			Type:      model.SimChangeDestination,
			SessionID: s.ID,
			Payload: map[string]any{
				"nuova_destinazione": map[string]any{
					"poi_id":       poiID,
					"nome":         name,
					"poi_id_unity": wireUnityID(idUnity),
				},
			},
		}
		if !p.simulator.Send(ctx, frame) {
			warn("reroute dropped, send failed")
			metrics.RecordDroppedSideEffect("disconnected")
			continue
		}
		s.UpdateDestination(name, idUnity)
		logx.Info().Str("session_id", s.ID).Str("poi_id", poiID).Str("id_unity", idUnity).Msg("reroute forwarded")
	}
}
