package tools

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/text"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

type policyRule struct {
	policy   string
	keywords []string
}

// policyKeywords is checked in order: urgency beats comfort beats eco.
var policyKeywords = []policyRule{
	{model.PolicySport, []string{
		"fretta", "urgente", "urgenza", "veloce", "sbrigati", "corri", "rapido",
		"di fretta", "ho fretta", "è urgente", "sbrigarmi", "presto", "velocemente",
		"sport", "sportiva", "modalità sport",
	}},
	{model.PolicyComfort, []string{
		"relax", "tranquillo", "calma", "comodo", "comfort", "confortevole",
		"senza fretta", "con calma", "piano", "lentamente", "rilassato",
		"modalità comfort", "comfortevole",
	}},
	{model.PolicyEco, []string{
		"ecologico", "ecologica", "eco", "risparmio", "ecosostenibile", "verde", "ambiente",
		"risparmiare", "economico", "modalità eco", "green",
	}},
}

type conditionRule struct {
	forces string
	reason string
}

// conditionRules lists user conditions that pin the driving policy.
var conditionRules = map[string]conditionRule{
	"pregnancy": {forces: model.PolicyComfort, reason: "Per la tua sicurezza, utilizziamo la modalità Comfort 🛋️"},
}

// DetectPolicy maps free text onto a driving policy, or "". Keywords match
// whole words only, so "secondo" is not "eco".
func DetectPolicy(message string) string {
	lower := strings.ToLower(message)
	for _, rule := range policyKeywords {
		if text.ContainsAnyWord(lower, rule.keywords) {
			return rule.policy
		}
	}
	return ""
}

// EffectivePolicy applies condition overrides to a requested policy. The
// reason is empty when no condition applies.
func EffectivePolicy(requested string, conditions []string) (string, string) {
	for _, c := range conditions {
		if rule, ok := conditionRules[strings.ToLower(strings.TrimSpace(c))]; ok {
			return rule.forces, rule.reason
		}
	}
	return requested, ""
}

// NormalizePolicy capitalizes a policy name ("sport" is "Sport").
func NormalizePolicy(p string) string {
	// Casers carry state, so each call gets its own.
	return cases.Title(language.Italian).String(strings.TrimSpace(p))
}

// IsPolicy reports whether p is one of the three simulator policies.
func IsPolicy(p string) bool {
	switch p {
	case model.PolicySport, model.PolicyComfort, model.PolicyEco:
		return true
	}
	return false
}

// PolicyOptions is the driving mode menu.
func PolicyOptions() []model.UIOption {
	return []model.UIOption{
		{ID: "policy:Sport", Label: "🏎️ Sport - Più veloce"},
		{ID: "policy:Comfort", Label: "🛋️ Comfort - Più fluido"},
		{ID: "policy:Eco", Label: "🌿 Eco - Più ecologico"},
	}
}

// PolicyChanger requests driving policy changes from the simulator. The
// session policy changes only when the simulator confirms.
type PolicyChanger struct {
	Repo      model.POIRepository
	Simulator model.Simulator
}

// Request validates policy for the session and forwards it to the simulator.
func (c PolicyChanger) Request(ctx context.Context, tc model.ToolContext, policy string) *model.ToolResult {
	if c.Repo != nil {
		conditions, err := c.Repo.UserConditions(ctx, tc.UserID)
		if err != nil {
			logx.Warn().Err(err).Str("user_id", tc.UserID).Msg("user conditions lookup failed")
		}
		if _, reason := EffectivePolicy(model.PolicySport, conditions); reason != "" {
			return model.Text(fmt.Sprintf("🛋️ %s\n\nLa modalità Comfort non può essere cambiata per garantire la tua sicurezza.", reason))
		}
	}

	if policy == "" {
		return model.Text("🎯 Quale modalità di guida preferisci?").WithOptions(PolicyOptions()...)
	}
	policy = NormalizePolicy(policy)
	if !IsPolicy(policy) {
		return model.Text(fmt.Sprintf("⚠️ Modalità '%s' non riconosciuta. Scegli tra Sport, Comfort o Eco.", policy)).
			WithOptions(
				model.UIOption{ID: "policy:Sport", Label: "🏎️ Sport"},
				model.UIOption{ID: "policy:Comfort", Label: "🛋️ Comfort"},
				model.UIOption{ID: "policy:Eco", Label: "🌿 Eco"},
			)
	}

	current := tc.State.DrivingPolicyName()
	if strings.EqualFold(current, policy) {
		return model.Text(fmt.Sprintf("ℹ️ Modalità %s già attiva.", current))
	}

	frame := model.SimulatorFrame{
		Type:      model.SimChangePolicy,
		SessionID: tc.SessionID,
		Payload:   map[string]any{"nuova_policy": policy},
	}
	if c.Simulator == nil || !c.Simulator.IsConnected() || !c.Simulator.Send(ctx, frame) {
		logx.Warn().Str("session_id", tc.SessionID).Str("policy", policy).Msg("simulator offline, policy change not sent")
		return model.Text("⚠️ Il taxi non è connesso. Riprova tra poco.")
	}
	logx.Info().Str("session_id", tc.SessionID).Str("policy", policy).Msg("policy change sent")
	return model.Text(fmt.Sprintf("Richiesta inviata: sto verificando se posso passare a %s.", policy))
}

func policyTool(repo model.POIRepository, sim model.Simulator) Tool {
	changer := PolicyChanger{Repo: repo, Simulator: sim}
	return Tool{
		ID:          "change_driving_policy",
		Name:        "Cambia Modalità di Guida",
		Description: "Cambia la modalità di guida del taxi (Comfort, Sport, Eco). Usa quando l'utente ha fretta o vuole un viaggio più tranquillo.",
		Patterns: []string{
			"ho fretta", "è urgente", "urgente", "sbrigati", "fai presto",
			"veloce", "più veloce", "vado di fretta", "sono in ritardo",
			"corri", "accelera", "più rapido",
			"vai piano", "con calma", "senza fretta", "tranquillo",
			"rilassato", "più lento", "non c'è fretta",
			"modalità eco", "guida ecologica", "risparmia",
			"modalità sport", "modalità comfort", "cambia modalità",
			"guida sportiva", "guida confortevole",
		},
		Examples: []string{
			"ho fretta, puoi andare più veloce?",
			"non c'è urgenza, vai tranquillo",
			"metti la modalità sport",
		},
		Category:  model.CategoryTaxi,
		Available: func(s *model.Session) bool { return s != nil && s.Mode == model.ModeNormal },
		Run: func(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
			policy := tc.Param("policy")
			if policy == "" {
				policy = DetectPolicy(tc.Message)
			}
			return changer.Request(ctx, tc, policy), nil
		},
	}
}
