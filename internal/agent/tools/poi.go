package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/taxi-assistant/server/internal/agent/model"
	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

var (
	cancelOption = model.UIOption{ID: "cancel", Label: "❌ Annulla"}

	foodOption      = model.UIOption{ID: "poi_need:Fame", Label: "🍽️ Cibo"}
	drinkOption     = model.UIOption{ID: "poi_need:Sete", Label: "🍹 Bevande"}
	sickOption      = model.UIOption{ID: "poi_need:Malessere", Label: "💊 Sto male"}
	funOption       = model.UIOption{ID: "poi_need:Divertimento", Label: "🎉 Divertimento"}
	shoppingOption  = model.UIOption{ID: "poi_need:Shopping", Label: "🛍️ Shopping"}
	declineOption   = model.UIOption{ID: "cancel", Label: "❌ No grazie"}
	contextEmojiMap = map[string]string{
		"Fame":         "🍕",
		"Sete":         "🍺",
		"Malessere":    "💊",
		"Svago":        "🎉",
		"Divertimento": "🎉",
		"Shopping":     "🛍️",
	}
)

// NeedOptions are the generic need buttons offered when nothing specific matched.
func NeedOptions() []model.UIOption {
	return []model.UIOption{foodOption, drinkOption, sickOption, funOption, shoppingOption}
}

// POIListResult writes the ids to the session suggestions and renders one
// button per POI plus a trailing cancel.
func POIListResult(pois []model.POI, context string, state model.StateWriter) *model.ToolResult {
	ids := make([]string, len(pois))
	opts := make([]model.UIOption, 0, len(pois)+1)
	for i, p := range pois {
		ids[i] = p.ID
		opts = append(opts, model.UIOption{ID: "poi:" + p.ID, Label: ListLabel(p)})
	}
	state.SetPOISuggestions(ids)

	emoji, ok := contextEmojiMap[context]
	if !ok {
		emoji = "📍"
	}
	return model.Text(emoji + " Ecco cosa ho trovato:").WithOptions(append(opts, cancelOption)...)
}

// ListLabel renders a POI for a result list: name, rating, then a liked or visited marker.
func ListLabel(p model.POI) string {
	label := p.Name
	if label == "" {
		label = "???"
	}
	if r := p.RatingValue(); r != 0 {
		label += fmt.Sprintf(" ⭐%.1f", r)
	}
	if p.Liked {
		label += " ❤️"
	} else if p.Visited {
		label += " 🔄"
	}
	return label
}

// ConfirmLabel renders a single POI offered for confirmation.
func ConfirmLabel(p model.POI) string {
	if r := p.RatingValue(); r != 0 {
		return fmt.Sprintf("%s ⭐%.1f", p.Name, r)
	}
	return p.Name
}

type poiTools struct {
	repo  model.POIRepository
	limit int
}

func (p *poiTools) need() Tool {
	return Tool{
		ID:          "poi_need",
		Name:        "Bisogno",
		Description: "Gestisce bisogni: Fame, Sete, Salute, Svago, Shopping, Cinema, Fitness, Alloggio, Denaro, Cultura, Relax, Lavoro, Meccanico, Spesa.",
		Patterns: []string{
			"ho fame", "fame", "mangiare", "pranzo", "cena", "colazione",
			"affamato", "ristorante", "pizzeria",
			"ho sete", "sete", "bere", "bar", "assetato",
			"sto male", "farmacia", "malessere", "mal di",
			"divertirmi", "svago", "annoiato", "mi annoio", "noia",
			"shopping", "comprare", "negozio", "acquisti",
			"spesa", "supermercato",
			"cinema", "film",
			"palestra", "allenarmi", "fitness",
			"hotel", "dormire", "alloggio",
			"banca", "prelevare", "soldi", "bancomat",
			"museo", "libreria",
			"parco", "passeggiata",
			"lavoro", "ufficio", "fabbrica", "lavorare",
			"meccanico", "officina", "auto guasta", "riparare auto",
		},
		Examples: []string{
			"ho fame", "ho sete", "vedere un film", "allenarmi",
			"prelevare soldi", "dormire", "andare a lavoro", "cercare meccanico",
		},
		Category: model.CategoryPOI,
		Run:      p.runNeed,
	}
}

func (p *poiTools) tag() Tool {
	return Tool{
		ID:          "poi_tag",
		Name:        "Ricerca Tag",
		Description: "Cerca POI per tag specifico (hamburger, pizza, cocktail...).",
		Patterns:    tagPatterns(),
		Examples:    []string{"voglio un hamburger", "mi va una pizza", "cerco un libro"},
		Category:    model.CategoryPOI,
		Run:         p.runTag,
	}
}

func (p *poiTools) direct() Tool {
	return Tool{
		ID:          "poi_direct",
		Name:        "Vai a POI",
		Description: "Porta direttamente a un POI specifico per nome, oppure a casa dell'utente.",
		Patterns: []string{
			"portami", "vai", "andiamo", "fermati",
			"al fastfood", "alla pizzeria", "al bar", "al ristorante",
			"a casa", "casa mia", "torno a casa",
		},
		Examples: []string{"portami al FastFood Express", "vai alla Pizzeria Da Mario", "portami a casa"},
		Category: model.CategoryPOI,
		Run:      p.runDirect,
	}
}

// ChooseNeed picks between the locally extracted need and the model's.
// A specific need wins over a generic one; the local pick wins ties.
func ChooseNeed(local, llm string) string {
	switch {
	case local != "" && specificNeeds[local]:
		return local
	case llm != "" && specificNeeds[llm]:
		return llm
	case local != "":
		return local
	default:
		return llm
	}
}

func (p *poiTools) runNeed(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	// "voglio mangiare un hamburger" asks for the tag, not for generic food.
	if tag := ExtractTag(tc.Message); tag != "" {
		if pois := p.byTag(ctx, tc.UserID, tag); len(pois) > 0 {
			return POIListResult(pois, "Tag: "+tag, tc.State), nil
		}
	}

	local := InferNeed(tc.Message)
	llm := canonicalNeed(tc.Param("need"))
	need := ChooseNeed(local, llm)
	logx.Debug().
		Str("session_id", tc.SessionID).
		Str("local_need", local).
		Str("llm_need", llm).
		Str("need", need).
		Msg("need selected")

	if need == "" {
		return model.Text("Non ho capito di cosa hai bisogno. Dimmi se hai fame, sete, o altro!"), nil
	}
	pois := p.byNeed(ctx, tc.UserID, need)
	if len(pois) == 0 {
		return model.Text("😕 Non ho trovato nulla nelle vicinanze per questo bisogno."), nil
	}
	return POIListResult(pois, need, tc.State), nil
}

func (p *poiTools) runTag(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	tag := tc.Param("tag")
	if tag == "" {
		tag = ExtractTag(tc.Message)
	}

	var pois []model.POI
	if tag != "" {
		pois = p.byTag(ctx, tc.UserID, tag)
	}
	if len(pois) == 0 {
		if need := canonicalNeed(tc.Param("need")); need != "" {
			if found := p.byNeed(ctx, tc.UserID, need); len(found) > 0 {
				return POIListResult(found, need, tc.State), nil
			}
		}
		if need := InferNeed(tc.Message); need != "" {
			if found := p.byNeed(ctx, tc.UserID, need); len(found) > 0 {
				return POIListResult(found, need, tc.State), nil
			}
		}
	}
	if len(pois) > 0 {
		label := tag
		if label == "" {
			label = "Ricerca"
		}
		return POIListResult(pois, label, tc.State), nil
	}

	return model.Text("😕 Non ho trovato esattamente quello che cerchi. Cosa ti serve?").
		WithOptions(NeedOptions()...).
		WithOptions(cancelOption), nil
}

func (p *poiTools) runDirect(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	if IsHomeRequest(tc.Message) {
		return p.home(ctx, tc), nil
	}

	name := tc.Param("poi_name")
	if name == "" {
		name = ExtractPOIName(tc.Message)
	}
	if name == "" {
		return model.Text("Dove vuoi andare? Dimmi il nome del posto!"), nil
	}

	poi := p.findByName(ctx, name)
	if poi == nil {
		if tokens := strings.Fields(name); len(tokens) > 1 {
			longest := tokens[0]
			for _, t := range tokens[1:] {
				if len([]rune(t)) > len([]rune(longest)) {
					longest = t
				}
			}
			if len([]rune(longest)) > 3 {
				poi = p.findByName(ctx, longest)
			}
		}
	}
	if poi != nil {
		tc.State.SetPOISuggestions([]string{poi.ID})
		return model.Text("📍 Ho trovato questo posto:").
			WithOptions(model.UIOption{ID: "poi:" + poi.ID, Label: ConfirmLabel(*poi)}, cancelOption), nil
	}

	// "portami alla partita" finds the stadium through its tag.
	if pois := p.byTag(ctx, tc.UserID, strings.ToLower(strings.TrimSpace(name))); len(pois) > 0 {
		return POIListResult(pois, "Svago", tc.State), nil
	}

	return model.Text(fmt.Sprintf("😕 Non ho trovato '%s'. Vuoi che ti mostri cosa c'è nelle vicinanze?", name)).
		WithOptions(NeedOptions()...).
		WithOptions(declineOption), nil
}

func (p *poiTools) home(ctx context.Context, tc model.ToolContext) *model.ToolResult {
	home, err := p.repo.UserHome(ctx, tc.UserID)
	if err != nil {
		if !errx.IsNotFound(err) {
			logx.Warn().Err(err).Str("user_id", tc.UserID).Msg("home lookup failed")
		}
		return model.Text("😕 Non ho trovato la tua casa nel sistema. Vuoi andare altrove?").
			WithOptions(foodOption, drinkOption, declineOption)
	}
	tc.State.SetPOISuggestions([]string{home.ID})
	return model.Text("🏠 Ti porto a casa!").
		WithOptions(model.UIOption{ID: "poi:" + home.ID, Label: "🏠 " + home.Name}, cancelOption)
}

func (p *poiTools) findByName(ctx context.Context, name string) *model.POI {
	poi, err := p.repo.FindPOIByName(ctx, name)
	if err != nil {
		if !errx.IsNotFound(err) {
			logx.Warn().Err(err).Str("name", name).Msg("poi name lookup failed")
		}
		return nil
	}
	return poi
}

func (p *poiTools) byTag(ctx context.Context, userID, tag string) []model.POI {
	pois, err := p.repo.POIsByTag(ctx, userID, tag, p.limit)
	if err != nil {
		logx.Warn().Err(err).Str("tag", tag).Msg("poi tag search failed")
		return nil
	}
	return pois
}

func (p *poiTools) byNeed(ctx context.Context, userID, need string) []model.POI {
	pois, err := p.repo.POIsByNeed(ctx, userID, need, p.limit)
	if err != nil {
		logx.Warn().Err(err).Str("need", need).Msg("poi need search failed")
		return nil
	}
	return pois
}
