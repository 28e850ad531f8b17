package tools

import (
	"regexp"
	"strings"
)

type keyword struct {
	word, value string
}

// tagKeywords maps surface words onto repository tags, checked in order.
var tagKeywords = []keyword{
	{"pizza", "pizza"}, {"hamburger", "hamburger"}, {"burger", "hamburger"},
	{"patatine", "patatine"}, {"pollo", "pollo"}, {"fritto", "fritto"},
	{"pane", "pane"}, {"cornetto", "cornetti"}, {"cornetti", "cornetti"},
	{"dolci", "dolci"}, {"pesce", "pesce"}, {"gelato", "gelato"},
	{"cucina", "ristorante"},

	{"cocktail", "cocktail"}, {"aperitivo", "aperitivo"}, {"birra", "birra"},
	{"caffè", "caffè"}, {"caffe", "caffè"}, {"cappuccino", "cappuccino"},
	{"drink", "drink"}, {"bere", "bere"}, {"bevande", "bevande"},

	{"cinema", "cinema"}, {"film", "film"}, {"museo", "museo"},
	{"mostra", "museo"}, {"discoteca", "discoteca"}, {"ballo", "ballo"},

	{"palestra", "palestra"}, {"allenarmi", "allenarmi"}, {"allenarsi", "allenarsi"},
	{"fitness", "fitness"}, {"gym", "gym"}, {"allenamento", "allenamento"},
	{"calcio", "calcio"}, {"partita", "partita"}, {"stadio", "calcio"},

	{"regalo", "regalo"}, {"regali", "regalo"}, {"libri", "libri"},
	{"libro", "libri"}, {"scarpe", "scarpe"}, {"mocassini", "scarpe"},
	{"sandali", "sandali"}, {"sneakers", "sneakers"}, {"vestiti", "vestiti"},
	{"abbigliamento", "abbigliamento"},

	{"banca", "banca"}, {"bancomat", "bancomat"}, {"atm", "atm"},
	{"prelevare", "prelevare"}, {"soldi", "soldi"}, {"contanti", "contanti"},

	{"farmacia", "farmacia"}, {"farmaci", "farmaci"}, {"medicina", "medicina"},
	{"ospedale", "ospedale"},

	{"hotel", "hotel"}, {"dormire", "dormire"}, {"alloggio", "alloggio"},

	{"spesa", "spesa"}, {"supermarket", "spesa"}, {"supermercato", "spesa"},

	{"parco", "parco"}, {"giardino", "giardino"}, {"passeggiata", "passeggiata"},
}

type needPatterns struct {
	need     string
	patterns []string
}

// needTable is scanned in order; the first need with a matching phrase wins.
var needTable = []needPatterns{
	{"Fame", []string{
		"ho fame", "fame", "mangiare", "pranzo", "cena", "colazione",
		"affamato", "ristorante", "pizzeria", "trattoria", "mangio",
		"voglio mangiare", "qualcosa da mangiare",
	}},
	{"Sete", []string{
		"ho sete", "sete", "bere", "bar", "assetato", "qualcosa da bere",
		"voglio bere", "drink", "bevanda", "aperitivo", "cocktail",
	}},
	{"Malessere", []string{
		"sto male", "farmacia", "malessere", "mal di", "stomaco",
		"testa", "medicina", "medicinale", "dottore", "non mi sento bene",
		"nausea", "febbre", "male", "dolore", "ospedale",
	}},
	{"Divertimento", []string{
		"divertirmi", "svago", "annoiato", "mi annoio", "noia",
		"divertimento", "divertire", "passatempo",
	}},
	{"Shopping", []string{
		"shopping", "comprare", "negozio", "acquisti", "spesa",
		"vestiti", "abbigliamento",
	}},
	{"Cinema", []string{
		"cinema", "film", "vedere un film", "guardare un film", "multisala",
		"pellicola", "proiezione",
	}},
	{"Fitness", []string{
		"palestra", "allenarmi", "allenarsi", "allenamento", "fitness",
		"gym", "esercizio", "pesi", "cardio", "sport",
	}},
	{"Alloggio", []string{
		"dormire", "hotel", "alloggio", "pernottare", "letto",
		"stanza", "camera", "notte", "posto per dormire", "dove dormire",
	}},
	{"Denaro", []string{
		"soldi", "prelevare", "bancomat", "atm", "banca", "contanti",
		"contante", "denaro", "prelievo", "ritirare",
	}},
	{"Cultura", []string{"museo", "mostra", "arte", "cultura", "storia", "libreria"}},
	{"Relax", []string{
		"relax", "rilassarmi", "passeggiata", "parco", "giardino",
		"verde", "natura", "aria aperta", "mare", "spiaggia",
	}},
}

// specificNeeds beat generic ones when local and model extraction disagree.
var specificNeeds = map[string]bool{
	"Cinema": true, "Fitness": true, "Alloggio": true, "Denaro": true,
	"Cultura": true, "Relax": true, "Sete": true,
}

// shoppingContext words imply Shopping when nothing else matched.
var shoppingContext = []string{
	"farina", "latte", "uova", "zucchero", "burro", "olio",
	"pasta", "riso", "pane", "frutta", "verdura", "carne",
	"dispensa", "ingredienti", "spesa", "supermercato",

	"regalo", "compleanno", "anniversario", "festa",
	"sorpresa", "dono", "presente",

	"cavo", "strumento", "strumenti", "attrezzatura",
	"console", "accessori", "equipaggiamento",
}

var homePhrases = []string{
	"a casa", "casa mia", "torno a casa", "torniamo a casa", "portami a casa",
	"vai a casa", "andiamo a casa", "voglio andare a casa", "verso casa",
}

var poiNamePatterns = compileAll(
	`portami (?:al|alla|a|da|dal|dalla)\s+(.+)`,
	`vai (?:al|alla|a|da|dal|dalla)\s+(.+)`,
	`andiamo (?:al|alla|a|da|dal|dalla)\s+(.+)`,
	`fermati (?:al|alla|a|da|dal|dalla)\s+(.+)`,
	`portami (?:all'|dall'|sull')\s*(.+)`,
	`vai (?:all'|dall'|sull')\s*(.+)`,
	`andiamo (?:all'|dall'|sull')\s*(.+)`,
	`fermati (?:all'|dall'|sull')\s*(.+)`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// ExtractTag returns the first repository tag whose keyword occurs in message.
func ExtractTag(message string) string {
	lower := strings.ToLower(message)
	for _, k := range tagKeywords {
		if strings.Contains(lower, k.word) {
			return k.value
		}
	}
	return ""
}

// ExtractNeed returns the first need whose phrase occurs in message.
func ExtractNeed(message string) string {
	lower := strings.ToLower(message)
	for _, np := range needTable {
		for _, p := range np.patterns {
			if strings.Contains(lower, p) {
				return np.need
			}
		}
	}
	return ""
}

// InferNeed is ExtractNeed with the shopping context words as a fallback.
func InferNeed(message string) string {
	if need := ExtractNeed(message); need != "" {
		return need
	}
	lower := strings.ToLower(message)
	for _, w := range shoppingContext {
		if strings.Contains(lower, w) {
			return "Shopping"
		}
	}
	return ""
}

// ExtractPOIName pulls the destination out of "portami al ..." style requests.
func ExtractPOIName(message string) string {
	lower := strings.ToLower(message)
	for _, re := range poiNamePatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// IsHomeRequest reports whether message asks to go home.
func IsHomeRequest(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, p := range homePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// canonicalNeed matches a model supplied need against the known table, case-insensitively.
func canonicalNeed(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, np := range needTable {
		if strings.EqualFold(np.need, raw) {
			return np.need
		}
	}
	return raw
}

func tagPatterns() []string {
	out := make([]string, len(tagKeywords))
	for i, k := range tagKeywords {
		out[i] = k.word
	}
	return out
}
