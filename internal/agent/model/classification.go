package model

// Need categories recognised by the classifier.
const (
	NeedFame         = "Fame"
	NeedSete         = "Sete"
	NeedMalessere    = "Malessere"
	NeedDivertimento = "Divertimento"
	NeedShopping     = "Shopping"
)

// MatchAction is the outcome of option matching.
type MatchAction string

const (
	ActionSelect  MatchAction = "select"
	ActionCancel  MatchAction = "cancel"
	ActionUnclear MatchAction = "unclear"
)

// NeedResult is the need classification of one message.
type NeedResult struct {
	Need        string  `json:"need,omitempty"`
	Confidence  float64 `json:"confidence"`
	Subcategory string  `json:"subcategory,omitempty"`
}

// Found reports whether a need was classified.
func (r NeedResult) Found() bool {
	return r.Need != ""
}

// MatchResult maps a reply onto one of the offered options.
type MatchResult struct {
	SelectedID string      `json:"selected_id,omitempty"`
	Action     MatchAction `json:"action"`
}

// ToolClassification is the LLM choice of a tool for one message.
type ToolClassification struct {
	ToolID     string         `json:"tool_id,omitempty"`
	Params     map[string]any `json:"params"`
	Confidence float64        `json:"confidence"`
}

// NoTool is the canonical "no tool" classification.
func NoTool() ToolClassification {
	return ToolClassification{Params: map[string]any{}}
}

// Found reports whether a tool id was classified.
func (c ToolClassification) Found() bool {
	return c.ToolID != ""
}
