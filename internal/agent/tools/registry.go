package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/observers"
	"github.com/taxi-assistant/server/pkg/metrics"
)

// ErrNoState is returned by Execute when the context carries no session writer.
var ErrNoState = errors.New("tool context has no session state")

// ===================================
// Tool
// ===================================

// RunFunc executes a tool against a per-dispatch context.
type RunFunc func(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error)

// Tool is an immutable registry entry.
type Tool struct {
	ID          string
	Name        string
	Description string
	Patterns    []string
	Examples    []string
	Category    model.Category
	// Available reports whether the tool applies to the session; nil means always.
	Available func(s *model.Session) bool
	Run       RunFunc
}

func (t Tool) availableFor(s *model.Session) bool {
	if t.Available == nil {
		return true
	}
	return t.Available(s)
}

// Info describes the tool in eino's schema so it can be listed next to graph tools.
func (t Tool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: t.ID,
		Desc: t.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"message": {
				Type:     schema.String,
				Desc:     "Raw passenger utterance. Examples: " + strings.Join(t.Examples, ", "),
				Required: true,
			},
		}),
	}
}

// ===================================
// Registry
// ===================================

// Deps are the collaborators shared by tool implementations.
type Deps struct {
	Repo      model.POIRepository
	Simulator model.Simulator
	// POILimit caps each POI list; zero means 4.
	POILimit int
}

// Registry holds tools in registration order. It is read-only after NewRegistry.
type Registry struct {
	tools []Tool
	byID  map[string]int
}

// NewRegistry registers the built-in tools.
func NewRegistry(deps Deps) *Registry {
	if deps.POILimit <= 0 {
		deps.POILimit = 4
	}
	r := &Registry{byID: map[string]int{}}
	for _, t := range musicTools(deps.Repo) {
		r.register(t)
	}
	p := &poiTools{repo: deps.Repo, limit: deps.POILimit}
	r.register(p.direct())
	r.register(p.need())
	r.register(p.tag())
	r.register(policyTool(deps.Repo, deps.Simulator))
	return r
}

// NewRegistryOf builds a registry from explicit tools.
func NewRegistryOf(tools ...Tool) *Registry {
	r := &Registry{byID: map[string]int{}}
	for _, t := range tools {
		r.register(t)
	}
	return r
}

func (r *Registry) register(t Tool) {
	if _, dup := r.byID[t.ID]; dup {
		panic(fmt.Sprintf("tools: duplicate tool id %q", t.ID))
	}
	r.byID[t.ID] = len(r.tools)
	r.tools = append(r.tools, t)
}

// All returns every registered tool.
func (r *Registry) All() []Tool {
	return append([]Tool(nil), r.tools...)
}

// Get returns the tool registered under id.
func (r *Registry) Get(id string) (Tool, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// Available returns the tools applicable to the session. On the booking
// screen only POI tools are offered, whatever their predicates say.
func (r *Registry) Available(s *model.Session) []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if s != nil && s.Mode == model.ModePreRide {
			if t.Category == model.CategoryPOI {
				out = append(out, t)
			}
			continue
		}
		if t.availableFor(s) {
			out = append(out, t)
		}
	}
	return out
}

// BuildToolsPrompt lists the available tools for the tool classifier.
func (r *Registry) BuildToolsPrompt(s *model.Session) string {
	var b strings.Builder
	b.WriteString("Tool disponibili:")
	for _, t := range r.Available(s) {
		b.WriteString("\n- ")
		b.WriteString(t.ID)
		b.WriteString(": ")
		b.WriteString(t.Description)
		if len(t.Examples) > 0 {
			ex := t.Examples
			if len(ex) > 2 {
				ex = ex[:2]
			}
			quoted := make([]string, len(ex))
			for i, e := range ex {
				quoted[i] = `"` + e + `"`
			}
			b.WriteString(" Es: ")
			b.WriteString(strings.Join(quoted, ", "))
		}
	}
	return b.String()
}

// MatchPattern returns the tools whose pattern hints occur in text, in registration order.
func (r *Registry) MatchPattern(text string) []Tool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}
	var out []Tool
	for _, t := range r.tools {
		for _, p := range t.Patterns {
			if strings.Contains(lower, strings.ToLower(p)) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Execute runs the tool registered under id. The boolean is false when the
// id is unknown, in which case the result and error are nil.
func (r *Registry) Execute(ctx context.Context, id string, tc model.ToolContext) (*model.ToolResult, bool, error) {
	t, ok := r.Get(id)
	if !ok {
		metrics.RecordTool(id, "unknown")
		return nil, false, nil
	}
	if tc.State == nil {
		return nil, true, ErrNoState
	}
	if tc.Params == nil {
		tc.Params = map[string]any{}
	}

	ctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      t.ID,
		Type:      "TaxiTool",
		Component: components.ComponentOfTool,
	}, observers.NewToolCallbacks())
	args, _ := json.Marshal(tc.Params)
	ctx = einocb.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: string(args)})

	res, err := t.Run(ctx, tc)
	if err != nil {
		einocb.OnError(ctx, err)
		metrics.RecordTool(id, "error")
		return nil, true, fmt.Errorf("tool %s: %w", id, err)
	}
	if res == nil {
		res = model.Text("")
	}
	einocb.OnEnd(ctx, &tool.CallbackOutput{Response: res.Message})
	metrics.RecordTool(id, "ok")
	return res, true, nil
}
