// Package agenttest holds in-memory fakes of the agent collaborators.
package agenttest

import (
	"context"
	"strings"
	"sync"
)

// Prompt kinds recognised by ScriptedCompleter, keyed on a phrase unique to each template.
const (
	KindNeed           = "need"
	KindOption         = "option"
	KindTools          = "tools"
	KindConversational = "conversational"
	KindOther          = "other"
)

var kindMarkers = []struct {
	kind   string
	marker string
}{
	{KindNeed, "Sei un classificatore di intenti"},
	{KindOption, "quale opzione l'utente ha scelto"},
	{KindTools, "scegli il tool corretto"},
	{KindConversational, "NON rientra nei tuoi compiti"},
}

// ScriptedCompleter answers prompts with canned replies per prompt kind and
// counts calls. Kinds without a reply answer with Err, or "" when Err is nil.
type ScriptedCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
	prompts []string
	Err     error
}

// NewScriptedCompleter returns a completer with no scripted replies.
func NewScriptedCompleter() *ScriptedCompleter {
	return &ScriptedCompleter{replies: map[string]string{}, calls: map[string]int{}}
}

// On scripts the reply for a prompt kind.
func (s *ScriptedCompleter) On(kind, reply string) *ScriptedCompleter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[kind] = reply
	return s
}

func (s *ScriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := KindOf(prompt)
	s.calls[kind]++
	s.prompts = append(s.prompts, prompt)
	if reply, ok := s.replies[kind]; ok {
		return reply, nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", nil
}

// Calls returns how many prompts of kind were completed.
func (s *ScriptedCompleter) Calls(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// TotalCalls returns the number of completions of any kind.
func (s *ScriptedCompleter) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// LastPrompt returns the most recent prompt, or "".
func (s *ScriptedCompleter) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

// KindOf classifies a rendered prompt by its template.
func KindOf(prompt string) string {
	for _, km := range kindMarkers {
		if strings.Contains(prompt, km.marker) {
			return km.kind
		}
	}
	return KindOther
}
