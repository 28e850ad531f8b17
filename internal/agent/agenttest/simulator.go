package agenttest

import (
	"context"
	"sync"

	"github.com/taxi-assistant/server/internal/agent/model"
)

// RecordingSimulator records every frame sent while Connected is true.
type RecordingSimulator struct {
	mu        sync.Mutex
	Connected bool
	sent      []any
}

func (s *RecordingSimulator) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Connected
}

func (s *RecordingSimulator) Send(ctx context.Context, msg any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Connected {
		return false
	}
	s.sent = append(s.sent, msg)
	return true
}

// Sent returns the recorded frames.
func (s *RecordingSimulator) Sent() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.sent...)
}

// RecordingNotifier records frames pushed to chat clients, keyed by session id.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]any
}

func (n *RecordingNotifier) Notify(ctx context.Context, sessionID string, msg any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string][]any{}
	}
	n.sent[sessionID] = append(n.sent[sessionID], msg)
	return true
}

// Sent returns the frames pushed to sessionID.
func (n *RecordingNotifier) Sent(sessionID string) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]any(nil), n.sent[sessionID]...)
}

var (
	_ model.Simulator      = (*RecordingSimulator)(nil)
	_ model.ClientNotifier = (*RecordingNotifier)(nil)
)
