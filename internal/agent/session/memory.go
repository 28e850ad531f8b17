// Package session persists conversational state between messages.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taxi-assistant/server/internal/agent/model"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

// MemoryStore keeps sessions in process and hands out copies.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	ttl      time.Duration
	maxTurns int
	now      func() time.Time
}

// NewMemoryStore returns an empty store. Sessions idle longer than ttl are
// evicted by EvictIdle; a zero ttl keeps them forever.
func NewMemoryStore(config model.SessionConfig) *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*model.Session{},
		ttl:      config.TTL,
		maxTurns: config.MaxHistoryTurns,
		now:      time.Now,
	}
}

// Get returns a copy of the session, creating it on first use.
func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s.Clone(), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s.Clone(), nil
	}
	s = model.NewSession(sessionID)
	m.sessions[sessionID] = s
	logx.Debug().Str("session_id", sessionID).Msg("session created")
	return s.Clone(), nil
}

// Save stores a copy of s, trimming its history to the configured window.
func (m *MemoryStore) Save(ctx context.Context, s *model.Session) error {
	c := s.Clone()
	if m.maxTurns > 0 && len(c.History) > m.maxTurns {
		c.History = c.History[len(c.History)-m.maxTurns:]
	}
	c.UpdatedAt = m.now().UTC()

	m.mu.Lock()
	m.sessions[s.ID] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// Clear resets the conversational state of a session, keeping its identity.
func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Reset()
	return m.Save(ctx, s)
}

// Len reports the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle drops sessions untouched for longer than the ttl and returns how many went.
func (m *MemoryStore) EvictIdle() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().UTC().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// StartJanitor runs EvictIdle on a cron schedule such as "@every 10m".
// Stop the returned cron to end it.
func (m *MemoryStore) StartJanitor(schedule string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if n := m.EvictIdle(); n > 0 {
			logx.Info().Int("evicted", n).Int("remaining", m.Len()).Msg("idle sessions evicted")
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

var _ model.SessionStore = (*MemoryStore)(nil)
