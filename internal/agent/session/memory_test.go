package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxi-assistant/server/internal/agent/model"
)

func testConfig() model.SessionConfig {
	return model.SessionConfig{TTL: time.Hour, MaxHistoryTurns: 3, JanitorSchedule: "@every 1m"}
}

func TestMemoryStoreLazyCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())

	s, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, model.ModeNormal, s.Mode)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())

	s, _ := store.Get(ctx, "s1")
	s.StartMusic("Jazz")

	fresh, _ := store.Get(ctx, "s1")
	assert.False(t, fresh.Music.Playing, "unsaved changes must not leak")

	require.NoError(t, store.Save(ctx, s))
	saved, _ := store.Get(ctx, "s1")
	assert.Equal(t, "Jazz", saved.Music.Genre)
}

func TestMemoryStoreCapsHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())

	s, _ := store.Get(ctx, "s1")
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		s.History = append(s.History, model.Turn{Role: "user", Content: msg})
	}
	require.NoError(t, store.Save(ctx, s))

	saved, _ := store.Get(ctx, "s1")
	require.Len(t, saved.History, 3)
	assert.Equal(t, "c", saved.History[0].Content)
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())

	s, _ := store.Get(ctx, "s1")
	s.UserID = "U1"
	s.StartRide("Stadio", "POI_008", "U1")
	s.StartMusic("Rock")
	s.SetPOISuggestions([]string{"POI_001"})
	require.NoError(t, store.Save(ctx, s))

	require.NoError(t, store.Clear(ctx, "s1"))
	cleared, _ := store.Get(ctx, "s1")
	assert.Equal(t, "U1", cleared.UserID)
	assert.False(t, cleared.Ride.Active)
	assert.False(t, cleared.Music.Playing)
	assert.Empty(t, cleared.LastPOISuggestions)
}

func TestMemoryStoreEvictIdle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	old, _ := store.Get(ctx, "old")
	require.NoError(t, store.Save(ctx, old))

	now = now.Add(2 * time.Hour)
	recent, _ := store.Get(ctx, "recent")
	require.NoError(t, store.Save(ctx, recent))

	assert.Equal(t, 1, store.EvictIdle())
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "recent"))
	assert.Zero(t, store.Len())
}

func TestStartJanitorRejectsBadSchedule(t *testing.T) {
	store := NewMemoryStore(testConfig())
	_, err := store.StartJanitor("every tuesday")
	assert.Error(t, err)

	c, err := store.StartJanitor("@every 1h")
	require.NoError(t, err)
	<-c.Stop().Done()
}
