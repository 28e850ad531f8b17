package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taxi-assistant/server/internal/agent/model"
	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

// RedisStore keeps the session state as JSON and the turn history as a
// capped list, both expiring after ttl of inactivity.
type RedisStore struct {
	rdb      redis.Cmdable
	ttl      time.Duration
	maxTurns int
}

func NewRedisStore(rdb redis.Cmdable, config model.SessionConfig) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: config.TTL, maxTurns: config.MaxHistoryTurns}
}

func (r *RedisStore) stateKey(sessionID string) string {
	return fmt.Sprintf("session:%s:state", sessionID)
}

func (r *RedisStore) historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

// Get loads the session, returning a fresh one when the key is absent.
func (r *RedisStore) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	key := r.stateKey(sessionID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewSession(sessionID), nil
	}
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}

	s := model.NewSession(sessionID)
	if err := json.Unmarshal(raw, s); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	rows, err := r.rdb.LRange(ctx, r.historyKey(sessionID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session history from redis")
		return nil, errx.WrapRedis(err)
	}
	s.History = make([]model.Turn, 0, len(rows))
	for i, row := range rows {
		var turn model.Turn
		if err := json.Unmarshal([]byte(row), &turn); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Int("index", i).Msg("failed to unmarshal turn")
			return nil, fmt.Errorf("unmarshal turn at index %d: %w", i, err)
		}
		s.History = append(s.History, turn)
	}
	return s, nil
}

// Save writes the state and rewrites the capped history in one transaction.
func (r *RedisStore) Save(ctx context.Context, s *model.Session) error {
	c := s.Clone()
	c.UpdatedAt = time.Now().UTC()
	history := c.History
	if r.maxTurns > 0 && len(history) > r.maxTurns {
		history = history[len(history)-r.maxTurns:]
	}
	c.History = []model.Turn{}

	state, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	rows := make([]any, 0, len(history))
	for _, turn := range history {
		b, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		rows = append(rows, b)
	}

	stateKey, historyKey := r.stateKey(s.ID), r.historyKey(s.ID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, stateKey, state, r.ttl)
		pipe.Del(ctx, historyKey)
		if len(rows) > 0 {
			pipe.RPush(ctx, historyKey, rows...)
			if r.ttl > 0 {
				pipe.Expire(ctx, historyKey, r.ttl)
			}
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("session_id", s.ID).Msg("failed to save session to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// AppendTurn pushes one turn without rewriting the state, keeping the last maxTurns.
func (r *RedisStore) AppendTurn(ctx context.Context, sessionID string, turn model.Turn) error {
	b, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := r.historyKey(sessionID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, b)
		if r.maxTurns > 0 {
			pipe.LTrim(ctx, key, int64(-r.maxTurns), -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turn to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, r.stateKey(sessionID), r.historyKey(sessionID)).Err(); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// Clear resets the conversational state of a session, keeping its identity.
func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	s, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Reset()
	return r.Save(ctx, s)
}

var _ model.SessionStore = (*RedisStore)(nil)
