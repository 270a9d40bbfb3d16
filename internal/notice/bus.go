package notice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Level is the severity shown with a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// DefaultBufferSize bounds how many undrained notices a session keeps.
const DefaultBufferSize = 20

// Notice is a short user-facing message produced by a state change.
type Notice struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store buffers notices per session until they are drained.
type Store interface {
	Push(ctx context.Context, sessionID string, n Notice) error
	Drain(ctx context.Context, sessionID string) ([]Notice, error)
}

// Notifier reacts to emitted notices.
type Notifier interface {
	Notify(ctx context.Context, sessionID string, n Notice) error
}

// Bus records notices and fans them out to notifiers.
type Bus struct {
	Store     Store
	Notifiers []Notifier
	Logger    *zerolog.Logger
	Now       func() time.Time
}

// Emit records a notice for the session. Delivery failures are logged, never returned.
func (b *Bus) Emit(ctx context.Context, sessionID string, level Level, message string) Notice {
	n := Notice{
		ID:      uuid.NewString(),
		Level:   level,
		Message: strings.TrimSpace(message),
	}
	if b == nil {
		n.CreatedAt = time.Now().UTC()
		return n
	}
	n.CreatedAt = b.now()
	if n.Message == "" {
		return n
	}
	var joined error
	if b.Store != nil {
		if err := b.Store.Push(ctx, sessionID, n); err != nil {
			joined = errors.Join(joined, fmt.Errorf("notice: store: %w", err))
		}
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, sessionID, n); err != nil {
			joined = errors.Join(joined, fmt.Errorf("notice: notifier: %w", err))
		}
	}
	if joined != nil && b.Logger != nil {
		b.Logger.Warn().Err(joined).Str("session_id", sessionID).Msg("notice delivery failed")
	}
	return n
}

// Drain returns buffered notices oldest first and clears the buffer.
func (b *Bus) Drain(ctx context.Context, sessionID string) ([]Notice, error) {
	if b == nil || b.Store == nil {
		return []Notice{}, nil
	}
	return b.Store.Drain(ctx, sessionID)
}

func (b *Bus) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

// RedisStore keeps a capped list of notices per session.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	Limit  int
	TTL    time.Duration
}

func (s *RedisStore) key(sessionID string) string {
	return s.Prefix + "session:" + sessionID + ":notices"
}

// Push appends n and trims the list to the newest Limit entries.
func (s *RedisStore) Push(ctx context.Context, sessionID string, n Notice) error {
	if s == nil || s.Client == nil {
		return errors.New("notice: redis client not configured")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	key := s.key(sessionID)
	_, err = s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-limit), -1)
		if s.TTL > 0 {
			pipe.Expire(ctx, key, s.TTL)
		}
		return nil
	})
	return err
}

// Drain reads and deletes the list atomically. Undecodable entries are skipped.
func (s *RedisStore) Drain(ctx context.Context, sessionID string) ([]Notice, error) {
	if s == nil || s.Client == nil {
		return nil, errors.New("notice: redis client not configured")
	}
	key := s.key(sessionID)
	var rng *redis.StringSliceCmd
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rng = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Notice, 0, len(rng.Val()))
	for _, raw := range rng.Val() {
		var n Notice
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// LogNotifier writes every notice to a zerolog logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(_ context.Context, sessionID string, n Notice) error {
	l.Logger.Info().
		Str("session_id", sessionID).
		Str("level", string(n.Level)).
		Str("notice_id", n.ID).
		Msg(n.Message)
	return nil
}
