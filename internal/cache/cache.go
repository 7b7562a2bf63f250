// Package cache keeps a short-lived copy of each account's note list so that
// repeated list calls skip the database. Every mutation of an account's notes
// must call Invalidate.
//
// Each account has a generation counter that Invalidate bumps. A reader
// takes the generation before querying the database and passes it to
// SetNotes, which stores the list only if no invalidation happened since.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/keeper-notes-be/internal/models"
	"github.com/redis/go-redis/v9"
)

// NoteCache stores note lists keyed by account id.
type NoteCache interface {
	GetNotes(ctx context.Context, accountID string) ([]models.Note, bool, error)
	Generation(ctx context.Context, accountID string) (int64, error)
	SetNotes(ctx context.Context, accountID string, generation int64, notes []models.Note) error
	Invalidate(ctx context.Context, accountID string) error
	Close() error
}

// Nop is a NoteCache that never stores anything.
type Nop struct{}

func (Nop) GetNotes(context.Context, string) ([]models.Note, bool, error) { return nil, false, nil }
func (Nop) Generation(context.Context, string) (int64, error)             { return 0, nil }
func (Nop) SetNotes(context.Context, string, int64, []models.Note) error  { return nil }
func (Nop) Invalidate(context.Context, string) error                      { return nil }
func (Nop) Close() error                                                  { return nil }

// RedisCache is a NoteCache backed by Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect creates a Redis client and checks that the server answers.
func Connect(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisCache(client, ttl), nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func notesKey(accountID string) string {
	return "notes:" + accountID
}

func generationKey(accountID string) string {
	return "notes:gen:" + accountID
}

// setIfGeneration stores ARGV[2] under KEYS[1] for ARGV[3] milliseconds (0
// means no expiry) when KEYS[2] still holds generation ARGV[1]. A missing
// counter is generation 0.
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// GetNotes returns the cached list and whether it was present.
func (c *RedisCache) GetNotes(ctx context.Context, accountID string) ([]models.Note, bool, error) {
	value, err := c.client.Get(ctx, notesKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get notes: %w", err)
	}

	var notes []models.Note
	if err := json.Unmarshal(value, &notes); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached notes: %w", err)
	}
	for i := range notes {
		notes[i].UserID = accountID
	}
	return notes, true, nil
}

// Generation returns the account's current invalidation counter.
func (c *RedisCache) Generation(ctx context.Context, accountID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(accountID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// SetNotes stores the list with the configured TTL unless the account was
// invalidated after generation was read. A skipped write is not an error.
func (c *RedisCache) SetNotes(ctx context.Context, accountID string, generation int64, notes []models.Note) error {
	value, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("marshal notes for cache: %w", err)
	}
	keys := []string{notesKey(accountID), generationKey(accountID)}
	err = setIfGeneration.Run(ctx, c.client, keys, generation, value, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set notes: %w", err)
	}
	return nil
}

// Invalidate bumps the account's generation and drops its cached list.
func (c *RedisCache) Invalidate(ctx context.Context, accountID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(accountID))
		pipe.Del(ctx, notesKey(accountID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate notes: %w", err)
	}
	return nil
}

// PingContext reports whether Redis is reachable.
func (c *RedisCache) PingContext(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
