package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache keeps the last published snapshot of each raffle in Redis
// Readers outside this process (dashboards, other replicas) read it instead of the engine
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// ChangeType indicates the type of change detected
type ChangeType string

const (
	ChangeTypeNew     ChangeType = "new"
	ChangeTypeState   ChangeType = "state"
	ChangeTypePlayers ChangeType = "players"
	ChangeTypeWinner  ChangeType = "winner"
	ChangeTypeNone    ChangeType = "none"
)

// Change represents a detected difference against the cached snapshot
type Change struct {
	Snapshot models.RaffleSnapshot
	Type     ChangeType
	Previous *models.RaffleSnapshot
}

// NewCache creates a snapshot cache
func NewCache(redisClient *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		redis: redisClient,
		ttl:   ttl,
	}
}

// DetectChanges compares snapshots against the cache and returns only the changed ones
func (c *Cache) DetectChanges(ctx context.Context, snaps []models.RaffleSnapshot) ([]Change, error) {
	if len(snaps) == 0 {
		return nil, nil
	}

	// Build Redis keys for batch lookup
	keys := make([]string, len(snaps))
	for i, s := range snaps {
		keys[i] = buildKey(s.Raffle)
	}

	cachedValues, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	changes := make([]Change, 0, len(snaps))
	for i, s := range snaps {
		var cached interface{}
		if i < len(cachedValues) {
			cached = cachedValues[i]
		}
		changeType, prev := Compare(s, cached)
		if changeType != ChangeTypeNone {
			changes = append(changes, Change{Snapshot: s, Type: changeType, Previous: prev})
		}
	}

	return changes, nil
}

// Update writes snapshots through to Redis
func (c *Cache) Update(ctx context.Context, snaps []models.RaffleSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	pipe := c.redis.Pipeline()

	for _, s := range snaps {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		pipe.Set(ctx, buildKey(s.Raffle), data, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec: %w", err)
	}

	return nil
}

// Get returns the cached snapshot for a raffle
func (c *Cache) Get(ctx context.Context, raffle string) (models.RaffleSnapshot, bool, error) {
	data, err := c.redis.Get(ctx, buildKey(raffle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RaffleSnapshot{}, false, nil
	}
	if err != nil {
		return models.RaffleSnapshot{}, false, fmt.Errorf("redis get: %w", err)
	}

	var s models.RaffleSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return models.RaffleSnapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return s, true, nil
}

// buildKey creates a Redis key for a raffle
// Format: raffle:snapshot:{raffle}
func buildKey(raffle string) string {
	return fmt.Sprintf("raffle:snapshot:%s", raffle)
}

// Compare classifies the difference between a snapshot and its cached value
// State changes win over winner changes, which win over ledger changes
func Compare(s models.RaffleSnapshot, cachedValue interface{}) (ChangeType, *models.RaffleSnapshot) {
	// If no cache entry, this raffle is new to the cache
	if cachedValue == nil {
		return ChangeTypeNew, nil
	}

	cachedStr, ok := cachedValue.(string)
	if !ok {
		// Cache corruption, treat as new
		return ChangeTypeNew, nil
	}

	var cached models.RaffleSnapshot
	if err := json.Unmarshal([]byte(cachedStr), &cached); err != nil {
		// Cache corruption, treat as new
		return ChangeTypeNew, nil
	}

	switch {
	case cached.State != s.State:
		return ChangeTypeState, &cached
	case cached.Round != s.Round || cached.RecentWinner != s.RecentWinner:
		return ChangeTypeWinner, &cached
	case cached.Players != s.Players || !cached.Balance.Equal(s.Balance):
		return ChangeTypePlayers, &cached
	}
	return ChangeTypeNone, nil
}
