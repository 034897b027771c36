//go:build integration
// +build integration

package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/internal/snapshot"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_DetectAndUpdate(t *testing.T) {
	// Setup test Redis (requires Redis running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping integration test: %v", err)
	}
	redisClient.FlushDB(ctx)

	cache := snapshot.NewCache(redisClient, 30*time.Second)
	snap := models.RaffleSnapshot{
		Raffle:      "weekly",
		State:       models.RaffleStateOpen,
		Round:       1,
		EntranceFee: testutil.Amount("1"),
		Players:     1,
		Balance:     testutil.Amount("1"),
	}

	// Empty cache: new
	changes, err := cache.DetectChanges(ctx, []models.RaffleSnapshot{snap})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, snapshot.ChangeTypeNew, changes[0].Type)

	require.NoError(t, cache.Update(ctx, []models.RaffleSnapshot{snap}))

	changes, err = cache.DetectChanges(ctx, []models.RaffleSnapshot{snap})
	require.NoError(t, err)
	assert.Empty(t, changes)

	snap.State = models.RaffleStateCalculating
	changes, err = cache.DetectChanges(ctx, []models.RaffleSnapshot{snap})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, snapshot.ChangeTypeState, changes[0].Type)

	got, ok, err := cache.Get(ctx, "weekly")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.RaffleStateOpen, got.State)

	_, ok, err = cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
