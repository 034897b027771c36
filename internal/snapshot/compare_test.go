package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSnapshot() models.RaffleSnapshot {
	return models.RaffleSnapshot{
		Raffle:        "weekly",
		State:         models.RaffleStateOpen,
		Round:         1,
		EntranceFee:   testutil.Amount("1"),
		Interval:      time.Minute,
		Players:       2,
		Balance:       testutil.Amount("2"),
		LastTimestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func encode(t *testing.T, s models.RaffleSnapshot) interface{} {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.RaffleSnapshot)
		want   ChangeType
	}{
		{"unchanged", func(*models.RaffleSnapshot) {}, ChangeTypeNone},
		{"new entry", func(s *models.RaffleSnapshot) {
			s.Players = 3
			s.Balance = testutil.Amount("3")
		}, ChangeTypePlayers},
		{"calculating", func(s *models.RaffleSnapshot) { s.State = models.RaffleStateCalculating }, ChangeTypeState},
		{"settled", func(s *models.RaffleSnapshot) {
			s.Round = 2
			s.RecentWinner = testutil.PlayerA
			s.Players = 0
		}, ChangeTypeWinner},
	}

	cached := encode(t, baseSnapshot())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSnapshot()
			tt.mutate(&s)
			got, prev := Compare(s, cached)
			assert.Equal(t, tt.want, got)
			if tt.want == ChangeTypeNone {
				assert.Nil(t, prev)
			} else {
				require.NotNil(t, prev)
				assert.Equal(t, 2, prev.Players)
			}
		})
	}
}

func TestCompare_MissingOrCorrupt(t *testing.T) {
	got, _ := Compare(baseSnapshot(), nil)
	assert.Equal(t, ChangeTypeNew, got)

	got, _ = Compare(baseSnapshot(), "{not json")
	assert.Equal(t, ChangeTypeNew, got)

	got, _ = Compare(baseSnapshot(), 42)
	assert.Equal(t, ChangeTypeNew, got)
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "raffle:snapshot:weekly", buildKey("weekly"))
}
