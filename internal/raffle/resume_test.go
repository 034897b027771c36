package raffle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyedSink keeps one payout per (raffle, round) like the payouts table
type keyedSink struct {
	mu      sync.Mutex
	payouts map[string]models.Payout
	last    map[string]uint64
}

func newKeyedSink() *keyedSink {
	return &keyedSink{
		payouts: make(map[string]models.Payout),
		last:    make(map[string]uint64),
	}
}

func (s *keyedSink) Transfer(ctx context.Context, payout models.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s/%d", payout.Raffle, payout.Round)
	if _, exists := s.payouts[key]; exists {
		return errors.New("round already paid out")
	}
	s.payouts[key] = payout
	if payout.Round > s.last[payout.Raffle] {
		s.last[payout.Raffle] = payout.Round
	}
	return nil
}

func (s *keyedSink) NextRound(ctx context.Context, raffle string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[raffle] + 1, nil
}

type failingRounds struct{}

func (failingRounds) NextRound(context.Context, string) (uint64, error) {
	return 0, errors.New("connection refused")
}

type fixedRounds uint64

func (f fixedRounds) NextRound(context.Context, string) (uint64, error) {
	return uint64(f), nil
}

// settleOnce plays one full round on e and returns the payout
func settleOnce(t *testing.T, e *Engine, clock *testutil.ManualClock, sink *keyedSink, player string) models.Payout {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.EnterRaffle(ctx, player, testutil.Amount("1.0")))
	clock.Advance(61 * time.Second)
	id, err := e.PerformUpkeep(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, e.FulfillRandomWords(ctx, id, []*big.Int{big.NewInt(0)}))

	round := e.Round() - 1
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return sink.payouts[fmt.Sprintf("%s/%d", e.Name(), round)]
}

func TestRestart_ContinuesRoundNumbering(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewManualClock(epoch)
	sink := newKeyedSink()

	first, err := NewEngine(testConfig(), testutil.NewRecordingOracle(), sink, WithClock(clock))
	require.NoError(t, err)
	before := settleOnce(t, first, clock, sink, testutil.PlayerA)
	assert.Equal(t, uint64(1), before.Round)

	// A fresh process: new oracle whose request ids start over, same persisted sink
	start, err := ResumeRound(ctx, "weekly", sink)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), start)

	second, err := NewEngine(testConfig(), testutil.NewRecordingOracle(), sink,
		WithClock(clock),
		WithStartRound(start),
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Round())

	after := settleOnce(t, second, clock, sink, testutil.PlayerB)
	assert.Equal(t, uint64(2), after.Round)
	assert.Equal(t, testutil.PlayerB, after.To)
	assert.Equal(t, models.RaffleStateOpen, second.State())
	assert.Equal(t, uint64(3), second.Round())

	assert.Equal(t, before.RequestID, after.RequestID, "request ids repeat across lifetimes")
	assert.NotEmpty(t, before.RoundID)
	assert.NotEqual(t, before.RoundID, after.RoundID)
}

func TestRoundID_ChangesEveryRound(t *testing.T) {
	clock := testutil.NewManualClock(epoch)
	sink := newKeyedSink()
	e, err := NewEngine(testConfig(), testutil.NewRecordingOracle(), sink, WithClock(clock))
	require.NoError(t, err)

	a := settleOnce(t, e, clock, sink, testutil.PlayerA)
	b := settleOnce(t, e, clock, sink, testutil.PlayerA)
	assert.NotEqual(t, a.RoundID, b.RoundID)
	assert.Equal(t, a.Round+1, b.Round)
}

func TestWithStartRound_ZeroKeepsDefault(t *testing.T) {
	e, err := NewEngine(testConfig(), testutil.NewRecordingOracle(), &testutil.RecordingSink{}, WithStartRound(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Round())
	assert.Equal(t, uint64(1), e.Snapshot().Round)
}

func TestResumeRound(t *testing.T) {
	ctx := context.Background()

	next, err := ResumeRound(ctx, "weekly")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	next, err = ResumeRound(ctx, "weekly", fixedRounds(4), fixedRounds(9), fixedRounds(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), next, "the furthest source wins")

	_, err = ResumeRound(ctx, "weekly", fixedRounds(4), failingRounds{})
	assert.ErrorContains(t, err, "resume raffle weekly")
}

// stallingOracle blocks until its context ends
type stallingOracle struct{}

func (stallingOracle) RequestRandomWords(ctx context.Context, req models.RandomWordsRequest) (models.RequestID, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

// stallingSink blocks until its context ends
type stallingSink struct{}

func (stallingSink) Transfer(ctx context.Context, payout models.Payout) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPerformUpkeep_OracleCallIsBounded(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewManualClock(epoch)
	e, err := NewEngine(testConfig(), stallingOracle{}, &testutil.RecordingSink{},
		WithClock(clock),
		WithCallTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, e.EnterRaffle(ctx, testutil.PlayerA, testutil.Amount("1.0")))
	clock.Advance(61 * time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := e.PerformUpkeep(ctx, nil)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("PerformUpkeep did not give up on the oracle")
	}

	assert.Equal(t, models.RaffleStateOpen, e.State())
	assert.NoError(t, e.EnterRaffle(ctx, testutil.PlayerB, testutil.Amount("1.0")))
	assert.Len(t, e.Players(), 2)
}

func TestFulfillRandomWords_PayoutCallIsBounded(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewManualClock(epoch)
	e, err := NewEngine(testConfig(), testutil.NewRecordingOracle(), stallingSink{},
		WithClock(clock),
		WithCallTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, e.EnterRaffle(ctx, testutil.PlayerA, testutil.Amount("1.0")))
	clock.Advance(61 * time.Second)
	id, err := e.PerformUpkeep(ctx, nil)
	require.NoError(t, err)

	start := time.Now()
	err = e.FulfillRandomWords(ctx, id, []*big.Int{big.NewInt(0)})
	assert.ErrorIs(t, err, ErrPayoutFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, models.RaffleStateCalculating, e.State())
	player, err := e.Player(0)
	require.NoError(t, err)
	assert.Equal(t, testutil.PlayerA, player)
}
