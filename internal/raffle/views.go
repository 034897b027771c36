package raffle

import (
	"fmt"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/shopspring/decimal"
)

// Name returns the raffle name
func (e *Engine) Name() string { return e.cfg.Name }

// Config returns a copy of the raffle configuration
func (e *Engine) Config() Config { return e.cfg }

// EntranceFee returns the minimum stake per entry
func (e *Engine) EntranceFee() decimal.Decimal { return e.cfg.EntranceFee }

// Interval returns the minimum round duration
func (e *Engine) Interval() time.Duration { return e.cfg.Interval }

// NumWords returns the number of random words requested per round
func (e *Engine) NumWords() uint32 { return NumWords }

// RequestConfirmations returns the confirmations requested from the oracle
func (e *Engine) RequestConfirmations() uint16 { return RequestConfirmations }

// Snapshot returns the most recently published view
func (e *Engine) Snapshot() models.RaffleSnapshot {
	return *e.view.Load()
}

// State returns the current raffle state
func (e *Engine) State() models.RaffleState { return e.view.Load().State }

// NumberOfPlayers returns the number of entries in the current round
func (e *Engine) NumberOfPlayers() int { return e.view.Load().Players }

// Balance returns the pooled stake of the current round
func (e *Engine) Balance() decimal.Decimal { return e.view.Load().Balance }

// RecentWinner returns the winner of the last settled round
func (e *Engine) RecentWinner() string { return e.view.Load().RecentWinner }

// LastTimestamp returns when the current round opened
func (e *Engine) LastTimestamp() time.Time { return e.view.Load().LastTimestamp }

// Round returns the current round number, starting at 1
func (e *Engine) Round() uint64 { return e.view.Load().Round }

// PendingRequest returns the outstanding request id, if any
func (e *Engine) PendingRequest() (models.RequestID, bool) {
	p := e.view.Load().PendingRequest
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Player returns the participant at index i of the current ledger
func (e *Engine) Player(i int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.players) {
		return "", fmt.Errorf("player index %d out of range [0, %d)", i, len(e.players))
	}
	return e.players[i], nil
}

// Players returns a copy of the current ledger in entry order
func (e *Engine) Players() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.players))
	copy(out, e.players)
	return out
}
