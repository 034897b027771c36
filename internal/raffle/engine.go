// Package raffle implements the raffle state machine and its two-phase randomness protocol.
//
// A round collects entries while Open. Once the interval has elapsed and the round holds at
// least one entry, PerformUpkeep moves it to Calculating and issues exactly one randomness
// request. The matching FulfillRandomWords picks ledger[word mod len(ledger)], pays the whole
// balance out and reopens the raffle.
//
// A round whose fulfillment never arrives stays Calculating until someone intervenes. There is
// no timeout: retrying a request or reopening the round could pay a winner twice.
//
// The oracle request and the payout transfer run while the engine lock is held. Each call gets
// its own deadline (DefaultCallTimeout unless WithCallTimeout says otherwise), which is also the
// longest EnterRaffle, Player and Players can stall behind them.
package raffle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XavierBriggs/Tyche/internal/obs"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	opEnter   = "enter"
	opUpkeep  = "upkeep"
	opFulfill = "fulfill"
)

// DefaultCallTimeout caps an external call made under the engine lock
// EnterRaffle and the ledger readers wait at most this long behind PerformUpkeep or FulfillRandomWords
const DefaultCallTimeout = 15 * time.Second

// Engine owns the state of one raffle
// Mutating operations are serialized by mu; CheckUpkeep reads the published view without locking
type Engine struct {
	cfg      Config
	oracle   contracts.RandomnessOracle
	sink     contracts.PayoutSink
	notifier contracts.Notifier
	clock    contracts.Clock
	log      logrus.FieldLogger
	metrics  *obs.Metrics

	mu               sync.Mutex
	state            models.RaffleState
	players          []string
	balance          decimal.Decimal
	pending          *models.RequestID
	lastTimestamp    time.Time
	calculatingSince time.Time
	recentWinner     string
	round            uint64
	roundID          string
	callTimeout      time.Duration

	view atomic.Pointer[models.RaffleSnapshot]
}

// Option customizes an Engine
type Option func(*Engine)

// WithNotifier sets the notification receiver
func WithNotifier(n contracts.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithClock sets the time source
func WithClock(c contracts.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStartRound sets the number of the first round; zero keeps the default of 1
// Seed it from persisted payouts so round numbers keep increasing across restarts
func WithStartRound(round uint64) Option {
	return func(e *Engine) {
		if round > 0 {
			e.round = round
		}
	}
}

// WithCallTimeout bounds each oracle request and payout transfer made while mu is held
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time { return time.Now().UTC() }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Notification) {}

// NewEngine validates cfg and creates an open raffle with an empty ledger
func NewEngine(cfg Config, oracle contracts.RandomnessOracle, sink contracts.PayoutSink, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if oracle == nil {
		return nil, fmt.Errorf("raffle %s: randomness oracle is required", cfg.Name)
	}
	if sink == nil {
		return nil, fmt.Errorf("raffle %s: payout sink is required", cfg.Name)
	}

	e := &Engine{
		cfg:      cfg,
		oracle:   oracle,
		sink:     sink,
		notifier: nopNotifier{},
		clock:    SystemClock{},
		log:      obs.NopLogger(),
		state:    models.RaffleStateOpen,
		balance:  decimal.Zero,
		round:    1,
		roundID:  uuid.NewString(),

		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("raffle", cfg.Name)
	e.lastTimestamp = e.clock.Now()

	e.mu.Lock()
	e.publishLocked()
	e.mu.Unlock()

	return e, nil
}

// EnterRaffle appends participant to the ledger and adds amount to the pooled balance
func (e *Engine) EnterRaffle(ctx context.Context, participant string, amount decimal.Decimal) error {
	if participant == "" {
		return ErrInvalidParticipant
	}

	e.mu.Lock()
	if amount.LessThan(e.cfg.EntranceFee) {
		e.mu.Unlock()
		e.incResult(opEnter, "insufficient_stake")
		return fmt.Errorf("%w: sent %s, entrance fee is %s", ErrInsufficientStake, amount, e.cfg.EntranceFee)
	}
	if e.state != models.RaffleStateOpen {
		e.mu.Unlock()
		e.incResult(opEnter, "not_open")
		return fmt.Errorf("enter raffle %s: %w", e.cfg.Name, ErrRaffleNotOpen)
	}

	e.players = append(e.players, participant)
	e.balance = e.balance.Add(amount)
	round := e.round
	e.publishLocked()
	e.mu.Unlock()

	e.incResult(opEnter, "success")
	e.log.WithFields(logrus.Fields{
		"round":       round,
		"participant": participant,
		"amount":      amount.String(),
	}).Debug("raffle entered")

	e.notifier.Notify(ctx, models.Notification{
		Kind:        models.NotificationRaffleEnter,
		Raffle:      e.cfg.Name,
		Round:       round,
		Participant: participant,
		Amount:      amount,
		EmittedAt:   e.clock.Now(),
	})
	return nil
}

// CheckUpkeep reports whether PerformUpkeep would run now
// It is read-only and advisory; checkData is ignored and an empty performData is returned
func (e *Engine) CheckUpkeep(ctx context.Context, checkData []byte) (models.UpkeepCheck, []byte) {
	snap := e.view.Load()
	return evaluate(snap.State, snap.Players, snap.Balance, snap.LastTimestamp, e.cfg.Interval, e.clock.Now()), []byte{}
}

// PerformUpkeep re-checks eligibility, moves the round to Calculating and requests randomness
func (e *Engine) PerformUpkeep(ctx context.Context, performData []byte) (models.RequestID, error) {
	e.mu.Lock()

	now := e.clock.Now()
	check := evaluate(e.state, len(e.players), e.balance, e.lastTimestamp, e.cfg.Interval, now)
	if !check.UpkeepNeeded {
		err := &UpkeepNotNeededError{
			TimePassed: check.TimePassed,
			IsOpen:     check.IsOpen,
			HasBalance: check.HasBalance,
			HasPlayers: check.HasPlayers,
			Balance:    e.balance.String(),
			Players:    len(e.players),
		}
		e.mu.Unlock()
		if check.IsOpen {
			e.incResult(opUpkeep, "not_needed")
		} else {
			e.incResult(opUpkeep, "not_open")
		}
		return 0, err
	}

	e.state = models.RaffleStateCalculating

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	requestID, err := e.oracle.RequestRandomWords(callCtx, models.RandomWordsRequest{
		KeyHash:              e.cfg.KeyHash,
		SubscriptionID:       e.cfg.SubscriptionID,
		RequestConfirmations: RequestConfirmations,
		CallbackGasLimit:     e.cfg.CallbackGasLimit,
		NumWords:             NumWords,
		Consumer:             e.cfg.Name,
	})
	cancel()
	if e.metrics != nil {
		e.metrics.OracleLatencySecond.WithLabelValues(e.cfg.Name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// Nothing was requested, so the round stays open
		e.state = models.RaffleStateOpen
		e.mu.Unlock()
		e.incResult(opUpkeep, "oracle_error")
		return 0, fmt.Errorf("request random words: %w", err)
	}

	e.pending = &requestID
	e.calculatingSince = now
	round := e.round
	e.publishLocked()
	e.mu.Unlock()

	e.incResult(opUpkeep, "performed")
	e.log.WithFields(logrus.Fields{
		"round":      round,
		"request_id": requestID,
	}).Info("requested raffle winner")

	e.notifier.Notify(ctx, models.Notification{
		Kind:      models.NotificationRequestedRaffleWinner,
		Raffle:    e.cfg.Name,
		Round:     round,
		RequestID: requestID,
		EmittedAt: now,
	})
	return requestID, nil
}

// FulfillRandomWords settles the round for the pending request
// A mismatched request id is rejected without touching any round state
func (e *Engine) FulfillRandomWords(ctx context.Context, requestID models.RequestID, randomWords []*big.Int) error {
	e.mu.Lock()

	if e.pending == nil || *e.pending != requestID {
		e.mu.Unlock()
		e.incResult(opFulfill, "unknown_request")
		e.log.WithField("request_id", requestID).Warn("rejected fulfillment for unknown request")
		return fmt.Errorf("%w: %d", ErrUnknownRequest, requestID)
	}
	if len(randomWords) == 0 || randomWords[0] == nil {
		e.mu.Unlock()
		e.incResult(opFulfill, "missing_words")
		return fmt.Errorf("request %d: %w", requestID, ErrMissingRandomWords)
	}

	n := len(e.players)
	if n == 0 {
		round := e.round
		e.mu.Unlock()
		e.incResult(opFulfill, "no_participants")
		e.log.WithFields(logrus.Fields{
			"round":      round,
			"request_id": requestID,
		}).Error("invariant violated: calculating round has an empty ledger")
		return fmt.Errorf("request %d: %w", requestID, ErrNoParticipants)
	}

	index := new(big.Int).Mod(randomWords[0], big.NewInt(int64(n))).Int64()
	winner := e.players[index]
	payout := models.Payout{
		Raffle:    e.cfg.Name,
		Round:     e.round,
		RoundID:   e.roundID,
		RequestID: requestID,
		To:        winner,
		Amount:    e.balance,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	err := e.sink.Transfer(callCtx, payout)
	cancel()
	if err != nil {
		e.mu.Unlock()
		e.incResult(opFulfill, "payout_failed")
		e.log.WithFields(logrus.Fields{
			"round":      payout.Round,
			"request_id": requestID,
			"winner":     winner,
		}).WithError(err).Error("payout failed, round left calculating")
		return fmt.Errorf("%w: %w", ErrPayoutFailed, err)
	}

	now := e.clock.Now()
	e.recentWinner = winner
	e.players = nil
	e.balance = decimal.Zero
	e.pending = nil
	e.state = models.RaffleStateOpen
	e.lastTimestamp = now
	e.calculatingSince = time.Time{}
	e.round++
	e.roundID = uuid.NewString()
	e.publishLocked()
	e.mu.Unlock()

	e.incResult(opFulfill, "settled")
	if e.metrics != nil {
		amount, _ := payout.Amount.Float64()
		e.metrics.PayoutAmount.WithLabelValues(e.cfg.Name).Add(amount)
	}
	e.log.WithFields(logrus.Fields{
		"round":      payout.Round,
		"request_id": requestID,
		"winner":     winner,
		"index":      index,
		"amount":     payout.Amount.String(),
	}).Info("winner picked")

	e.notifier.Notify(ctx, models.Notification{
		Kind:        models.NotificationWinnerPicked,
		Raffle:      e.cfg.Name,
		Round:       payout.Round,
		Participant: winner,
		Amount:      payout.Amount,
		RequestID:   requestID,
		EmittedAt:   now,
	})
	return nil
}

// evaluate is the eligibility predicate shared by CheckUpkeep and PerformUpkeep
func evaluate(state models.RaffleState, players int, balance decimal.Decimal, last time.Time, interval time.Duration, now time.Time) models.UpkeepCheck {
	c := models.UpkeepCheck{
		IsOpen:     state == models.RaffleStateOpen,
		TimePassed: now.Sub(last) >= interval,
		HasPlayers: players > 0,
		HasBalance: balance.IsPositive(),
	}
	c.UpkeepNeeded = c.IsOpen && c.TimePassed && c.HasPlayers && c.HasBalance
	return c
}

// publishLocked refreshes the lock-free view; callers hold mu
func (e *Engine) publishLocked() {
	snap := &models.RaffleSnapshot{
		Raffle:        e.cfg.Name,
		State:         e.state,
		Round:         e.round,
		EntranceFee:   e.cfg.EntranceFee,
		Interval:      e.cfg.Interval,
		Players:       len(e.players),
		Balance:       e.balance,
		LastTimestamp: e.lastTimestamp,
		RecentWinner:  e.recentWinner,

		CalculatingSince: e.calculatingSince,
	}
	if e.pending != nil {
		id := *e.pending
		snap.PendingRequest = &id
	}
	e.view.Store(snap)

	if e.metrics != nil {
		e.metrics.Players.WithLabelValues(e.cfg.Name).Set(float64(len(e.players)))
		pending := 0.0
		if e.pending != nil {
			pending = 1
		}
		e.metrics.PendingRequests.WithLabelValues(e.cfg.Name).Set(pending)
	}
}

func (e *Engine) incResult(op, result string) {
	if e.metrics == nil {
		return
	}
	switch op {
	case opEnter:
		e.metrics.EntriesTotal.WithLabelValues(e.cfg.Name, result).Inc()
	case opUpkeep:
		e.metrics.UpkeepsTotal.WithLabelValues(e.cfg.Name, result).Inc()
	case opFulfill:
		e.metrics.FulfillmentsTotal.WithLabelValues(e.cfg.Name, result).Inc()
	}
}
