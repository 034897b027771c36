// Package settlement records round payouts in Postgres and announces them on a Redis Stream.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/Tyche/internal/obs"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PayoutStream is the Redis Stream that receives one entry per settled round
const PayoutStream = "raffle.payouts"

// ErrDuplicatePayout means the round already has a recorded payout
var ErrDuplicatePayout = errors.New("round already paid out")

// Ledger is a PayoutSink backed by the payouts table
// The table is the source of truth; stream publishing is best effort
type Ledger struct {
	db          *sql.DB
	redisClient *redis.Client
	clock       contracts.Clock
	log         logrus.FieldLogger
}

var _ contracts.PayoutSink = (*Ledger)(nil)

// NewLedger creates a settlement ledger; redisClient may be nil
func NewLedger(db *sql.DB, redisClient *redis.Client, clock contracts.Clock, log logrus.FieldLogger) *Ledger {
	if log == nil {
		log = obs.NopLogger()
	}
	return &Ledger{
		db:          db,
		redisClient: redisClient,
		clock:       clock,
		log:         log.WithField("component", "settlement"),
	}
}

// Transfer records payout exactly once per (raffle, round)
func (l *Ledger) Transfer(ctx context.Context, payout models.Payout) error {
	paidAt := l.clock.Now().UTC()

	// Begin transaction
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO payouts (raffle, round, request_id, winner, amount, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (raffle, round) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, insertQuery,
		payout.Raffle, int64(payout.Round), int64(payout.RequestID), payout.To, payout.Amount.String(), paidAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("raffle %s round %d: %w", payout.Raffle, payout.Round, ErrDuplicatePayout)
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Publish to Redis stream
	if err := l.publishPayout(ctx, payout, paidAt); err != nil {
		// Log but don't fail - payout is recorded
		l.log.WithFields(logrus.Fields{
			"raffle": payout.Raffle,
			"round":  payout.Round,
		}).WithError(err).Warn("failed to publish payout to stream")
	}

	l.log.WithFields(logrus.Fields{
		"raffle":     payout.Raffle,
		"round":      payout.Round,
		"request_id": payout.RequestID,
		"winner":     payout.To,
		"amount":     payout.Amount.String(),
	}).Info("payout recorded")

	return nil
}

// Payouts returns the most recent payouts for a raffle, newest first
func (l *Ledger) Payouts(ctx context.Context, raffle string, limit int) ([]models.Payout, error) {
	query := `
		SELECT raffle, round, request_id, winner, amount
		FROM payouts
		WHERE raffle = $1
		ORDER BY round DESC
		LIMIT $2
	`

	rows, err := l.db.QueryContext(ctx, query, raffle, limit)
	if err != nil {
		return nil, fmt.Errorf("query payouts: %w", err)
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var (
			p         models.Payout
			round     int64
			requestID int64
			amount    string
		)
		if err := rows.Scan(&p.Raffle, &round, &requestID, &p.To, &amount); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		p.Round = uint64(round)
		p.RequestID = models.RequestID(requestID)
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse payout amount %q: %w", amount, err)
		}
		payouts = append(payouts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payouts, nil
}

// publishPayout publishes a message to the payouts stream
func (l *Ledger) publishPayout(ctx context.Context, payout models.Payout, paidAt time.Time) error {
	if l.redisClient == nil {
		return nil
	}

	values := map[string]interface{}{
		"raffle":     payout.Raffle,
		"round":      payout.Round,
		"request_id": uint64(payout.RequestID),
		"winner":     payout.To,
		"amount":     payout.Amount.String(),
		"paid_at":    paidAt.Format(time.RFC3339),
	}

	_, err := l.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: PayoutStream,
		Values: values,
	}).Result()

	if err != nil {
		return fmt.Errorf("xadd to stream: %w", err)
	}

	return nil
}

// NextRound returns one past the highest round paid out for raffle, or 1 when none has been
func (l *Ledger) NextRound(ctx context.Context, raffle string) (uint64, error) {
	var last int64
	err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(round), 0) FROM payouts WHERE raffle = $1`, raffle).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("query last round: %w", err)
	}
	return uint64(last) + 1, nil
}
