package contracts

import (
	"context"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
)

// PayoutSink transfers a round's pooled balance to its winner
// A returned error means nothing was transferred
type PayoutSink interface {
	Transfer(ctx context.Context, payout models.Payout) error
}

// Notifier receives raffle notifications
// Delivery is best effort; Notify must not block on I/O
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// RoundSource reports the next round number for a raffle from persisted history
type RoundSource interface {
	NextRound(ctx context.Context, raffle string) (uint64, error)
}
