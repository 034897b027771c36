package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationKind names an observability notification emitted by a raffle
type NotificationKind string

const (
	NotificationRaffleEnter           NotificationKind = "RaffleEnter"
	NotificationRequestedRaffleWinner NotificationKind = "RequestedRaffleWinner"
	NotificationWinnerPicked          NotificationKind = "WinnerPicked"
)

// Notification is a fire-and-forget raffle event
type Notification struct {
	Kind        NotificationKind
	Raffle      string
	Round       uint64
	Participant string          // RaffleEnter, WinnerPicked
	Amount      decimal.Decimal // RaffleEnter stake, WinnerPicked payout
	RequestID   RequestID       // RequestedRaffleWinner, WinnerPicked
	EmittedAt   time.Time
}
