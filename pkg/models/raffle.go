package models

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// RaffleState is the lifecycle state of a raffle round
type RaffleState string

const (
	RaffleStateOpen        RaffleState = "open"
	RaffleStateCalculating RaffleState = "calculating"
)

// RequestID correlates a randomness request with its fulfillment
type RequestID uint64

// RandomWordsRequest is the payload sent to a randomness oracle
type RandomWordsRequest struct {
	KeyHash              string
	SubscriptionID       uint64
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
	Consumer             string // Raffle name the fulfillment is routed back to
}

// UpkeepCheck is the result of an eligibility check with its component flags
type UpkeepCheck struct {
	UpkeepNeeded bool `json:"upkeep_needed"`
	IsOpen       bool `json:"is_open"`
	TimePassed   bool `json:"time_passed"`
	HasPlayers   bool `json:"has_players"`
	HasBalance   bool `json:"has_balance"`
}

// Payout is a transfer of the pooled balance to a round winner
// RoundID is fresh for every round the engine opens, including across restarts
type Payout struct {
	Raffle    string
	Round     uint64
	RoundID   string
	RequestID RequestID
	To        string
	Amount    decimal.Decimal
}

// RaffleSnapshot is a point-in-time view of a raffle
type RaffleSnapshot struct {
	Raffle         string          `json:"raffle"`
	State          RaffleState     `json:"state"`
	Round          uint64          `json:"round"`
	EntranceFee    decimal.Decimal `json:"entrance_fee"`
	Interval       time.Duration   `json:"interval"`
	Players        int             `json:"players"`
	Balance        decimal.Decimal `json:"balance"`
	LastTimestamp  time.Time       `json:"last_timestamp"`
	RecentWinner   string          `json:"recent_winner,omitempty"`
	PendingRequest *RequestID      `json:"pending_request,omitempty"`

	CalculatingSince time.Time `json:"calculating_since,omitempty"`
}

// Winner is a settled round as recorded by the notification writer
type Winner struct {
	Raffle    string    `json:"raffle"`
	Winner    string    `json:"winner"`
	RequestID RequestID `json:"request_id"`
	PickedAt  time.Time `json:"picked_at"`
}

// Fulfillment is an inbound delivery of random words
type Fulfillment struct {
	RequestID   RequestID
	RandomWords []*big.Int
}
