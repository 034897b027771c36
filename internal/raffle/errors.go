package raffle

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStake  = errors.New("insufficient stake to enter raffle")
	ErrRaffleNotOpen      = errors.New("raffle is not open")
	ErrUpkeepNotNeeded    = errors.New("upkeep not needed")
	ErrUnknownRequest     = errors.New("unknown randomness request")
	ErrNoParticipants     = errors.New("no participants to pick a winner from")
	ErrMissingRandomWords = errors.New("fulfillment carries no random words")
	ErrPayoutFailed       = errors.New("payout transfer failed")
	ErrInvalidParticipant = errors.New("participant is required")
)

// UpkeepNotNeededError reports why PerformUpkeep refused to run
type UpkeepNotNeededError struct {
	TimePassed bool   `json:"time_passed"`
	IsOpen     bool   `json:"is_open"`
	HasBalance bool   `json:"has_balance"`
	HasPlayers bool   `json:"has_players"`
	Balance    string `json:"balance"`
	Players    int    `json:"players"`
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("%s: time_passed=%t is_open=%t has_balance=%t has_players=%t (balance=%s players=%d)",
		ErrUpkeepNotNeeded, e.TimePassed, e.IsOpen, e.HasBalance, e.HasPlayers, e.Balance, e.Players)
}

// Is matches ErrUpkeepNotNeeded, and ErrRaffleNotOpen when the round is already calculating
func (e *UpkeepNotNeededError) Is(target error) bool {
	switch target {
	case ErrUpkeepNotNeeded:
		return true
	case ErrRaffleNotOpen:
		return !e.IsOpen
	}
	return false
}
