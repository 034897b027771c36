package raffle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// NumWords is the number of random words requested per round
	NumWords uint32 = 1

	// RequestConfirmations is the number of confirmations the oracle waits before responding
	RequestConfirmations uint16 = 3

	// MaxCallbackGasLimit is the largest callback gas limit a coordinator accepts
	MaxCallbackGasLimit uint32 = 2_500_000
)

// Config is the immutable configuration of one raffle
type Config struct {
	Name             string
	EntranceFee      decimal.Decimal
	Interval         time.Duration
	KeyHash          string // VRF gas lane
	SubscriptionID   uint64
	CallbackGasLimit uint32
}

// Validate checks that every value is within a sane positive range
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !c.EntranceFee.IsPositive() {
		errs = append(errs, fmt.Errorf("entrance fee must be > 0, got %s", c.EntranceFee))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be > 0, got %v", c.Interval))
	}
	if strings.TrimSpace(c.KeyHash) == "" {
		errs = append(errs, errors.New("key hash is required"))
	}
	if c.CallbackGasLimit == 0 || c.CallbackGasLimit > MaxCallbackGasLimit {
		errs = append(errs, fmt.Errorf("callback gas limit must be in (0, %d], got %d", MaxCallbackGasLimit, c.CallbackGasLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid raffle config %q: %w", c.Name, errors.Join(errs...))
	}
	return nil
}
