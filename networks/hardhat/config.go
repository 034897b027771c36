package hardhat

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config contains the local development chain presets
type Config struct {
	// Network identification
	Name    string
	ChainID int64

	// Confirmations to wait on; 1 locally
	BlockConfirmations uint16

	// Raffle defaults
	Raffle RaffleConfig

	// In-process coordinator settings
	Mock MockConfig

	// How often the keeper checks upkeep
	KeeperPollInterval time.Duration
}

// RaffleConfig holds the constructor defaults for raffles on this network
type RaffleConfig struct {
	EntranceFee      decimal.Decimal
	GasLane          string
	CallbackGasLimit uint32
	Interval         time.Duration
}

// MockConfig prices the in-process coordinator and funds its subscription
type MockConfig struct {
	BaseFee          decimal.Decimal // LINK per fulfillment
	GasPriceLink     decimal.Decimal // LINK per gas unit
	SubscriptionFund decimal.Decimal // LINK added to the subscription created at startup
	FulfillDelay     time.Duration
}

// DefaultConfig returns the local chain presets
func DefaultConfig() *Config {
	return &Config{
		Name:               "hardhat",
		ChainID:            31337,
		BlockConfirmations: 1,

		Raffle: RaffleConfig{
			EntranceFee:      decimal.New(1, -2), // 0.01
			GasLane:          "0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc",
			CallbackGasLimit: 500_000,
			Interval:         30 * time.Second,
		},

		Mock: MockConfig{
			BaseFee:          decimal.RequireFromString("0.25"),
			GasPriceLink:     decimal.New(1, -9), // 1e9 wei
			SubscriptionFund: decimal.NewFromInt(2),
			FulfillDelay:     2 * time.Second,
		},

		KeeperPollInterval: 5 * time.Second,
	}
}
