package rinkeby

import (
	"time"

	"github.com/XavierBriggs/Tyche/networks/hardhat"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/shopspring/decimal"
)

// Config contains the public testnet presets
type Config struct {
	Name               string
	ChainID            int64
	BlockConfirmations uint16
	CoordinatorAddress string
	SubscriptionID     uint64

	EntranceFee      decimal.Decimal
	GasLane          string
	CallbackGasLimit uint32
	Interval         time.Duration

	KeeperPollInterval time.Duration
}

// DefaultConfig returns the testnet presets; SubscriptionID must be supplied by the operator
func DefaultConfig() *Config {
	return &Config{
		Name:               "rinkeby",
		ChainID:            4,
		BlockConfirmations: 6,
		CoordinatorAddress: "0x6168499c0cFfCaCD319c818142124B7A15E857ab",

		EntranceFee:      decimal.New(1, -2), // 0.01
		GasLane:          "0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc",
		CallbackGasLimit: 500_000,
		Interval:         30 * time.Second,

		KeeperPollInterval: 15 * time.Second,
	}
}

// Module implements the NetworkProfile interface for the public testnet
type Module struct {
	config *Config
}

var _ contracts.NetworkProfile = (*Module)(nil)

// NewModule creates a testnet module bound to subscriptionID
func NewModule(subscriptionID uint64) *Module {
	cfg := DefaultConfig()
	cfg.SubscriptionID = subscriptionID
	return &Module{config: cfg}
}

// GetName returns the network name
func (m *Module) GetName() string { return m.config.Name }

// GetChainID returns the chain identifier
func (m *Module) GetChainID() int64 { return m.config.ChainID }

// IsDevelopment is false; requests go to the remote coordinator
func (m *Module) IsDevelopment() bool { return false }

// GetBlockConfirmations returns confirmations to wait for
func (m *Module) GetBlockConfirmations() uint16 { return m.config.BlockConfirmations }

// GetCoordinatorAddress returns the VRF coordinator address
func (m *Module) GetCoordinatorAddress() string { return m.config.CoordinatorAddress }

// GetEntranceFee returns the default entrance fee
func (m *Module) GetEntranceFee() decimal.Decimal { return m.config.EntranceFee }

// GetGasLane returns the default key hash
func (m *Module) GetGasLane() string { return m.config.GasLane }

// GetSubscriptionID returns the configured subscription
func (m *Module) GetSubscriptionID() uint64 { return m.config.SubscriptionID }

// GetCallbackGasLimit returns the default fulfillment gas limit
func (m *Module) GetCallbackGasLimit() uint32 { return m.config.CallbackGasLimit }

// GetInterval returns the default raffle interval
func (m *Module) GetInterval() time.Duration { return m.config.Interval }

// GetKeeperPollInterval returns how often the keeper checks upkeep
func (m *Module) GetKeeperPollInterval() time.Duration { return m.config.KeeperPollInterval }

// ValidateParticipant uses the same EVM address rules as the local chain
func (m *Module) ValidateParticipant(participant string) error {
	return hardhat.ValidateParticipant(participant)
}
