package hardhat

import (
	"time"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/shopspring/decimal"
)

// Module implements the NetworkProfile interface for the local development chain
type Module struct {
	config *Config
}

var _ contracts.NetworkProfile = (*Module)(nil)

// NewModule creates a new hardhat network module
func NewModule() *Module {
	return &Module{
		config: DefaultConfig(),
	}
}

// GetName returns the network name
func (m *Module) GetName() string {
	return m.config.Name
}

// GetChainID returns the chain identifier
func (m *Module) GetChainID() int64 {
	return m.config.ChainID
}

// IsDevelopment is always true; raffles use the in-process coordinator
func (m *Module) IsDevelopment() bool {
	return true
}

// GetBlockConfirmations returns confirmations to wait for
func (m *Module) GetBlockConfirmations() uint16 {
	return m.config.BlockConfirmations
}

// GetCoordinatorAddress is empty; the mock runs in process
func (m *Module) GetCoordinatorAddress() string {
	return ""
}

// GetEntranceFee returns the default entrance fee
func (m *Module) GetEntranceFee() decimal.Decimal {
	return m.config.Raffle.EntranceFee
}

// GetGasLane returns the default key hash
func (m *Module) GetGasLane() string {
	return m.config.Raffle.GasLane
}

// GetSubscriptionID is 0; the subscription is created at startup
func (m *Module) GetSubscriptionID() uint64 {
	return 0
}

// GetCallbackGasLimit returns the default fulfillment gas limit
func (m *Module) GetCallbackGasLimit() uint32 {
	return m.config.Raffle.CallbackGasLimit
}

// GetInterval returns the default raffle interval
func (m *Module) GetInterval() time.Duration {
	return m.config.Raffle.Interval
}

// GetKeeperPollInterval returns how often the keeper checks upkeep
func (m *Module) GetKeeperPollInterval() time.Duration {
	return m.config.KeeperPollInterval
}

// GetMockConfig returns the in-process coordinator settings
func (m *Module) GetMockConfig() MockConfig {
	return m.config.Mock
}

// ValidateParticipant requires a 0x-prefixed 20-byte hex address
func (m *Module) ValidateParticipant(participant string) error {
	return ValidateParticipant(participant)
}
