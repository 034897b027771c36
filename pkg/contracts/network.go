package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetworkProfile defines the deployment presets for a target network
// This lets Tyche run against a local development chain or a public testnet
type NetworkProfile interface {
	// GetName returns the network name (e.g., "hardhat")
	GetName() string

	// GetChainID returns the chain identifier
	GetChainID() int64

	// IsDevelopment reports whether the network uses the in-process mock coordinator
	IsDevelopment() bool

	// GetBlockConfirmations returns confirmations to wait for before trusting a request
	GetBlockConfirmations() uint16

	// GetCoordinatorAddress returns the VRF coordinator address (empty on development networks)
	GetCoordinatorAddress() string

	// GetEntranceFee returns the default entrance fee
	GetEntranceFee() decimal.Decimal

	// GetGasLane returns the default VRF key hash
	GetGasLane() string

	// GetSubscriptionID returns the default VRF subscription id (0 on development networks)
	GetSubscriptionID() uint64

	// GetCallbackGasLimit returns the default fulfillment gas limit
	GetCallbackGasLimit() uint32

	// GetInterval returns the default raffle interval
	GetInterval() time.Duration

	// GetKeeperPollInterval returns how often the keeper checks upkeep
	GetKeeperPollInterval() time.Duration

	// ValidateParticipant checks that a participant identifier is well formed
	ValidateParticipant(participant string) error
}
