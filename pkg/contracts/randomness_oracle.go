package contracts

import (
	"context"
	"math/big"

	"github.com/XavierBriggs/Tyche/pkg/models"
)

// RandomnessOracle issues verifiable randomness requests
// Implementations must deliver the fulfillment asynchronously, never from inside RequestRandomWords
type RandomnessOracle interface {
	// RequestRandomWords registers a request and returns its correlation id
	RequestRandomWords(ctx context.Context, req models.RandomWordsRequest) (models.RequestID, error)
}

// RandomWordsConsumer receives fulfillments from a randomness oracle
type RandomWordsConsumer interface {
	// FulfillRandomWords delivers the random words for a previously issued request
	FulfillRandomWords(ctx context.Context, requestID models.RequestID, randomWords []*big.Int) error
}
