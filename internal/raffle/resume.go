package raffle

import (
	"context"
	"fmt"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
)

// ResumeRound returns the highest next round reported by sources, or 1 with none
// Pass the result to WithStartRound so a restarted engine never reuses a settled round number
func ResumeRound(ctx context.Context, raffle string, sources ...contracts.RoundSource) (uint64, error) {
	next := uint64(1)
	for _, src := range sources {
		if src == nil {
			continue
		}
		n, err := src.NextRound(ctx, raffle)
		if err != nil {
			return 0, fmt.Errorf("resume raffle %s: %w", raffle, err)
		}
		if n > next {
			next = n
		}
	}
	return next, nil
}
