package hardhat

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ValidateParticipant checks that participant is a usable EVM account address
func ValidateParticipant(participant string) error {
	if !strings.HasPrefix(participant, "0x") && !strings.HasPrefix(participant, "0X") {
		return fmt.Errorf("participant %q must be 0x-prefixed", participant)
	}

	body := participant[2:]
	if len(body) != 40 {
		return fmt.Errorf("participant %q must be 20 bytes, got %d hex digits", participant, len(body))
	}

	if _, err := hex.DecodeString(body); err != nil {
		return fmt.Errorf("participant %q is not hex: %w", participant, err)
	}

	if strings.EqualFold(participant, zeroAddress) {
		return fmt.Errorf("participant cannot be the zero address")
	}

	return nil
}
