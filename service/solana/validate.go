package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ValidateAddress reports whether s decodes to a 32-byte public key.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("address is required")
	}
	if _, err := solana.PublicKeyFromBase58(s); err != nil {
		return fmt.Errorf("invalid solana address %q: %w", s, err)
	}
	return nil
}
