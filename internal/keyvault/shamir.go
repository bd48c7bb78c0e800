package keyvault

import (
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

// The master key splits 2-of-2: one share lives in configuration, the
// other in a sidecar file next to the wallet store. Neither alone
// reveals the key.
const (
	shareThreshold = 2
	shareCount     = 2
)

// MasterKeyShares holds the two halves of a split master key.
type MasterKeyShares struct {
	ConfigShare  []byte
	SidecarShare []byte
}

// SplitMasterKey splits the master key into its two shares.
func SplitMasterKey(master []byte) (*MasterKeyShares, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("master key cannot be empty")
	}
	shares, err := shamir.Split(master, shareCount, shareThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split master key: %w", err)
	}
	return &MasterKeyShares{ConfigShare: shares[0], SidecarShare: shares[1]}, nil
}

// CombineMasterKey reconstructs the master key from both shares.
func CombineMasterKey(shares [][]byte) ([]byte, error) {
	if len(shares) != shareCount {
		return nil, fmt.Errorf("exactly %d shares are required, got %d", shareCount, len(shares))
	}
	for i, share := range shares {
		if len(share) == 0 {
			return nil, fmt.Errorf("share %d is empty", i)
		}
	}
	master, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	return master, nil
}
