package kms

import (
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

// SplitMasterKey splits the master key into totalShares shares, any threshold
// of which reconstruct it.
//
// The shares must be distributed to administrators and the master key erased
// afterwards. The server only ever sees the key again once enough shares are
// combined at startup.
func SplitMasterKey(masterKey []byte, totalShares, threshold int) ([][]byte, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}

	if totalShares < threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	shares, err := shamir.Split(masterKey, totalShares, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split master key: %w", err)
	}
	return shares, nil
}

// CombineMasterKey reconstructs the master key from shares. Combining fewer
// shares than the split threshold silently yields a wrong key, which is caught
// the first time a stored secret fails to decrypt.
func CombineMasterKey(shares [][]byte) ([]byte, error) {
	if len(shares) < 2 {
		return nil, errors.New("at least two shares are required")
	}

	masterKey, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct master key: %w", err)
	}

	if len(masterKey) < MinMasterKeyLength {
		wipeBytes(masterKey)
		return nil, errors.New("reconstructed master key is shorter than 32 bytes")
	}

	return masterKey, nil
}

// Securely wipe data from memory
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
