package cryptoutils

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateTaskKeypair creates a fresh secp256k1 keypair and returns its
// checksummed address and 0x-prefixed private key.
func GenerateTaskKeypair() (address string, privateKey string, err error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate keypair: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), PrivateKeyHex(key), nil
}

// PrivateKeyHex encodes a private key as 0x-prefixed hex.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.FromECDSA(key))
}

// AddressOfPrivateKey returns the checksummed address of a 0x-prefixed hex
// private key.
func AddressOfPrivateKey(privateKey string) (string, error) {
	raw, err := hexutil.Decode(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid private key hex: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
