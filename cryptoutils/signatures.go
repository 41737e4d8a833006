package cryptoutils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RequestHash computes keccak256(method || path || keccak256(body)).
func RequestHash(method, path string, body []byte) []byte {
	bodyHash := crypto.Keccak256(body)
	return crypto.Keccak256([]byte(method), []byte(path), bodyHash)
}

// SignRequestHash produces the 0x-prefixed EIP-191 signature of hash.
// Clients and tests use it; the server only recovers.
func SignRequestHash(key *ecdsa.PrivateKey, hash []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverSigner returns the address that produced signature over hash.
// The signature is 65 bytes of hex; both 0/1 and 27/28 recovery ids are
// accepted.
func RecoverSigner(hash []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.New("invalid signature length")
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubkey, err := crypto.SigToPub(accounts.TextHash(hash), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("could not recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}
