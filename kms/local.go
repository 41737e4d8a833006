package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ruteri/tee-secret-management-backend/cryptoutils"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// MinMasterKeyLength is the minimal accepted master key length in bytes.
const MinMasterKeyLength = 32

var localKeySalt = []byte("tee-secret-management/secrets-at-rest")

// LocalGateway encrypts secrets in-process with a key derived from a master key.
type LocalGateway struct {
	key []byte
}

// NewLocalGateway creates a gateway from the provided master key.
// The master key must be at least 32 bytes long.
func NewLocalGateway(masterKey []byte) (*LocalGateway, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, errors.New("master key must be at least 32 bytes")
	}
	return &LocalGateway{key: cryptoutils.DeriveKey(masterKey, localKeySalt)}, nil
}

func (g *LocalGateway) Name() string { return "local" }

// Encrypt seals the plaintext and returns it base64 encoded.
func (g *LocalGateway) Encrypt(_ context.Context, plaintext string) (string, error) {
	sealed, err := cryptoutils.Seal(g.key, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("failed to seal secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or tampered ciphertext yields
// interfaces.ErrDecryptionFailed.
func (g *LocalGateway) Decrypt(_ context.Context, ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding: %v", interfaces.ErrDecryptionFailed, err)
	}
	plaintext, err := cryptoutils.Open(g.key, sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}
