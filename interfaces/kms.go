package interfaces

import "context"

// EncryptionGateway encrypts secrets before they reach a repository and
// decrypts them on the way out. Ciphertexts are opaque strings.
type EncryptionGateway interface {
	// Encrypt returns the ciphertext for plaintext.
	Encrypt(ctx context.Context, plaintext string) (string, error)

	// Decrypt returns the plaintext for ciphertext. Corrupted or foreign
	// ciphertexts yield an error wrapping ErrDecryptionFailed.
	Decrypt(ctx context.Context, ciphertext string) (string, error)

	// Name returns identifier for logging.
	Name() string
}
