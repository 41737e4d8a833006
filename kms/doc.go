// Package kms provides the encryption gateways secrets are sealed with before
// they reach a repository.
//
// Every gateway implements interfaces.EncryptionGateway:
//
//	type EncryptionGateway interface {
//	    Encrypt(ctx context.Context, plaintext string) (string, error)
//	    Decrypt(ctx context.Context, ciphertext string) (string, error)
//	    Name() string
//	}
//
// Ciphertexts are opaque strings. A gateway only needs to decrypt what it
// encrypted itself.
//
// # LocalGateway
//
// Seals secrets with AES-256-GCM under a key derived from a master key with
// Argon2id. The master key is either passed in directly or reconstructed from
// Shamir shares with CombineMasterKey, so that no single administrator holds
// it.
//
// # VaultTransitGateway
//
// Delegates encryption to the transit secrets engine of HashiCorp Vault. The
// key never leaves Vault.
//
// # AWSGateway
//
// Delegates encryption to AWS KMS with a symmetric customer managed key.
//
// Gateways are usually built from a URI with NewGateway:
//
//	local://
//	vault://vault.internal:8200/transit/sms?tls=false
//	awskms://eu-west-1/alias/sms?endpoint=http://localhost:4566
package kms
