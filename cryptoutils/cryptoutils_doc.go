// Package cryptoutils provides the cryptographic primitives of the secret
// management backend.
//
// # Task credentials
//
// GenerateTaskKeypair creates the secp256k1 keypair a TEE task uses to sign
// its results. Keys are exchanged as 0x-prefixed hex and addresses as
// checksummed Ethereum addresses.
//
// # Request signatures
//
// Write requests and session requests are authorized by an Ethereum wallet.
// RequestHash binds a signature to the method, path and body of a request,
// and RecoverSigner returns the wallet that produced an EIP-191 signature
// over it.
//
// # Symmetric encryption
//
// DeriveKey stretches a master key with Argon2id. Seal and Open wrap
// AES-256-GCM with a random 12-byte nonce prepended to the ciphertext.
package cryptoutils
