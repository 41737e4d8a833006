// Package interfaces defines the core types and collaborator contracts of the
// secret management backend, separating them from their implementations.
//
// # Secret addressing
//
// ComputeSecretHeader: composite key of application developer and requester
// secrets. Validated at construction; at most one secret exists per header.
//
// OwnerSecretKey: simpler {owner, name} key used by the dataset and owner
// secret stores (dataset decryption keys, result storage tokens, result
// encryption keys).
//
// TaskCredentialKey: key of the per-task ephemeral signing credential.
//
// # Collaborators
//
//   - SecretRepository: persistence with a uniqueness constraint on the key
//   - EncryptionGateway: symmetric encryption of secrets at rest
//   - TaskDescriptionProvider: resolves a task id into deal facts
//   - OwnerResolver: resolves the owner wallet of an on-chain object
//
// # Error Types
//
//   - ErrSecretNotFound: no secret stored under the key
//   - ErrSecretExists: the key is already taken (write-once violation)
//   - ErrInvalidSecretHeader: header or key failed validation
//   - ErrBackendUnavailable: the repository could not be reached
//   - ErrDecryptionFailed: ciphertext could not be decrypted
//
// Components should depend on these interfaces rather than concrete
// implementations:
//
//	func NewStore[K interfaces.SecretKey](
//	    namespace string,
//	    repo interfaces.SecretRepository,
//	    gateway interfaces.EncryptionGateway,
//	    log *slog.Logger,
//	) *Store[K]
package interfaces
