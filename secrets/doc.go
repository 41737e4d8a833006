// Package secrets implements the encrypted secret store shared by every kind
// of secret the service keeps.
//
// A Store is parameterized by the shape of its key. The same logic serves
// compute secrets addressed by interfaces.ComputeSecretHeader, dataset and
// owner secrets addressed by interfaces.OwnerSecretKey and task credentials
// addressed by interfaces.TaskCredentialKey, each in its own repository
// namespace:
//
//	compute := secrets.NewStore[interfaces.ComputeSecretHeader](secrets.NamespaceCompute, repo, gateway, nil, log)
//	ok, err := compute.PutIfAbsent(ctx, header, plaintext)
//
// Secrets are write-once. PutIfAbsent never overwrites, and the decision is
// taken by the repository uniqueness constraint, not by the in-process
// existence cache, so several service instances may share a repository.
package secrets
