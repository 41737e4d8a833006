/*
Package api holds the wire types shared by the secret management HTTP API and
its clients.

The API is organized into two subpackages:

1. handlers - Route handlers for secrets and sessions, plus a Go client
2. servers - HTTP server lifecycle, health endpoints and rate limiting

# Authorization

Every write carries an X-Signature header: the 65-byte hex EIP-191 signature
of keccak256(method || path || keccak256(body)). The recovered signer must be
the owner of the addressed object: the application owner for developer
secrets, the requester for requester secrets, the dataset owner for dataset
keys, the owner itself for owner secrets, and the worker for sessions.

Existence checks are unauthenticated HEAD requests that answer 204 or 404.
*/
package api
