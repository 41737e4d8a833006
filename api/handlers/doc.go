/*
Package handlers implements the HTTP endpoints of the secret management
service and a Go client for them.

# Routes

	POST /apps/{appAddress}/secrets/1             application developer secret
	HEAD /apps/{appAddress}/secrets/1
	POST /requesters/{requester}/secrets/{key}    requester secret
	HEAD /requesters/{requester}/secrets/{key}
	POST /datasets/{dataset}/secret               dataset decryption key
	HEAD /datasets/{dataset}/secret
	POST /owners/{owner}/secrets/{name}           owner secret (storage tokens, proxy, encryption key)
	HEAD /owners/{owner}/secrets/{name}
	POST /tee/sessions                            session descriptor for a task

Secret values are the raw request body, at most MaxSecretSize bytes. Secrets
are write-once: a second POST to the same address answers 409 Conflict.

Session failures answer 400 with an api.ErrorResponse naming the error kind,
except service faults which answer 500.
*/
package handlers
