package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-secret-management-backend/api"
	"github.com/ruteri/tee-secret-management-backend/cryptoutils"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// signerFunc resolves the address a request must be signed by.
type signerFunc func(ctx context.Context) (string, *RequestError)

// self expects the signature of address itself.
func self(address string) signerFunc {
	return func(context.Context) (string, *RequestError) {
		return address, nil
	}
}

// ownerOf expects the signature of the on-chain owner of object.
func (h *Handler) ownerOf(object string) signerFunc {
	return func(ctx context.Context) (string, *RequestError) {
		owner, err := h.owners.OwnerOf(ctx, object)
		switch {
		case errors.Is(err, interfaces.ErrOwnerNotFound):
			return "", requestErrorf(http.StatusForbidden, "no known owner for %s", object)
		case err != nil:
			return "", &RequestError{StatusCode: http.StatusServiceUnavailable, Err: err}
		}
		return owner, nil
	}
}

// recoverSigner returns the wallet that produced the X-Signature header
// over the request.
func recoverSigner(r *http.Request, body []byte) (common.Address, *RequestError) {
	signature := r.Header.Get(api.SignatureHeader)
	if signature == "" {
		return common.Address{}, requestErrorf(http.StatusUnauthorized, "missing %s header", api.SignatureHeader)
	}

	signer, err := cryptoutils.RecoverSigner(cryptoutils.RequestHash(r.Method, r.URL.Path, body), signature)
	if err != nil {
		return common.Address{}, requestErrorf(http.StatusUnauthorized, "invalid signature: %v", err)
	}
	return signer, nil
}

// authorize checks that the X-Signature header over the request was
// produced by the expected signer.
func (h *Handler) authorize(r *http.Request, body []byte, expectedSigner signerFunc) *RequestError {
	signer, rerr := recoverSigner(r, body)
	if rerr != nil {
		return rerr
	}

	expected, rerr := expectedSigner(r.Context())
	if rerr != nil {
		return rerr
	}
	if !strings.EqualFold(signer.Hex(), expected) {
		return requestErrorf(http.StatusForbidden, "signer %s is not %s", signer.Hex(), expected)
	}
	return nil
}

// authorizeWorker checks that the task is assigned to the signer and that
// the request names that same worker. Tasks without a description are left
// to the session builder, which rejects them before reading any secret.
func authorizeWorker(signer common.Address, workerAddress string, td *interfaces.TaskDescription) *RequestError {
	if td == nil {
		return nil
	}
	if !common.IsHexAddress(td.Worker) {
		return requestErrorf(http.StatusForbidden, "task %s has no assigned worker", td.ChainTaskID)
	}
	if !strings.EqualFold(signer.Hex(), td.Worker) {
		return requestErrorf(http.StatusForbidden, "signer %s is not the worker of task %s", signer.Hex(), td.ChainTaskID)
	}
	if !strings.EqualFold(workerAddress, td.Worker) {
		return requestErrorf(http.StatusForbidden, "workerAddress %s is not the worker of task %s", workerAddress, td.ChainTaskID)
	}
	return nil
}
