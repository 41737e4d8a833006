package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/ruteri/tee-secret-management-backend/session"
)

// MaxSecretSize is the largest secret value accepted, in bytes.
const MaxSecretSize = 4096

// maxSessionBodySize bounds the body of session requests.
const maxSessionBodySize = 64 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

func requestErrorf(status int, format string, args ...any) *RequestError {
	return &RequestError{StatusCode: status, Err: fmt.Errorf(format, args...)}
}

// SecretStore is the part of a secrets.Store the handler writes through.
type SecretStore[K interfaces.SecretKey] interface {
	Exists(ctx context.Context, key K) (bool, error)
	PutIfAbsent(ctx context.Context, key K, plaintext string) (bool, error)
}

// SessionBuilder assembles session descriptors.
type SessionBuilder interface {
	Build(ctx context.Context, req *interfaces.SessionRequest) (*session.SessionDescriptor, error)
}

// Stores groups the secret stores the handler serves.
type Stores struct {
	Compute  SecretStore[interfaces.ComputeSecretHeader]
	Datasets SecretStore[interfaces.OwnerSecretKey]
	Owners   SecretStore[interfaces.OwnerSecretKey]
}

// Handler processes HTTP requests for the secret management service.
type Handler struct {
	stores  Stores
	builder SessionBuilder
	tasks   interfaces.TaskDescriptionProvider
	owners  interfaces.OwnerResolver
	log     *slog.Logger
}

// NewHandler creates a handler. owners resolves the owners of applications
// and datasets, tasks resolves the task descriptions of session requests.
func NewHandler(stores Stores, builder SessionBuilder, tasks interfaces.TaskDescriptionProvider, owners interfaces.OwnerResolver, log *slog.Logger) *Handler {
	return &Handler{
		stores:  stores,
		builder: builder,
		tasks:   tasks,
		owners:  owners,
		log:     log,
	}
}

// RegisterRoutes configures the router with the secret and session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/apps/{appAddress}/secrets/"+interfaces.ApplicationDeveloperSecretKey, h.HandlePostAppSecret)
	r.Head("/apps/{appAddress}/secrets/"+interfaces.ApplicationDeveloperSecretKey, h.HandleHeadAppSecret)

	r.Post("/requesters/{requester}/secrets/{key}", h.HandlePostRequesterSecret)
	r.Head("/requesters/{requester}/secrets/{key}", h.HandleHeadRequesterSecret)

	r.Post("/datasets/{dataset}/secret", h.HandlePostDatasetSecret)
	r.Head("/datasets/{dataset}/secret", h.HandleHeadDatasetSecret)

	r.Post("/owners/{owner}/secrets/{name}", h.HandlePostOwnerSecret)
	r.Head("/owners/{owner}/secrets/{name}", h.HandleHeadOwnerSecret)

	r.Post("/tee/sessions", h.HandleCreateSession)
}

// HandlePostAppSecret stores the developer secret of an application. The
// signer must own the application.
func (h *Handler) HandlePostAppSecret(w http.ResponseWriter, r *http.Request) {
	app, rerr := pathAddress(r, "appAddress")
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	header, err := interfaces.NewApplicationDeveloperSecretHeader(app)
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	putSecret(h, w, r, h.stores.Compute, header, h.ownerOf(app))
}

// HandleHeadAppSecret reports whether an application has a developer secret.
func (h *Handler) HandleHeadAppSecret(w http.ResponseWriter, r *http.Request) {
	app, rerr := pathAddress(r, "appAddress")
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	header, err := interfaces.NewApplicationDeveloperSecretHeader(app)
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	secretExists(h, w, r, h.stores.Compute, header)
}

// HandlePostRequesterSecret stores a requester secret. The signer must be
// the requester.
func (h *Handler) HandlePostRequesterSecret(w http.ResponseWriter, r *http.Request) {
	requester, rerr := pathAddress(r, "requester")
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	header, err := interfaces.NewRequesterSecretHeader(requester, chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	putSecret(h, w, r, h.stores.Compute, header, self(requester))
}

// HandleHeadRequesterSecret reports whether a requester secret exists.
func (h *Handler) HandleHeadRequesterSecret(w http.ResponseWriter, r *http.Request) {
	requester, rerr := pathAddress(r, "requester")
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	header, err := interfaces.NewRequesterSecretHeader(requester, chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	secretExists(h, w, r, h.stores.Compute, header)
}

// HandlePostDatasetSecret stores the decryption key of a dataset. The signer
// must own the dataset.
func (h *Handler) HandlePostDatasetSecret(w http.ResponseWriter, r *http.Request) {
	dataset, rerr := pathAddress(r, "dataset")
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	key, err := interfaces.NewDatasetSecretKey(dataset)
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	putSecret(h, w, r, h.stores.Datasets, key, h.ownerOf(dataset))
}

// HandleHeadDatasetSecret reports whether a dataset key exists.
func (h *Handler) HandleHeadDatasetSecret(w http.ResponseWriter, r *http.Request) {
	dataset, rerr := pathAddress(r, "dataset")
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	key, err := interfaces.NewDatasetSecretKey(dataset)
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	secretExists(h, w, r, h.stores.Datasets, key)
}

// HandlePostOwnerSecret stores a named secret of a wallet. The signer must
// be the wallet.
func (h *Handler) HandlePostOwnerSecret(w http.ResponseWriter, r *http.Request) {
	owner, rerr := pathAddress(r, "owner")
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	key, err := interfaces.NewOwnerSecretKey(owner, chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	putSecret(h, w, r, h.stores.Owners, key, self(owner))
}

// HandleHeadOwnerSecret reports whether an owner secret exists.
func (h *Handler) HandleHeadOwnerSecret(w http.ResponseWriter, r *http.Request) {
	owner, rerr := pathAddress(r, "owner")
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	key, err := interfaces.NewOwnerSecretKey(owner, chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	secretExists(h, w, r, h.stores.Owners, key)
}

// putSecret reads the secret value, authorizes the signer and stores the
// secret if absent.
func putSecret[K interfaces.SecretKey](h *Handler, w http.ResponseWriter, r *http.Request, store SecretStore[K], key K, expectedSigner signerFunc) {
	value, rerr := readBody(r, MaxSecretSize)
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}
	if len(value) == 0 {
		h.writeError(w, r, requestErrorf(http.StatusBadRequest, "empty secret value"))
		return
	}

	if rerr := h.authorize(r, value, expectedSigner); rerr != nil {
		h.writeError(w, r, rerr)
		return
	}

	added, err := store.PutIfAbsent(r.Context(), key, string(value))
	if err != nil {
		h.writeError(w, r, storeError(err))
		return
	}
	if !added {
		h.writeError(w, r, requestErrorf(http.StatusConflict, "secret %s already exists", key.StorageKey()))
		return
	}

	h.log.Info("Secret stored", slog.String("key", key.StorageKey()))
	w.WriteHeader(http.StatusNoContent)
}

func secretExists[K interfaces.SecretKey](h *Handler, w http.ResponseWriter, r *http.Request, store SecretStore[K], key K) {
	exists, err := store.Exists(r.Context(), key)
	if err != nil {
		h.writeError(w, r, storeError(err))
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readBody(r *http.Request, limit int64) ([]byte, *RequestError) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, requestErrorf(http.StatusBadRequest, "failed to read request body: %v", err)
	}
	if int64(len(body)) > limit {
		return nil, requestErrorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", limit)
	}
	return body, nil
}

func pathAddress(r *http.Request, param string) (string, *RequestError) {
	address := chi.URLParam(r, param)
	if !common.IsHexAddress(address) {
		return "", requestErrorf(http.StatusBadRequest, "invalid %s %q", param, address)
	}
	return address, nil
}

func storeError(err error) *RequestError {
	switch {
	case errors.Is(err, interfaces.ErrInvalidSecretHeader):
		return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return &RequestError{StatusCode: http.StatusServiceUnavailable, Err: err}
	default:
		return &RequestError{StatusCode: http.StatusInternalServerError, Err: err}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, rerr *RequestError) {
	if rerr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", rerr.Err, slog.String("path", r.URL.Path))
	} else {
		h.log.Debug("Request rejected", "err", rerr.Err, slog.Int("status", rerr.StatusCode), slog.String("path", r.URL.Path))
	}
	http.Error(w, rerr.Error(), rerr.StatusCode)
}
