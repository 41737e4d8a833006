package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-secret-management-backend/api"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/ruteri/tee-secret-management-backend/session"
)

// HandleCreateSession builds the session descriptor of a task for the
// worker the task is assigned to. The request must be signed by that worker.
//
// URL format: POST /tee/sessions
//
// Request body: JSON-encoded api.SessionRequest
//
// Response: JSON-encoded session.RenderedSession
//
// Status codes:
//   - 200 OK: session built
//   - 400 Bad Request: malformed request, or the session cannot be built for this task
//   - 401 Unauthorized: missing or invalid signature
//   - 403 Forbidden: the signer or workerAddress is not the task's worker
//   - 500 Internal Server Error: the service failed to build the session
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	body, rerr := readBody(r, maxSessionBodySize)
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}

	var req api.SessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, r, requestErrorf(http.StatusBadRequest, "invalid session request: %v", err))
		return
	}
	if req.TaskID == "" {
		h.writeError(w, r, requestErrorf(http.StatusBadRequest, "missing taskId"))
		return
	}
	if !common.IsHexAddress(req.WorkerAddress) {
		h.writeError(w, r, requestErrorf(http.StatusBadRequest, "invalid workerAddress %q", req.WorkerAddress))
		return
	}

	signer, rerr := recoverSigner(r, body)
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}

	td, err := h.tasks.TaskDescription(r.Context(), req.TaskID)
	if err != nil {
		h.writeError(w, r, storeError(err))
		return
	}
	if rerr := authorizeWorker(signer, req.WorkerAddress, td); rerr != nil {
		h.writeError(w, r, rerr)
		return
	}

	descriptor, err := h.builder.Build(r.Context(), &interfaces.SessionRequest{
		SessionID:        req.SessionID,
		TaskID:           req.TaskID,
		WorkerAddress:    req.WorkerAddress,
		EnclaveChallenge: req.EnclaveChallenge,
		TaskDescription:  td,
	})
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.log.Info("Session issued",
		slog.String("taskID", req.TaskID),
		slog.String("sessionID", descriptor.ID),
		slog.String("worker", req.WorkerAddress))

	writeJSON(w, http.StatusOK, descriptor)
}

func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	response := api.ErrorResponse{Error: string(session.KindOf(err))}
	status := http.StatusBadRequest

	var sessionErr *session.Error
	if errors.As(err, &sessionErr) {
		response.Detail = sessionErr.Detail
		response.Messages = sessionErr.Messages
		if sessionErr.Terminal() {
			status = http.StatusInternalServerError
		}
	} else {
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Failed to build session", "err", err)
	}
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
