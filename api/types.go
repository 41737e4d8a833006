package api

// SignatureHeader carries the request signature.
const SignatureHeader = "X-Signature"

// SessionRequest is the body of POST /tee/sessions.
type SessionRequest struct {
	TaskID           string `json:"taskId"`
	WorkerAddress    string `json:"workerAddress"`
	EnclaveChallenge string `json:"enclaveChallenge"`

	// SessionID is optional; the server generates one when empty.
	SessionID string `json:"sessionId,omitempty"`
}

// ErrorResponse is returned with every session error.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Detail   string   `json:"detail,omitempty"`
	Messages []string `json:"messages,omitempty"`
}
