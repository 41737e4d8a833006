package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind identifies why a session could not be built.
type ErrorKind string

const (
	KindNoSessionRequest  ErrorKind = "NO_SESSION_REQUEST"
	KindNoTaskDescription ErrorKind = "NO_TASK_DESCRIPTION"

	KindPreComputeDatasetSecretMissing ErrorKind = "PRE_COMPUTE_GET_DATASET_SECRET_FAILED"

	KindAppComputeNoEnclaveConfig      ErrorKind = "APP_COMPUTE_NO_ENCLAVE_CONFIG"
	KindAppComputeInvalidEnclaveConfig ErrorKind = "APP_COMPUTE_INVALID_ENCLAVE_CONFIG"

	KindPostComputeEncryptionKeyMissing ErrorKind = "POST_COMPUTE_GET_ENCRYPTION_TOKENS_FAILED_EMPTY_BENEFICIARY_KEY"
	KindPostComputeStorageTokenMissing  ErrorKind = "POST_COMPUTE_GET_STORAGE_TOKENS_FAILED"

	KindPreComputeEmptyWorkerAddress     ErrorKind = "PRE_COMPUTE_GET_SIGNATURE_TOKENS_FAILED_EMPTY_WORKER_ADDRESS"
	KindPreComputeEmptyEnclaveChallenge  ErrorKind = "PRE_COMPUTE_GET_SIGNATURE_TOKENS_FAILED_EMPTY_PUBLIC_ENCLAVE_CHALLENGE"
	KindPreComputeEmptyTeeChallenge      ErrorKind = "PRE_COMPUTE_GET_SIGNATURE_TOKENS_FAILED_EMPTY_TEE_CHALLENGE"
	KindPreComputeEmptyTeeCredentials    ErrorKind = "PRE_COMPUTE_GET_SIGNATURE_TOKENS_FAILED_EMPTY_TEE_CREDENTIALS"
	KindPostComputeEmptyWorkerAddress    ErrorKind = "POST_COMPUTE_GET_SIGNATURE_TOKENS_FAILED_EMPTY_WORKER_ADDRESS"
	KindPostComputeEmptyEnclaveChallenge ErrorKind = "POST_COMPUTE_GET_SIGNATURE_TOKENS_FAILED_EMPTY_PUBLIC_ENCLAVE_CHALLENGE"
	KindPostComputeEmptyTeeChallenge     ErrorKind = "POST_COMPUTE_GET_SIGNATURE_TOKENS_FAILED_EMPTY_TEE_CHALLENGE"
	KindPostComputeEmptyTeeCredentials   ErrorKind = "POST_COMPUTE_GET_SIGNATURE_TOKENS_FAILED_EMPTY_TEE_CREDENTIALS"

	// KindSecureSessionGenerationFailed is terminal: the request was fine but
	// the service could not serve it, typically because a store failed.
	KindSecureSessionGenerationFailed ErrorKind = "SECURE_SESSION_GENERATION_FAILED"
)

// Error is the single error type returned by Builder.Build.
type Error struct {
	Kind   ErrorKind
	Detail string
	// Messages holds validator findings for KindAppComputeInvalidEnclaveConfig.
	Messages []string
	// Err is the underlying fault, if any.
	Err error
}

// Sentinels to compare against with errors.Is. Matching is by kind only.
var (
	ErrNoSessionRequest                = &Error{Kind: KindNoSessionRequest}
	ErrNoTaskDescription               = &Error{Kind: KindNoTaskDescription}
	ErrPreComputeDatasetSecretMissing  = &Error{Kind: KindPreComputeDatasetSecretMissing}
	ErrAppComputeNoEnclaveConfig       = &Error{Kind: KindAppComputeNoEnclaveConfig}
	ErrAppComputeInvalidEnclaveConfig  = &Error{Kind: KindAppComputeInvalidEnclaveConfig}
	ErrPostComputeEncryptionKeyMissing = &Error{Kind: KindPostComputeEncryptionKeyMissing}
	ErrPostComputeStorageTokenMissing  = &Error{Kind: KindPostComputeStorageTokenMissing}
	ErrSecureSessionGenerationFailed   = &Error{Kind: KindSecureSessionGenerationFailed}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Messages) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Messages, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Terminal reports whether the error is a service fault rather than a
// problem with the request or the task.
func (e *Error) Terminal() bool {
	return e.Kind == KindSecureSessionGenerationFailed
}

// KindOf returns the kind of a session error. Any other non-nil error is
// reported as KindSecureSessionGenerationFailed, and nil as "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var sessionErr *Error
	if errors.As(err, &sessionErr) {
		return sessionErr.Kind
	}
	return KindSecureSessionGenerationFailed
}

// signKinds holds the stage-specific kinds of signing failures.
type signKinds struct {
	emptyWorkerAddress    ErrorKind
	emptyEnclaveChallenge ErrorKind
	emptyTeeChallenge     ErrorKind
	emptyTeeCredentials   ErrorKind
}

var (
	preComputeSignKinds = signKinds{
		emptyWorkerAddress:    KindPreComputeEmptyWorkerAddress,
		emptyEnclaveChallenge: KindPreComputeEmptyEnclaveChallenge,
		emptyTeeChallenge:     KindPreComputeEmptyTeeChallenge,
		emptyTeeCredentials:   KindPreComputeEmptyTeeCredentials,
	}
	postComputeSignKinds = signKinds{
		emptyWorkerAddress:    KindPostComputeEmptyWorkerAddress,
		emptyEnclaveChallenge: KindPostComputeEmptyEnclaveChallenge,
		emptyTeeChallenge:     KindPostComputeEmptyTeeChallenge,
		emptyTeeCredentials:   KindPostComputeEmptyTeeCredentials,
	}
)
