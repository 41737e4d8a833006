package session

import (
	"fmt"
	"regexp"

	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// DefaultMaxHeapSize bounds the heap an application enclave may request.
const DefaultMaxHeapSize int64 = 8 << 30 // 8 GiB

var fingerprintRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// EnclaveConfigValidator checks application enclave configurations.
type EnclaveConfigValidator struct {
	MaxHeapSize int64
}

// Validate returns every violation found, or nil when cfg is valid.
func (v EnclaveConfigValidator) Validate(cfg *interfaces.EnclaveConfig) []string {
	if cfg == nil {
		return []string{"enclave configuration is missing"}
	}

	maxHeap := v.MaxHeapSize
	if maxHeap <= 0 {
		maxHeap = DefaultMaxHeapSize
	}

	var messages []string
	if !fingerprintRegex.MatchString(cfg.Fingerprint) {
		messages = append(messages, "fingerprint must be 64 hexadecimal characters")
	}
	if cfg.Entrypoint == "" {
		messages = append(messages, "entrypoint must not be empty")
	}
	if cfg.Framework == "" {
		messages = append(messages, "framework must not be empty")
	}
	if cfg.HeapSize <= 0 {
		messages = append(messages, "heap size must be positive")
	} else if cfg.HeapSize > maxHeap {
		messages = append(messages, fmt.Sprintf("heap size %d exceeds maximum %d", cfg.HeapSize, maxHeap))
	}
	return messages
}
