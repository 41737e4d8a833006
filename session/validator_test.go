package session

import (
	"strings"
	"testing"

	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/stretchr/testify/assert"
)

func TestEnclaveConfigValidator(t *testing.T) {
	valid := func() *interfaces.EnclaveConfig {
		return &interfaces.EnclaveConfig{
			Framework:   "SCONE",
			Entrypoint:  "/app/run",
			HeapSize:    1 << 30,
			Fingerprint: strings.Repeat("aB", 32),
		}
	}

	tests := []struct {
		name     string
		mutate   func(*interfaces.EnclaveConfig)
		max      int64
		messages int
	}{
		{name: "valid", mutate: func(*interfaces.EnclaveConfig) {}},
		{name: "short fingerprint", mutate: func(c *interfaces.EnclaveConfig) { c.Fingerprint = "abcd" }, messages: 1},
		{name: "non hex fingerprint", mutate: func(c *interfaces.EnclaveConfig) { c.Fingerprint = strings.Repeat("zz", 32) }, messages: 1},
		{name: "no entrypoint", mutate: func(c *interfaces.EnclaveConfig) { c.Entrypoint = "" }, messages: 1},
		{name: "no framework", mutate: func(c *interfaces.EnclaveConfig) { c.Framework = "" }, messages: 1},
		{name: "zero heap", mutate: func(c *interfaces.EnclaveConfig) { c.HeapSize = 0 }, messages: 1},
		{name: "heap over default max", mutate: func(c *interfaces.EnclaveConfig) { c.HeapSize = DefaultMaxHeapSize + 1 }, messages: 1},
		{name: "heap at custom max", mutate: func(c *interfaces.EnclaveConfig) { c.HeapSize = 1 << 20 }, max: 1 << 20},
		{name: "heap over custom max", mutate: func(c *interfaces.EnclaveConfig) {}, max: 1 << 20, messages: 1},
		{
			name: "everything wrong",
			mutate: func(c *interfaces.EnclaveConfig) {
				*c = interfaces.EnclaveConfig{}
			},
			messages: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			messages := EnclaveConfigValidator{MaxHeapSize: tt.max}.Validate(cfg)
			assert.Len(t, messages, tt.messages, "%v", messages)
		})
	}

	assert.Len(t, EnclaveConfigValidator{}.Validate(nil), 1)
}
