package kms

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransit mimics the encrypt and decrypt endpoints of a transit engine
// mounted at "transit" with a key named "sms".
func fakeTransit(t *testing.T, token string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != token {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/transit/encrypt/sms":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"ciphertext": "vault:v1:" + body["plaintext"]},
			})
		case "/v1/transit/decrypt/sms":
			if !strings.HasPrefix(body["ciphertext"], "vault:v1:") {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"errors":["invalid ciphertext: no prefix"]}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"plaintext": strings.TrimPrefix(body["ciphertext"], "vault:v1:")},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestVaultTransitGateway(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := fakeTransit(t, "test-token")
	defer srv.Close()

	gateway, err := NewVaultTransitGateway(srv.URL, "test-token", "/transit/", "sms", log)
	require.NoError(t, err)
	assert.Equal(t, "vault-transit:transit/sms", gateway.Name())

	ciphertext, err := gateway.Encrypt(ctx, "my secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ciphertext, "vault:v1:"))

	plaintext, err := gateway.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "my secret", plaintext)

	_, err = gateway.Decrypt(ctx, "garbage")
	require.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
}

func TestVaultTransitGateway_Unauthorized(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := fakeTransit(t, "test-token")
	defer srv.Close()

	gateway, err := NewVaultTransitGateway(srv.URL, "wrong-token", "transit", "sms", log)
	require.NoError(t, err)

	_, err = gateway.Encrypt(context.Background(), "my secret")
	require.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

func TestNewVaultTransitGateway_InvalidPaths(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewVaultTransitGateway("http://127.0.0.1:8200", "t", "", "sms", log)
	require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
	_, err = NewVaultTransitGateway("http://127.0.0.1:8200", "t", "transit", "", log)
	require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}
