package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// VaultTransitGateway encrypts secrets with a named key of a Vault transit
// secrets engine.
type VaultTransitGateway struct {
	client    *api.Client
	mountPath string
	keyName   string
	log       *slog.Logger
}

// NewVaultTransitGateway creates a gateway talking to the Vault server at
// address, authenticated with token.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token allowed to use the transit key
//   - mountPath: transit engine mount path (e.g. "transit")
//   - keyName: name of the transit key
//   - log: Structured logger for operational insights
func NewVaultTransitGateway(address, token, mountPath, keyName string, log *slog.Logger) (*VaultTransitGateway, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	keyName = strings.Trim(keyName, "/")
	if mountPath == "" || keyName == "" {
		return nil, fmt.Errorf("%w: vault transit mount path and key name are required", interfaces.ErrInvalidLocationURI)
	}

	return &VaultTransitGateway{
		client:    client,
		mountPath: mountPath,
		keyName:   keyName,
		log:       log,
	}, nil
}

func (g *VaultTransitGateway) Name() string {
	return fmt.Sprintf("vault-transit:%s/%s", g.mountPath, g.keyName)
}

// Encrypt sends the plaintext to Vault and returns the "vault:vN:..." ciphertext.
func (g *VaultTransitGateway) Encrypt(ctx context.Context, plaintext string) (string, error) {
	path := fmt.Sprintf("%s/encrypt/%s", g.mountPath, g.keyName)
	secret, err := g.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString([]byte(plaintext)),
	})
	if err != nil {
		g.log.Error("Failed to encrypt with Vault", slog.String("path", path), "err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	ciphertext, err := stringField(secret, "ciphertext")
	if err != nil {
		return "", err
	}
	return ciphertext, nil
}

// Decrypt sends the ciphertext to Vault. Vault rejecting the ciphertext is
// reported as interfaces.ErrDecryptionFailed, anything else as
// interfaces.ErrBackendUnavailable.
func (g *VaultTransitGateway) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	path := fmt.Sprintf("%s/decrypt/%s", g.mountPath, g.keyName)
	secret, err := g.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": ciphertext,
	})
	if err != nil {
		var respErr *api.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusBadRequest {
			return "", fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailed, err)
		}
		g.log.Error("Failed to decrypt with Vault", slog.String("path", path), "err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	encoded, err := stringField(secret, "plaintext")
	if err != nil {
		return "", err
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid plaintext encoding in Vault response: %v", interfaces.ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

func stringField(secret *api.Secret, field string) (string, error) {
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: empty Vault response", interfaces.ErrBackendUnavailable)
	}
	value, ok := secret.Data[field].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s missing from Vault response", interfaces.ErrBackendUnavailable, field)
	}
	return value, nil
}
