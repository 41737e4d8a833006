package kms

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// GatewayConfig holds what NewGateway needs besides the URI. Credentials are
// kept out of the URI so that it can be logged.
type GatewayConfig struct {
	// URI selects and locates the gateway.
	URI string
	// MasterKey is used by local:// gateways.
	MasterKey []byte
	// VaultToken authenticates against vault:// gateways.
	VaultToken string
	// AWSAccessKey and AWSSecretKey authenticate awskms:// gateways. When
	// empty the default AWS credential chain applies.
	AWSAccessKey string
	AWSSecretKey string
}

// NewGateway creates an encryption gateway from its URI.
//
// Supported schemes:
//   - local:// - AES-GCM with a key derived from cfg.MasterKey
//   - vault://host[:port]/mount/key[?tls=false] - Vault transit engine
//   - awskms://region/key-id[?endpoint=url] - AWS KMS
func NewGateway(cfg GatewayConfig, log *slog.Logger) (interfaces.EncryptionGateway, error) {
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "local":
		return NewLocalGateway(cfg.MasterKey)
	case "vault":
		return createVaultGateway(u, cfg, log)
	case "awskms":
		return createAWSGateway(u, cfg, log)
	default:
		return nil, fmt.Errorf("%w: unsupported gateway scheme: %s", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// createVaultGateway creates a Vault transit gateway.
// URI format: vault://vault.example.com:8200/transit/sms-key?tls=false
// The last path segment is the key name, everything before it the mount path.
func createVaultGateway(u *url.URL, cfg GatewayConfig, log *slog.Logger) (interfaces.EncryptionGateway, error) {
	log.Debug("Creating Vault transit gateway", slog.String("uri", u.String()))

	path := strings.Trim(u.Path, "/")
	idx := strings.LastIndex(path, "/")
	if u.Host == "" || idx <= 0 {
		return nil, fmt.Errorf("%w: expected vault://host/mount/key", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if u.Query().Get("tls") == "false" {
		scheme = "http"
	}

	return NewVaultTransitGateway(scheme+"://"+u.Host, cfg.VaultToken, path[:idx], path[idx+1:], log)
}

// createAWSGateway creates an AWS KMS gateway.
// URI format: awskms://us-east-1/alias/my-key?endpoint=http://localhost:4566
func createAWSGateway(u *url.URL, cfg GatewayConfig, log *slog.Logger) (interfaces.EncryptionGateway, error) {
	log.Debug("Creating AWS KMS gateway", slog.String("uri", u.String()))

	region := u.Host
	keyID := strings.TrimPrefix(u.Path, "/")
	if region == "" || keyID == "" {
		return nil, fmt.Errorf("%w: expected awskms://region/key-id", interfaces.ErrInvalidLocationURI)
	}

	return NewAWSGateway(region, u.Query().Get("endpoint"), keyID, cfg.AWSAccessKey, cfg.AWSSecretKey, log)
}
