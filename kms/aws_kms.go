package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// AWSGateway encrypts secrets with a symmetric AWS KMS key.
type AWSGateway struct {
	client kmsiface.KMSAPI
	keyID  string
	log    *slog.Logger
}

// NewAWSGateway creates an AWS KMS gateway.
// If accessKey and secretKey are empty the default credential chain is used.
// endpoint overrides the regional endpoint, for KMS compatible services.
func NewAWSGateway(region, endpoint, keyID, accessKey, secretKey string, log *slog.Logger) (*AWSGateway, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: AWS KMS key id is required", interfaces.ErrInvalidLocationURI)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewAWSGatewayWithClient(kms.New(sess), keyID, log), nil
}

// NewAWSGatewayWithClient wraps an existing KMS client.
func NewAWSGatewayWithClient(client kmsiface.KMSAPI, keyID string, log *slog.Logger) *AWSGateway {
	return &AWSGateway{client: client, keyID: keyID, log: log}
}

func (g *AWSGateway) Name() string { return "awskms:" + g.keyID }

// Encrypt returns the base64 encoded ciphertext blob.
func (g *AWSGateway) Encrypt(ctx context.Context, plaintext string) (string, error) {
	out, err := g.client.EncryptWithContext(ctx, &kms.EncryptInput{
		KeyId:     aws.String(g.keyID),
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		g.log.Error("Failed to encrypt with AWS KMS", slog.String("key_id", g.keyID), "err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Decrypt reverses Encrypt.
func (g *AWSGateway) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding: %v", interfaces.ErrDecryptionFailed, err)
	}

	out, err := g.client.DecryptWithContext(ctx, &kms.DecryptInput{
		KeyId:          aws.String(g.keyID),
		CiphertextBlob: blob,
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) {
			switch awsErr.Code() {
			case kms.ErrCodeInvalidCiphertextException, kms.ErrCodeIncorrectKeyException:
				return "", fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailed, err)
			}
		}
		g.log.Error("Failed to decrypt with AWS KMS", slog.String("key_id", g.keyID), "err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return string(out.Plaintext), nil
}
