package kms

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockKMSClient struct {
	kmsiface.KMSAPI
	mock.Mock
}

func (m *mockKMSClient) EncryptWithContext(ctx aws.Context, in *kms.EncryptInput, _ ...request.Option) (*kms.EncryptOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*kms.EncryptOutput)
	return out, args.Error(1)
}

func (m *mockKMSClient) DecryptWithContext(ctx aws.Context, in *kms.DecryptInput, _ ...request.Option) (*kms.DecryptOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*kms.DecryptOutput)
	return out, args.Error(1)
}

func TestAWSGateway(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := &mockKMSClient{}
	gateway := NewAWSGatewayWithClient(client, "alias/sms", log)
	assert.Equal(t, "awskms:alias/sms", gateway.Name())

	client.On("EncryptWithContext", ctx, mock.MatchedBy(func(in *kms.EncryptInput) bool {
		return aws.StringValue(in.KeyId) == "alias/sms" && string(in.Plaintext) == "my secret"
	})).Return(&kms.EncryptOutput{CiphertextBlob: []byte("blob")}, nil).Once()

	client.On("DecryptWithContext", ctx, mock.MatchedBy(func(in *kms.DecryptInput) bool {
		return string(in.CiphertextBlob) == "blob"
	})).Return(&kms.DecryptOutput{Plaintext: []byte("my secret")}, nil).Once()

	client.On("DecryptWithContext", ctx, mock.MatchedBy(func(in *kms.DecryptInput) bool {
		return string(in.CiphertextBlob) == "tampered"
	})).Return(nil, awserr.New(kms.ErrCodeInvalidCiphertextException, "invalid", nil)).Once()

	client.On("DecryptWithContext", ctx, mock.MatchedBy(func(in *kms.DecryptInput) bool {
		return string(in.CiphertextBlob) == "throttled"
	})).Return(nil, awserr.New("ThrottlingException", "slow down", nil)).Once()

	ciphertext, err := gateway.Encrypt(ctx, "my secret")
	require.NoError(t, err)
	assert.Equal(t, "YmxvYg==", ciphertext)

	plaintext, err := gateway.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "my secret", plaintext)

	_, err = gateway.Decrypt(ctx, "dGFtcGVyZWQ=")
	require.ErrorIs(t, err, interfaces.ErrDecryptionFailed)

	_, err = gateway.Decrypt(ctx, "dGhyb3R0bGVk")
	require.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	_, err = gateway.Decrypt(ctx, "%%%")
	require.ErrorIs(t, err, interfaces.ErrDecryptionFailed)

	client.AssertExpectations(t)
}
