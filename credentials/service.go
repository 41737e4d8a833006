// Package credentials issues the ephemeral signing keypair of a task.
//
// A task gets exactly one keypair for its whole life, created on first use
// and persisted encrypted so that every later session of the same task, on
// any instance, signs with the same key.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-secret-management-backend/cryptoutils"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/ruteri/tee-secret-management-backend/metrics"
	"github.com/ruteri/tee-secret-management-backend/secrets"
)

// ErrCredentialVanished is returned when a credential reported as existing
// cannot be read back.
var ErrCredentialVanished = errors.New("task credential reported as existing but not found")

// Service is the ephemeral task credential service.
type Service struct {
	store *secrets.Store[interfaces.TaskCredentialKey]
	log   *slog.Logger
}

// NewService creates a credential service persisting into store.
func NewService(store *secrets.Store[interfaces.TaskCredentialKey], log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Get returns the credential of the task, or nil if none was issued yet.
func (s *Service) Get(ctx context.Context, taskID string) (*interfaces.TaskCredential, error) {
	key, err := interfaces.NewTaskCredentialKey(taskID)
	if err != nil {
		return nil, err
	}

	secret, err := s.store.Get(ctx, key, true)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, nil
	}

	var credential interfaces.TaskCredential
	if err := json.Unmarshal([]byte(secret.Value), &credential); err != nil {
		return nil, fmt.Errorf("failed to decode task credential: %w", err)
	}
	return &credential, nil
}

// GetOrCreate returns the credential of the task, generating it on first use.
// Concurrent first calls, in this process or another one sharing the
// repository, all return the credential that was persisted first.
func (s *Service) GetOrCreate(ctx context.Context, taskID string) (*interfaces.TaskCredential, error) {
	credential, err := s.Get(ctx, taskID)
	if err != nil || credential != nil {
		return credential, err
	}

	key, err := interfaces.NewTaskCredentialKey(taskID)
	if err != nil {
		return nil, err
	}

	address, privateKey, err := cryptoutils.GenerateTaskKeypair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate task keypair: %w", err)
	}

	credential = &interfaces.TaskCredential{
		TaskID:     string(key),
		Address:    address,
		PrivateKey: privateKey,
	}
	payload, err := json.Marshal(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task credential: %w", err)
	}

	added, err := s.store.PutIfAbsent(ctx, key, string(payload))
	if err != nil {
		return nil, err
	}
	if added {
		metrics.RecordTaskCredentialIssued()
		s.log.Info("Issued task credential",
			slog.String("taskID", credential.TaskID),
			slog.String("address", credential.Address))
		return credential, nil
	}

	// Lost the race, use the credential that won.
	stored, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: %s", ErrCredentialVanished, taskID)
	}
	return stored, nil
}
