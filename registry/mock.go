package registry

import (
	"context"

	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockTaskDescriptionProvider mocks the TaskDescriptionProvider interface
type MockTaskDescriptionProvider struct {
	mock.Mock
}

// TaskDescription mocks the TaskDescription method
func (m *MockTaskDescriptionProvider) TaskDescription(ctx context.Context, taskID string) (*interfaces.TaskDescription, error) {
	args := m.Called(ctx, taskID)
	td, _ := args.Get(0).(*interfaces.TaskDescription)
	return td, args.Error(1)
}

// MockOwnerResolver mocks the OwnerResolver interface
type MockOwnerResolver struct {
	mock.Mock
}

// OwnerOf mocks the OwnerOf method
func (m *MockOwnerResolver) OwnerOf(ctx context.Context, objectAddress string) (string, error) {
	args := m.Called(ctx, objectAddress)
	return args.String(0), args.Error(1)
}
