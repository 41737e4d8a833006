package interfaces

import "context"

// TaskDescriptionProvider resolves a task identifier into the facts of the
// deal it belongs to.
type TaskDescriptionProvider interface {
	// TaskDescription returns nil without error when the task or its deal
	// cannot be resolved.
	TaskDescription(ctx context.Context, taskID string) (*TaskDescription, error)
}

// OwnerResolver resolves the wallet owning an on-chain object such as an
// application or a dataset.
type OwnerResolver interface {
	// OwnerOf returns the lower-cased owner address, or ErrOwnerNotFound.
	OwnerOf(ctx context.Context, objectAddress string) (string, error)
}
