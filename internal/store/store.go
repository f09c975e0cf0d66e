package store

import (
	"context"
	"errors"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/store/schema"
)

// ErrBridgeMessageNotFound is returned when updating a message that was never saved
var ErrBridgeMessageNotFound = errors.New("bridge message not found")

// BridgeMessageFilter narrows ListBridgeMessages. Zero values match everything.
type BridgeMessageFilter struct {
	Direction domain.Direction
	Status    schema.BridgeMessageStatus
	Limit     int
	Offset    int
}

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	CursorStore

	// SaveBridgeMessage journals a message as pending. Saving a message twice returns the first record.
	SaveBridgeMessage(ctx context.Context, msg *domain.BridgeMessage) (*schema.BridgeMessage, error)
	// MarkBridgeMessage records a delivery attempt and its outcome
	MarkBridgeMessage(ctx context.Context, key string, status schema.BridgeMessageStatus, lastError string) error
	// GetBridgeMessage retrieves a message by its key, nil if it was never saved
	GetBridgeMessage(ctx context.Context, key string) (*schema.BridgeMessage, error)
	// ListBridgeMessages lists messages, newest first
	ListBridgeMessages(ctx context.Context, filter BridgeMessageFilter) ([]schema.BridgeMessage, error)
}
