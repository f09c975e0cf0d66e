package messaging

import (
	"context"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// Publisher defines the interface for publishing bridge messages to the message queue
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishMessage publishes a bridge message to the message broker
	PublishMessage(ctx context.Context, msg *domain.BridgeMessage) error
	// Close closes the connection
	Close()
}
