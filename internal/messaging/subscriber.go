package messaging

import (
	"context"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// MessageHandler is called for every bridge message observed on chain
type MessageHandler func(msg *domain.BridgeMessage) error

// Subscriber defines the common interface for watching a chain for bridge messages.
// Root chain subscribers report state syncs, child chain subscribers report exits.
//
//go:generate mockgen -source=subscriber.go -destination=../mocks/subscriber.go -package=mocks -mock_names=Subscriber=MockSubscriber
type Subscriber interface {
	// SubscribeMessages watches for bridge messages starting at fromBlock
	// handler: callback function to process each message
	SubscribeMessages(ctx context.Context, fromBlock uint64, handler MessageHandler) error

	// GetLatestBlock returns the latest block number
	GetLatestBlock(ctx context.Context) (uint64, error)

	// Close releases the subscriber resources
	Close()
}
