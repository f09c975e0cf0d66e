package emitter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/messaging"
	"github.com/feral-file/ff-collection-bridge/internal/store"
)

// Config holds the configuration for the message emitter
type Config struct {
	ChainID         domain.Chain
	Direction       domain.Direction
	StartBlock      uint64
	StartFromLatest bool // without a cursor, start at the head instead of genesis
	CursorSaveFreq  uint64
	CursorSaveDelay time.Duration
}

// CursorName returns the name the block cursor is stored under
func (c Config) CursorName() string {
	return fmt.Sprintf("%s:%s", c.ChainID, c.Direction)
}

// Emitter forwards the bridge messages of one chain direction to the stream
//
//go:generate mockgen -source=emitter.go -destination=../mocks/emitter.go -package=mocks -mock_names=Emitter=MockEmitter
type Emitter interface {
	Run(ctx context.Context) error
	Close()
}

type emitter struct {
	subscriber messaging.Subscriber
	publisher  messaging.Publisher
	store      store.CursorStore
	config     Config
	clock      adapter.Clock
}

func NewEmitter(
	sub messaging.Subscriber,
	pub messaging.Publisher,
	st store.CursorStore,
	cfg Config,
	clock adapter.Clock,
) Emitter {
	return &emitter{
		subscriber: sub,
		publisher:  pub,
		store:      st,
		config:     cfg,
		clock:      clock,
	}
}

// startBlock resolves where the subscription begins: the configured block,
// the block after the cursor, then genesis or the head.
func (e *emitter) startBlock(ctx context.Context) (uint64, error) {
	name := e.config.CursorName()
	if e.config.StartBlock > 0 {
		logger.InfoCtx(ctx, "Starting from configured block", zap.String("cursor", name), zap.Uint64("block", e.config.StartBlock))
		return e.config.StartBlock, nil
	}

	cursor, err := e.store.GetBlockCursor(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}
	if cursor > 0 {
		logger.InfoCtx(ctx, "Resuming after cursor", zap.String("cursor", name), zap.Uint64("block", cursor+1))
		return cursor + 1, nil
	}

	if !e.config.StartFromLatest {
		logger.InfoCtx(ctx, "Starting from genesis", zap.String("cursor", name))
		return 0, nil
	}

	head, err := e.subscriber.GetLatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	logger.InfoCtx(ctx, "Starting from latest block", zap.String("cursor", name), zap.Uint64("block", head))
	return head, nil
}

// cursorSaver persists the last published block every CursorSaveFreq blocks
// or CursorSaveDelay, whichever comes first
type cursorSaver struct {
	name      string
	store     store.CursorStore
	clock     adapter.Clock
	freq      uint64
	delay     time.Duration
	lastBlock uint64
	lastSave  time.Time
}

func (c *cursorSaver) observe(ctx context.Context, block uint64) {
	if block-c.lastBlock < c.freq && c.clock.Since(c.lastSave) < c.delay {
		return
	}

	if err := c.store.SetBlockCursor(ctx, c.name, block); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to save block cursor"), zap.String("cursor", c.name))
		return
	}
	c.lastBlock = block
	c.lastSave = c.clock.Now()
}

// Run publishes every message of the watched chain until ctx is done or the
// subscription fails
func (e *emitter) Run(ctx context.Context) error {
	from, err := e.startBlock(ctx)
	if err != nil {
		return err
	}

	cursor := &cursorSaver{
		name:     e.config.CursorName(),
		store:    e.store,
		clock:    e.clock,
		freq:     e.config.CursorSaveFreq,
		delay:    e.config.CursorSaveDelay,
		lastSave: e.clock.Now(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoCtx(ctx, "Subscribing to bridge messages", zap.String("cursor", cursor.name), zap.Uint64("from", from))

		errCh <- e.subscriber.SubscribeMessages(ctx, from, func(msg *domain.BridgeMessage) error {
			if err := e.publisher.PublishMessage(ctx, msg); err != nil {
				return fmt.Errorf("failed to publish message %s: %w", msg.Key(), err)
			}
			cursor.observe(ctx, msg.BlockNumber)
			return nil
		})
	}()

	select {
	case err := <-errCh:
		if err == nil {
			return ctx.Err()
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *emitter) Close() {
	e.subscriber.Close()
}
