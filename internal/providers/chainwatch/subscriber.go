package chainwatch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/block"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/messaging"
	"github.com/feral-file/ff-collection-bridge/internal/statesync"
)

// Config holds the configuration of a chain watcher
type Config struct {
	Direction    domain.Direction // root_to_child watches state syncs, child_to_root watches exits
	Contracts    []common.Address // state sender (root_to_child) or child tunnels (child_to_root)
	Receiver     common.Address   // root tunnel exits are addressed to (child_to_root only)
	PollInterval time.Duration
	MaxBlocks    uint64 // max blocks per log query
}

type subscriber struct {
	reader chain.Reader
	blocks block.Provider
	config Config
	clock  adapter.Clock
}

// NewSubscriber creates a subscriber that polls a chain for bridge messages
func NewSubscriber(cfg Config, reader chain.Reader, clock adapter.Clock) (messaging.Subscriber, error) {
	if cfg.Direction != domain.DirectionRootToChild && cfg.Direction != domain.DirectionChildToRoot {
		return nil, fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidInput, cfg.Direction)
	}
	if len(cfg.Contracts) == 0 {
		return nil, fmt.Errorf("%w: no contracts to watch", domain.ErrInvalidInput)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxBlocks == 0 {
		cfg.MaxBlocks = 1000
	}

	blocks := block.NewProvider(reader, block.Config{
		StaleWindow: 5 * cfg.PollInterval,
	}, clock)

	return &subscriber{reader: reader, blocks: blocks, config: cfg, clock: clock}, nil
}

func (s *subscriber) topic() common.Hash {
	if s.config.Direction == domain.DirectionRootToChild {
		return statesync.StateSyncedEvent.ID
	}
	return statesync.MessageSentEvent.ID
}

// SubscribeMessages polls for new logs until the context is done
func (s *subscriber) SubscribeMessages(ctx context.Context, fromBlock uint64, handler messaging.MessageHandler) error {
	next := fromBlock
	for {
		latest, err := s.blocks.GetLatestBlock(ctx)
		if err != nil {
			return fmt.Errorf("failed to get latest block: %w", err)
		}

		for next <= latest {
			to := next + s.config.MaxBlocks - 1
			if to > latest {
				to = latest
			}

			if err := s.poll(ctx, next, to, handler); err != nil {
				return err
			}
			next = to + 1
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.config.PollInterval):
		}
	}
}

func (s *subscriber) poll(ctx context.Context, from, to uint64, handler messaging.MessageHandler) error {
	logs, err := s.reader.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: s.config.Contracts,
		Topics:    [][]common.Hash{{s.topic()}},
	})
	if err != nil {
		return fmt.Errorf("failed to filter logs: %w", err)
	}

	for _, log := range logs {
		msg, err := s.parseLog(ctx, log)
		if err != nil {
			logger.ErrorCtx(ctx, err, zap.String("message", "Error parsing log"), zap.String("txHash", log.TxHash.Hex()))
			continue
		}

		if err := handler(msg); err != nil {
			return fmt.Errorf("failed to handle message %s: %w", msg.Key(), err)
		}
	}
	return nil
}

func (s *subscriber) parseLog(ctx context.Context, log types.Log) (*domain.BridgeMessage, error) {
	timestamp, err := s.blocks.GetBlockTimestamp(ctx, log.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get block time: %w", err)
	}

	msg := &domain.BridgeMessage{
		Direction:   s.config.Direction,
		Chain:       s.reader.ID(),
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		Timestamp:   timestamp,
	}

	switch s.config.Direction {
	case domain.DirectionRootToChild:
		synced, err := statesync.ParseStateSynced(log)
		if err != nil {
			return nil, err
		}
		envelope, err := statesync.DecodeFxMessage(synced.Data)
		if err != nil {
			return nil, err
		}
		if !synced.ID.IsUint64() {
			return nil, fmt.Errorf("state id %s out of range", synced.ID)
		}

		msg.ID = synced.ID.Uint64()
		msg.Sender = envelope.RootMessageSender
		msg.Receiver = synced.Receiver
		msg.Data = synced.Data

	case domain.DirectionChildToRoot:
		message, err := statesync.ParseMessageSent(log)
		if err != nil {
			return nil, err
		}

		msg.ID = statesync.ExitID(log.BlockNumber, log.Index).Uint64()
		msg.Sender = log.Address
		msg.Receiver = s.config.Receiver
		msg.Data = message
	}

	return msg, nil
}

// GetLatestBlock returns the latest block number
func (s *subscriber) GetLatestBlock(ctx context.Context) (uint64, error) {
	return s.blocks.GetLatestBlock(ctx)
}

func (s *subscriber) Close() {
	logger.Info("Chain watcher closed", zap.String("chain", string(s.reader.ID())), zap.String("direction", string(s.config.Direction)))
}
