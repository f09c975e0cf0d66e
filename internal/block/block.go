package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
)

// DEFAULT_MAX_TIMESTAMPS bounds the number of cached block timestamps
const DEFAULT_MAX_TIMESTAMPS = 10_000

// head is the cached chain head
type head struct {
	Number    uint64
	FetchedAt time.Time
}

// timestamp is the cached timestamp of a block
type timestamp struct {
	Time     time.Time
	CachedAt time.Time
}

// Provider gives cached access to the head of a chain and the timestamps of its blocks.
// Watchers stamp every bridge message with the time of its block, and several messages
// often share one.
type Provider interface {
	// GetLatestBlock returns the latest block number, potentially from cache
	GetLatestBlock(ctx context.Context) (uint64, error)

	// GetBlockTimestamp returns the timestamp for a given block number, potentially from cache
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// Config holds configuration for the Provider
type Config struct {
	// TTL is how long to cache the head. Zero reads the chain on every call.
	TTL time.Duration

	// StaleWindow is how long cached data may be served when reading the chain fails
	StaleWindow time.Duration

	// TimestampTTL is how long to cache block timestamps, zero caches them forever
	TimestampTTL time.Duration

	// MaxTimestamps is the number of block timestamps kept before the cache is reset
	MaxTimestamps int
}

type provider struct {
	reader chain.Reader
	config Config
	clock  adapter.Clock

	mu         sync.RWMutex
	head       *head
	timestamps map[uint64]*timestamp
}

// NewProvider creates a Provider reading through reader
func NewProvider(reader chain.Reader, config Config, clock adapter.Clock) Provider {
	if config.MaxTimestamps <= 0 {
		config.MaxTimestamps = DEFAULT_MAX_TIMESTAMPS
	}
	return &provider{
		reader:     reader,
		config:     config,
		clock:      clock,
		timestamps: make(map[uint64]*timestamp),
	}
}

// GetLatestBlock returns the latest block number, using cache if valid
func (p *provider) GetLatestBlock(ctx context.Context) (uint64, error) {
	p.mu.RLock()
	cached := p.head
	p.mu.RUnlock()

	now := p.clock.Now()
	if cached != nil && now.Sub(cached.FetchedAt) < p.config.TTL {
		return cached.Number, nil
	}

	number, err := p.reader.BlockNumber(ctx)
	if err != nil {
		if cached != nil && now.Sub(cached.FetchedAt) < p.config.StaleWindow {
			logger.WarnCtx(ctx, "Using stale block number",
				zap.String("chain", string(p.reader.ID())),
				zap.Uint64("block_number", cached.Number),
				zap.Error(err))
			return cached.Number, nil
		}
		return 0, fmt.Errorf("failed to fetch latest block and no valid cache available: %w", err)
	}

	p.mu.Lock()
	p.head = &head{Number: number, FetchedAt: now}
	p.mu.Unlock()

	return number, nil
}

// GetBlockTimestamp returns the timestamp for a given block number, using cache if valid
func (p *provider) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	p.mu.RLock()
	cached := p.timestamps[blockNumber]
	p.mu.RUnlock()

	now := p.clock.Now()
	if cached != nil && (p.config.TimestampTTL == 0 || now.Sub(cached.CachedAt) < p.config.TimestampTTL) {
		return cached.Time, nil
	}

	t, err := p.reader.BlockTime(ctx, blockNumber)
	if err != nil {
		if cached != nil && now.Sub(cached.CachedAt) < p.config.StaleWindow {
			logger.WarnCtx(ctx, "Using stale block timestamp",
				zap.String("chain", string(p.reader.ID())),
				zap.Uint64("block_number", blockNumber),
				zap.Error(err))
			return cached.Time, nil
		}
		return time.Time{}, fmt.Errorf("failed to fetch block timestamp for block %d and no valid cache available: %w", blockNumber, err)
	}

	p.mu.Lock()
	if len(p.timestamps) >= p.config.MaxTimestamps {
		logger.DebugCtx(ctx, "Resetting block timestamp cache", zap.Int("size", len(p.timestamps)))
		p.timestamps = make(map[uint64]*timestamp)
	}
	p.timestamps[blockNumber] = &timestamp{Time: t, CachedAt: now}
	p.mu.Unlock()

	return t, nil
}
