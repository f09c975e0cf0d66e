package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/feral-file/ff-collection-bridge/internal/store/schema"
)

// CursorStore defines the interface for storing and retrieving block cursors
type CursorStore interface {
	// GetBlockCursor retrieves the last processed block number for a watcher
	GetBlockCursor(ctx context.Context, name string) (uint64, error)
	// SetBlockCursor stores the last processed block number for a watcher
	SetBlockCursor(ctx context.Context, name string, blockNumber uint64) error
}

func cursorKey(name string) string {
	return fmt.Sprintf("block_cursor:%s", name)
}

// GetBlockCursor retrieves the last processed block number, 0 when nothing was processed yet
func (s *pgStore) GetBlockCursor(ctx context.Context, name string) (uint64, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", cursorKey(name)).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}

	blockNumber, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block cursor: %w", err)
	}

	return blockNumber, nil
}

// SetBlockCursor stores the last processed block number
func (s *pgStore) SetBlockCursor(ctx context.Context, name string, blockNumber uint64) error {
	kv := schema.KeyValueStore{
		Key:   cursorKey(name),
		Value: strconv.FormatUint(blockNumber, 10),
	}

	if err := s.db.WithContext(ctx).Save(&kv).Error; err != nil {
		return fmt.Errorf("failed to set block cursor: %w", err)
	}

	return nil
}
