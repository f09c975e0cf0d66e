package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/store/schema"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxErrorLength   = 1024
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the tables of the store
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&schema.KeyValueStore{}, &schema.BridgeMessage{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// PoolConfig sizes the database/sql pool behind gorm. Zero fields take the
// defaults of DefaultPoolConfig.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var DefaultPoolConfig = PoolConfig{
	MaxOpenConns:    10,
	MaxIdleConns:    2,
	ConnMaxLifetime: 5 * time.Minute,
	ConnMaxIdleTime: 10 * time.Minute,
}

// Normalize fills zero fields with defaults and keeps idle connections
// within the open connection limit
func (p PoolConfig) Normalize() PoolConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = DefaultPoolConfig.MaxOpenConns
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = DefaultPoolConfig.MaxIdleConns
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = DefaultPoolConfig.ConnMaxLifetime
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = DefaultPoolConfig.ConnMaxIdleTime
	}
	p.MaxIdleConns = min(p.MaxIdleConns, p.MaxOpenConns)
	return p
}

// ConfigureConnectionPool applies the normalized pool settings to db
func ConfigureConnectionPool(db *gorm.DB, pool PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	pool = pool.Normalize()
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	return nil
}

// SaveBridgeMessage journals a message as pending, keeping the existing record if the
// message was already journaled (JetStream redeliveries and watcher restarts)
func (s *pgStore) SaveBridgeMessage(ctx context.Context, msg *domain.BridgeMessage) (*schema.BridgeMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bridge message: %w", err)
	}

	record := schema.BridgeMessage{
		ID:          ulid.MustNewDefault(time.Now()).String(),
		MessageKey:  msg.Key(),
		Chain:       msg.Chain,
		Direction:   msg.Direction,
		MessageID:   msg.ID,
		TxHash:      msg.TxHash.Hex(),
		BlockNumber: msg.BlockNumber,
		Payload:     datatypes.JSON(payload),
		Status:      schema.BridgeMessageStatusPending,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_key"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to save bridge message: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		logger.DebugCtx(ctx, "Bridge message already journaled", zap.String("key", record.MessageKey))
		return s.GetBridgeMessage(ctx, record.MessageKey)
	}

	return &record, nil
}

// MarkBridgeMessage records a delivery attempt and its outcome
func (s *pgStore) MarkBridgeMessage(ctx context.Context, key string, status schema.BridgeMessageStatus, lastError string) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}

	if len(lastError) > maxErrorLength {
		lastError = lastError[:maxErrorLength]
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":     status,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": lastError,
		"updated_at": now,
	}
	if status == schema.BridgeMessageStatusDelivered {
		updates["delivered_at"] = now
	}

	result := s.db.WithContext(ctx).
		Model(&schema.BridgeMessage{}).
		Where("message_key = ?", key).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to mark bridge message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrBridgeMessageNotFound, key)
	}

	return nil
}

// GetBridgeMessage retrieves a message by its key
func (s *pgStore) GetBridgeMessage(ctx context.Context, key string) (*schema.BridgeMessage, error) {
	var record schema.BridgeMessage
	err := s.db.WithContext(ctx).Where("message_key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bridge message: %w", err)
	}

	return &record, nil
}

// ListBridgeMessages lists messages, newest first
func (s *pgStore) ListBridgeMessages(ctx context.Context, filter BridgeMessageFilter) ([]schema.BridgeMessage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := s.db.WithContext(ctx).Model(&schema.BridgeMessage{})
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var records []schema.BridgeMessage
	err := query.
		Order("id DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bridge messages: %w", err)
	}

	return records, nil
}
