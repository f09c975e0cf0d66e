package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// BridgeMessageStatus is the delivery status of a bridge message
type BridgeMessageStatus string

const (
	// BridgeMessageStatusPending is a message observed but not delivered yet
	BridgeMessageStatusPending BridgeMessageStatus = "pending"
	// BridgeMessageStatusDelivered is a message accepted by the destination chain
	BridgeMessageStatusDelivered BridgeMessageStatus = "delivered"
	// BridgeMessageStatusFailed is a message the destination chain reverted
	BridgeMessageStatusFailed BridgeMessageStatus = "failed"
)

// IsValid reports whether the status is known
func (s BridgeMessageStatus) IsValid() bool {
	return s == BridgeMessageStatusPending ||
		s == BridgeMessageStatusDelivered ||
		s == BridgeMessageStatusFailed
}

// BridgeMessage represents the bridge_messages table - journal of every message relayed between the chains
type BridgeMessage struct {
	// ID is a ULID, sortable by creation time
	ID string `gorm:"column:id;primaryKey;type:varchar(26)"`
	// MessageKey is the chain, direction and message id of the message (see domain.BridgeMessage.Key)
	MessageKey string `gorm:"column:message_key;not null;uniqueIndex;type:varchar(255)"`
	// Chain is the chain the message was emitted on
	Chain domain.Chain `gorm:"column:chain;not null;type:varchar(50)"`
	// Direction is root_to_child or child_to_root
	Direction domain.Direction `gorm:"column:direction;not null;index;type:varchar(20)"`
	// MessageID is the state id or exit id
	MessageID uint64 `gorm:"column:message_id;not null"`
	// TxHash is the transaction that emitted the message
	TxHash string `gorm:"column:tx_hash;not null;type:varchar(66)"`
	// BlockNumber is the block the message was emitted in
	BlockNumber uint64 `gorm:"column:block_number;not null"`
	// Payload is the complete bridge message as JSON
	Payload datatypes.JSON `gorm:"column:payload;not null;type:jsonb"`
	// Status is pending, delivered or failed
	Status BridgeMessageStatus `gorm:"column:status;not null;index;default:pending;type:varchar(20)"`
	// Attempts is the number of delivery attempts made
	Attempts int `gorm:"column:attempts;not null;default:0"`
	// LastError is the error of the last failed attempt
	LastError string `gorm:"column:last_error;type:text"`
	// DeliveredAt is the time the message was accepted by the destination chain
	DeliveredAt *time.Time `gorm:"column:delivered_at;type:timestamptz"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null;autoCreateTime;type:timestamptz"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null;autoUpdateTime;type:timestamptz"`
}

// TableName specifies the table name for the BridgeMessage model
func (BridgeMessage) TableName() string {
	return "bridge_messages"
}
