package dto

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/store/schema"
)

// PredictAddressResponse is the address a factory deploys to
type PredictAddressResponse struct {
	Kind     string `json:"kind"`
	Factory  string `json:"factory"`
	Deployer string `json:"deployer"`
	Salt     string `json:"salt"`
	Address  string `json:"address"`
}

// CreateCollectionRequest deploys a collection through a factory as the network owner
type CreateCollectionRequest struct {
	Kind        string        `json:"kind" binding:"required,oneof=minimal beacon"`
	Salt        string        `json:"salt" binding:"required"`
	InitPayload hexutil.Bytes `json:"init_payload"`
}

// CreateCollectionResponse is the deployed collection
type CreateCollectionResponse struct {
	Kind    string `json:"kind"`
	Address string `json:"address"`
}

// IssueTokensRequest issues the next token of each item to the matching beneficiary
type IssueTokensRequest struct {
	Beneficiaries []string `json:"beneficiaries" binding:"required,min=1"`
	ItemIDs       []string `json:"item_ids" binding:"required,min=1"`
}

// IssueTokensResponse lists the issued token ids
type IssueTokensResponse struct {
	TokenIDs []string `json:"token_ids"`
}

// ApprovalRequest lets operator move every collection token of owner. The root tunnel
// is the operator when none is given.
type ApprovalRequest struct {
	Owner    string `json:"owner" binding:"required"`
	Operator string `json:"operator"`
	Approved *bool  `json:"approved"`
}

// DepositItem is a collection token to lock on the root chain
type DepositItem struct {
	Collection string        `json:"collection" binding:"required"`
	TokenID    string        `json:"token_id" binding:"required"`
	AuxData    hexutil.Bytes `json:"aux_data,omitempty"` // derived from the deploying factory when empty
}

// DepositRequest locks collection tokens of sender for beneficiary on the child chain
type DepositRequest struct {
	Sender      string        `json:"sender" binding:"required"`
	Beneficiary string        `json:"beneficiary" binding:"required"`
	Items       []DepositItem `json:"items" binding:"required,min=1,dive"`
}

// DepositResponse is the state sync message the deposit emitted
type DepositResponse struct {
	StateID     string `json:"state_id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// WithdrawRequest burns bridged tokens of sender and releases the originals to beneficiary
type WithdrawRequest struct {
	Sender      string   `json:"sender" binding:"required"`
	Beneficiary string   `json:"beneficiary" binding:"required"`
	TokenIDs    []string `json:"token_ids" binding:"required,min=1"`
}

// TxResponse is an executed transaction
type TxResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// RedeliverRequest redelivers up to limit pending messages
type RedeliverRequest struct {
	Limit int `json:"limit"`
}

// RedeliverResponse is the number of messages delivered by a redelivery
type RedeliverResponse struct {
	Delivered int `json:"delivered"`
}

// BridgeMessageResponse is a journaled bridge message
type BridgeMessageResponse struct {
	Key         string           `json:"key"`
	Chain       domain.Chain     `json:"chain"`
	Direction   domain.Direction `json:"direction"`
	MessageID   uint64           `json:"message_id"`
	TxHash      string           `json:"tx_hash"`
	BlockNumber uint64           `json:"block_number"`
	Status      string           `json:"status"`
	Attempts    int              `json:"attempts"`
	LastError   string           `json:"last_error,omitempty"`
	Payload     json.RawMessage  `json:"payload"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// BridgeMessageListResponse is a page of journaled bridge messages
type BridgeMessageListResponse struct {
	Messages []BridgeMessageResponse `json:"messages"`
	Offset   int                     `json:"offset"`
	Limit    int                     `json:"limit"`
}

// MapBridgeMessageToDTO converts a journal record to its response
func MapBridgeMessageToDTO(record *schema.BridgeMessage) BridgeMessageResponse {
	return BridgeMessageResponse{
		Key:         record.MessageKey,
		Chain:       record.Chain,
		Direction:   record.Direction,
		MessageID:   record.MessageID,
		TxHash:      record.TxHash,
		BlockNumber: record.BlockNumber,
		Status:      string(record.Status),
		Attempts:    record.Attempts,
		LastError:   record.LastError,
		Payload:     json.RawMessage(record.Payload),
		DeliveredAt: record.DeliveredAt,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
