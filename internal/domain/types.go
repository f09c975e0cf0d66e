package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
	ChainPolygonMainnet  Chain = "eip155:137"
	ChainPolygonAmoy     Chain = "eip155:80002"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet ||
		chain == ChainEthereumSepolia ||
		chain == ChainPolygonMainnet ||
		chain == ChainPolygonAmoy
}

// ChainID returns the numeric EIP-155 chain id
func (c Chain) ChainID() (*big.Int, error) {
	parts := strings.Split(string(c), ":")
	if len(parts) != 2 || parts[0] != "eip155" {
		return nil, fmt.Errorf("unsupported chain: %s", c)
	}

	id, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain reference: %s", c)
	}
	return id, nil
}

// Direction is the direction a bridge message travels
type Direction string

const (
	// DirectionRootToChild is a deposit notification sent through the state sender
	DirectionRootToChild Direction = "root_to_child"
	// DirectionChildToRoot is a withdrawal notification sent through a checkpointed exit
	DirectionChildToRoot Direction = "child_to_root"
)

// TokenPayload is one token entry of the bridge wire format
type TokenPayload struct {
	Collection common.Address
	TokenId    *big.Int
	TokenURI   string
}

// DepositItem identifies a collection token to lock, with the validator aux data
type DepositItem struct {
	Collection common.Address
	TokenId    *big.Int
	AuxData    []byte
}

// BridgeMessage represents a message observed on one chain that must be delivered to the other.
// This is the standard format published to NATS
type BridgeMessage struct {
	ID          uint64         `json:"id"`           // state id (root_to_child) or exit id (child_to_root)
	Direction   Direction      `json:"direction"`    // root_to_child or child_to_root
	Chain       Chain          `json:"chain"`        // chain the message was emitted on
	Sender      common.Address `json:"sender"`       // tunnel that sent the message
	Receiver    common.Address `json:"receiver"`     // contract the message is addressed to
	Data        hexutil.Bytes  `json:"data"`         // raw message bytes as emitted
	TxHash      common.Hash    `json:"tx_hash"`      // transaction hash
	BlockNumber uint64         `json:"block_number"` // block number
	LogIndex    uint           `json:"log_index"`    // log index within the block
	Timestamp   time.Time      `json:"timestamp"`    // block timestamp
}

// Valid checks the message has everything needed for delivery
func (m *BridgeMessage) Valid() bool {
	if m.Direction != DirectionRootToChild && m.Direction != DirectionChildToRoot {
		return false
	}
	if m.ID == 0 && m.Direction == DirectionRootToChild {
		return false
	}
	if m.Sender == (common.Address{}) {
		return false
	}
	if len(m.Data) == 0 {
		return false
	}
	return IsValidChain(m.Chain)
}

// Key returns the identifier of the message in the journal
func (m *BridgeMessage) Key() string {
	return fmt.Sprintf("%s:%s:%d", m.Chain, m.Direction, m.ID)
}

// BridgedTokenData is the record stored for every bridged token
type BridgedTokenData struct {
	Collection common.Address `json:"collection"`
	TokenId    *big.Int       `json:"token_id"`
	TokenURI   string         `json:"token_uri"`
}

// ParseAddress parses a hex address, rejecting malformed input
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %s", s)
	}
	return common.HexToAddress(s), nil
}

// ParseBigInt parses a decimal or 0x-prefixed hex integer
func ParseBigInt(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid number: %s", s)
	}
	return n, nil
}
