package collection

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
)

// ItemPayload is one item definition of the initialization payload
type ItemPayload struct {
	MaxSupply   *big.Int       `json:"max_supply"`
	Price       *big.Int       `json:"price"`
	Beneficiary common.Address `json:"beneficiary"`
	Metadata    string         `json:"metadata"`
	ContentHash [32]byte       `json:"content_hash"`
}

// InitPayload is the decoded initialization payload passed to Initialize
type InitPayload struct {
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
	BaseURI string         `json:"base_uri"`
	Creator common.Address `json:"creator"`
	Items   []ItemPayload  `json:"items"`
}

var initArguments = mustInitArguments()

func mustInitArguments() abi.Arguments {
	items, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "maxSupply", Type: "uint256"},
		{Name: "price", Type: "uint256"},
		{Name: "beneficiary", Type: "address"},
		{Name: "metadata", Type: "string"},
		{Name: "contentHash", Type: "bytes32"},
	})
	if err != nil {
		panic(err)
	}

	return abi.Arguments{
		{Name: "name", Type: chain.MustType("string")},
		{Name: "symbol", Type: chain.MustType("string")},
		{Name: "baseURI", Type: chain.MustType("string")},
		{Name: "creator", Type: chain.MustType("address")},
		{Name: "items", Type: items},
	}
}

// EncodeInitPayload ABI-encodes the initialization payload
func EncodeInitPayload(p InitPayload) ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []ItemPayload{}
	}
	for i, item := range items {
		if item.MaxSupply == nil || item.Price == nil {
			return nil, fmt.Errorf("item %d: max supply and price are required", i)
		}
	}

	data, err := initArguments.Pack(p.Name, p.Symbol, p.BaseURI, p.Creator, items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode init payload: %w", err)
	}
	return data, nil
}

// DecodeInitPayload decodes an ABI-encoded initialization payload
func DecodeInitPayload(data []byte) (*InitPayload, error) {
	var p InitPayload
	values, err := initArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode init payload: %w", err)
	}
	if err := initArguments.Copy(&p, values); err != nil {
		return nil, fmt.Errorf("failed to decode init payload: %w", err)
	}
	return &p, nil
}
