package tunnel

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

var payloadArguments = mustPayloadArguments()

func mustPayloadArguments() abi.Arguments {
	tokens, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "collection", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "tokenURI", Type: "string"},
	})
	if err != nil {
		panic(err)
	}

	return abi.Arguments{
		{Name: "beneficiary", Type: chain.MustType("address")},
		{Name: "tokens", Type: tokens},
	}
}

// Payload is the message both tunnels exchange:
// abi.encode(address beneficiary, (address collection, uint256 tokenId, string tokenURI)[] tokens)
type Payload struct {
	Beneficiary common.Address
	Tokens      []domain.TokenPayload
}

// EncodePayload encodes the message sent across the bridge
func EncodePayload(beneficiary common.Address, tokens []domain.TokenPayload) ([]byte, error) {
	if tokens == nil {
		tokens = []domain.TokenPayload{}
	}
	for i, token := range tokens {
		if token.TokenId == nil {
			return nil, fmt.Errorf("token %d: missing token id", i)
		}
	}

	data, err := payloadArguments.Pack(beneficiary, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload decodes a bridge message
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	values, err := payloadArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if err := payloadArguments.Copy(&p, values); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return &p, nil
}
