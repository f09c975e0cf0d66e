package rest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/factory"
	"github.com/feral-file/ff-collection-bridge/internal/store/schema"
)

const MAX_PAGE_SIZE = 100

// ListMessagesQueryParams holds query parameters for GET /messages
type ListMessagesQueryParams struct {
	Direction string `form:"direction"`
	Status    string `form:"status"`
	Limit     int    `form:"limit,default=20"`
	Offset    int    `form:"offset,default=0"`
}

// ParseListMessagesQuery parses query parameters for GET /messages
func ParseListMessagesQuery(c *gin.Context) (*ListMessagesQueryParams, error) {
	var params ListMessagesQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	// Cap limits
	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}

	return &params, nil
}

// Validate validates the query parameters
func (p *ListMessagesQueryParams) Validate() error {
	if p.Limit < 1 {
		return fmt.Errorf("limit must be at least 1")
	}
	if p.Offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	if p.Direction != "" &&
		domain.Direction(p.Direction) != domain.DirectionRootToChild &&
		domain.Direction(p.Direction) != domain.DirectionChildToRoot {
		return fmt.Errorf("invalid direction: %s", p.Direction)
	}
	if p.Status != "" && !schema.BridgeMessageStatus(p.Status).IsValid() {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	return nil
}

// PredictAddressQueryParams holds query parameters for GET /factories/:kind/address
type PredictAddressQueryParams struct {
	Salt        string `form:"salt" binding:"required"`
	Deployer    string `form:"deployer" binding:"required"`
	InitPayload string `form:"init_payload"`
}

// ParseFactoryKind parses the factory kind path parameter
func ParseFactoryKind(s string) (factory.Kind, error) {
	kind := factory.Kind(s)
	if kind != factory.KindMinimal && kind != factory.KindBeacon {
		return "", fmt.Errorf("invalid factory kind: %s", s)
	}
	return kind, nil
}

// ParseSalt parses a 32 byte hex salt. Shorter values are left padded.
func ParseSalt(s string) (common.Hash, error) {
	b, err := parseHex(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid salt: %w", err)
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid salt: longer than %d bytes", common.HashLength)
	}
	return common.BytesToHash(b), nil
}

// parseHex parses an optional 0x prefixed hex string
func parseHex(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hexutil.Decode("0x" + s)
}
