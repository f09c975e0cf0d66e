package domain

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	maxItemID   = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), ITEM_ID_BITS), 1)
	maxIssuedID = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), ISSUED_ID_BITS), 1)
)

// EncodeTokenID packs an item id and an issued sequence number into a collection token id
func EncodeTokenID(itemID, issuedID *big.Int) (*big.Int, error) {
	item, overflow := uint256.FromBig(itemID)
	if overflow || itemID.Sign() < 0 || item.Gt(maxItemID) {
		return nil, NewRevert(ErrInvalidInput, "encodeTokenId: INVALID_ITEM_ID")
	}

	issued, overflow := uint256.FromBig(issuedID)
	if overflow || issuedID.Sign() < 0 || issued.Gt(maxIssuedID) {
		return nil, NewRevert(ErrInvalidInput, "encodeTokenId: INVALID_ISSUED_ID")
	}

	id := new(uint256.Int).Lsh(item, ISSUED_ID_BITS)
	id.Or(id, issued)
	return id.ToBig(), nil
}

// DecodeTokenID splits a collection token id into its item id and issued sequence number
func DecodeTokenID(tokenID *big.Int) (*big.Int, *big.Int, error) {
	id, overflow := uint256.FromBig(tokenID)
	if overflow || tokenID.Sign() < 0 {
		return nil, nil, NewRevert(ErrInvalidInput, "decodeTokenId: INVALID_TOKEN_ID")
	}

	item := new(uint256.Int).Rsh(id, ISSUED_ID_BITS)
	issued := new(uint256.Int).And(id, maxIssuedID)
	return item.ToBig(), issued.ToBig(), nil
}
