package collection

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/erc721"
)

// Item is an issuable item of a collection
type Item struct {
	MaxSupply   *big.Int
	TotalSupply *big.Int
	Price       *big.Int
	Beneficiary common.Address
	Metadata    string
	ContentHash [32]byte
}

// Storage is the state of a single collection instance.
// It belongs to the proxy; logic contracts only operate on it.
type Storage struct {
	Initialized bool
	Owner       common.Address
	Creator     common.Address
	Name        string
	Symbol      string
	BaseURI     string
	Items       []*Item
	Ledger      *erc721.Ledger
}

// NewStorage creates empty storage for the instance at addr
func NewStorage(addr common.Address) *Storage {
	ledger := erc721.NewLedger()
	ledger.Bind(addr)
	return &Storage{Ledger: ledger}
}
