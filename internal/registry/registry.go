package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/feral-file/ff-collection-bridge/internal/access"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/erc721"
)

var (
	AdminSetEvent = chain.NewEvent("AdminSet", "address oldAdmin indexed", "address newAdmin indexed")

	bridgedIDArguments = abi.Arguments{
		{Name: "collection", Type: chain.MustType("address")},
		{Name: "tokenId", Type: chain.MustType("uint256")},
	}
)

// BridgedID derives the registry token id of an origin token:
// uint256(keccak256(abi.encode(collection, tokenId)))
func BridgedID(collection common.Address, tokenID *big.Int) *big.Int {
	packed, err := bridgedIDArguments.Pack(collection, tokenID)
	if err != nil {
		// only reachable with a negative or oversized token id
		panic(err)
	}
	return new(big.Int).SetBytes(crypto.Keccak256(packed))
}

// Registry is the child chain representation of bridged tokens. Only the admin,
// normally the child tunnel, mints and burns.
type Registry struct {
	access.Ownable
	address common.Address
	admin   common.Address
	name    string
	symbol  string
	ledger  *erc721.Ledger
	data    map[string]domain.BridgedTokenData
}

// New creates a registry at addr
func New(addr, owner common.Address, name, symbol string) *Registry {
	ledger := erc721.NewLedger()
	ledger.Bind(addr)
	return &Registry{
		Ownable: access.NewOwnable(addr, owner),
		address: addr,
		name:    name,
		symbol:  symbol,
		ledger:  ledger,
		data:    make(map[string]domain.BridgedTokenData),
	}
}

func (r *Registry) Address() common.Address {
	return r.address
}

func (r *Registry) Admin() common.Address {
	return r.admin
}

func (r *Registry) Name() string {
	return r.name
}

func (r *Registry) Symbol() string {
	return r.symbol
}

// SetAdmin rotates the account allowed to mint and burn
func (r *Registry) SetAdmin(tx *chain.Tx, admin common.Address) error {
	if err := r.OnlyOwner(tx); err != nil {
		return err
	}

	old := r.admin
	chain.Store(tx, &r.admin, admin)
	return tx.Emit(r.address, AdminSetEvent, old, admin)
}

func (r *Registry) onlyAdmin(tx *chain.Tx) error {
	if tx.Sender() != r.admin {
		return domain.NewRevert(domain.ErrUnauthorized, "BTR#onlyAdmin: SENDER_IS_NOT_THE_ADMIN")
	}
	return nil
}

// Mint mints the bridged representation of every token to beneficiary. A token
// that is already bridged fails the whole batch.
func (r *Registry) Mint(tx *chain.Tx, beneficiary common.Address, tokens []domain.TokenPayload) error {
	if err := r.onlyAdmin(tx); err != nil {
		return err
	}

	for _, token := range tokens {
		if token.TokenId == nil || token.TokenId.Sign() < 0 {
			return domain.NewRevert(domain.ErrInvalidInput, "BTR#mint: INVALID_TOKEN_ID")
		}

		id := BridgedID(token.Collection, token.TokenId)
		if err := r.ledger.Mint(tx, beneficiary, id); err != nil {
			return err
		}
		r.setData(tx, id, &domain.BridgedTokenData{
			Collection: token.Collection,
			TokenId:    new(big.Int).Set(token.TokenId),
			TokenURI:   token.TokenURI,
		})
	}
	return nil
}

// Burn destroys bridged tokens and their records. Read TokenData first if it is needed.
func (r *Registry) Burn(tx *chain.Tx, ids []*big.Int) error {
	if err := r.onlyAdmin(tx); err != nil {
		return err
	}

	for _, id := range ids {
		if err := r.ledger.Burn(tx, id); err != nil {
			return err
		}
		r.setData(tx, id, nil)
	}
	return nil
}

func (r *Registry) setData(tx *chain.Tx, id *big.Int, data *domain.BridgedTokenData) {
	key := id.String()
	prev, existed := r.data[key]
	if data == nil {
		delete(r.data, key)
	} else {
		r.data[key] = *data
	}
	tx.Journal(func() {
		if existed {
			r.data[key] = prev
			return
		}
		delete(r.data, key)
	})
}

// TokenData returns the origin identity and metadata of a bridged token
func (r *Registry) TokenData(id *big.Int) (domain.BridgedTokenData, error) {
	data, ok := r.data[id.String()]
	if !ok {
		return domain.BridgedTokenData{}, domain.NewRevert(domain.ErrNonexistentToken, "BTR#tokenData: INVALID_TOKEN_ID")
	}
	data.TokenId = new(big.Int).Set(data.TokenId)
	return data, nil
}

// TokenURI returns the origin token URI snapshotted at deposit time
func (r *Registry) TokenURI(id *big.Int) (string, error) {
	data, err := r.TokenData(id)
	if err != nil {
		return "", err
	}
	return data.TokenURI, nil
}

func (r *Registry) Exists(id *big.Int) bool {
	return r.ledger.Exists(id)
}

func (r *Registry) OwnerOf(id *big.Int) (common.Address, error) {
	return r.ledger.OwnerOf(id)
}

func (r *Registry) BalanceOf(owner common.Address) (uint64, error) {
	return r.ledger.BalanceOf(owner)
}

func (r *Registry) TotalSupply() uint64 {
	return r.ledger.TotalSupply()
}

func (r *Registry) TokensOf(owner common.Address) []*big.Int {
	return r.ledger.TokensOf(owner)
}

func (r *Registry) GetApproved(id *big.Int) (common.Address, error) {
	return r.ledger.GetApproved(id)
}

func (r *Registry) IsApprovedForAll(owner, operator common.Address) bool {
	return r.ledger.IsApprovedForAll(owner, operator)
}

func (r *Registry) Approve(tx *chain.Tx, to common.Address, id *big.Int) error {
	return r.ledger.Approve(tx, to, id)
}

func (r *Registry) SetApprovalForAll(tx *chain.Tx, operator common.Address, approved bool) error {
	return r.ledger.SetApprovalForAll(tx, operator, approved)
}

func (r *Registry) TransferFrom(tx *chain.Tx, from, to common.Address, id *big.Int) error {
	return r.ledger.TransferFrom(tx, from, to, id)
}

func (r *Registry) SafeTransferFrom(tx *chain.Tx, from, to common.Address, id *big.Int, data []byte) error {
	return r.ledger.SafeTransferFrom(tx, from, to, id, data)
}
