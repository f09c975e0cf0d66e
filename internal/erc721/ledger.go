package erc721

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

var (
	TransferEvent       = chain.NewEvent("Transfer", "address from indexed", "address to indexed", "uint256 tokenId indexed")
	ApprovalEvent       = chain.NewEvent("Approval", "address owner indexed", "address approved indexed", "uint256 tokenId indexed")
	ApprovalForAllEvent = chain.NewEvent("ApprovalForAll", "address owner indexed", "address operator indexed", "bool approved")
)

// Receiver is implemented by contracts that accept safe transfers
type Receiver interface {
	OnERC721Received(tx *chain.Tx, operator, from common.Address, tokenID *big.Int, data []byte) error
}

// Ledger holds non-fungible token ownership for the contract at Address.
// Every mutation is journaled on the running transaction.
type Ledger struct {
	address     common.Address
	owners      map[string]common.Address
	ids         map[string]*big.Int
	balances    map[common.Address]uint64
	approvals   map[string]common.Address
	operators   map[common.Address]map[common.Address]bool
	totalSupply uint64
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		owners:    make(map[string]common.Address),
		ids:       make(map[string]*big.Int),
		balances:  make(map[common.Address]uint64),
		approvals: make(map[string]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

// Bind sets the contract address used as the log emitter
func (l *Ledger) Bind(addr common.Address) {
	l.address = addr
}

// Address returns the contract address the ledger belongs to
func (l *Ledger) Address() common.Address {
	return l.address
}

func key(tokenID *big.Int) string {
	return tokenID.String()
}

// Exists reports whether the token has been minted and not burned
func (l *Ledger) Exists(tokenID *big.Int) bool {
	_, ok := l.owners[key(tokenID)]
	return ok
}

// OwnerOf returns the owner of a token
func (l *Ledger) OwnerOf(tokenID *big.Int) (common.Address, error) {
	owner, ok := l.owners[key(tokenID)]
	if !ok {
		return common.Address{}, domain.NewRevert(domain.ErrNonexistentToken, "ERC721: owner query for nonexistent token")
	}
	return owner, nil
}

// BalanceOf returns the number of tokens held by owner
func (l *Ledger) BalanceOf(owner common.Address) (uint64, error) {
	if owner == (common.Address{}) {
		return 0, domain.NewRevert(domain.ErrInvalidInput, "ERC721: balance query for the zero address")
	}
	return l.balances[owner], nil
}

// TotalSupply returns the number of live tokens
func (l *Ledger) TotalSupply() uint64 {
	return l.totalSupply
}

// TokensOf returns the ids held by owner in ascending order
func (l *Ledger) TokensOf(owner common.Address) []*big.Int {
	var ids []*big.Int
	for k, o := range l.owners {
		if o == owner {
			ids = append(ids, new(big.Int).Set(l.ids[k]))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}

// GetApproved returns the approved spender of a token
func (l *Ledger) GetApproved(tokenID *big.Int) (common.Address, error) {
	if !l.Exists(tokenID) {
		return common.Address{}, domain.NewRevert(domain.ErrNonexistentToken, "ERC721: approved query for nonexistent token")
	}
	return l.approvals[key(tokenID)], nil
}

// IsApprovedForAll reports whether operator may manage every token of owner
func (l *Ledger) IsApprovedForAll(owner, operator common.Address) bool {
	return l.operators[owner][operator]
}

// IsApprovedOrOwner reports whether spender may move the token
func (l *Ledger) IsApprovedOrOwner(spender common.Address, tokenID *big.Int) (bool, error) {
	owner, err := l.OwnerOf(tokenID)
	if err != nil {
		return false, err
	}
	return spender == owner || l.approvals[key(tokenID)] == spender || l.IsApprovedForAll(owner, spender), nil
}

// Mint creates a token owned by to
func (l *Ledger) Mint(tx *chain.Tx, to common.Address, tokenID *big.Int) error {
	if to == (common.Address{}) {
		return domain.NewRevert(domain.ErrInvalidInput, "ERC721: mint to the zero address")
	}
	if l.Exists(tokenID) {
		return domain.NewRevert(domain.ErrAlreadyMinted, "ERC721: token already minted")
	}

	l.setOwner(tx, tokenID, to)
	l.addBalance(tx, to, 1)
	l.addSupply(tx, 1)

	return tx.Emit(l.address, TransferEvent, common.Address{}, to, tokenID)
}

// Burn destroys a token. Callers are responsible for authorization.
func (l *Ledger) Burn(tx *chain.Tx, tokenID *big.Int) error {
	owner, err := l.OwnerOf(tokenID)
	if err != nil {
		return err
	}

	l.setApproval(tx, tokenID, common.Address{})
	l.deleteOwner(tx, tokenID)
	l.addBalance(tx, owner, -1)
	l.addSupply(tx, -1)

	return tx.Emit(l.address, TransferEvent, owner, common.Address{}, tokenID)
}

// Approve lets to move tokenID on behalf of its owner
func (l *Ledger) Approve(tx *chain.Tx, to common.Address, tokenID *big.Int) error {
	owner, err := l.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if to == owner {
		return domain.NewRevert(domain.ErrInvalidInput, "ERC721: approval to current owner")
	}
	if tx.Sender() != owner && !l.IsApprovedForAll(owner, tx.Sender()) {
		return domain.NewRevert(domain.ErrUnauthorized, "ERC721: approve caller is not owner nor approved for all")
	}

	l.setApproval(tx, tokenID, to)
	return tx.Emit(l.address, ApprovalEvent, owner, to, tokenID)
}

// SetApprovalForAll lets operator manage every token of the sender
func (l *Ledger) SetApprovalForAll(tx *chain.Tx, operator common.Address, approved bool) error {
	owner := tx.Sender()
	if operator == owner {
		return domain.NewRevert(domain.ErrInvalidInput, "ERC721: approve to caller")
	}

	prev := l.operators[owner][operator]
	l.setOperator(owner, operator, approved)
	tx.Journal(func() { l.setOperator(owner, operator, prev) })

	return tx.Emit(l.address, ApprovalForAllEvent, owner, operator, approved)
}

// TransferFrom moves tokenID from from to to. The sender must be the owner or approved.
func (l *Ledger) TransferFrom(tx *chain.Tx, from, to common.Address, tokenID *big.Int) error {
	ok, err := l.IsApprovedOrOwner(tx.Sender(), tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewRevert(domain.ErrUnauthorized, "ERC721: transfer caller is not owner nor approved")
	}

	return l.transfer(tx, from, to, tokenID)
}

// SafeTransferFrom is TransferFrom plus the receiver acceptance check for contract recipients
func (l *Ledger) SafeTransferFrom(tx *chain.Tx, from, to common.Address, tokenID *big.Int, data []byte) error {
	if err := l.TransferFrom(tx, from, to, tokenID); err != nil {
		return err
	}

	target, isContract := tx.Chain().ContractAt(to)
	if !isContract {
		return nil
	}

	receiver, ok := target.(Receiver)
	if !ok {
		return domain.NewRevert(domain.ErrInvalidInput, "ERC721: transfer to non ERC721Receiver implementer")
	}

	operator := tx.Sender()
	return tx.Call(l.address, func(tx *chain.Tx) error {
		return receiver.OnERC721Received(tx, operator, from, tokenID, data)
	})
}

func (l *Ledger) transfer(tx *chain.Tx, from, to common.Address, tokenID *big.Int) error {
	owner, err := l.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if owner != from {
		return domain.NewRevert(domain.ErrUnauthorized, "ERC721: transfer of token that is not own")
	}
	if to == (common.Address{}) {
		return domain.NewRevert(domain.ErrInvalidInput, "ERC721: transfer to the zero address")
	}

	l.setApproval(tx, tokenID, common.Address{})
	l.addBalance(tx, from, -1)
	l.addBalance(tx, to, 1)
	l.setOwner(tx, tokenID, to)

	return tx.Emit(l.address, TransferEvent, from, to, tokenID)
}

func (l *Ledger) setOwner(tx *chain.Tx, tokenID *big.Int, owner common.Address) {
	k := key(tokenID)
	prev, existed := l.owners[k]
	l.owners[k] = owner
	l.ids[k] = new(big.Int).Set(tokenID)
	tx.Journal(func() {
		if existed {
			l.owners[k] = prev
			return
		}
		delete(l.owners, k)
		delete(l.ids, k)
	})
}

func (l *Ledger) deleteOwner(tx *chain.Tx, tokenID *big.Int) {
	k := key(tokenID)
	prev := l.owners[k]
	id := l.ids[k]
	delete(l.owners, k)
	delete(l.ids, k)
	tx.Journal(func() {
		l.owners[k] = prev
		l.ids[k] = id
	})
}

func (l *Ledger) setApproval(tx *chain.Tx, tokenID *big.Int, spender common.Address) {
	k := key(tokenID)
	prev, existed := l.approvals[k]
	if spender == (common.Address{}) {
		delete(l.approvals, k)
	} else {
		l.approvals[k] = spender
	}
	tx.Journal(func() {
		if existed {
			l.approvals[k] = prev
			return
		}
		delete(l.approvals, k)
	})
}

func (l *Ledger) setOperator(owner, operator common.Address, approved bool) {
	if l.operators[owner] == nil {
		l.operators[owner] = make(map[common.Address]bool)
	}
	if approved {
		l.operators[owner][operator] = true
		return
	}
	delete(l.operators[owner], operator)
}

func (l *Ledger) addBalance(tx *chain.Tx, owner common.Address, delta int64) {
	prev := l.balances[owner]
	l.balances[owner] = uint64(int64(prev) + delta)
	tx.Journal(func() { l.balances[owner] = prev })
}

func (l *Ledger) addSupply(tx *chain.Tx, delta int64) {
	prev := l.totalSupply
	l.totalSupply = uint64(int64(prev) + delta)
	tx.Journal(func() { l.totalSupply = prev })
}
