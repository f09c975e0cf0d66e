package collection

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// ImplementationSource is a contract that tells beacon proxies where their logic lives
type ImplementationSource interface {
	Implementation() common.Address
}

// Proxy is a deployed collection instance. It owns its storage and delegates every
// call to the logic contract it resolves on each call, either directly (minimal
// proxy) or through a beacon.
type Proxy struct {
	chain   *chain.Chain
	address common.Address
	target  common.Address
	beacon  bool
	storage *Storage
}

// NewMinimalProxy creates a proxy at addr delegating to the logic deployed at impl
func NewMinimalProxy(c *chain.Chain, addr, impl common.Address) *Proxy {
	return &Proxy{
		chain:   c,
		address: addr,
		target:  impl,
		storage: NewStorage(addr),
	}
}

// NewBeaconProxy creates a proxy at addr delegating to whatever logic the beacon points at
func NewBeaconProxy(c *chain.Chain, addr, beacon common.Address) *Proxy {
	return &Proxy{
		chain:   c,
		address: addr,
		target:  beacon,
		beacon:  true,
		storage: NewStorage(addr),
	}
}

// Address returns the address of the proxy
func (p *Proxy) Address() common.Address {
	return p.address
}

// IsBeaconProxy reports whether the proxy resolves its logic through a beacon
func (p *Proxy) IsBeaconProxy() bool {
	return p.beacon
}

// Implementation returns the address of the logic contract currently in use
func (p *Proxy) Implementation() (common.Address, error) {
	if !p.beacon {
		return p.target, nil
	}

	contract, ok := p.chain.ContractAt(p.target)
	if !ok {
		return common.Address{}, domain.NewRevert(domain.ErrNotAContract, "BeaconProxy: beacon is not a contract")
	}
	source, ok := contract.(ImplementationSource)
	if !ok {
		return common.Address{}, domain.NewRevert(domain.ErrNotAContract, "BeaconProxy: beacon is not a contract")
	}
	return source.Implementation(), nil
}

func (p *Proxy) logic() (Logic, error) {
	impl, err := p.Implementation()
	if err != nil {
		return nil, err
	}

	contract, ok := p.chain.ContractAt(impl)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "Proxy: implementation is not a contract")
	}
	logic, ok := contract.(Logic)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "Proxy: implementation is not a collection")
	}
	return logic, nil
}

// Version returns the version of the logic currently in use
func (p *Proxy) Version() (string, error) {
	logic, err := p.logic()
	if err != nil {
		return "", err
	}
	return logic.Version(), nil
}

func (p *Proxy) Initialize(tx *chain.Tx, payload []byte) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.Initialize(tx, p.storage, payload)
}

func (p *Proxy) AddItems(tx *chain.Tx, items []ItemPayload) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.AddItems(tx, p.storage, items)
}

func (p *Proxy) IssueTokens(tx *chain.Tx, beneficiaries []common.Address, itemIDs []*big.Int) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.IssueTokens(tx, p.storage, beneficiaries, itemIDs)
}

func (p *Proxy) SetBaseURI(tx *chain.Tx, baseURI string) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.SetBaseURI(tx, p.storage, baseURI)
}

func (p *Proxy) TransferOwnership(tx *chain.Tx, newOwner common.Address) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.TransferOwnership(tx, p.storage, newOwner)
}

func (p *Proxy) TransferFrom(tx *chain.Tx, from, to common.Address, tokenID *big.Int) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.TransferFrom(tx, p.storage, from, to, tokenID)
}

func (p *Proxy) SafeTransferFrom(tx *chain.Tx, from, to common.Address, tokenID *big.Int, data []byte) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.SafeTransferFrom(tx, p.storage, from, to, tokenID, data)
}

func (p *Proxy) Approve(tx *chain.Tx, to common.Address, tokenID *big.Int) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.Approve(tx, p.storage, to, tokenID)
}

func (p *Proxy) SetApprovalForAll(tx *chain.Tx, operator common.Address, approved bool) error {
	logic, err := p.logic()
	if err != nil {
		return err
	}
	return logic.SetApprovalForAll(tx, p.storage, operator, approved)
}

// TokenURI returns the metadata URI of a token as computed by the current logic
func (p *Proxy) TokenURI(tokenID *big.Int) (string, error) {
	logic, err := p.logic()
	if err != nil {
		return "", err
	}
	return logic.TokenURI(p.storage, p.chain.ChainID(), tokenID)
}

func (p *Proxy) OwnerOf(tokenID *big.Int) (common.Address, error) {
	return p.storage.Ledger.OwnerOf(tokenID)
}

func (p *Proxy) BalanceOf(owner common.Address) (uint64, error) {
	return p.storage.Ledger.BalanceOf(owner)
}

func (p *Proxy) TotalSupply() uint64 {
	return p.storage.Ledger.TotalSupply()
}

func (p *Proxy) GetApproved(tokenID *big.Int) (common.Address, error) {
	return p.storage.Ledger.GetApproved(tokenID)
}

func (p *Proxy) IsApprovedForAll(owner, operator common.Address) bool {
	return p.storage.Ledger.IsApprovedForAll(owner, operator)
}

func (p *Proxy) Owner() common.Address {
	return p.storage.Owner
}

func (p *Proxy) Creator() common.Address {
	return p.storage.Creator
}

func (p *Proxy) Name() string {
	return p.storage.Name
}

func (p *Proxy) Symbol() string {
	return p.storage.Symbol
}

func (p *Proxy) BaseURI() string {
	return p.storage.BaseURI
}

func (p *Proxy) IsInitialized() bool {
	return p.storage.Initialized
}

// ItemsCount returns the number of items of the collection
func (p *Proxy) ItemsCount() int {
	return len(p.storage.Items)
}

// Item returns a copy of an item
func (p *Proxy) Item(itemID int) (Item, bool) {
	if itemID < 0 || itemID >= len(p.storage.Items) {
		return Item{}, false
	}
	item := *p.storage.Items[itemID]
	item.MaxSupply = new(big.Int).Set(item.MaxSupply)
	item.TotalSupply = new(big.Int).Set(item.TotalSupply)
	item.Price = new(big.Int).Set(item.Price)
	return item, true
}

// TokensOf returns the tokens held by owner
func (p *Proxy) TokensOf(owner common.Address) []*big.Int {
	return p.storage.Ledger.TokensOf(owner)
}
