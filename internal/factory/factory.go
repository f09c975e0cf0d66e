package factory

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/feral-file/ff-collection-bridge/internal/access"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/collection"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// Kind is the proxy flavour a factory deploys
type Kind string

const (
	KindMinimal Kind = "minimal"
	KindBeacon  Kind = "beacon"
)

// IncludesPayload reports whether the init payload is part of the salt hash
func (k Kind) IncludesPayload() bool {
	return k == KindBeacon
}

var (
	ProxyCreatedEvent      = chain.NewEvent("ProxyCreated", "address addr indexed", "bytes32 salt")
	ImplementationSetEvent = chain.NewEvent("ImplementationSet", "address implementation indexed", "bytes32 codeHash", "bytes code")
)

// Factory deploys collection proxies at deterministic addresses
type Factory struct {
	access.Ownable
	chain        *chain.Chain
	address      common.Address
	kind         Kind
	target       common.Address // implementation (minimal) or beacon (beacon)
	collections  []common.Address
	isCollection map[common.Address]bool
}

// NewMinimalProxyFactory creates a factory deploying minimal proxies pinned to impl
func NewMinimalProxyFactory(c *chain.Chain, addr, owner, impl common.Address) *Factory {
	return newFactory(c, addr, owner, KindMinimal, impl)
}

// NewBeaconProxyFactory creates a factory deploying proxies that follow beacon.
// The factory must own the beacon for SetImplementation to work.
func NewBeaconProxyFactory(c *chain.Chain, addr, owner, beacon common.Address) *Factory {
	return newFactory(c, addr, owner, KindBeacon, beacon)
}

func newFactory(c *chain.Chain, addr, owner common.Address, kind Kind, target common.Address) *Factory {
	return &Factory{
		Ownable:      access.NewOwnable(addr, owner),
		chain:        c,
		address:      addr,
		kind:         kind,
		target:       target,
		isCollection: make(map[common.Address]bool),
	}
}

// Address returns the factory address
func (f *Factory) Address() common.Address {
	return f.address
}

// Kind returns the proxy flavour of the factory
func (f *Factory) Kind() Kind {
	return f.kind
}

// Code returns the proxy creation code used for new deployments
func (f *Factory) Code() []byte {
	if f.kind == KindBeacon {
		return BeaconProxyCode(f.target)
	}
	return MinimalProxyCode(f.target)
}

// CodeHash returns keccak256 of Code
func (f *Factory) CodeHash() common.Hash {
	return crypto.Keccak256Hash(f.Code())
}

// Beacon returns the beacon address of a beacon factory
func (f *Factory) Beacon() (common.Address, bool) {
	if f.kind != KindBeacon {
		return common.Address{}, false
	}
	return f.target, true
}

// Implementation returns the implementation new proxies delegate to
func (f *Factory) Implementation() (common.Address, error) {
	if f.kind != KindBeacon {
		return f.target, nil
	}

	beacon, err := f.beacon()
	if err != nil {
		return common.Address{}, err
	}
	return beacon.Implementation(), nil
}

// GetAddress predicts where CreateCollection deploys for a salt, deployer and init payload
func (f *Factory) GetAddress(salt common.Hash, deployer common.Address, initPayload []byte) common.Address {
	return ComputeAddress(f.address, salt, deployer, initPayload, f.CodeHash(), f.kind.IncludesPayload())
}

// CreateCollection deploys a proxy at GetAddress(salt, sender, initPayload), initializes it
// and hands its ownership to the factory owner. Reusing a salt fails on the address collision.
func (f *Factory) CreateCollection(tx *chain.Tx, salt common.Hash, initPayload []byte) (common.Address, error) {
	if err := f.OnlyOwner(tx); err != nil {
		return common.Address{}, err
	}

	addr := f.GetAddress(salt, tx.Sender(), initPayload)

	var proxy *collection.Proxy
	if f.kind == KindBeacon {
		proxy = collection.NewBeaconProxy(f.chain, addr, f.target)
	} else {
		proxy = collection.NewMinimalProxy(f.chain, addr, f.target)
	}

	if err := tx.Deploy(addr, proxy); err != nil {
		return common.Address{}, err
	}

	owner := f.Owner()
	err := tx.Call(f.address, func(tx *chain.Tx) error {
		if err := proxy.Initialize(tx, initPayload); err != nil {
			return err
		}
		return proxy.TransferOwnership(tx, owner)
	})
	if err != nil {
		return common.Address{}, err
	}

	chain.Store(tx, &f.collections, append(f.collections, addr))
	f.isCollection[addr] = true
	tx.Journal(func() { delete(f.isCollection, addr) })

	if err := tx.Emit(f.address, ProxyCreatedEvent, addr, salt); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// SetImplementation changes the implementation. For minimal factories only future
// deployments (and so future addresses) are affected; for beacon factories the beacon
// is upgraded and every proxy already deployed follows.
func (f *Factory) SetImplementation(tx *chain.Tx, impl common.Address) error {
	if err := f.OnlyOwner(tx); err != nil {
		return err
	}
	if !tx.Chain().IsContract(impl) {
		return domain.NewRevert(domain.ErrNotAContract, "setImplementation: INVALID_IMPLEMENTATION")
	}

	if f.kind == KindBeacon {
		beacon, err := f.beacon()
		if err != nil {
			return err
		}
		return tx.Call(f.address, func(tx *chain.Tx) error {
			return beacon.UpgradeTo(tx, impl)
		})
	}

	chain.Store(tx, &f.target, impl)
	code := f.Code()
	return tx.Emit(f.address, ImplementationSetEvent, impl, crypto.Keccak256Hash(code), code)
}

// IsCollectionFromFactory reports whether addr was deployed by this factory
func (f *Factory) IsCollectionFromFactory(addr common.Address) bool {
	return f.isCollection[addr]
}

// Collections returns the deployed collections in deployment order
func (f *Factory) Collections() []common.Address {
	out := make([]common.Address, len(f.collections))
	copy(out, f.collections)
	return out
}

// CollectionsSize returns the number of deployed collections
func (f *Factory) CollectionsSize() int {
	return len(f.collections)
}

func (f *Factory) beacon() (*Beacon, error) {
	contract, ok := f.chain.ContractAt(f.target)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "BeaconProxyFactory: beacon is not a contract")
	}
	beacon, ok := contract.(*Beacon)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "BeaconProxyFactory: beacon is not a contract")
	}
	return beacon, nil
}
