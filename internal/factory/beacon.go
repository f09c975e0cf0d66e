package factory

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/access"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

var UpgradedEvent = chain.NewEvent("Upgraded", "address implementation indexed")

// Beacon tracks the implementation shared by every beacon proxy that points at it
type Beacon struct {
	access.Ownable
	address        common.Address
	implementation common.Address
}

// NewBeacon creates a beacon at addr. Deploy it with tx.Deploy.
func NewBeacon(addr, owner, impl common.Address) *Beacon {
	return &Beacon{
		Ownable:        access.NewOwnable(addr, owner),
		address:        addr,
		implementation: impl,
	}
}

// Address returns the beacon address
func (b *Beacon) Address() common.Address {
	return b.address
}

// Implementation returns the current implementation
func (b *Beacon) Implementation() common.Address {
	return b.implementation
}

// UpgradeTo points the beacon, and so every proxy using it, at impl
func (b *Beacon) UpgradeTo(tx *chain.Tx, impl common.Address) error {
	if err := b.OnlyOwner(tx); err != nil {
		return err
	}
	if !tx.Chain().IsContract(impl) {
		return domain.NewRevert(domain.ErrNotAContract, "UpgradeableBeacon: implementation is not a contract")
	}

	chain.Store(tx, &b.implementation, impl)
	return tx.Emit(b.address, UpgradedEvent, impl)
}
