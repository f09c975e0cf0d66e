package access

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

var OwnershipTransferredEvent = chain.NewEvent("OwnershipTransferred", "address previousOwner indexed", "address newOwner indexed")

// Ownable is single-owner access control for a contract
type Ownable struct {
	address common.Address
	owner   common.Address
}

// NewOwnable creates the access control of the contract at addr
func NewOwnable(addr, owner common.Address) Ownable {
	return Ownable{address: addr, owner: owner}
}

// Owner returns the current owner
func (o *Ownable) Owner() common.Address {
	return o.owner
}

// OnlyOwner fails unless the running frame was called by the owner
func (o *Ownable) OnlyOwner(tx *chain.Tx) error {
	if tx.Sender() != o.owner {
		return domain.NewRevert(domain.ErrUnauthorized, "Ownable: caller is not the owner")
	}
	return nil
}

// TransferOwnership hands the contract to newOwner
func (o *Ownable) TransferOwnership(tx *chain.Tx, newOwner common.Address) error {
	if err := o.OnlyOwner(tx); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return domain.NewRevert(domain.ErrInvalidInput, "Ownable: new owner is the zero address")
	}

	previous := o.owner
	chain.Store(tx, &o.owner, newOwner)
	return tx.Emit(o.address, OwnershipTransferredEvent, previous, newOwner)
}
