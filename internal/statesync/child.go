package statesync

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// StateReceiver is a child contract that accepts messages from root contracts
type StateReceiver interface {
	OnStateReceive(tx *chain.Tx, stateID *big.Int, rootSender common.Address, data []byte) error
}

// FxChild receives state-sync messages on the child chain and dispatches them
type FxChild struct {
	address common.Address
	fxRoot  common.Address
}

// NewFxChild creates an fx child at addr
func NewFxChild(addr common.Address) *FxChild {
	return &FxChild{address: addr}
}

func (f *FxChild) Address() common.Address {
	return f.address
}

func (f *FxChild) FxRoot() common.Address {
	return f.fxRoot
}

// SetFxRoot binds the fx root once
func (f *FxChild) SetFxRoot(tx *chain.Tx, fxRoot common.Address) error {
	if f.fxRoot != (common.Address{}) {
		return domain.NewRevert(domain.ErrUnauthorized, "FxChild: FX_ROOT_ALREADY_SET")
	}
	chain.Store(tx, &f.fxRoot, fxRoot)
	return nil
}

// OnStateReceive is called by the system account with a synced state. It unwraps
// the fx envelope and forwards the message to its receiver.
func (f *FxChild) OnStateReceive(tx *chain.Tx, stateID *big.Int, data []byte) error {
	if tx.Sender() != common.HexToAddress(domain.SYSTEM_SUPER_USER) {
		return domain.NewRevert(domain.ErrUnauthorized, "FxChild: INVALID_SENDER")
	}

	m, err := DecodeFxMessage(data)
	if err != nil {
		return domain.NewRevert(domain.ErrInvalidInput, "FxChild: INVALID_MESSAGE")
	}

	if err := tx.Emit(f.address, NewFxMessageEvent, m.RootMessageSender, m.Receiver, m.Data); err != nil {
		return err
	}

	contract, ok := tx.Chain().ContractAt(m.Receiver)
	if !ok {
		return domain.NewRevert(domain.ErrNotAContract, "FxChild: INVALID_RECEIVER")
	}
	receiver, ok := contract.(StateReceiver)
	if !ok {
		return domain.NewRevert(domain.ErrNotAContract, "FxChild: INVALID_RECEIVER")
	}

	return tx.Call(f.address, func(tx *chain.Tx) error {
		return receiver.OnStateReceive(tx, stateID, m.RootMessageSender, m.Data)
	})
}
