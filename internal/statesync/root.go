package statesync

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// StateSender numbers root to child messages and logs them for the bridge validators
type StateSender struct {
	address common.Address
	counter *big.Int
}

// NewStateSender creates a state sender at addr
func NewStateSender(addr common.Address) *StateSender {
	return &StateSender{address: addr, counter: new(big.Int)}
}

func (s *StateSender) Address() common.Address {
	return s.address
}

// Counter returns the id of the last synced message
func (s *StateSender) Counter() *big.Int {
	return new(big.Int).Set(s.counter)
}

// SyncState assigns the next id to data and emits StateSynced
func (s *StateSender) SyncState(tx *chain.Tx, receiver common.Address, data []byte) (*big.Int, error) {
	id := new(big.Int).Add(s.counter, big.NewInt(1))
	chain.Store(tx, &s.counter, id)

	if err := tx.Emit(s.address, StateSyncedEvent, id, receiver, data); err != nil {
		return nil, err
	}
	return new(big.Int).Set(id), nil
}

// FxRoot forwards messages of root contracts to the fx child through the state sender
type FxRoot struct {
	address     common.Address
	stateSender common.Address
	fxChild     common.Address
}

// NewFxRoot creates an fx root at addr
func NewFxRoot(addr, stateSender common.Address) *FxRoot {
	return &FxRoot{address: addr, stateSender: stateSender}
}

func (f *FxRoot) Address() common.Address {
	return f.address
}

func (f *FxRoot) FxChild() common.Address {
	return f.fxChild
}

// SetFxChild binds the fx child once
func (f *FxRoot) SetFxChild(tx *chain.Tx, fxChild common.Address) error {
	if f.fxChild != (common.Address{}) {
		return domain.NewRevert(domain.ErrUnauthorized, "FxRoot: FX_CHILD_ALREADY_SET")
	}
	chain.Store(tx, &f.fxChild, fxChild)
	return nil
}

// SendMessageToChild wraps (sender, receiver, data) and syncs it to the fx child
func (f *FxRoot) SendMessageToChild(tx *chain.Tx, receiver common.Address, data []byte) (*big.Int, error) {
	envelope, err := EncodeFxMessage(FxMessage{
		RootMessageSender: tx.Sender(),
		Receiver:          receiver,
		Data:              data,
	})
	if err != nil {
		return nil, domain.NewRevert(domain.ErrInvalidInput, "FxRoot: INVALID_MESSAGE")
	}

	contract, ok := tx.Chain().ContractAt(f.stateSender)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "FxRoot: INVALID_STATE_SENDER")
	}
	sender, ok := contract.(*StateSender)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "FxRoot: INVALID_STATE_SENDER")
	}

	var id *big.Int
	err = tx.Call(f.address, func(tx *chain.Tx) error {
		var err error
		id, err = sender.SyncState(tx, f.fxChild, envelope)
		return err
	})
	return id, err
}

// CheckpointManager records the child to root exits a proposer has checkpointed
type CheckpointManager struct {
	address     common.Address
	proposer    common.Address
	checkpoints *big.Int
	exits       map[common.Hash]bool
}

// NewCheckpointManager creates a checkpoint manager at addr
func NewCheckpointManager(addr, proposer common.Address) *CheckpointManager {
	return &CheckpointManager{
		address:     addr,
		proposer:    proposer,
		checkpoints: new(big.Int),
		exits:       make(map[common.Hash]bool),
	}
}

func (m *CheckpointManager) Address() common.Address {
	return m.address
}

func (m *CheckpointManager) Proposer() common.Address {
	return m.proposer
}

// SubmitCheckpoint makes a batch of exits provable on the root chain
func (m *CheckpointManager) SubmitCheckpoint(tx *chain.Tx, exits [][]byte) (*big.Int, error) {
	if tx.Sender() != m.proposer {
		return nil, domain.NewRevert(domain.ErrUnauthorized, "CheckpointManager: INVALID_PROPOSER")
	}
	if len(exits) == 0 {
		return nil, domain.NewRevert(domain.ErrInvalidInput, "CheckpointManager: EMPTY_CHECKPOINT")
	}

	hashes := make([]byte, 0, len(exits)*common.HashLength)
	for _, input := range exits {
		exit, err := DecodeExit(input)
		if err != nil {
			return nil, domain.NewRevert(domain.ErrInvalidInput, "CheckpointManager: INVALID_EXIT")
		}

		hash, err := ExitHash(exit)
		if err != nil {
			return nil, domain.NewRevert(domain.ErrInvalidInput, "CheckpointManager: INVALID_EXIT")
		}
		hashes = append(hashes, hash.Bytes()...)
		if m.exits[hash] {
			continue
		}
		m.exits[hash] = true
		tx.Journal(func() { delete(m.exits, hash) })
	}

	id := new(big.Int).Add(m.checkpoints, big.NewInt(1))
	chain.Store(tx, &m.checkpoints, id)

	root := crypto.Keccak256Hash(hashes)
	if err := tx.Emit(m.address, NewCheckpointEvent, tx.Sender(), id, root, big.NewInt(int64(len(exits)))); err != nil {
		return nil, err
	}
	return new(big.Int).Set(id), nil
}

// VerifyExit decodes exit input data and checks it was checkpointed
func (m *CheckpointManager) VerifyExit(inputData []byte) (*Exit, error) {
	exit, err := DecodeExit(inputData)
	if err != nil {
		return nil, domain.NewRevert(domain.ErrInvalidInput, "CheckpointManager: INVALID_EXIT")
	}
	hash, err := ExitHash(exit)
	if err != nil {
		return nil, domain.NewRevert(domain.ErrInvalidInput, "CheckpointManager: INVALID_EXIT")
	}
	if !m.exits[hash] {
		return nil, domain.NewRevert(domain.ErrUnauthorized, "CheckpointManager: EXIT_NOT_CHECKPOINTED")
	}
	return exit, nil
}
