package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// Tx is the execution context of a running transaction
type Tx struct {
	chain  *Chain
	origin common.Address
	frames []common.Address
	logs   []types.Log
	hash   common.Hash
	block  uint64
}

// Chain returns the chain the transaction runs on
func (tx *Tx) Chain() *Chain {
	return tx.chain
}

// Sender returns the immediate caller of the running frame
func (tx *Tx) Sender() common.Address {
	return tx.frames[len(tx.frames)-1]
}

// Origin returns the account that signed the transaction
func (tx *Tx) Origin() common.Address {
	return tx.origin
}

// Hash returns the transaction hash
func (tx *Tx) Hash() common.Hash {
	return tx.hash
}

// BlockNumber returns the number of the block the transaction is mined into
func (tx *Tx) BlockNumber() uint64 {
	return tx.block
}

// Depth returns the number of nested call frames
func (tx *Tx) Depth() int {
	return len(tx.frames) - 1
}

// Journal records how to undo a state change made by the running frame
func (tx *Tx) Journal(undo func()) {
	tx.chain.journal.append(undoFunc(undo))
}

// Store assigns v to *ptr and journals the previous value
func Store[T any](tx *Tx, ptr *T, v T) {
	prev := *ptr
	*ptr = v
	tx.Journal(func() { *ptr = prev })
}

// Call runs fn as a message call made by caller, so that Sender() inside fn is caller.
// A failing call reverts its own state changes and logs before the error is returned.
func (tx *Tx) Call(caller common.Address, fn func(tx *Tx) error) error {
	snap := snapshot{entries: tx.chain.journal.length(), logs: len(tx.logs)}

	tx.frames = append(tx.frames, caller)
	err := fn(tx)
	tx.frames = tx.frames[:len(tx.frames)-1]

	if err != nil {
		tx.chain.journal.revertTo(snap.entries)
		tx.logs = tx.logs[:snap.logs]
		return err
	}
	return nil
}

// Deploy places a contract at addr. It fails if the address already holds code.
func (tx *Tx) Deploy(addr common.Address, contract interface{}) error {
	c := tx.chain
	if _, ok := c.contracts[addr]; ok {
		return domain.Revertf(domain.ErrContractAddressCollision, "create: address %s already in use", addr.Hex())
	}

	c.contracts[addr] = contract
	tx.Journal(func() { delete(c.contracts, addr) })
	return nil
}

// Create deploys a contract at the CREATE address of deployer and bumps its nonce
func (tx *Tx) Create(deployer common.Address, contract interface{}) (common.Address, error) {
	c := tx.chain
	nonce := c.nonces[deployer]
	addr := crypto.CreateAddress(deployer, nonce)

	c.nonces[deployer] = nonce + 1
	tx.Journal(func() { c.nonces[deployer] = nonce })

	if err := tx.Deploy(addr, contract); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// Emit appends a log for event at addr. Arguments follow the order of event.Inputs;
// indexed ones become topics and the rest are ABI-packed into the log data.
func (tx *Tx) Emit(addr common.Address, event abi.Event, args ...interface{}) error {
	if len(args) != len(event.Inputs) {
		return fmt.Errorf("event %s: expected %d arguments, got %d", event.Name, len(event.Inputs), len(args))
	}

	topics := []common.Hash{event.ID}
	var data []interface{}
	for i, input := range event.Inputs {
		if !input.Indexed {
			data = append(data, args[i])
			continue
		}
		topic, err := topicOf(args[i])
		if err != nil {
			return fmt.Errorf("event %s: %w", event.Name, err)
		}
		topics = append(topics, topic)
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return fmt.Errorf("event %s: failed to pack data: %w", event.Name, err)
	}

	tx.logs = append(tx.logs, types.Log{
		Address:     addr,
		Topics:      topics,
		Data:        packed,
		BlockNumber: tx.block,
		TxHash:      tx.hash,
	})
	return nil
}

func topicOf(arg interface{}) (common.Hash, error) {
	switch v := arg.(type) {
	case common.Address:
		return common.BytesToHash(v.Bytes()), nil
	case *big.Int:
		return common.BigToHash(v), nil
	case common.Hash:
		return v, nil
	case [32]byte:
		return common.Hash(v), nil
	case uint64:
		return common.BigToHash(new(big.Int).SetUint64(v)), nil
	case string:
		return crypto.Keccak256Hash([]byte(v)), nil
	case []byte:
		return crypto.Keccak256Hash(v), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported indexed argument type %T", arg)
	}
}

// NewEvent builds an event definition from "type name" pairs; a trailing " indexed" marks topics.
// It panics on unknown types and is meant for package-level event tables.
func NewEvent(name string, inputs ...string) abi.Event {
	args := make(abi.Arguments, 0, len(inputs))
	for _, input := range inputs {
		var typ, argName, indexed string
		n, _ := fmt.Sscan(input, &typ, &argName, &indexed)
		if n < 2 {
			panic(fmt.Sprintf("event %s: malformed input %q", name, input))
		}
		args = append(args, abi.Argument{
			Name:    argName,
			Type:    MustType(typ),
			Indexed: indexed == "indexed",
		})
	}
	return abi.NewEvent(name, name, false, args)
}

// MustType returns an ABI type for an elementary type name
func MustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", name, err))
	}
	return t
}
