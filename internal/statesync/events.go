package statesync

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
)

var (
	// StateSyncedEvent is emitted by the state sender for every root to child message
	StateSyncedEvent = chain.NewEvent("StateSynced", "uint256 id indexed", "address contractAddress indexed", "bytes data")
	// NewFxMessageEvent is emitted by the fx child before dispatching a message
	NewFxMessageEvent = chain.NewEvent("NewFxMessage", "address rootMessageSender", "address receiver", "bytes data")
	// MessageSentEvent is emitted by child tunnels for every child to root message
	MessageSentEvent = chain.NewEvent("MessageSent", "bytes message")
	// NewCheckpointEvent is emitted when the proposer checkpoints a batch of exits
	NewCheckpointEvent = chain.NewEvent("NewCheckpoint", "address proposer indexed", "uint256 checkpointId indexed", "bytes32 root", "uint256 exits")

	fxMessageArguments = abi.Arguments{
		{Name: "rootMessageSender", Type: chain.MustType("address")},
		{Name: "receiver", Type: chain.MustType("address")},
		{Name: "data", Type: chain.MustType("bytes")},
	}

	exitArguments = abi.Arguments{
		{Name: "exitId", Type: chain.MustType("uint256")},
		{Name: "sender", Type: chain.MustType("address")},
		{Name: "message", Type: chain.MustType("bytes")},
	}
)

// StateSynced is a decoded StateSynced log
type StateSynced struct {
	ID       *big.Int
	Receiver common.Address
	Data     []byte
}

// ParseStateSynced decodes a StateSynced log
func ParseStateSynced(log types.Log) (*StateSynced, error) {
	if len(log.Topics) != 3 || log.Topics[0] != StateSyncedEvent.ID {
		return nil, fmt.Errorf("not a StateSynced log")
	}

	values, err := StateSyncedEvent.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack StateSynced data: %w", err)
	}

	return &StateSynced{
		ID:       log.Topics[1].Big(),
		Receiver: common.BytesToAddress(log.Topics[2].Bytes()),
		Data:     values[0].([]byte),
	}, nil
}

// ParseMessageSent decodes a MessageSent log into the raw message
func ParseMessageSent(log types.Log) ([]byte, error) {
	if len(log.Topics) != 1 || log.Topics[0] != MessageSentEvent.ID {
		return nil, fmt.Errorf("not a MessageSent log")
	}

	values, err := MessageSentEvent.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack MessageSent data: %w", err)
	}
	return values[0].([]byte), nil
}

// FxMessage is the envelope the fx root wraps around every root to child message
type FxMessage struct {
	RootMessageSender common.Address
	Receiver          common.Address
	Data              []byte
}

// EncodeFxMessage encodes abi.encode(rootMessageSender, receiver, data)
func EncodeFxMessage(m FxMessage) ([]byte, error) {
	data, err := fxMessageArguments.Pack(m.RootMessageSender, m.Receiver, m.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fx message: %w", err)
	}
	return data, nil
}

// DecodeFxMessage decodes an fx envelope
func DecodeFxMessage(data []byte) (*FxMessage, error) {
	var m FxMessage
	values, err := fxMessageArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fx message: %w", err)
	}
	if err := fxMessageArguments.Copy(&m, values); err != nil {
		return nil, fmt.Errorf("failed to decode fx message: %w", err)
	}
	return &m, nil
}

// Exit is a child to root message as proven to the root chain
type Exit struct {
	ExitId  *big.Int
	Sender  common.Address
	Message []byte
}

// ExitID derives the exit id of a MessageSent log from its position on the child chain
func ExitID(blockNumber uint64, logIndex uint) *big.Int {
	id := new(big.Int).SetUint64(blockNumber)
	id.Lsh(id, 32)
	return id.Or(id, new(big.Int).SetUint64(uint64(logIndex)))
}

// EncodeExit builds the input data of Root.ReceiveMessage:
// abi.encode(uint256 exitId, address sender, bytes message)
func EncodeExit(e Exit) ([]byte, error) {
	data, err := exitArguments.Pack(e.ExitId, e.Sender, e.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to encode exit: %w", err)
	}
	return data, nil
}

// DecodeExit decodes exit input data
func DecodeExit(data []byte) (*Exit, error) {
	var e Exit
	values, err := exitArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exit: %w", err)
	}
	if err := exitArguments.Copy(&e, values); err != nil {
		return nil, fmt.Errorf("failed to decode exit: %w", err)
	}
	return &e, nil
}

// ExitHash identifies an exit by the hash of its canonical encoding
func ExitHash(e *Exit) (common.Hash, error) {
	data, err := EncodeExit(*e)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}
