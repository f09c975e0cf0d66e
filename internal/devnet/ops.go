package devnet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/collection"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/factory"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/statesync"
	"github.com/feral-file/ff-collection-bridge/internal/validator"
)

// AuxData returns the validator aux data for collections of the given factory kind
func (n *Network) AuxData(kind factory.Kind) ([]byte, error) {
	f, err := n.Factory(kind)
	if err != nil {
		return nil, err
	}
	return validator.EncodeAuxData(f.Address())
}

// CreateCollection deploys a collection through the factory of the given kind as the owner
func (n *Network) CreateCollection(kind factory.Kind, salt common.Hash, initPayload []byte) (common.Address, error) {
	f, err := n.Factory(kind)
	if err != nil {
		return common.Address{}, err
	}

	var addr common.Address
	_, err = n.Root.Execute(n.Config.Owner, func(tx *chain.Tx) error {
		var err error
		addr, err = f.CreateCollection(tx, salt, initPayload)
		return err
	})
	if err != nil {
		return common.Address{}, err
	}

	logger.Info("Created collection", zap.String("kind", string(kind)), zap.String("address", addr.Hex()))
	return addr, nil
}

// IssueTokens issues the next token of each item to the matching beneficiary and
// returns the issued token ids
func (n *Network) IssueTokens(addr common.Address, beneficiaries []common.Address, itemIDs []*big.Int) ([]*big.Int, error) {
	proxy, err := n.Collection(addr)
	if err != nil {
		return nil, err
	}

	receipt, err := n.Root.Execute(n.Config.Owner, func(tx *chain.Tx) error {
		return proxy.IssueTokens(tx, beneficiaries, itemIDs)
	})
	if err != nil {
		return nil, err
	}

	var ids []*big.Int
	for _, log := range receipt.Logs {
		if len(log.Topics) == 4 && log.Topics[0] == collection.IssueEvent.ID {
			ids = append(ids, log.Topics[2].Big())
		}
	}
	return ids, nil
}

// SetApprovalForAll lets operator move every collection token of sender
func (n *Network) SetApprovalForAll(sender, addr, operator common.Address, approved bool) error {
	proxy, err := n.Collection(addr)
	if err != nil {
		return err
	}

	_, err = n.Root.Execute(sender, func(tx *chain.Tx) error {
		return proxy.SetApprovalForAll(tx, operator, approved)
	})
	return err
}

// DepositFor locks items of sender in the root tunnel and returns the state id of the message
func (n *Network) DepositFor(sender, beneficiary common.Address, items []domain.DepositItem) (*big.Int, *chain.Receipt, error) {
	var stateID *big.Int
	receipt, err := n.Root.Execute(sender, func(tx *chain.Tx) error {
		var err error
		stateID, err = n.RootTunnel.DepositFor(tx, beneficiary, items)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return stateID, receipt, nil
}

// WithdrawFor burns bridged tokens of sender and emits the message to the root tunnel
func (n *Network) WithdrawFor(sender, beneficiary common.Address, tokenIDs []*big.Int) (*chain.Receipt, error) {
	return n.Child.Execute(sender, func(tx *chain.Tx) error {
		return n.ChildTunnel.WithdrawFor(tx, beneficiary, tokenIDs)
	})
}

// DeliverStateSync hands a synced state to the fx child as the system account
func (n *Network) DeliverStateSync(stateID *big.Int, data []byte) (*chain.Receipt, error) {
	return n.Child.Execute(common.HexToAddress(domain.SYSTEM_SUPER_USER), func(tx *chain.Tx) error {
		return n.FxChild.OnStateReceive(tx, stateID, data)
	})
}

// ExitFromLog builds the exit of a MessageSent log of the child chain
func ExitFromLog(log types.Log) (*statesync.Exit, error) {
	message, err := statesync.ParseMessageSent(log)
	if err != nil {
		return nil, err
	}
	return &statesync.Exit{
		ExitId:  statesync.ExitID(log.BlockNumber, log.Index),
		Sender:  log.Address,
		Message: message,
	}, nil
}

// Checkpoint submits the exit as the proposer and returns the input data to receive it with
func (n *Network) Checkpoint(exit statesync.Exit) ([]byte, error) {
	input, err := statesync.EncodeExit(exit)
	if err != nil {
		return nil, err
	}

	_, err = n.Root.Execute(n.Config.Proposer, func(tx *chain.Tx) error {
		_, err := n.CheckpointManager.SubmitCheckpoint(tx, [][]byte{input})
		return err
	})
	if err != nil {
		return nil, err
	}
	return input, nil
}

// ReceiveMessage submits a checkpointed exit to the root tunnel
func (n *Network) ReceiveMessage(sender common.Address, input []byte) (*chain.Receipt, error) {
	return n.Root.Execute(sender, func(tx *chain.Tx) error {
		return n.RootTunnel.ReceiveMessage(tx, input)
	})
}

// Deliver relays a bridge message to the chain it is addressed to. Root to child
// messages are handed to the fx child; child to root messages are checkpointed
// and received by the root tunnel, both on behalf of the proposer.
func (n *Network) Deliver(ctx context.Context, msg domain.BridgeMessage) error {
	switch msg.Direction {
	case domain.DirectionRootToChild:
		if msg.Receiver != n.FxChild.Address() {
			return fmt.Errorf("%w: message %d is addressed to %s", domain.ErrInvalidInput, msg.ID, msg.Receiver.Hex())
		}
		if _, err := n.DeliverStateSync(new(big.Int).SetUint64(msg.ID), msg.Data); err != nil {
			return err
		}

	case domain.DirectionChildToRoot:
		input, err := n.Checkpoint(statesync.Exit{
			ExitId:  new(big.Int).SetUint64(msg.ID),
			Sender:  msg.Sender,
			Message: msg.Data,
		})
		if err != nil {
			return err
		}
		if _, err := n.ReceiveMessage(n.Config.Proposer, input); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidInput, msg.Direction)
	}

	logger.InfoCtx(ctx, "Delivered bridge message",
		zap.String("key", msg.Key()),
		zap.String("direction", string(msg.Direction)),
		zap.Uint64("id", msg.ID),
	)
	return nil
}
