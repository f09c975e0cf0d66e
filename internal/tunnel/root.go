package tunnel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/access"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/statesync"
)

// Collection is the part of a collection contract the bridge relies on
type Collection interface {
	OwnerOf(tokenID *big.Int) (common.Address, error)
	TokenURI(tokenID *big.Int) (string, error)
	TransferFrom(tx *chain.Tx, from, to common.Address, tokenID *big.Int) error
	SafeTransferFrom(tx *chain.Tx, from, to common.Address, tokenID *big.Int, data []byte) error
}

// CollectionValidator decides which collections may be bridged
type CollectionValidator interface {
	IsValidCollection(addr common.Address, auxData []byte) (bool, error)
}

// Root locks collection tokens on the root chain and unlocks them when a
// checkpointed withdrawal of the child tunnel is received
type Root struct {
	access.Ownable
	chain               *chain.Chain
	address             common.Address
	checkpointManager   common.Address
	fxRoot              common.Address
	fxChildTunnel       common.Address
	collectionValidator common.Address
	maxTokensPerTx      uint64
	processedExits      map[common.Hash]bool
}

// NewRoot creates a root tunnel at addr
func NewRoot(c *chain.Chain, addr, owner, checkpointManager, fxRoot, collectionValidator common.Address) *Root {
	return &Root{
		Ownable:             access.NewOwnable(addr, owner),
		chain:               c,
		address:             addr,
		checkpointManager:   checkpointManager,
		fxRoot:              fxRoot,
		collectionValidator: collectionValidator,
		maxTokensPerTx:      domain.DEFAULT_MAX_TOKENS_PER_TX,
		processedExits:      make(map[common.Hash]bool),
	}
}

func (r *Root) Address() common.Address {
	return r.address
}

func (r *Root) CheckpointManager() common.Address {
	return r.checkpointManager
}

func (r *Root) FxRoot() common.Address {
	return r.fxRoot
}

func (r *Root) FxChildTunnel() common.Address {
	return r.fxChildTunnel
}

func (r *Root) CollectionValidator() common.Address {
	return r.collectionValidator
}

func (r *Root) MaxTokensPerTx() uint64 {
	return r.maxTokensPerTx
}

// IsExitProcessed reports whether the exit with the given hash was already received
func (r *Root) IsExitProcessed(hash common.Hash) bool {
	return r.processedExits[hash]
}

// SetFxChildTunnel binds the child tunnel. It can only be set once.
func (r *Root) SetFxChildTunnel(tx *chain.Tx, tunnel common.Address) error {
	if err := r.OnlyOwner(tx); err != nil {
		return err
	}
	if r.fxChildTunnel != (common.Address{}) {
		return domain.NewRevert(domain.ErrUnauthorized, "FxBaseRootTunnel: CHILD_TUNNEL_ALREADY_SET")
	}

	chain.Store(tx, &r.fxChildTunnel, tunnel)
	return tx.Emit(r.address, FxChildTunnelSetEvent, tunnel)
}

func (r *Root) SetMaxTokensPerTx(tx *chain.Tx, max uint64) error {
	if err := r.OnlyOwner(tx); err != nil {
		return err
	}

	chain.Store(tx, &r.maxTokensPerTx, max)
	return tx.Emit(r.address, MaxTokensPerTxSetEvent, new(big.Int).SetUint64(max))
}

func (r *Root) SetCollectionValidator(tx *chain.Tx, validator common.Address) error {
	if err := r.OnlyOwner(tx); err != nil {
		return err
	}

	chain.Store(tx, &r.collectionValidator, validator)
	return tx.Emit(r.address, CollectionValidatorSetEvent, validator)
}

// OnERC721Received accepts every token sent to the tunnel
func (r *Root) OnERC721Received(_ *chain.Tx, _, _ common.Address, _ *big.Int, _ []byte) error {
	return nil
}

// DepositFor locks the caller's tokens and syncs their bridged representation to
// beneficiary on the child chain. Every item is validated before any token moves.
func (r *Root) DepositFor(tx *chain.Tx, beneficiary common.Address, items []domain.DepositItem) (*big.Int, error) {
	if uint64(len(items)) > r.maxTokensPerTx {
		return nil, domain.NewRevert(domain.ErrMaxTokensExceeded, "CBR#depositFor: MAX_TOKENS_PER_TX_EXCEEDED")
	}

	validator, err := r.validator()
	if err != nil {
		return nil, err
	}

	collections := make([]Collection, len(items))
	for i, item := range items {
		if item.TokenId == nil {
			return nil, domain.NewRevert(domain.ErrInvalidInput, "CBR#depositFor: INVALID_TOKEN_ID")
		}

		valid, err := validator.IsValidCollection(item.Collection, item.AuxData)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, domain.NewRevert(domain.ErrInvalidCollection, "CBR#depositFor: INVALID_COLLECTION")
		}

		collection, ok := r.collectionAt(item.Collection)
		if !ok {
			return nil, domain.NewRevert(domain.ErrInvalidCollection, "CBR#depositFor: INVALID_COLLECTION")
		}
		collections[i] = collection
	}

	depositor := tx.Sender()
	tokens := make([]domain.TokenPayload, len(items))
	err = tx.Call(r.address, func(tx *chain.Tx) error {
		for i, item := range items {
			if err := collections[i].SafeTransferFrom(tx, depositor, r.address, item.TokenId, nil); err != nil {
				return err
			}

			uri, err := collections[i].TokenURI(item.TokenId)
			if err != nil {
				return err
			}
			tokens[i] = domain.TokenPayload{
				Collection: item.Collection,
				TokenId:    new(big.Int).Set(item.TokenId),
				TokenURI:   uri,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	message, err := EncodePayload(beneficiary, tokens)
	if err != nil {
		return nil, domain.NewRevert(domain.ErrInvalidInput, "CBR#depositFor: INVALID_MESSAGE")
	}

	stateID, err := r.sendMessageToChild(tx, message)
	if err != nil {
		return nil, err
	}

	if err := tx.Emit(r.address, DepositedEvent, depositor, beneficiary, stateID, big.NewInt(int64(len(tokens)))); err != nil {
		return nil, err
	}
	return stateID, nil
}

// ReceiveMessage processes a checkpointed exit of the child tunnel and returns the
// withdrawn tokens to their beneficiary. Each exit is processed at most once.
func (r *Root) ReceiveMessage(tx *chain.Tx, inputData []byte) error {
	contract, ok := r.chain.ContractAt(r.checkpointManager)
	if !ok {
		return domain.NewRevert(domain.ErrNotAContract, "FxRootTunnel: INVALID_CHECKPOINT_MANAGER")
	}
	manager, ok := contract.(*statesync.CheckpointManager)
	if !ok {
		return domain.NewRevert(domain.ErrNotAContract, "FxRootTunnel: INVALID_CHECKPOINT_MANAGER")
	}

	exit, err := manager.VerifyExit(inputData)
	if err != nil {
		return err
	}
	hash, err := statesync.ExitHash(exit)
	if err != nil {
		return domain.NewRevert(domain.ErrInvalidInput, "FxRootTunnel: INVALID_EXIT")
	}

	if r.processedExits[hash] {
		return domain.NewRevert(domain.ErrReplay, "FxRootTunnel: EXIT_ALREADY_PROCESSED")
	}
	r.processedExits[hash] = true
	tx.Journal(func() { delete(r.processedExits, hash) })

	if exit.Sender != r.fxChildTunnel {
		return domain.NewRevert(domain.ErrUnauthorized, "FxRootTunnel: INVALID_FX_CHILD_TUNNEL")
	}

	payload, err := DecodePayload(exit.Message)
	if err != nil {
		return domain.NewRevert(domain.ErrInvalidInput, "CBR#receiveMessage: INVALID_MESSAGE")
	}

	err = tx.Call(r.address, func(tx *chain.Tx) error {
		for _, token := range payload.Tokens {
			collection, ok := r.collectionAt(token.Collection)
			if !ok {
				return domain.NewRevert(domain.ErrInvalidCollection, "CBR#receiveMessage: INVALID_COLLECTION")
			}
			if err := collection.TransferFrom(tx, r.address, payload.Beneficiary, token.TokenId); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return tx.Emit(r.address, UnlockedEvent, payload.Beneficiary, exit.ExitId, big.NewInt(int64(len(payload.Tokens))))
}

func (r *Root) validator() (CollectionValidator, error) {
	contract, ok := r.chain.ContractAt(r.collectionValidator)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "CBR#depositFor: INVALID_COLLECTION_VALIDATOR")
	}
	validator, ok := contract.(CollectionValidator)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "CBR#depositFor: INVALID_COLLECTION_VALIDATOR")
	}
	return validator, nil
}

func (r *Root) collectionAt(addr common.Address) (Collection, bool) {
	contract, ok := r.chain.ContractAt(addr)
	if !ok {
		return nil, false
	}
	collection, ok := contract.(Collection)
	return collection, ok
}

func (r *Root) sendMessageToChild(tx *chain.Tx, message []byte) (*big.Int, error) {
	contract, ok := r.chain.ContractAt(r.fxRoot)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "FxBaseRootTunnel: INVALID_FX_ROOT")
	}
	fxRoot, ok := contract.(*statesync.FxRoot)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "FxBaseRootTunnel: INVALID_FX_ROOT")
	}

	var id *big.Int
	err := tx.Call(r.address, func(tx *chain.Tx) error {
		var err error
		id, err = fxRoot.SendMessageToChild(tx, r.fxChildTunnel, message)
		return err
	})
	return id, err
}
