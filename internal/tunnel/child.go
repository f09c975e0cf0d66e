package tunnel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/access"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/registry"
	"github.com/feral-file/ff-collection-bridge/internal/statesync"
)

// BridgedRegistry is the ledger the child tunnel mints into and burns from
type BridgedRegistry interface {
	OwnerOf(id *big.Int) (common.Address, error)
	TokenData(id *big.Int) (domain.BridgedTokenData, error)
	Mint(tx *chain.Tx, beneficiary common.Address, tokens []domain.TokenPayload) error
	Burn(tx *chain.Tx, ids []*big.Int) error
}

var _ BridgedRegistry = (*registry.Registry)(nil)

// Child mints bridged tokens for synced deposits and burns them on withdrawal
type Child struct {
	access.Ownable
	chain             *chain.Chain
	address           common.Address
	fxChild           common.Address
	fxRootTunnel      common.Address
	registry          common.Address
	maxTokensPerTx    uint64
	processedStateIDs map[string]bool
}

var _ statesync.StateReceiver = (*Child)(nil)

// NewChild creates a child tunnel at addr
func NewChild(c *chain.Chain, addr, owner, fxChild, registry common.Address) *Child {
	return &Child{
		Ownable:           access.NewOwnable(addr, owner),
		chain:             c,
		address:           addr,
		fxChild:           fxChild,
		registry:          registry,
		maxTokensPerTx:    domain.DEFAULT_MAX_TOKENS_PER_TX,
		processedStateIDs: make(map[string]bool),
	}
}

func (c *Child) Address() common.Address {
	return c.address
}

func (c *Child) FxChild() common.Address {
	return c.fxChild
}

func (c *Child) FxRootTunnel() common.Address {
	return c.fxRootTunnel
}

func (c *Child) Registry() common.Address {
	return c.registry
}

func (c *Child) MaxTokensPerTx() uint64 {
	return c.maxTokensPerTx
}

// IsStateIDProcessed reports whether the state id was already consumed
func (c *Child) IsStateIDProcessed(stateID *big.Int) bool {
	return c.processedStateIDs[stateID.String()]
}

// SetFxRootTunnel binds the root tunnel. It can only be set once.
func (c *Child) SetFxRootTunnel(tx *chain.Tx, tunnel common.Address) error {
	if err := c.OnlyOwner(tx); err != nil {
		return err
	}
	if c.fxRootTunnel != (common.Address{}) {
		return domain.NewRevert(domain.ErrUnauthorized, "FxBaseChildTunnel: ROOT_TUNNEL_ALREADY_SET")
	}

	chain.Store(tx, &c.fxRootTunnel, tunnel)
	return tx.Emit(c.address, FxRootTunnelSetEvent, tunnel)
}

func (c *Child) SetMaxTokensPerTx(tx *chain.Tx, max uint64) error {
	if err := c.OnlyOwner(tx); err != nil {
		return err
	}

	chain.Store(tx, &c.maxTokensPerTx, max)
	return tx.Emit(c.address, MaxTokensPerTxSetEvent, new(big.Int).SetUint64(max))
}

// OnStateReceive mints the tokens of a synced deposit. The state id is marked
// before the registry is called so a reentrant delivery of the same id fails.
func (c *Child) OnStateReceive(tx *chain.Tx, stateID *big.Int, rootSender common.Address, data []byte) error {
	if tx.Sender() != c.fxChild {
		return domain.NewRevert(domain.ErrUnauthorized, "FxBaseChildTunnel: INVALID_SENDER")
	}
	if rootSender != c.fxRootTunnel {
		return domain.NewRevert(domain.ErrUnauthorized, "FxBaseChildTunnel: INVALID_SENDER_FROM_ROOT")
	}

	key := stateID.String()
	if c.processedStateIDs[key] {
		return domain.NewRevert(domain.ErrReplay, "CBC#onStateReceive: STATE_ID_ALREADY_PROCESSED")
	}
	c.processedStateIDs[key] = true
	tx.Journal(func() { delete(c.processedStateIDs, key) })

	payload, err := DecodePayload(data)
	if err != nil {
		return domain.NewRevert(domain.ErrInvalidInput, "CBC#onStateReceive: INVALID_MESSAGE")
	}

	reg, err := c.bridgedRegistry()
	if err != nil {
		return err
	}

	err = tx.Call(c.address, func(tx *chain.Tx) error {
		return reg.Mint(tx, payload.Beneficiary, payload.Tokens)
	})
	if err != nil {
		return err
	}

	return tx.Emit(c.address, BridgedEvent, stateID, payload.Beneficiary, big.NewInt(int64(len(payload.Tokens))))
}

// WithdrawFor burns bridged tokens held by the caller and sends a message to the
// root tunnel to release the originals to beneficiary
func (c *Child) WithdrawFor(tx *chain.Tx, beneficiary common.Address, tokenIDs []*big.Int) error {
	if uint64(len(tokenIDs)) > c.maxTokensPerTx {
		return domain.NewRevert(domain.ErrMaxTokensExceeded, "CBC#withdrawFor: MAX_TOKENS_PER_TX_EXCEEDED")
	}

	reg, err := c.bridgedRegistry()
	if err != nil {
		return err
	}

	sender := tx.Sender()
	tokens := make([]domain.TokenPayload, len(tokenIDs))
	for i, id := range tokenIDs {
		if id == nil {
			return domain.NewRevert(domain.ErrInvalidInput, "CBC#withdrawFor: INVALID_TOKEN_ID")
		}

		owner, err := reg.OwnerOf(id)
		if err != nil {
			return err
		}
		if owner != sender {
			return domain.NewRevert(domain.ErrUnauthorized, "CBC#withdrawFor: SENDER_NOT_THE_TOKEN_OWNER")
		}

		data, err := reg.TokenData(id)
		if err != nil {
			return err
		}
		tokens[i] = domain.TokenPayload{
			Collection: data.Collection,
			TokenId:    data.TokenId,
			TokenURI:   data.TokenURI,
		}
	}

	err = tx.Call(c.address, func(tx *chain.Tx) error {
		return reg.Burn(tx, tokenIDs)
	})
	if err != nil {
		return err
	}

	message, err := EncodePayload(beneficiary, tokens)
	if err != nil {
		return domain.NewRevert(domain.ErrInvalidInput, "CBC#withdrawFor: INVALID_MESSAGE")
	}
	if err := tx.Emit(c.address, statesync.MessageSentEvent, message); err != nil {
		return err
	}

	return tx.Emit(c.address, WithdrawnEvent, sender, beneficiary, big.NewInt(int64(len(tokens))))
}

func (c *Child) bridgedRegistry() (BridgedRegistry, error) {
	contract, ok := c.chain.ContractAt(c.registry)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "CBC#registry: INVALID_REGISTRY")
	}
	reg, ok := contract.(BridgedRegistry)
	if !ok {
		return nil, domain.NewRevert(domain.ErrNotAContract, "CBC#registry: INVALID_REGISTRY")
	}
	return reg, nil
}
