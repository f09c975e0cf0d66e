package tunnel_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/collection"
	"github.com/feral-file/ff-collection-bridge/internal/devnet"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/erc721"
	"github.com/feral-file/ff-collection-bridge/internal/factory"
	"github.com/feral-file/ff-collection-bridge/internal/registry"
	"github.com/feral-file/ff-collection-bridge/internal/statesync"
	"github.com/feral-file/ff-collection-bridge/internal/tunnel"
	"github.com/feral-file/ff-collection-bridge/internal/validator"
)

var (
	creator     = common.HexToAddress("0xc4ea000000000000000000000000000000000002")
	user        = common.HexToAddress("0x0005e40000000000000000000000000000000003")
	beneficiary = common.HexToAddress("0xbe4e000000000000000000000000000000000004")
	stranger    = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

type fixture struct {
	*devnet.Network
	collection common.Address
	aux        []byte
	tokens     []*big.Int
}

func setup(t *testing.T, supply int) *fixture {
	n, err := devnet.Bootstrap(devnet.DefaultConfig(), adapter.NewClock())
	require.NoError(t, err)

	payload, err := collection.EncodeInitPayload(collection.InitPayload{
		Name:    "Wearables",
		Symbol:  "WRB",
		BaseURI: "https://peer.example.org/",
		Creator: creator,
		Items: []collection.ItemPayload{
			{MaxSupply: big.NewInt(100), Price: big.NewInt(0), Beneficiary: creator, Metadata: "1:hat"},
		},
	})
	require.NoError(t, err)

	addr, err := n.CreateCollection(factory.KindBeacon, common.HexToHash("0x01"), payload)
	require.NoError(t, err)

	beneficiaries := make([]common.Address, supply)
	itemIDs := make([]*big.Int, supply)
	for i := range beneficiaries {
		beneficiaries[i] = user
		itemIDs[i] = big.NewInt(0)
	}
	tokens, err := n.IssueTokens(addr, beneficiaries, itemIDs)
	require.NoError(t, err)
	require.Len(t, tokens, supply)

	require.NoError(t, n.SetApprovalForAll(user, addr, n.RootTunnel.Address(), true))

	aux, err := n.AuxData(factory.KindBeacon)
	require.NoError(t, err)

	return &fixture{Network: n, collection: addr, aux: aux, tokens: tokens}
}

func (f *fixture) items(ids ...*big.Int) []domain.DepositItem {
	items := make([]domain.DepositItem, len(ids))
	for i, id := range ids {
		items[i] = domain.DepositItem{Collection: f.collection, TokenId: id, AuxData: f.aux}
	}
	return items
}

func (f *fixture) ownerOf(t *testing.T, id *big.Int) common.Address {
	proxy, err := f.Collection(f.collection)
	require.NoError(t, err)
	owner, err := proxy.OwnerOf(id)
	require.NoError(t, err)
	return owner
}

func (f *fixture) bridgedIDs(ids ...*big.Int) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = registry.BridgedID(f.collection, id)
	}
	return out
}

func findLog(t *testing.T, logs []types.Log, event common.Hash) types.Log {
	for _, log := range logs {
		if log.Topics[0] == event {
			return log
		}
	}
	require.FailNow(t, "log not found")
	return types.Log{}
}

func countLogs(logs []types.Log, addr common.Address, event common.Hash) int {
	count := 0
	for _, log := range logs {
		if log.Address == addr && log.Topics[0] == event {
			count++
		}
	}
	return count
}

// deliver relays the StateSynced message of a deposit receipt to the child chain
func (f *fixture) deliver(t *testing.T, receipt *chain.Receipt) *chain.Receipt {
	synced, err := statesync.ParseStateSynced(findLog(t, receipt.Logs, statesync.StateSyncedEvent.ID))
	require.NoError(t, err)

	delivered, err := f.DeliverStateSync(synced.ID, synced.Data)
	require.NoError(t, err)
	return delivered
}

// checkpoint checkpoints the MessageSent exit of a withdrawal receipt and returns its input data
func (f *fixture) checkpoint(t *testing.T, receipt *chain.Receipt) []byte {
	exit, err := devnet.ExitFromLog(findLog(t, receipt.Logs, statesync.MessageSentEvent.ID))
	require.NoError(t, err)

	input, err := f.Checkpoint(*exit)
	require.NoError(t, err)
	return input
}

func TestPayload_EncodeDecode(t *testing.T) {
	tokens := []domain.TokenPayload{
		{Collection: creator, TokenId: big.NewInt(1), TokenURI: "ipfs://one"},
		{Collection: stranger, TokenId: new(big.Int).Lsh(big.NewInt(1), 255), TokenURI: ""},
	}

	data, err := tunnel.EncodePayload(beneficiary, tokens)
	require.NoError(t, err)

	p, err := tunnel.DecodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, beneficiary, p.Beneficiary)
	require.Len(t, p.Tokens, 2)
	for i := range tokens {
		assert.Equal(t, tokens[i].Collection, p.Tokens[i].Collection)
		assert.Equal(t, 0, tokens[i].TokenId.Cmp(p.Tokens[i].TokenId))
		assert.Equal(t, tokens[i].TokenURI, p.Tokens[i].TokenURI)
	}

	_, err = tunnel.EncodePayload(beneficiary, []domain.TokenPayload{{Collection: creator}})
	assert.Error(t, err)

	_, err = tunnel.DecodePayload([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestRoot_DepositFor(t *testing.T) {
	f := setup(t, 2)

	stateID, receipt, err := f.DepositFor(user, beneficiary, f.items(f.tokens...))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stateID.Int64())

	for _, id := range f.tokens {
		assert.Equal(t, f.RootTunnel.Address(), f.ownerOf(t, id))
	}

	synced, err := statesync.ParseStateSynced(findLog(t, receipt.Logs, statesync.StateSyncedEvent.ID))
	require.NoError(t, err)
	assert.Equal(t, f.FxChild.Address(), synced.Receiver)

	envelope, err := statesync.DecodeFxMessage(synced.Data)
	require.NoError(t, err)
	assert.Equal(t, f.RootTunnel.Address(), envelope.RootMessageSender)
	assert.Equal(t, f.ChildTunnel.Address(), envelope.Receiver)

	p, err := tunnel.DecodePayload(envelope.Data)
	require.NoError(t, err)
	assert.Equal(t, beneficiary, p.Beneficiary)
	require.Len(t, p.Tokens, 2)
	proxy, err := f.Collection(f.collection)
	require.NoError(t, err)
	for i, id := range f.tokens {
		uri, err := proxy.TokenURI(id)
		require.NoError(t, err)
		assert.Equal(t, f.collection, p.Tokens[i].Collection)
		assert.Equal(t, 0, id.Cmp(p.Tokens[i].TokenId))
		assert.Equal(t, uri, p.Tokens[i].TokenURI)
	}

	assert.Equal(t, 1, countLogs(receipt.Logs, f.RootTunnel.Address(), tunnel.DepositedEvent.ID))
}

func TestRoot_DepositFor_AllOrNothing(t *testing.T) {
	f := setup(t, 3)

	wrongFactory, err := f.AuxData(factory.KindMinimal)
	require.NoError(t, err)

	tests := []struct {
		name   string
		items  []domain.DepositItem
		reason string
	}{
		{
			name: "last item claims the wrong factory",
			items: append(f.items(f.tokens[0], f.tokens[1]),
				domain.DepositItem{Collection: f.collection, TokenId: f.tokens[2], AuxData: wrongFactory}),
			reason: "CBR#depositFor: INVALID_COLLECTION",
		},
		{
			name: "unknown collection",
			items: append(f.items(f.tokens[0]),
				domain.DepositItem{Collection: stranger, TokenId: big.NewInt(1), AuxData: f.aux}),
			reason: "CBR#depositFor: INVALID_COLLECTION",
		},
		{
			name:   "malformed aux data",
			items:  []domain.DepositItem{{Collection: f.collection, TokenId: f.tokens[0], AuxData: []byte{0x01}}},
			reason: "CV#isValidCollection: INVALID_AUX_DATA",
		},
		{
			name:   "token not owned by the caller",
			items:  f.items(f.tokens[0], f.tokens[1], big.NewInt(12345)),
			reason: "ERC721: owner query for nonexistent token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.DepositFor(user, beneficiary, tt.items)
			require.Error(t, err)
			assert.Equal(t, tt.reason, domain.RevertReason(err))

			for _, id := range f.tokens {
				assert.Equal(t, user, f.ownerOf(t, id))
			}
		})
	}

	assert.Equal(t, int64(0), f.StateSender.Counter().Int64())
}

func TestRoot_DepositFor_RequiresApproval(t *testing.T) {
	f := setup(t, 1)
	require.NoError(t, f.SetApprovalForAll(user, f.collection, f.RootTunnel.Address(), false))

	_, _, err := f.DepositFor(user, beneficiary, f.items(f.tokens[0]))
	assert.Equal(t, "ERC721: transfer caller is not owner nor approved", domain.RevertReason(err))
	assert.Equal(t, user, f.ownerOf(t, f.tokens[0]))
}

func TestTunnels_MaxTokensPerTx(t *testing.T) {
	for _, max := range []uint64{1, 3} {
		f := setup(t, int(max)+1)

		_, err := f.Root.Execute(f.Config.Owner, func(tx *chain.Tx) error {
			return f.RootTunnel.SetMaxTokensPerTx(tx, max)
		})
		require.NoError(t, err)
		_, err = f.Child.Execute(f.Config.Owner, func(tx *chain.Tx) error {
			return f.ChildTunnel.SetMaxTokensPerTx(tx, max)
		})
		require.NoError(t, err)

		_, _, err = f.DepositFor(user, user, f.items(f.tokens...))
		assert.Equal(t, "CBR#depositFor: MAX_TOKENS_PER_TX_EXCEEDED", domain.RevertReason(err), "max %d", max)
		assert.ErrorIs(t, err, domain.ErrMaxTokensExceeded)

		deposited := f.tokens[:max]
		_, receipt, err := f.DepositFor(user, user, f.items(deposited...))
		require.NoError(t, err, "max %d", max)
		f.deliver(t, receipt)

		tooMany := append(f.bridgedIDs(deposited...), big.NewInt(1))
		_, err = f.WithdrawFor(user, user, tooMany)
		assert.Equal(t, "CBC#withdrawFor: MAX_TOKENS_PER_TX_EXCEEDED", domain.RevertReason(err), "max %d", max)

		_, err = f.WithdrawFor(user, user, f.bridgedIDs(deposited...))
		require.NoError(t, err, "max %d", max)
	}
}

func TestRoot_EscrowCustody(t *testing.T) {
	f := setup(t, 1)
	id := f.tokens[0]

	_, _, err := f.DepositFor(user, beneficiary, f.items(id))
	require.NoError(t, err)

	proxy, err := f.Collection(f.collection)
	require.NoError(t, err)

	for _, sender := range []common.Address{user, beneficiary, stranger, f.Config.Owner} {
		_, err := f.Root.Execute(sender, func(tx *chain.Tx) error {
			return proxy.TransferFrom(tx, f.RootTunnel.Address(), sender, id)
		})
		assert.Equal(t, "ERC721: transfer caller is not owner nor approved", domain.RevertReason(err))
	}

	_, _, err = f.DepositFor(user, beneficiary, f.items(id))
	assert.Equal(t, "ERC721: transfer of token that is not own", domain.RevertReason(err))
	assert.Equal(t, f.RootTunnel.Address(), f.ownerOf(t, id))
}

func TestRoot_ReceiveMessage(t *testing.T) {
	f := setup(t, 2)

	_, receipt, err := f.DepositFor(user, user, f.items(f.tokens...))
	require.NoError(t, err)
	f.deliver(t, receipt)

	receipt, err = f.WithdrawFor(user, beneficiary, f.bridgedIDs(f.tokens[0]))
	require.NoError(t, err)

	exit, err := devnet.ExitFromLog(findLog(t, receipt.Logs, statesync.MessageSentEvent.ID))
	require.NoError(t, err)
	input, err := statesync.EncodeExit(*exit)
	require.NoError(t, err)

	_, err = f.ReceiveMessage(stranger, input)
	assert.Equal(t, "CheckpointManager: EXIT_NOT_CHECKPOINTED", domain.RevertReason(err))

	input = f.checkpoint(t, receipt)
	unlocked, err := f.ReceiveMessage(stranger, input)
	require.NoError(t, err)
	assert.Equal(t, beneficiary, f.ownerOf(t, f.tokens[0]))
	assert.Equal(t, f.RootTunnel.Address(), f.ownerOf(t, f.tokens[1]))
	assert.Equal(t, 1, countLogs(unlocked.Logs, f.RootTunnel.Address(), tunnel.UnlockedEvent.ID))

	hash, err := statesync.ExitHash(exit)
	require.NoError(t, err)
	assert.True(t, f.RootTunnel.IsExitProcessed(hash))

	_, err = f.ReceiveMessage(stranger, input)
	assert.Equal(t, "FxRootTunnel: EXIT_ALREADY_PROCESSED", domain.RevertReason(err))
	assert.ErrorIs(t, err, domain.ErrReplay)
}

func TestRoot_ReceiveMessage_Rejects(t *testing.T) {
	f := setup(t, 1)

	_, _, err := f.DepositFor(user, user, f.items(f.tokens[0]))
	require.NoError(t, err)

	release, err := tunnel.EncodePayload(stranger, []domain.TokenPayload{
		{Collection: f.collection, TokenId: f.tokens[0], TokenURI: ""},
	})
	require.NoError(t, err)

	t.Run("exit of another contract", func(t *testing.T) {
		input, err := f.Checkpoint(statesync.Exit{ExitId: big.NewInt(1), Sender: stranger, Message: release})
		require.NoError(t, err)

		_, err = f.ReceiveMessage(stranger, input)
		assert.Equal(t, "FxRootTunnel: INVALID_FX_CHILD_TUNNEL", domain.RevertReason(err))
		assert.Equal(t, f.RootTunnel.Address(), f.ownerOf(t, f.tokens[0]))
	})

	t.Run("undecodable message", func(t *testing.T) {
		input, err := f.Checkpoint(statesync.Exit{ExitId: big.NewInt(2), Sender: f.ChildTunnel.Address(), Message: []byte{0x01}})
		require.NoError(t, err)

		_, err = f.ReceiveMessage(stranger, input)
		assert.Equal(t, "CBR#receiveMessage: INVALID_MESSAGE", domain.RevertReason(err))
	})

	t.Run("double unlock", func(t *testing.T) {
		first, err := f.Checkpoint(statesync.Exit{ExitId: big.NewInt(3), Sender: f.ChildTunnel.Address(), Message: release})
		require.NoError(t, err)
		second, err := f.Checkpoint(statesync.Exit{ExitId: big.NewInt(4), Sender: f.ChildTunnel.Address(), Message: release})
		require.NoError(t, err)

		_, err = f.ReceiveMessage(stranger, first)
		require.NoError(t, err)
		assert.Equal(t, stranger, f.ownerOf(t, f.tokens[0]))

		_, err = f.ReceiveMessage(stranger, second)
		assert.Equal(t, "ERC721: transfer caller is not owner nor approved", domain.RevertReason(err))
		assert.Equal(t, stranger, f.ownerOf(t, f.tokens[0]))
	})
}

func TestRoot_Configuration(t *testing.T) {
	f := setup(t, 1)

	_, err := f.Root.Execute(f.Config.Owner, func(tx *chain.Tx) error {
		return f.RootTunnel.SetFxChildTunnel(tx, stranger)
	})
	assert.Equal(t, "FxBaseRootTunnel: CHILD_TUNNEL_ALREADY_SET", domain.RevertReason(err))
	assert.Equal(t, f.ChildTunnel.Address(), f.RootTunnel.FxChildTunnel())

	_, err = f.Root.Execute(stranger, func(tx *chain.Tx) error {
		return f.RootTunnel.SetMaxTokensPerTx(tx, 1)
	})
	assert.Equal(t, "Ownable: caller is not the owner", domain.RevertReason(err))

	_, err = f.Root.Execute(stranger, func(tx *chain.Tx) error {
		return f.RootTunnel.SetCollectionValidator(tx, stranger)
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.Root.Execute(f.Config.Owner, func(tx *chain.Tx) error {
		return f.RootTunnel.SetCollectionValidator(tx, stranger)
	})
	require.NoError(t, err)
	assert.Equal(t, stranger, f.RootTunnel.CollectionValidator())

	_, _, err = f.DepositFor(user, user, f.items(f.tokens[0]))
	assert.Equal(t, "CBR#depositFor: INVALID_COLLECTION_VALIDATOR", domain.RevertReason(err))

	assert.Equal(t, f.CheckpointManager.Address(), f.RootTunnel.CheckpointManager())
	assert.Equal(t, f.FxRoot.Address(), f.RootTunnel.FxRoot())
	assert.Equal(t, uint64(domain.DEFAULT_MAX_TOKENS_PER_TX), f.RootTunnel.MaxTokensPerTx())
}

func TestChild_OnStateReceive_AtMostOnce(t *testing.T) {
	f := setup(t, 2)

	_, receipt, err := f.DepositFor(user, beneficiary, f.items(f.tokens...))
	require.NoError(t, err)
	synced, err := statesync.ParseStateSynced(findLog(t, receipt.Logs, statesync.StateSyncedEvent.ID))
	require.NoError(t, err)

	delivered, err := f.DeliverStateSync(synced.ID, synced.Data)
	require.NoError(t, err)
	assert.Equal(t, 2, countLogs(delivered.Logs, f.Registry.Address(), erc721.TransferEvent.ID))
	assert.Equal(t, 1, countLogs(delivered.Logs, f.ChildTunnel.Address(), tunnel.BridgedEvent.ID))
	assert.True(t, f.ChildTunnel.IsStateIDProcessed(synced.ID))

	_, err = f.DeliverStateSync(synced.ID, synced.Data)
	assert.Equal(t, "CBC#onStateReceive: STATE_ID_ALREADY_PROCESSED", domain.RevertReason(err))
	assert.ErrorIs(t, err, domain.ErrReplay)

	assert.Equal(t, uint64(2), f.Registry.TotalSupply())
	assert.ElementsMatch(t, f.bridgedIDs(f.tokens...), f.Registry.TokensOf(beneficiary))

	for i, id := range f.bridgedIDs(f.tokens...) {
		data, err := f.Registry.TokenData(id)
		require.NoError(t, err)
		assert.Equal(t, f.collection, data.Collection)
		assert.Equal(t, 0, f.tokens[i].Cmp(data.TokenId))
	}
}

func TestChild_OnStateReceive_DuplicateDeposit(t *testing.T) {
	f := setup(t, 1)

	_, receipt, err := f.DepositFor(user, beneficiary, f.items(f.tokens[0]))
	require.NoError(t, err)
	synced, err := statesync.ParseStateSynced(findLog(t, receipt.Logs, statesync.StateSyncedEvent.ID))
	require.NoError(t, err)

	_, err = f.DeliverStateSync(synced.ID, synced.Data)
	require.NoError(t, err)

	// the same tokens under a fresh state id
	next := new(big.Int).Add(synced.ID, big.NewInt(1))
	_, err = f.DeliverStateSync(next, synced.Data)
	assert.Equal(t, "ERC721: token already minted", domain.RevertReason(err))
	assert.ErrorIs(t, err, domain.ErrAlreadyMinted)
	assert.False(t, f.ChildTunnel.IsStateIDProcessed(next))
	assert.Equal(t, uint64(1), f.Registry.TotalSupply())
}

func TestChild_OnStateReceive_Rejects(t *testing.T) {
	f := setup(t, 1)

	payload, err := tunnel.EncodePayload(beneficiary, []domain.TokenPayload{
		{Collection: f.collection, TokenId: f.tokens[0], TokenURI: "forged"},
	})
	require.NoError(t, err)

	_, err = f.Child.Execute(stranger, func(tx *chain.Tx) error {
		return f.ChildTunnel.OnStateReceive(tx, big.NewInt(1), f.RootTunnel.Address(), payload)
	})
	assert.Equal(t, "FxBaseChildTunnel: INVALID_SENDER", domain.RevertReason(err))

	envelope, err := statesync.EncodeFxMessage(statesync.FxMessage{
		RootMessageSender: stranger,
		Receiver:          f.ChildTunnel.Address(),
		Data:              payload,
	})
	require.NoError(t, err)
	_, err = f.DeliverStateSync(big.NewInt(1), envelope)
	assert.Equal(t, "FxBaseChildTunnel: INVALID_SENDER_FROM_ROOT", domain.RevertReason(err))

	envelope, err = statesync.EncodeFxMessage(statesync.FxMessage{
		RootMessageSender: f.RootTunnel.Address(),
		Receiver:          f.ChildTunnel.Address(),
		Data:              []byte{0x01},
	})
	require.NoError(t, err)
	_, err = f.DeliverStateSync(big.NewInt(1), envelope)
	assert.Equal(t, "CBC#onStateReceive: INVALID_MESSAGE", domain.RevertReason(err))

	assert.False(t, f.ChildTunnel.IsStateIDProcessed(big.NewInt(1)))
	assert.Equal(t, uint64(0), f.Registry.TotalSupply())
}

func TestChild_WithdrawFor(t *testing.T) {
	f := setup(t, 2)

	_, receipt, err := f.DepositFor(user, user, f.items(f.tokens...))
	require.NoError(t, err)
	f.deliver(t, receipt)
	ids := f.bridgedIDs(f.tokens...)

	_, err = f.WithdrawFor(stranger, stranger, ids)
	assert.Equal(t, "CBC#withdrawFor: SENDER_NOT_THE_TOKEN_OWNER", domain.RevertReason(err))

	_, err = f.Child.Execute(user, func(tx *chain.Tx) error {
		return f.Registry.SetApprovalForAll(tx, stranger, true)
	})
	require.NoError(t, err)
	_, err = f.WithdrawFor(stranger, stranger, ids)
	assert.Equal(t, "CBC#withdrawFor: SENDER_NOT_THE_TOKEN_OWNER", domain.RevertReason(err), "operators can not withdraw")

	_, err = f.WithdrawFor(user, user, []*big.Int{ids[0], big.NewInt(7)})
	assert.Equal(t, "ERC721: owner query for nonexistent token", domain.RevertReason(err))
	assert.Equal(t, uint64(2), f.Registry.TotalSupply())

	withdrawn, err := f.WithdrawFor(user, beneficiary, ids)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.Registry.TotalSupply())
	assert.Equal(t, 2, countLogs(withdrawn.Logs, f.Registry.Address(), erc721.TransferEvent.ID))
	assert.Equal(t, 1, countLogs(withdrawn.Logs, f.ChildTunnel.Address(), tunnel.WithdrawnEvent.ID))

	message, err := statesync.ParseMessageSent(findLog(t, withdrawn.Logs, statesync.MessageSentEvent.ID))
	require.NoError(t, err)
	p, err := tunnel.DecodePayload(message)
	require.NoError(t, err)
	assert.Equal(t, beneficiary, p.Beneficiary)
	require.Len(t, p.Tokens, 2)
	assert.Equal(t, 0, f.tokens[1].Cmp(p.Tokens[1].TokenId))

	for _, id := range ids {
		_, err := f.Registry.TokenData(id)
		assert.Equal(t, "BTR#tokenData: INVALID_TOKEN_ID", domain.RevertReason(err))
	}
}

func TestChild_Configuration(t *testing.T) {
	f := setup(t, 1)

	_, err := f.Child.Execute(f.Config.Owner, func(tx *chain.Tx) error {
		return f.ChildTunnel.SetFxRootTunnel(tx, stranger)
	})
	assert.Equal(t, "FxBaseChildTunnel: ROOT_TUNNEL_ALREADY_SET", domain.RevertReason(err))

	_, err = f.Child.Execute(stranger, func(tx *chain.Tx) error {
		return f.ChildTunnel.SetMaxTokensPerTx(tx, 1)
	})
	assert.Equal(t, "Ownable: caller is not the owner", domain.RevertReason(err))

	assert.Equal(t, f.RootTunnel.Address(), f.ChildTunnel.FxRootTunnel())
	assert.Equal(t, f.FxChild.Address(), f.ChildTunnel.FxChild())
	assert.Equal(t, f.Registry.Address(), f.ChildTunnel.Registry())
	assert.Equal(t, f.ChildTunnel.Address(), f.Registry.Admin())
}

// reentrantCollection tries to receive the exit being processed again while its tokens
// are unlocked
type reentrantCollection struct {
	address common.Address
	root    *tunnel.Root
	owners  map[string]common.Address
	input   []byte
	reentry error
}

func (c *reentrantCollection) OwnerOf(id *big.Int) (common.Address, error) {
	return c.owners[id.String()], nil
}

func (c *reentrantCollection) TokenURI(id *big.Int) (string, error) {
	return "ipfs://" + id.String(), nil
}

func (c *reentrantCollection) TransferFrom(tx *chain.Tx, from, to common.Address, id *big.Int) error {
	if input := c.input; input != nil {
		c.input = nil
		c.reentry = tx.Call(c.address, func(tx *chain.Tx) error {
			return c.root.ReceiveMessage(tx, input)
		})
	}
	c.owners[id.String()] = to
	return nil
}

func (c *reentrantCollection) SafeTransferFrom(tx *chain.Tx, from, to common.Address, id *big.Int, _ []byte) error {
	return c.TransferFrom(tx, from, to, id)
}

type fakeFactory struct {
	collection common.Address
}

func (f *fakeFactory) IsCollectionFromFactory(addr common.Address) bool {
	return addr == f.collection
}

func TestRoot_ReceiveMessage_Reentrancy(t *testing.T) {
	f := setup(t, 1)

	evil := &reentrantCollection{
		address: common.HexToAddress("0xe111000000000000000000000000000000000001"),
		root:    f.RootTunnel,
		owners:  map[string]common.Address{"1": user},
	}
	evilFactory := common.HexToAddress("0xe111000000000000000000000000000000000002")

	_, err := f.Root.Execute(f.Config.Owner, func(tx *chain.Tx) error {
		if err := tx.Deploy(evil.address, evil); err != nil {
			return err
		}
		if err := tx.Deploy(evilFactory, &fakeFactory{collection: evil.address}); err != nil {
			return err
		}
		return f.Validator.SetFactories(tx, []common.Address{evilFactory}, []*big.Int{big.NewInt(1)})
	})
	require.NoError(t, err)

	aux, err := validator.EncodeAuxData(evilFactory)
	require.NoError(t, err)

	_, receipt, err := f.DepositFor(user, user, []domain.DepositItem{
		{Collection: evil.address, TokenId: big.NewInt(1), AuxData: aux},
	})
	require.NoError(t, err)
	f.deliver(t, receipt)

	receipt, err = f.WithdrawFor(user, user, []*big.Int{registry.BridgedID(evil.address, big.NewInt(1))})
	require.NoError(t, err)
	input := f.checkpoint(t, receipt)

	evil.input = input
	_, err = f.ReceiveMessage(user, input)
	require.NoError(t, err)

	assert.Equal(t, "FxRootTunnel: EXIT_ALREADY_PROCESSED", domain.RevertReason(evil.reentry))
	assert.Equal(t, user, evil.owners["1"])
}

// depositingCollection deposits into the root tunnel again from inside a transfer,
// after the token moved but before the outer deposit synced its message
type depositingCollection struct {
	address common.Address
	root    *tunnel.Root
	owners  map[string]common.Address
	reenter []domain.DepositItem
	reentry error
	stateID *big.Int
}

func (c *depositingCollection) OwnerOf(id *big.Int) (common.Address, error) {
	owner, ok := c.owners[id.String()]
	if !ok {
		return common.Address{}, domain.NewRevert(domain.ErrInvalidInput, "ERC721: invalid token ID")
	}
	return owner, nil
}

func (c *depositingCollection) TokenURI(id *big.Int) (string, error) {
	return "ipfs://" + id.String(), nil
}

func (c *depositingCollection) TransferFrom(tx *chain.Tx, from, to common.Address, id *big.Int) error {
	owner, err := c.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != from {
		return domain.NewRevert(domain.ErrUnauthorized, "ERC721: transfer from incorrect owner")
	}

	key := id.String()
	c.owners[key] = to
	tx.Journal(func() { c.owners[key] = owner })

	if items := c.reenter; items != nil {
		c.reenter = nil
		c.reentry = tx.Call(c.address, func(tx *chain.Tx) error {
			var err error
			c.stateID, err = c.root.DepositFor(tx, c.address, items)
			return err
		})
	}
	return nil
}

func (c *depositingCollection) SafeTransferFrom(tx *chain.Tx, from, to common.Address, id *big.Int, _ []byte) error {
	return c.TransferFrom(tx, from, to, id)
}

// registerCollection deploys a hand written collection behind a factory the validator
// accepts and returns the aux data to deposit it with
func registerCollection(t *testing.T, f *fixture, addr common.Address, contract tunnel.Collection) []byte {
	factoryAddr := common.HexToAddress("0xe111000000000000000000000000000000000002")
	_, err := f.Root.Execute(f.Config.Owner, func(tx *chain.Tx) error {
		if err := tx.Deploy(addr, contract); err != nil {
			return err
		}
		if err := tx.Deploy(factoryAddr, &fakeFactory{collection: addr}); err != nil {
			return err
		}
		return f.Validator.SetFactories(tx, []common.Address{factoryAddr}, []*big.Int{big.NewInt(1)})
	})
	require.NoError(t, err)

	aux, err := validator.EncodeAuxData(factoryAddr)
	require.NoError(t, err)
	return aux
}

func newDepositingCollection(f *fixture) *depositingCollection {
	addr := common.HexToAddress("0xe111000000000000000000000000000000000001")
	return &depositingCollection{
		address: addr,
		root:    f.RootTunnel,
		owners:  map[string]common.Address{"1": user, "2": addr},
	}
}

func TestRoot_DepositFor_ReentrantSameToken(t *testing.T) {
	f := setup(t, 1)
	evil := newDepositingCollection(f)
	aux := registerCollection(t, f, evil.address, evil)

	evil.reenter = []domain.DepositItem{{Collection: evil.address, TokenId: big.NewInt(1), AuxData: aux}}
	stateID, receipt, err := f.DepositFor(user, user, []domain.DepositItem{
		{Collection: evil.address, TokenId: big.NewInt(1), AuxData: aux},
	})
	require.NoError(t, err)

	assert.Equal(t, "ERC721: transfer from incorrect owner", domain.RevertReason(evil.reentry))
	assert.Nil(t, evil.stateID)
	assert.Equal(t, int64(1), stateID.Int64())
	assert.Equal(t, f.RootTunnel.Address(), evil.owners["1"])
	assert.Equal(t, 1, countLogs(receipt.Logs, f.StateSender.Address(), statesync.StateSyncedEvent.ID))
	assert.Equal(t, 1, countLogs(receipt.Logs, f.RootTunnel.Address(), tunnel.DepositedEvent.ID))

	delivered := f.deliver(t, receipt)
	assert.Equal(t, 1, countLogs(delivered.Logs, f.Registry.Address(), erc721.TransferEvent.ID))
	assert.Equal(t, uint64(1), f.Registry.TotalSupply())
}

func TestRoot_DepositFor_ReentrantOtherToken(t *testing.T) {
	f := setup(t, 1)
	evil := newDepositingCollection(f)
	aux := registerCollection(t, f, evil.address, evil)

	evil.reenter = []domain.DepositItem{{Collection: evil.address, TokenId: big.NewInt(2), AuxData: aux}}
	stateID, receipt, err := f.DepositFor(user, user, []domain.DepositItem{
		{Collection: evil.address, TokenId: big.NewInt(1), AuxData: aux},
	})
	require.NoError(t, err)
	require.NoError(t, evil.reentry)

	// the inner deposit finishes first and takes the first state id
	assert.Equal(t, int64(1), evil.stateID.Int64())
	assert.Equal(t, int64(2), stateID.Int64())
	assert.Equal(t, f.RootTunnel.Address(), evil.owners["1"])
	assert.Equal(t, f.RootTunnel.Address(), evil.owners["2"])
	assert.Equal(t, 2, countLogs(receipt.Logs, f.RootTunnel.Address(), tunnel.DepositedEvent.ID))

	for _, log := range receipt.Logs {
		if log.Address != f.StateSender.Address() || log.Topics[0] != statesync.StateSyncedEvent.ID {
			continue
		}
		synced, err := statesync.ParseStateSynced(log)
		require.NoError(t, err)
		_, err = f.DeliverStateSync(synced.ID, synced.Data)
		require.NoError(t, err)
	}

	owner, err := f.Registry.OwnerOf(registry.BridgedID(evil.address, big.NewInt(1)))
	require.NoError(t, err)
	assert.Equal(t, user, owner)
	owner, err = f.Registry.OwnerOf(registry.BridgedID(evil.address, big.NewInt(2)))
	require.NoError(t, err)
	assert.Equal(t, evil.address, owner)
	assert.Equal(t, uint64(2), f.Registry.TotalSupply())
}

func TestRoot_DepositFor_ReentrantRevertedWithOuter(t *testing.T) {
	f := setup(t, 1)
	evil := newDepositingCollection(f)
	aux := registerCollection(t, f, evil.address, evil)

	evil.reenter = []domain.DepositItem{{Collection: evil.address, TokenId: big.NewInt(2), AuxData: aux}}
	_, _, err := f.DepositFor(user, user, []domain.DepositItem{
		{Collection: evil.address, TokenId: big.NewInt(1), AuxData: aux},
		{Collection: evil.address, TokenId: big.NewInt(99), AuxData: aux},
	})
	assert.Equal(t, "ERC721: invalid token ID", domain.RevertReason(err))

	// the inner deposit succeeded but is rolled back with the outer one
	require.NoError(t, evil.reentry)
	assert.Equal(t, user, evil.owners["1"])
	assert.Equal(t, evil.address, evil.owners["2"])

	stateID, _, err := f.DepositFor(user, user, []domain.DepositItem{
		{Collection: evil.address, TokenId: big.NewInt(1), AuxData: aux},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stateID.Int64())
}

// redeliveringRegistry delivers the state being processed again from inside the mint
type redeliveringRegistry struct {
	child   *tunnel.Child
	fxChild common.Address
	root    common.Address
	stateID *big.Int
	data    []byte
	reentry error
	minted  map[string]common.Address
	mints   int
}

func (r *redeliveringRegistry) OwnerOf(id *big.Int) (common.Address, error) {
	owner, ok := r.minted[id.String()]
	if !ok {
		return common.Address{}, domain.NewRevert(domain.ErrInvalidInput, "ERC721: invalid token ID")
	}
	return owner, nil
}

func (r *redeliveringRegistry) TokenData(id *big.Int) (domain.BridgedTokenData, error) {
	return domain.BridgedTokenData{}, domain.NewRevert(domain.ErrInvalidInput, "BTR#tokenData: INVALID_TOKEN_ID")
}

func (r *redeliveringRegistry) Mint(tx *chain.Tx, beneficiary common.Address, tokens []domain.TokenPayload) error {
	if data := r.data; data != nil {
		r.data = nil
		r.reentry = tx.Call(r.fxChild, func(tx *chain.Tx) error {
			return r.child.OnStateReceive(tx, r.stateID, r.root, data)
		})
	}

	for _, token := range tokens {
		r.minted[registry.BridgedID(token.Collection, token.TokenId).String()] = beneficiary
		r.mints++
	}
	return nil
}

func (r *redeliveringRegistry) Burn(_ *chain.Tx, _ []*big.Int) error {
	return nil
}

func TestChild_OnStateReceive_ReentrantDelivery(t *testing.T) {
	f := setup(t, 1)

	regAddr := common.HexToAddress("0xe222000000000000000000000000000000000001")
	childAddr := common.HexToAddress("0xe222000000000000000000000000000000000002")
	child := tunnel.NewChild(f.Child, childAddr, f.Config.Owner, f.FxChild.Address(), regAddr)
	reg := &redeliveringRegistry{
		child:   child,
		fxChild: f.FxChild.Address(),
		root:    f.RootTunnel.Address(),
		minted:  make(map[string]common.Address),
	}

	_, err := f.Child.Execute(f.Config.Owner, func(tx *chain.Tx) error {
		if err := tx.Deploy(regAddr, reg); err != nil {
			return err
		}
		if err := tx.Deploy(childAddr, child); err != nil {
			return err
		}
		return child.SetFxRootTunnel(tx, f.RootTunnel.Address())
	})
	require.NoError(t, err)

	data, err := tunnel.EncodePayload(beneficiary, []domain.TokenPayload{
		{Collection: f.collection, TokenId: f.tokens[0], TokenURI: "ipfs://1"},
	})
	require.NoError(t, err)

	stateID := big.NewInt(7)
	reg.stateID = stateID
	reg.data = data
	receipt, err := f.Child.Execute(f.FxChild.Address(), func(tx *chain.Tx) error {
		return child.OnStateReceive(tx, stateID, f.RootTunnel.Address(), data)
	})
	require.NoError(t, err)

	assert.Equal(t, "CBC#onStateReceive: STATE_ID_ALREADY_PROCESSED", domain.RevertReason(reg.reentry))
	assert.Equal(t, 1, reg.mints)
	assert.True(t, child.IsStateIDProcessed(stateID))
	assert.Equal(t, 1, countLogs(receipt.Logs, childAddr, tunnel.BridgedEvent.ID))

	owner, err := reg.OwnerOf(registry.BridgedID(f.collection, f.tokens[0]))
	require.NoError(t, err)
	assert.Equal(t, beneficiary, owner)
}
