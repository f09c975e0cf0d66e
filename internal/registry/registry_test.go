package registry_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/erc721"
	"github.com/feral-file/ff-collection-bridge/internal/registry"
)

var (
	owner        = common.HexToAddress("0x0a00000000000000000000000000000000000001")
	admin        = common.HexToAddress("0xad00000000000000000000000000000000000002")
	user         = common.HexToAddress("0x0500000000000000000000000000000000000003")
	stranger     = common.HexToAddress("0x5000000000000000000000000000000000000004")
	registryAddr = common.HexToAddress("0x4e90000000000000000000000000000000000005")
	collection1  = common.HexToAddress("0xc011000000000000000000000000000000000001")
)

func setup(t *testing.T) (*chain.Chain, *registry.Registry) {
	c, err := chain.New(domain.ChainPolygonAmoy, adapter.NewClock())
	require.NoError(t, err)

	r := registry.New(registryAddr, owner, "Bridged Collections", "BCOL")
	_, err = c.Execute(owner, func(tx *chain.Tx) error {
		if err := tx.Deploy(registryAddr, r); err != nil {
			return err
		}
		return r.SetAdmin(tx, admin)
	})
	require.NoError(t, err)
	return c, r
}

func tokens(ids ...int64) []domain.TokenPayload {
	var out []domain.TokenPayload
	for _, id := range ids {
		out = append(out, domain.TokenPayload{
			Collection: collection1,
			TokenId:    big.NewInt(id),
			TokenURI:   "https://example.org/" + big.NewInt(id).String(),
		})
	}
	return out
}

func TestBridgedID(t *testing.T) {
	tokenID := big.NewInt(42)

	addressType, _ := abi.NewType("address", "", nil)
	uintType, _ := abi.NewType("uint256", "", nil)
	encoded, err := abi.Arguments{{Type: addressType}, {Type: uintType}}.Pack(collection1, tokenID)
	require.NoError(t, err)
	assert.Len(t, encoded, 64)

	expected := new(big.Int).SetBytes(crypto.Keccak256(encoded))
	assert.Equal(t, 0, expected.Cmp(registry.BridgedID(collection1, tokenID)))

	// abi.encode pads the address to a full word, unlike abi.encodePacked
	packed := new(big.Int).SetBytes(crypto.Keccak256(collection1.Bytes(), common.BigToHash(tokenID).Bytes()))
	assert.NotEqual(t, 0, packed.Cmp(registry.BridgedID(collection1, tokenID)))

	assert.NotEqual(t, 0, registry.BridgedID(collection1, big.NewInt(1)).Cmp(registry.BridgedID(collection1, big.NewInt(2))))
}

func TestRegistry_Mint(t *testing.T) {
	c, r := setup(t)

	receipt, err := c.Execute(admin, func(tx *chain.Tx) error {
		return r.Mint(tx, user, tokens(1, 2))
	})
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 2)
	for _, log := range receipt.Logs {
		assert.Equal(t, erc721.TransferEvent.ID, log.Topics[0])
		assert.Equal(t, common.Hash{}, log.Topics[1])
		assert.Equal(t, common.BytesToHash(user.Bytes()), log.Topics[2])
	}
	assert.Equal(t, common.BigToHash(registry.BridgedID(collection1, big.NewInt(1))), receipt.Logs[0].Topics[3])

	assert.Equal(t, uint64(2), r.TotalSupply())

	id := registry.BridgedID(collection1, big.NewInt(2))
	owner, err := r.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, user, owner)

	data, err := r.TokenData(id)
	require.NoError(t, err)
	assert.Equal(t, collection1, data.Collection)
	assert.Equal(t, int64(2), data.TokenId.Int64())
	assert.Equal(t, "https://example.org/2", data.TokenURI)

	uri, err := r.TokenURI(id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/2", uri)
}

func TestRegistry_Mint_AlreadyMinted(t *testing.T) {
	c, r := setup(t)

	_, err := c.Execute(admin, func(tx *chain.Tx) error {
		return r.Mint(tx, user, tokens(1))
	})
	require.NoError(t, err)

	_, err = c.Execute(admin, func(tx *chain.Tx) error {
		return r.Mint(tx, stranger, tokens(2, 1))
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyMinted)
	assert.Equal(t, "ERC721: token already minted", domain.RevertReason(err))

	assert.Equal(t, uint64(1), r.TotalSupply())
	assert.False(t, r.Exists(registry.BridgedID(collection1, big.NewInt(2))), "the batch is all or nothing")
	_, err = r.TokenData(registry.BridgedID(collection1, big.NewInt(2)))
	assert.ErrorIs(t, err, domain.ErrNonexistentToken)
}

func TestRegistry_Burn(t *testing.T) {
	c, r := setup(t)

	_, err := c.Execute(admin, func(tx *chain.Tx) error {
		return r.Mint(tx, user, tokens(1, 2))
	})
	require.NoError(t, err)

	ids := []*big.Int{registry.BridgedID(collection1, big.NewInt(1)), registry.BridgedID(collection1, big.NewInt(2))}

	_, err = c.Execute(stranger, func(tx *chain.Tx) error {
		return r.Burn(tx, ids)
	})
	assert.Equal(t, "BTR#onlyAdmin: SENDER_IS_NOT_THE_ADMIN", domain.RevertReason(err))

	receipt, err := c.Execute(admin, func(tx *chain.Tx) error {
		return r.Burn(tx, ids)
	})
	require.NoError(t, err)
	assert.Len(t, receipt.Logs, 2)
	assert.Equal(t, uint64(0), r.TotalSupply())

	for _, id := range ids {
		assert.False(t, r.Exists(id))
		_, err := r.TokenData(id)
		assert.ErrorIs(t, err, domain.ErrNonexistentToken)
	}

	_, err = c.Execute(admin, func(tx *chain.Tx) error {
		return r.Burn(tx, ids[:1])
	})
	assert.ErrorIs(t, err, domain.ErrNonexistentToken)
}

func TestRegistry_SetAdmin(t *testing.T) {
	c, r := setup(t)

	_, err := c.Execute(stranger, func(tx *chain.Tx) error {
		return r.SetAdmin(tx, stranger)
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	receipt, err := c.Execute(owner, func(tx *chain.Tx) error {
		return r.SetAdmin(tx, stranger)
	})
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, registry.AdminSetEvent.ID, receipt.Logs[0].Topics[0])
	assert.Equal(t, common.BytesToHash(admin.Bytes()), receipt.Logs[0].Topics[1])
	assert.Equal(t, stranger, r.Admin())

	_, err = c.Execute(admin, func(tx *chain.Tx) error {
		return r.Mint(tx, user, tokens(1))
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "the previous admin lost its rights")

	_, err = c.Execute(stranger, func(tx *chain.Tx) error {
		return r.Mint(tx, user, tokens(1))
	})
	assert.NoError(t, err)
}

func TestRegistry_HoldersMoveTokens(t *testing.T) {
	c, r := setup(t)

	_, err := c.Execute(admin, func(tx *chain.Tx) error {
		return r.Mint(tx, user, tokens(1))
	})
	require.NoError(t, err)

	id := registry.BridgedID(collection1, big.NewInt(1))
	_, err = c.Execute(user, func(tx *chain.Tx) error {
		return r.TransferFrom(tx, user, stranger, id)
	})
	require.NoError(t, err)

	owner, err := r.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, stranger, owner)
	assert.Equal(t, []*big.Int{id}, r.TokensOf(stranger))
}
