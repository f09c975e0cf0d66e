package validator_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/validator"
)

var (
	owner         = common.HexToAddress("0x0a00000000000000000000000000000000000001")
	stranger      = common.HexToAddress("0x5000000000000000000000000000000000000004")
	validatorAddr = common.HexToAddress("0xa1d0000000000000000000000000000000000001")
	factoryAddr   = common.HexToAddress("0xf100000000000000000000000000000000000002")
	otherFactory  = common.HexToAddress("0xf200000000000000000000000000000000000003")
	eoaFactory    = common.HexToAddress("0xf300000000000000000000000000000000000004")
	collection    = common.HexToAddress("0xc011000000000000000000000000000000000005")
	impostor      = common.HexToAddress("0x1300000000000000000000000000000000000006")
)

type fakeFactory struct {
	deployed map[common.Address]bool
}

func (f *fakeFactory) IsCollectionFromFactory(addr common.Address) bool {
	return f.deployed[addr]
}

func setup(t *testing.T) (*chain.Chain, *validator.Validator) {
	c, err := chain.New(domain.ChainEthereumSepolia, adapter.NewClock())
	require.NoError(t, err)

	v := validator.New(c, validatorAddr, owner)
	_, err = c.Execute(owner, func(tx *chain.Tx) error {
		if err := tx.Deploy(validatorAddr, v); err != nil {
			return err
		}
		if err := tx.Deploy(factoryAddr, &fakeFactory{deployed: map[common.Address]bool{collection: true}}); err != nil {
			return err
		}
		return tx.Deploy(otherFactory, &fakeFactory{deployed: map[common.Address]bool{collection: true}})
	})
	require.NoError(t, err)

	_, err = c.Execute(owner, func(tx *chain.Tx) error {
		return v.SetFactories(tx, []common.Address{factoryAddr, eoaFactory}, []*big.Int{big.NewInt(1), big.NewInt(1)})
	})
	require.NoError(t, err)
	return c, v
}

func auxData(t *testing.T, factory common.Address) []byte {
	data, err := validator.EncodeAuxData(factory)
	require.NoError(t, err)
	return data
}

func TestValidator_IsValidCollection(t *testing.T) {
	_, v := setup(t)

	tests := []struct {
		name       string
		collection common.Address
		auxData    []byte
		expected   bool
	}{
		{
			name:       "deployed by registered factory",
			collection: collection,
			auxData:    auxData(t, factoryAddr),
			expected:   true,
		},
		{
			name:       "not deployed by the factory",
			collection: impostor,
			auxData:    auxData(t, factoryAddr),
			expected:   false,
		},
		{
			name:       "factory not registered",
			collection: collection,
			auxData:    auxData(t, otherFactory),
			expected:   false,
		},
		{
			name:       "registered factory without code",
			collection: collection,
			auxData:    auxData(t, eoaFactory),
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := v.IsValidCollection(tt.collection, tt.auxData)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestValidator_IsValidCollection_MalformedAuxData(t *testing.T) {
	_, v := setup(t)

	dirty := auxData(t, factoryAddr)
	dirty[0] = 0xff

	tests := []struct {
		name    string
		auxData []byte
	}{
		{"short", []byte{0x01, 0x02}},
		{"empty", nil},
		{"dirty upper bytes", dirty},
		{"trailing bytes", append(auxData(t, factoryAddr), 0x00)},
		{"two words", append(auxData(t, factoryAddr), auxData(t, otherFactory)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := v.IsValidCollection(collection, tt.auxData)
			assert.False(t, ok)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Equal(t, "CV#isValidCollection: INVALID_AUX_DATA", domain.RevertReason(err))
		})
	}
}

func TestValidator_SetFactories(t *testing.T) {
	c, v := setup(t)

	_, err := c.Execute(stranger, func(tx *chain.Tx) error {
		return v.SetFactories(tx, []common.Address{otherFactory}, []*big.Int{big.NewInt(1)})
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = c.Execute(owner, func(tx *chain.Tx) error {
		return v.SetFactories(tx, []common.Address{otherFactory}, []*big.Int{big.NewInt(1), big.NewInt(2)})
	})
	assert.Equal(t, "CV#setFactories: LENGTH_MISMATCH", domain.RevertReason(err))

	receipt, err := c.Execute(owner, func(tx *chain.Tx) error {
		return v.SetFactories(tx, []common.Address{otherFactory, factoryAddr}, []*big.Int{big.NewInt(2), big.NewInt(0)})
	})
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 2)
	assert.Equal(t, validator.FactorySetEvent.ID, receipt.Logs[0].Topics[0])
	assert.Equal(t, common.BytesToHash(otherFactory.Bytes()), receipt.Logs[0].Topics[1])

	assert.Equal(t, int64(2), v.FactoryVersion(otherFactory).Int64())
	assert.Equal(t, int64(0), v.FactoryVersion(factoryAddr).Int64())

	ok, err := v.IsValidCollection(collection, auxData(t, factoryAddr))
	require.NoError(t, err)
	assert.False(t, ok, "a zero version unregisters the factory")

	ok, err = v.IsValidCollection(collection, auxData(t, otherFactory))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidator_SetFactories_RevertKeepsPreviousVersions(t *testing.T) {
	c, v := setup(t)

	_, err := c.Execute(owner, func(tx *chain.Tx) error {
		return v.SetFactories(tx, []common.Address{factoryAddr, otherFactory}, []*big.Int{big.NewInt(5), big.NewInt(-1)})
	})
	assert.Equal(t, "CV#setFactories: INVALID_VALUE", domain.RevertReason(err))
	assert.Equal(t, int64(1), v.FactoryVersion(factoryAddr).Int64())
	assert.Equal(t, int64(0), v.FactoryVersion(otherFactory).Int64())
}
