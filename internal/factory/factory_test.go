package factory_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/collection"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/factory"
)

var (
	owner    = common.HexToAddress("0x0a00000000000000000000000000000000000001")
	creator  = common.HexToAddress("0xc4ea000000000000000000000000000000000002")
	stranger = common.HexToAddress("0x5000000000000000000000000000000000000004")

	v1Addr      = common.HexToAddress("0x1100000000000000000000000000000000000001")
	v2Addr      = common.HexToAddress("0x2200000000000000000000000000000000000002")
	beaconAddr  = common.HexToAddress("0xbeac000000000000000000000000000000000003")
	minimalAddr = common.HexToAddress("0xf100000000000000000000000000000000000004")
	beaconFAddr = common.HexToAddress("0xf200000000000000000000000000000000000005")
)

type env struct {
	chain   *chain.Chain
	minimal *factory.Factory
	beacon  *factory.Factory
	b       *factory.Beacon
}

func setup(t *testing.T) *env {
	c, err := chain.New(domain.ChainEthereumSepolia, adapter.NewClock())
	require.NoError(t, err)

	e := &env{
		chain:   c,
		minimal: factory.NewMinimalProxyFactory(c, minimalAddr, owner, v1Addr),
		beacon:  factory.NewBeaconProxyFactory(c, beaconFAddr, owner, beaconAddr),
		b:       factory.NewBeacon(beaconAddr, beaconFAddr, v1Addr),
	}

	_, err = c.Execute(owner, func(tx *chain.Tx) error {
		for addr, contract := range map[common.Address]interface{}{
			v1Addr:      collection.NewV1(),
			v2Addr:      collection.NewV2(),
			beaconAddr:  e.b,
			minimalAddr: e.minimal,
			beaconFAddr: e.beacon,
		} {
			if err := tx.Deploy(addr, contract); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return e
}

func initPayload(t *testing.T, name string, creator common.Address) []byte {
	data, err := collection.EncodeInitPayload(collection.InitPayload{
		Name:    name,
		Symbol:  "DCL",
		BaseURI: "https://example.org/",
		Creator: creator,
		Items: []collection.ItemPayload{
			{MaxSupply: big.NewInt(5), Price: big.NewInt(0), Beneficiary: creator, Metadata: "1:item"},
		},
	})
	require.NoError(t, err)
	return data
}

func create(e *env, f *factory.Factory, sender common.Address, salt common.Hash, data []byte) (common.Address, error) {
	var addr common.Address
	_, err := e.chain.Execute(sender, func(tx *chain.Tx) error {
		var err error
		addr, err = f.CreateCollection(tx, salt, data)
		return err
	})
	return addr, err
}

func TestComputeAddress_MatchesCreate2Formula(t *testing.T) {
	salt := common.HexToHash("0x01")
	data := []byte("payload")
	codeHash := crypto.Keccak256Hash(factory.MinimalProxyCode(v1Addr))

	manual := func(saltHash []byte) common.Address {
		buf := append([]byte{0xff}, minimalAddr.Bytes()...)
		buf = append(buf, saltHash...)
		buf = append(buf, codeHash.Bytes()...)
		return common.BytesToAddress(crypto.Keccak256(buf)[12:])
	}

	withoutPayload := crypto.Keccak256(salt.Bytes(), owner.Bytes())
	withPayload := crypto.Keccak256(salt.Bytes(), owner.Bytes(), data)

	assert.Equal(t, manual(withoutPayload), factory.ComputeAddress(minimalAddr, salt, owner, data, codeHash, false))
	assert.Equal(t, manual(withPayload), factory.ComputeAddress(minimalAddr, salt, owner, data, codeHash, true))
}

func TestProxyCode_EmbedsTarget(t *testing.T) {
	code := factory.MinimalProxyCode(v1Addr)
	assert.Len(t, code, 55)
	assert.Equal(t, common.FromHex("0x3d602d80600a3d3981f3363d3d373d3d3d363d73"), code[:20])
	assert.Equal(t, v1Addr.Bytes(), code[20:40])

	assert.NotEqual(t, factory.BeaconProxyCode(beaconAddr), factory.BeaconProxyCode(v1Addr))
	assert.Contains(t, string(factory.BeaconProxyCode(beaconAddr)), string(beaconAddr.Bytes()))
}

func TestFactory_GetAddress_PayloadInclusion(t *testing.T) {
	e := setup(t)
	salt := common.HexToHash("0x42")
	first := initPayload(t, "first", creator)
	second := initPayload(t, "second", creator)

	assert.Equal(t, e.minimal.GetAddress(salt, owner, first), e.minimal.GetAddress(salt, owner, second),
		"minimal proxies ignore the payload")
	assert.NotEqual(t, e.beacon.GetAddress(salt, owner, first), e.beacon.GetAddress(salt, owner, second),
		"beacon proxies hash the payload into the salt")

	assert.NotEqual(t, e.minimal.GetAddress(salt, owner, first), e.minimal.GetAddress(salt, stranger, first),
		"the deployer is part of the salt")
}

func TestFactory_CreateCollection_Deterministic(t *testing.T) {
	for _, tt := range []struct {
		name    string
		factory func(e *env) *factory.Factory
	}{
		{name: "minimal", factory: func(e *env) *factory.Factory { return e.minimal }},
		{name: "beacon", factory: func(e *env) *factory.Factory { return e.beacon }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			f := tt.factory(e)
			salt := common.HexToHash("0x01")
			data := initPayload(t, "collection", creator)

			predicted := f.GetAddress(salt, owner, data)
			assert.False(t, e.chain.IsContract(predicted))

			var addr common.Address
			receipt, err := e.chain.Execute(owner, func(tx *chain.Tx) error {
				var err error
				addr, err = f.CreateCollection(tx, salt, data)
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, predicted, addr)

			last := receipt.Logs[len(receipt.Logs)-1]
			assert.Equal(t, f.Address(), last.Address)
			assert.Equal(t, factory.ProxyCreatedEvent.ID, last.Topics[0])
			assert.Equal(t, common.BytesToHash(addr.Bytes()), last.Topics[1])

			contract, ok := e.chain.ContractAt(addr)
			require.True(t, ok)
			proxy := contract.(*collection.Proxy)
			assert.Equal(t, owner, proxy.Owner(), "ownership moves from the factory to its owner")
			assert.Equal(t, creator, proxy.Creator())
			assert.True(t, proxy.IsInitialized())
			assert.Equal(t, f.Kind() == factory.KindBeacon, proxy.IsBeaconProxy())

			assert.True(t, f.IsCollectionFromFactory(addr))
			assert.Equal(t, []common.Address{addr}, f.Collections())

			// the same salt and deployer can not be used twice
			_, err = create(e, f, owner, salt, data)
			assert.ErrorIs(t, err, domain.ErrContractAddressCollision)
			assert.Equal(t, 1, f.CollectionsSize())
			assert.Same(t, proxy, mustContract(t, e.chain, addr))
			assert.Equal(t, owner, proxy.Owner())
		})
	}
}

func mustContract(t *testing.T, c *chain.Chain, addr common.Address) interface{} {
	contract, ok := c.ContractAt(addr)
	require.True(t, ok)
	return contract
}

func TestFactory_CreateCollection_FailedInitRevertsEverything(t *testing.T) {
	e := setup(t)
	salt := common.HexToHash("0x07")
	bad := initPayload(t, "bad", common.Address{})

	predicted := e.minimal.GetAddress(salt, owner, bad)
	_, err := create(e, e.minimal, owner, salt, bad)
	assert.Equal(t, "initialize: INVALID_CREATOR", domain.RevertReason(err))
	assert.False(t, e.chain.IsContract(predicted))
	assert.Equal(t, 0, e.minimal.CollectionsSize())
	assert.False(t, e.minimal.IsCollectionFromFactory(predicted))

	// the salt is still available
	addr, err := create(e, e.minimal, owner, salt, initPayload(t, "good", creator))
	require.NoError(t, err)
	assert.Equal(t, predicted, addr)
}

func TestFactory_CreateCollection_OnlyOwner(t *testing.T) {
	e := setup(t)

	_, err := create(e, e.minimal, stranger, common.HexToHash("0x01"), initPayload(t, "x", creator))
	assert.Equal(t, "Ownable: caller is not the owner", domain.RevertReason(err))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestFactory_SetImplementation_Minimal(t *testing.T) {
	e := setup(t)
	salt := common.HexToHash("0x01")
	data := initPayload(t, "x", creator)

	existing, err := create(e, e.minimal, owner, salt, data)
	require.NoError(t, err)
	before := e.minimal.GetAddress(common.HexToHash("0x02"), owner, data)

	_, err = e.chain.Execute(stranger, func(tx *chain.Tx) error {
		return e.minimal.SetImplementation(tx, v2Addr)
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = e.chain.Execute(owner, func(tx *chain.Tx) error {
		return e.minimal.SetImplementation(tx, common.HexToAddress("0x1234"))
	})
	assert.ErrorIs(t, err, domain.ErrNotAContract)

	_, err = e.chain.Execute(owner, func(tx *chain.Tx) error {
		return e.minimal.SetImplementation(tx, v2Addr)
	})
	require.NoError(t, err)

	impl, err := e.minimal.Implementation()
	require.NoError(t, err)
	assert.Equal(t, v2Addr, impl)
	assert.NotEqual(t, before, e.minimal.GetAddress(common.HexToHash("0x02"), owner, data),
		"the code hash follows the implementation")

	version, err := mustContract(t, e.chain, existing).(*collection.Proxy).Version()
	require.NoError(t, err)
	assert.Equal(t, collection.VERSION_V1, version, "existing minimal proxies stay pinned")

	created, err := create(e, e.minimal, owner, common.HexToHash("0x02"), data)
	require.NoError(t, err)
	version, err = mustContract(t, e.chain, created).(*collection.Proxy).Version()
	require.NoError(t, err)
	assert.Equal(t, collection.VERSION_V2, version)
}

func TestFactory_SetImplementation_BeaconUpgradesEveryProxy(t *testing.T) {
	e := setup(t)

	var proxies []*collection.Proxy
	for i, name := range []string{"a", "b", "c"} {
		addr, err := create(e, e.beacon, owner, common.BigToHash(big.NewInt(int64(i))), initPayload(t, name, creator))
		require.NoError(t, err)
		proxies = append(proxies, mustContract(t, e.chain, addr).(*collection.Proxy))
	}

	predicted := e.beacon.GetAddress(common.HexToHash("0x99"), owner, initPayload(t, "d", creator))

	receipt, err := e.chain.Execute(owner, func(tx *chain.Tx) error {
		return e.beacon.SetImplementation(tx, v2Addr)
	})
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, factory.UpgradedEvent.ID, receipt.Logs[0].Topics[0])
	assert.Equal(t, beaconAddr, receipt.Logs[0].Address)

	assert.Equal(t, v2Addr, e.b.Implementation())
	for _, p := range proxies {
		version, err := p.Version()
		require.NoError(t, err)
		assert.Equal(t, collection.VERSION_V2, version)
	}

	assert.Equal(t, predicted, e.beacon.GetAddress(common.HexToHash("0x99"), owner, initPayload(t, "d", creator)),
		"beacon proxy addresses do not depend on the implementation")
}

func TestBeacon_UpgradeTo(t *testing.T) {
	e := setup(t)

	_, err := e.chain.Execute(owner, func(tx *chain.Tx) error {
		return e.b.UpgradeTo(tx, v2Addr)
	})
	assert.Equal(t, "Ownable: caller is not the owner", domain.RevertReason(err), "the beacon belongs to the factory")

	_, err = e.chain.Execute(beaconFAddr, func(tx *chain.Tx) error {
		return e.b.UpgradeTo(tx, common.HexToAddress("0x1234"))
	})
	assert.Equal(t, "UpgradeableBeacon: implementation is not a contract", domain.RevertReason(err))

	_, err = e.chain.Execute(beaconFAddr, func(tx *chain.Tx) error {
		return e.b.UpgradeTo(tx, v2Addr)
	})
	require.NoError(t, err)
	assert.Equal(t, v2Addr, e.b.Implementation())
}
