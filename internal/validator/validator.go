package validator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/access"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

var (
	FactorySetEvent = chain.NewEvent("FactorySet", "address factory indexed", "uint256 value")

	auxDataArguments = abi.Arguments{{Name: "factory", Type: chain.MustType("address")}}
)

// CollectionRegistry is a factory that remembers the collections it deployed
type CollectionRegistry interface {
	IsCollectionFromFactory(addr common.Address) bool
}

// EncodeAuxData builds the aux data that names the factory a collection claims to come from
func EncodeAuxData(factory common.Address) ([]byte, error) {
	data, err := auxDataArguments.Pack(factory)
	if err != nil {
		return nil, fmt.Errorf("failed to encode aux data: %w", err)
	}
	return data, nil
}

// Validator answers whether a contract is a collection deployed by a registered factory
type Validator struct {
	access.Ownable
	chain     *chain.Chain
	address   common.Address
	factories map[common.Address]*big.Int
}

// New creates a validator at addr
func New(c *chain.Chain, addr, owner common.Address) *Validator {
	return &Validator{
		Ownable:   access.NewOwnable(addr, owner),
		chain:     c,
		address:   addr,
		factories: make(map[common.Address]*big.Int),
	}
}

// Address returns the validator address
func (v *Validator) Address() common.Address {
	return v.address
}

// FactoryVersion returns the version registered for a factory, zero when unregistered
func (v *Validator) FactoryVersion(factory common.Address) *big.Int {
	version, ok := v.factories[factory]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(version)
}

// IsValidCollection decodes auxData as the claimed factory address and checks that the
// factory is registered with a non-zero version and deployed addr.
// Aux data that is not exactly one canonical address word is an error, anything else
// invalid is false.
func (v *Validator) IsValidCollection(addr common.Address, auxData []byte) (bool, error) {
	if !isAddressWord(auxData) {
		return false, domain.NewRevert(domain.ErrInvalidInput, "CV#isValidCollection: INVALID_AUX_DATA")
	}
	values, err := auxDataArguments.Unpack(auxData)
	if err != nil {
		return false, domain.NewRevert(domain.ErrInvalidInput, "CV#isValidCollection: INVALID_AUX_DATA")
	}
	factory := values[0].(common.Address)

	if v.FactoryVersion(factory).Sign() == 0 {
		return false, nil
	}

	contract, ok := v.chain.ContractAt(factory)
	if !ok {
		return false, nil
	}
	registry, ok := contract.(CollectionRegistry)
	if !ok {
		return false, nil
	}
	return registry.IsCollectionFromFactory(addr), nil
}

// isAddressWord reports whether data is a single 32 byte word with the upper 12 bytes zero
func isAddressWord(data []byte) bool {
	if len(data) != common.HashLength {
		return false
	}
	for _, b := range data[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return false
		}
	}
	return true
}

// SetFactories upserts factory versions. A zero version unregisters a factory.
func (v *Validator) SetFactories(tx *chain.Tx, factories []common.Address, versions []*big.Int) error {
	if err := v.OnlyOwner(tx); err != nil {
		return err
	}
	if len(factories) != len(versions) {
		return domain.NewRevert(domain.ErrInvalidInput, "CV#setFactories: LENGTH_MISMATCH")
	}

	for i, factory := range factories {
		version := versions[i]
		if version == nil || version.Sign() < 0 {
			return domain.NewRevert(domain.ErrInvalidInput, "CV#setFactories: INVALID_VALUE")
		}

		prev, existed := v.factories[factory]
		v.factories[factory] = new(big.Int).Set(version)
		tx.Journal(func() {
			if existed {
				v.factories[factory] = prev
				return
			}
			delete(v.factories, factory)
		})

		if err := tx.Emit(v.address, FactorySetEvent, factory, version); err != nil {
			return err
		}
	}
	return nil
}
