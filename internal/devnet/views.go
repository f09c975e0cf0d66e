package devnet

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/factory"
	"github.com/feral-file/ff-collection-bridge/internal/registry"
)

// BridgedToken is the child chain view of a bridged collection token
type BridgedToken struct {
	ID     *big.Int                 `json:"id"`
	Exists bool                     `json:"exists"`
	Owner  common.Address           `json:"owner"`
	Data   *domain.BridgedTokenData `json:"data,omitempty"`
}

// CollectionToken is the root chain view of a collection token
type CollectionToken struct {
	Collection common.Address `json:"collection"`
	TokenID    *big.Int       `json:"token_id"`
	Owner      common.Address `json:"owner"`
	Locked     bool           `json:"locked"` // held by the root tunnel
	TokenURI   string         `json:"token_uri"`
}

// PredictAddress returns the address the factory of the given kind deploys to for
// deployer, salt and init payload
func (n *Network) PredictAddress(kind factory.Kind, salt common.Hash, deployer common.Address, initPayload []byte) (common.Address, error) {
	f, err := n.Factory(kind)
	if err != nil {
		return common.Address{}, err
	}

	var addr common.Address
	err = n.Root.Read(func() error {
		addr = f.GetAddress(salt, deployer, initPayload)
		return nil
	})
	return addr, err
}

// AuxDataFor returns the validator aux data of a collection, picking the factory
// that deployed it
func (n *Network) AuxDataFor(addr common.Address) ([]byte, error) {
	var kind factory.Kind
	_ = n.Root.Read(func() error {
		switch {
		case n.MinimalFactory.IsCollectionFromFactory(addr):
			kind = factory.KindMinimal
		case n.BeaconFactory.IsCollectionFromFactory(addr):
			kind = factory.KindBeacon
		}
		return nil
	})

	if kind == "" {
		return nil, fmt.Errorf("%w: %s was not deployed by a known factory", domain.ErrInvalidCollection, addr.Hex())
	}
	return n.AuxData(kind)
}

// BridgedToken looks up the bridged representation of a collection token
func (n *Network) BridgedToken(collectionAddr common.Address, tokenID *big.Int) (*BridgedToken, error) {
	token := &BridgedToken{ID: registry.BridgedID(collectionAddr, tokenID)}

	err := n.Child.Read(func() error {
		if !n.Registry.Exists(token.ID) {
			return nil
		}

		owner, err := n.Registry.OwnerOf(token.ID)
		if err != nil {
			return err
		}
		data, err := n.Registry.TokenData(token.ID)
		if err != nil {
			return err
		}

		token.Exists = true
		token.Owner = owner
		token.Data = &data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// CollectionToken looks up a collection token on the root chain
func (n *Network) CollectionToken(collectionAddr common.Address, tokenID *big.Int) (*CollectionToken, error) {
	proxy, err := n.Collection(collectionAddr)
	if err != nil {
		return nil, err
	}

	token := &CollectionToken{Collection: collectionAddr, TokenID: tokenID}
	err = n.Root.Read(func() error {
		owner, err := proxy.OwnerOf(tokenID)
		if err != nil {
			return err
		}
		uri, err := proxy.TokenURI(tokenID)
		if err != nil {
			return err
		}

		token.Owner = owner
		token.Locked = owner == n.RootTunnel.Address()
		token.TokenURI = uri
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}
