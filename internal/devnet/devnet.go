package devnet

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/chain"
	"github.com/feral-file/ff-collection-bridge/internal/collection"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/factory"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/registry"
	"github.com/feral-file/ff-collection-bridge/internal/statesync"
	"github.com/feral-file/ff-collection-bridge/internal/tunnel"
	"github.com/feral-file/ff-collection-bridge/internal/validator"
)

// Config describes the network to bootstrap
type Config struct {
	RootChain      domain.Chain
	ChildChain     domain.Chain
	Owner          common.Address // deploys and owns every contract
	Proposer       common.Address // checkpoints child to root exits
	MaxTokensPerTx uint64
	RegistryName   string
	RegistrySymbol string
}

// DefaultConfig returns a config for a testnet pair
func DefaultConfig() Config {
	return Config{
		RootChain:      domain.ChainEthereumSepolia,
		ChildChain:     domain.ChainPolygonAmoy,
		Owner:          common.HexToAddress("0x0000000000000000000000000000000000000a11"),
		Proposer:       common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
		MaxTokensPerTx: domain.DEFAULT_MAX_TOKENS_PER_TX,
		RegistryName:   "Bridged Collections",
		RegistrySymbol: "BCOL",
	}
}

// Network is a bootstrapped root and child chain pair with every bridge contract wired
type Network struct {
	Config Config
	Root   *chain.Chain
	Child  *chain.Chain

	// root chain
	StateSender       *statesync.StateSender
	FxRoot            *statesync.FxRoot
	CheckpointManager *statesync.CheckpointManager
	ImplementationV1  common.Address
	ImplementationV2  common.Address
	Beacon            *factory.Beacon
	MinimalFactory    *factory.Factory
	BeaconFactory     *factory.Factory
	Validator         *validator.Validator
	RootTunnel        *tunnel.Root

	// child chain
	FxChild     *statesync.FxChild
	Registry    *registry.Registry
	ChildTunnel *tunnel.Child
}

// Bootstrap deploys the bridge on two fresh chains. Contracts are deployed first and the
// cross references (fx root and child, tunnels, registry admin) are set afterwards.
func Bootstrap(cfg Config, clock adapter.Clock) (*Network, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner is required")
	}
	if cfg.Proposer == (common.Address{}) {
		return nil, fmt.Errorf("proposer is required")
	}

	root, err := chain.New(cfg.RootChain, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create root chain: %w", err)
	}
	child, err := chain.New(cfg.ChildChain, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create child chain: %w", err)
	}

	n := &Network{Config: cfg, Root: root, Child: child}

	if err := n.deployRoot(); err != nil {
		return nil, fmt.Errorf("failed to deploy root contracts: %w", err)
	}
	if err := n.deployChild(); err != nil {
		return nil, fmt.Errorf("failed to deploy child contracts: %w", err)
	}
	if err := n.wire(); err != nil {
		return nil, fmt.Errorf("failed to wire contracts: %w", err)
	}

	logger.Info("Bootstrapped bridge network",
		zap.String("rootChain", string(cfg.RootChain)),
		zap.String("childChain", string(cfg.ChildChain)),
		zap.String("rootTunnel", n.RootTunnel.Address().Hex()),
		zap.String("childTunnel", n.ChildTunnel.Address().Hex()),
		zap.String("minimalFactory", n.MinimalFactory.Address().Hex()),
		zap.String("beaconFactory", n.BeaconFactory.Address().Hex()),
		zap.String("registry", n.Registry.Address().Hex()),
	)
	return n, nil
}

// deployer hands out the CREATE addresses of an account in deployment order
type deployer struct {
	tx      *chain.Tx
	account common.Address
}

func (d *deployer) next() common.Address {
	return d.peek(0)
}

// peek returns the address of the contract deployed offset deployments from now
func (d *deployer) peek(offset uint64) common.Address {
	return crypto.CreateAddress(d.account, d.tx.Chain().Nonce(d.account)+offset)
}

func (d *deployer) create(contract interface{}) error {
	_, err := d.tx.Create(d.account, contract)
	return err
}

func (n *Network) deployRoot() error {
	cfg := n.Config
	_, err := n.Root.Execute(cfg.Owner, func(tx *chain.Tx) error {
		d := &deployer{tx: tx, account: cfg.Owner}

		n.StateSender = statesync.NewStateSender(d.next())
		if err := d.create(n.StateSender); err != nil {
			return err
		}

		n.FxRoot = statesync.NewFxRoot(d.next(), n.StateSender.Address())
		if err := d.create(n.FxRoot); err != nil {
			return err
		}

		n.CheckpointManager = statesync.NewCheckpointManager(d.next(), cfg.Proposer)
		if err := d.create(n.CheckpointManager); err != nil {
			return err
		}

		n.ImplementationV1 = d.next()
		if err := d.create(collection.NewV1()); err != nil {
			return err
		}
		n.ImplementationV2 = d.next()
		if err := d.create(collection.NewV2()); err != nil {
			return err
		}

		n.MinimalFactory = factory.NewMinimalProxyFactory(n.Root, d.next(), cfg.Owner, n.ImplementationV1)
		if err := d.create(n.MinimalFactory); err != nil {
			return err
		}

		// the beacon factory owns the beacon so that SetImplementation upgrades it
		beaconFactory, beacon := d.peek(0), d.peek(1)
		n.BeaconFactory = factory.NewBeaconProxyFactory(n.Root, beaconFactory, cfg.Owner, beacon)
		if err := d.create(n.BeaconFactory); err != nil {
			return err
		}
		n.Beacon = factory.NewBeacon(beacon, beaconFactory, n.ImplementationV1)
		if err := d.create(n.Beacon); err != nil {
			return err
		}

		n.Validator = validator.New(n.Root, d.next(), cfg.Owner)
		if err := d.create(n.Validator); err != nil {
			return err
		}

		n.RootTunnel = tunnel.NewRoot(n.Root, d.next(), cfg.Owner,
			n.CheckpointManager.Address(), n.FxRoot.Address(), n.Validator.Address())
		return d.create(n.RootTunnel)
	})
	return err
}

func (n *Network) deployChild() error {
	cfg := n.Config
	_, err := n.Child.Execute(cfg.Owner, func(tx *chain.Tx) error {
		d := &deployer{tx: tx, account: cfg.Owner}

		n.FxChild = statesync.NewFxChild(d.next())
		if err := d.create(n.FxChild); err != nil {
			return err
		}

		n.Registry = registry.New(d.next(), cfg.Owner, cfg.RegistryName, cfg.RegistrySymbol)
		if err := d.create(n.Registry); err != nil {
			return err
		}

		n.ChildTunnel = tunnel.NewChild(n.Child, d.next(), cfg.Owner, n.FxChild.Address(), n.Registry.Address())
		return d.create(n.ChildTunnel)
	})
	return err
}

func (n *Network) wire() error {
	cfg := n.Config
	_, err := n.Root.Execute(cfg.Owner, func(tx *chain.Tx) error {
		if err := n.FxRoot.SetFxChild(tx, n.FxChild.Address()); err != nil {
			return err
		}
		if err := n.RootTunnel.SetFxChildTunnel(tx, n.ChildTunnel.Address()); err != nil {
			return err
		}
		if err := n.RootTunnel.SetMaxTokensPerTx(tx, cfg.MaxTokensPerTx); err != nil {
			return err
		}
		return n.Validator.SetFactories(tx,
			[]common.Address{n.MinimalFactory.Address(), n.BeaconFactory.Address()},
			[]*big.Int{big.NewInt(1), big.NewInt(1)},
		)
	})
	if err != nil {
		return err
	}

	_, err = n.Child.Execute(cfg.Owner, func(tx *chain.Tx) error {
		if err := n.FxChild.SetFxRoot(tx, n.FxRoot.Address()); err != nil {
			return err
		}
		if err := n.ChildTunnel.SetFxRootTunnel(tx, n.RootTunnel.Address()); err != nil {
			return err
		}
		if err := n.ChildTunnel.SetMaxTokensPerTx(tx, cfg.MaxTokensPerTx); err != nil {
			return err
		}
		return n.Registry.SetAdmin(tx, n.ChildTunnel.Address())
	})
	return err
}

// Factory returns the factory deploying proxies of the given kind
func (n *Network) Factory(kind factory.Kind) (*factory.Factory, error) {
	switch kind {
	case factory.KindMinimal:
		return n.MinimalFactory, nil
	case factory.KindBeacon:
		return n.BeaconFactory, nil
	default:
		return nil, fmt.Errorf("%w: unknown factory kind %q", domain.ErrInvalidInput, kind)
	}
}

// Collection returns the collection proxy deployed at addr on the root chain.
// It locks the chain, so it must not be called from inside a transaction.
func (n *Network) Collection(addr common.Address) (*collection.Proxy, error) {
	var proxy *collection.Proxy
	err := n.Root.Read(func() error {
		contract, ok := n.Root.ContractAt(addr)
		if !ok {
			return fmt.Errorf("%w: no contract at %s", domain.ErrInvalidCollection, addr.Hex())
		}
		proxy, ok = contract.(*collection.Proxy)
		if !ok {
			return fmt.Errorf("%w: %s is not a collection", domain.ErrInvalidCollection, addr.Hex())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proxy, nil
}
