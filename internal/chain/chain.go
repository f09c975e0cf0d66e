package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// Reader is the read side of a chain used by off-chain components
//
//go:generate mockgen -source=chain.go -destination=../mocks/chain.go -package=mocks -mock_names=Reader=MockChainReader
type Reader interface {
	// ID returns the CAIP-2 identifier of the chain
	ID() domain.Chain
	// BlockNumber returns the latest block number
	BlockNumber(ctx context.Context) (uint64, error)
	// BlockTime returns the timestamp of a block
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
	// FilterLogs retrieves logs that match the filter query
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// Receipt is the result of a successful transaction
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Logs        []types.Log
}

// Chain is an in-process chain. Each successful transaction is mined into its own block.
// Contract views are not synchronized: when the chain is shared between goroutines, run
// them inside Execute or Read.
type Chain struct {
	mu        sync.Mutex
	id        domain.Chain
	chainID   *big.Int
	clock     adapter.Clock
	contracts map[common.Address]interface{}
	nonces    map[common.Address]uint64
	logs      []types.Log
	blocks    []time.Time
	txCount   uint64
	journal   *journal
}

// New creates an empty chain. Block 0 is the genesis block.
func New(id domain.Chain, clock adapter.Clock) (*Chain, error) {
	chainID, err := id.ChainID()
	if err != nil {
		return nil, err
	}

	return &Chain{
		id:        id,
		chainID:   chainID,
		clock:     clock,
		contracts: make(map[common.Address]interface{}),
		nonces:    make(map[common.Address]uint64),
		blocks:    []time.Time{clock.Now()},
		journal:   newJournal(),
	}, nil
}

// ID returns the CAIP-2 identifier of the chain
func (c *Chain) ID() domain.Chain {
	return c.id
}

// ChainID returns the numeric EIP-155 chain id
func (c *Chain) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Execute runs fn as a single atomic transaction signed by sender.
// If fn fails (or panics) every state change and log of the transaction is reverted.
func (c *Chain) Execute(sender common.Address, fn func(tx *Tx) error) (receipt *Receipt, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.txCount++
	tx := &Tx{
		chain:  c,
		origin: sender,
		frames: []common.Address{sender},
		hash:   c.txHash(sender),
		block:  uint64(len(c.blocks)),
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panicked: %v", r)
		}
		if err != nil {
			c.journal.revertTo(0)
			receipt = nil
		}
		c.journal.reset()
	}()

	if err = fn(tx); err != nil {
		return nil, err
	}

	c.blocks = append(c.blocks, c.clock.Now())
	for i := range tx.logs {
		tx.logs[i].Index = uint(i)
	}
	c.logs = append(c.logs, tx.logs...)

	return &Receipt{
		TxHash:      tx.hash,
		BlockNumber: tx.block,
		Logs:        tx.logs,
	}, nil
}

// Read runs fn with the chain locked, for consistent views from other goroutines
func (c *Chain) Read(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return fn()
}

// ContractAt returns the contract deployed at addr
func (c *Chain) ContractAt(addr common.Address) (interface{}, bool) {
	contract, ok := c.contracts[addr]
	return contract, ok
}

// IsContract reports whether addr holds code
func (c *Chain) IsContract(addr common.Address) bool {
	_, ok := c.contracts[addr]
	return ok
}

// Nonce returns the deployment nonce of addr
func (c *Chain) Nonce(addr common.Address) uint64 {
	return c.nonces[addr]
}

// BlockNumber returns the latest block number
func (c *Chain) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return uint64(len(c.blocks) - 1), nil
}

// BlockTime returns the timestamp of a block
func (c *Chain) BlockTime(_ context.Context, number uint64) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if number >= uint64(len(c.blocks)) {
		return time.Time{}, fmt.Errorf("block %d not found", number)
	}
	return c.blocks[number], nil
}

// FilterLogs retrieves logs that match the filter query. Topic filtering follows the
// eth_getLogs rules: an empty position matches anything, otherwise any listed topic matches.
func (c *Chain) FilterLogs(_ context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if query.BlockHash != nil {
		return nil, fmt.Errorf("filtering by block hash is not supported")
	}

	from := uint64(0)
	if query.FromBlock != nil {
		from = query.FromBlock.Uint64()
	}
	to := uint64(len(c.blocks) - 1)
	if query.ToBlock != nil && query.ToBlock.Uint64() < to {
		to = query.ToBlock.Uint64()
	}

	var result []types.Log
	for _, log := range c.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if !matchAddress(log, query.Addresses) || !matchTopics(log, query.Topics) {
			continue
		}
		result = append(result, log)
	}

	return result, nil
}

func matchAddress(log types.Log, addresses []common.Address) bool {
	if len(addresses) == 0 {
		return true
	}
	for _, addr := range addresses {
		if log.Address == addr {
			return true
		}
	}
	return false
}

func matchTopics(log types.Log, topics [][]common.Hash) bool {
	if len(topics) > len(log.Topics) {
		return false
	}
	for i, sub := range topics {
		if len(sub) == 0 {
			continue
		}
		found := false
		for _, topic := range sub {
			if log.Topics[i] == topic {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c *Chain) txHash(sender common.Address) common.Hash {
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], c.txCount)
	return crypto.Keccak256Hash(c.chainID.Bytes(), sender.Bytes(), counter[:])
}
