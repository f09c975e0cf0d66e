package tunnel

import (
	"github.com/feral-file/ff-collection-bridge/internal/chain"
)

var (
	// DepositedEvent is emitted by the root tunnel once a batch is locked and synced
	DepositedEvent = chain.NewEvent("Deposited", "address depositor indexed", "address beneficiary indexed", "uint256 stateId", "uint256 tokens")
	// UnlockedEvent is emitted by the root tunnel once an exit released its tokens
	UnlockedEvent = chain.NewEvent("Unlocked", "address beneficiary indexed", "uint256 exitId", "uint256 tokens")
	// BridgedEvent is emitted by the child tunnel once a synced state was minted
	BridgedEvent = chain.NewEvent("Bridged", "uint256 stateId indexed", "address beneficiary indexed", "uint256 tokens")
	// WithdrawnEvent is emitted by the child tunnel once bridged tokens were burnt
	WithdrawnEvent = chain.NewEvent("Withdrawn", "address sender indexed", "address beneficiary indexed", "uint256 tokens")

	MaxTokensPerTxSetEvent      = chain.NewEvent("MaxTokensPerTxSet", "uint256 maxTokensPerTx")
	CollectionValidatorSetEvent = chain.NewEvent("CollectionValidatorSet", "address validator indexed")
	FxChildTunnelSetEvent       = chain.NewEvent("FxChildTunnelSet", "address tunnel indexed")
	FxRootTunnelSetEvent        = chain.NewEvent("FxRootTunnelSet", "address tunnel indexed")
)
