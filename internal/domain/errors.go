package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSubscriptionFailed is returned when subscription to chain logs fails
	ErrSubscriptionFailed = errors.New("subscription failed")

	// ErrUnauthorized is the kind of every access-control revert
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput is the kind of every input validation revert
	ErrInvalidInput = errors.New("invalid input")

	// ErrReplay is returned when a message or exit id was already consumed
	ErrReplay = errors.New("message already processed")

	// ErrAlreadyMinted is returned when attempting to mint a token that already exists
	ErrAlreadyMinted = errors.New("token already minted")

	// ErrNonexistentToken is returned when a token is not found
	ErrNonexistentToken = errors.New("token not found")

	// ErrInvalidCollection is returned when a collection fails validation
	ErrInvalidCollection = errors.New("invalid collection")

	// ErrMaxTokensExceeded is returned when a batch is larger than the configured limit
	ErrMaxTokensExceeded = errors.New("max tokens per tx exceeded")

	// ErrContractAddressCollision is returned when deploying to an occupied address
	ErrContractAddressCollision = errors.New("contract address collision")

	// ErrNotAContract is returned when an address holds no contract or the wrong kind of contract
	ErrNotAContract = errors.New("not a contract")
)

// RevertError is a failed transaction. Reason carries the tagged, machine-parseable
// reason string (e.g. "CBC#withdrawFor: MAX_TOKENS_PER_TX_EXCEEDED").
type RevertError struct {
	Reason string
	Kind   error
}

// NewRevert creates a revert of the given kind
func NewRevert(kind error, reason string) error {
	return &RevertError{Reason: reason, Kind: kind}
}

// Revertf creates a revert with a formatted reason
func Revertf(kind error, format string, args ...interface{}) error {
	return &RevertError{Reason: fmt.Sprintf(format, args...), Kind: kind}
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.Kind
}

// IsRevert reports whether err is (or wraps) a revert
func IsRevert(err error) bool {
	var revert *RevertError
	return errors.As(err, &revert)
}

// RevertReason returns the reason string of a revert, or an empty string
func RevertReason(err error) string {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert.Reason
	}
	return ""
}
