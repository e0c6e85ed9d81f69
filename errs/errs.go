// Package errs defines the sentinel error values shared across the
// blockchain, wallet and network packages. Callers compare against these
// with errors.Is; the wrapped detail (txid, address, peer) is added with
// fmt.Errorf("...: %w", ...) at the call site.
package errs

import "errors"

var (
	// InvalidTransaction is returned when a transaction fails structural or
	// signature verification: a missing previous transaction, a referenced
	// output that doesn't exist, or a signature that doesn't verify.
	InvalidTransaction = errors.New("invalid transaction")

	// InsufficientFunds is returned when a spendable-output selection
	// cannot cover the requested amount.
	InsufficientFunds = errors.New("insufficient funds")

	// NotFound is returned for a missing block, transaction or wallet.
	NotFound = errors.New("not found")

	// StoreError wraps failures from the underlying key-value store:
	// open/get/set/flush failures and serialization failures.
	StoreError = errors.New("store error")

	// NetworkError wraps connect/read/write failures talking to a peer.
	NetworkError = errors.New("network error")

	// FormatError is returned for an unrecognised wire command or a
	// payload that doesn't decode into the expected message type.
	FormatError = errors.New("format error")

	// InvalidBlock is returned when a received block fails proof-of-work,
	// prev-link, or contained-transaction validation.
	InvalidBlock = errors.New("invalid block")
)
