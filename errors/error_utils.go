// Package errors provides the typed error codes used across chainlite and helpers to
// categorize them.
package errors

import (
	"context"
	"errors"
)

// IsConsensusError reports whether err rejects a specific block or transaction on consensus
// grounds. Such errors are never fatal to the process.
func IsConsensusError(err error) bool {
	var tErr *Error
	if !As(err, &tErr) {
		return false
	}

	for tErr != nil {
		switch tErr.Code() {
		case ERR_INVALID_POW,
			ERR_INVALID_DIFFICULTY,
			ERR_MISSING_COINBASE,
			ERR_COINBASE_TOO_LARGE,
			ERR_BLOCK_INVALID,
			ERR_TX_INVALID,
			ERR_TX_INVALID_DOUBLE_SPEND:
			return true
		}

		next, ok := tErr.wrappedErr.(*Error)
		if !ok {
			break
		}

		tErr = next
	}

	return false
}

// IsNotFoundError reports whether err is one of the recoverable not-found codes.
func IsNotFoundError(err error) bool {
	return Is(err, ErrNotFound) ||
		Is(err, ErrBlockNotFound) ||
		Is(err, ErrPrevBlockNotFound) ||
		Is(err, ErrTxNotFound) ||
		Is(err, ErrNoOutputs)
}

// IsRetryableError determines if an error is transient and the operation should be retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		switch tErr.Code() {
		case ERR_SERVICE_UNAVAILABLE, ERR_STORAGE_UNAVAILABLE:
			return true
		}
	}

	return false
}
