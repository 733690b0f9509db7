package domain

import (
	"errors"
	"fmt"
)

// Trade execution errors.
var (
	// ErrPoolNotFound is returned when protocol metadata for a pool cannot be resolved.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrInvalidAmount is returned when a computed bound amount is non-positive.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrSimulationFailed is returned when the dry run of a transaction is rejected.
	ErrSimulationFailed = errors.New("simulation failed")

	// ErrBroadcastExpired is returned when every attempt outlived its blockhash.
	ErrBroadcastExpired = errors.New("broadcast expired")

	// ErrLedgerExecutionFailed is returned when a confirmed transaction carries an execution error.
	ErrLedgerExecutionFailed = errors.New("ledger execution failed")

	// ErrNoSignature is returned when no signature was produced by the submission path.
	ErrNoSignature = errors.New("no signature")

	// ErrDecodeNotFound is returned when a transaction holds no swap for the requested protocol.
	ErrDecodeNotFound = errors.New("decode: swap not found")

	// ErrTradeFailed wraps any failure escaping the trade orchestrator.
	ErrTradeFailed = errors.New("trade failed")

	// ErrUnknownProtocol is returned for protocol values outside the supported set.
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrActiveLimit is returned when activating a wallet would exceed ActiveWalletsLimit.
	ErrActiveLimit = errors.New("active wallets limit reached")

	// ErrLockHeld is returned when a trade lock is held by another worker.
	ErrLockHeld = errors.New("lock held")

	// ErrNoTokensLeft is returned when a position has nothing left to sell.
	ErrNoTokensLeft = errors.New("no tokens left")
)

// SimulationFailedError carries the ledger's error payload and program logs.
type SimulationFailedError struct {
	Err  interface{}
	Logs []string
}

func (e *SimulationFailedError) Error() string {
	return fmt.Sprintf("simulation failed: %v", e.Err)
}

// Is matches ErrSimulationFailed.
func (e *SimulationFailedError) Is(target error) bool {
	return target == ErrSimulationFailed
}

// LedgerExecutionError is returned when the final transaction lookup shows meta.err.
type LedgerExecutionError struct {
	Signature string
	Err       interface{}
}

func (e *LedgerExecutionError) Error() string {
	return fmt.Sprintf("transaction %s failed on ledger: %v", e.Signature, e.Err)
}

// Is matches ErrLedgerExecutionFailed.
func (e *LedgerExecutionError) Is(target error) bool {
	return target == ErrLedgerExecutionFailed
}

// TradeFailedError wraps the cause of a failed trade with the attempt it happened on.
// Final marks failures that another attempt cannot fix: the plan could not be
// built, or the trade already executed on the ledger.
type TradeFailedError struct {
	Cause       error
	Attempt     int
	MaxAttempts int
	Final       bool
}

func (e *TradeFailedError) Error() string {
	return fmt.Sprintf("trade failed (attempt %d of %d): %v", e.Attempt, e.MaxAttempts, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TradeFailedError) Unwrap() error {
	return e.Cause
}

// Is matches ErrTradeFailed.
func (e *TradeFailedError) Is(target error) bool {
	return target == ErrTradeFailed
}

// Retryable reports whether err is a trade failure that may be attempted again.
func Retryable(err error) bool {
	var tf *TradeFailedError
	return errors.As(err, &tf) && !tf.Final
}
