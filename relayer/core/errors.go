package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyProcessed is returned by the store when a Confirmed record
	// already exists for the key being marked.
	ErrAlreadyProcessed = errors.New("event already processed")

	// ErrBroadcastFailed is returned when submission attempts are exhausted.
	ErrBroadcastFailed = errors.New("transaction broadcast failed")

	// ErrNonceConflict is returned when the node rejected the submission
	// because of a stale or duplicated nonce.
	ErrNonceConflict = errors.New("nonce conflict")

	// ErrConfirmationTimeout is returned when a submitted transaction did not
	// produce a receipt within the configured timeout. The event stays
	// Pending and is revisited on the next scan.
	ErrConfirmationTimeout = errors.New("timeout while waiting for transaction receipt")

	// ErrExecutionReverted is returned when the destination receipt reports a
	// failed execution status.
	ErrExecutionReverted = errors.New("destination transaction reverted")
)

// ValidationError marks an event as permanently invalid. It is terminal: the
// event is recorded Failed and never re-evaluated.
type ValidationError struct {
	Key    EventKey
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for event %s: %s", e.Key, e.Reason)
}

// FatalReorgError is raised when a reorg invalidates a block that holds an
// already-Confirmed record. The pipeline must stop: reconciling a finalized
// relay against a rewritten source history requires operator intervention.
type FatalReorgError struct {
	Height        uint64
	ConfirmedKeys []EventKey
}

func (e *FatalReorgError) Error() string {
	return fmt.Sprintf(
		"reorg at height %d invalidates %d confirmed record(s), manual reconciliation required",
		e.Height, len(e.ConfirmedKeys))
}
