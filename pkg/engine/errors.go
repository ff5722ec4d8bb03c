package engine

import "errors"

// Validation errors: rejected synchronously with no state change, fully
// recoverable by correcting the input.
var (
	ErrNoRecipients      = errors.New("intent has no recipients")
	ErrTooManyRecipients = errors.New("intent exceeds maximum recipient count")
	ErrLengthMismatch    = errors.New("recipients and amounts length mismatch")
	ErrZeroAmount        = errors.New("per-execution amount must be positive")
	ErrZeroRecipient     = errors.New("recipient must be a non-zero address")
	ErrIntervalTooShort  = errors.New("interval below minimum")
	ErrInvalidDuration   = errors.New("duration out of range")
	ErrStartTimeInPast   = errors.New("start time is in the past")
	ErrInvalidPolicy     = errors.New("unknown failure policy")
	ErrScheduleTooShort  = errors.New("duration shorter than one interval")
	ErrInsufficientFunds = errors.New("commitment exceeds available balance")
)

// Lifecycle and scheduling errors.
var (
	// ErrNotFound: the intent id does not exist for that wallet.
	ErrNotFound = errors.New("intent not found")
	// ErrAlreadyInactive: cancellation of a completed or cancelled intent.
	ErrAlreadyInactive = errors.New("intent already inactive")
	// ErrNotActive: execution of an inactive intent.
	ErrNotActive = errors.New("intent not active")
	// ErrNotExecutable: the due predicate failed on re-check. Expected under
	// concurrent keeper triggers; callers should re-scan.
	ErrNotExecutable = errors.New("intent not executable")
	// ErrTransferAborted: the wallet aborted the batch under the revert
	// policy; all bookkeeping was rolled back.
	ErrTransferAborted = errors.New("batch transfer aborted")
)
