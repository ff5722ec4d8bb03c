package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BatchTransferRequest is handed to the wallet capability for one execution
// of an intent. ExecutionIndex labels the run (0-based) so the wallet and
// any downstream indexer can correlate it with the schedule.
type BatchTransferRequest struct {
	Asset          common.Address
	Recipients     []common.Address
	Amounts        []*big.Int
	IntentID       common.Hash
	ExecutionIndex uint64
	Policy         FailurePolicy
}

// TransferResult records the outcome of a single recipient transfer within a
// batch.
type TransferResult struct {
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
	Succeeded bool           `json:"succeeded"`
	Reason    string         `json:"reason,omitempty"`
}

// BatchTransferOutcome is the two-variant result of a batch transfer.
// Aborted is the revert-policy variant: nothing moved and the caller must
// undo its own bookkeeping. Otherwise the batch completed, possibly with a
// non-zero FailedAmount under the skip policy.
type BatchTransferOutcome struct {
	Aborted      bool
	FailedAmount *big.Int
	Results      []TransferResult
}

// Completed reports whether the batch ran to the end (skip policy or fully
// successful).
func (o BatchTransferOutcome) Completed() bool {
	return !o.Aborted
}
