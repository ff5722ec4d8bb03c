package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FailurePolicy controls how a multi-recipient execution reacts to a single
// failed transfer.
type FailurePolicy string

const (
	// FailurePolicyRevert aborts the whole execution on the first failed
	// transfer; no state advances.
	FailurePolicyRevert FailurePolicy = "revert"
	// FailurePolicySkip completes every transfer it can and accrues the
	// failed portion on the intent for later recovery.
	FailurePolicySkip FailurePolicy = "skip"
)

// Valid reports whether the policy is one of the two supported values.
func (p FailurePolicy) Valid() bool {
	return p == FailurePolicyRevert || p == FailurePolicySkip
}

// NativeAsset is the sentinel asset identifier for the chain's native asset.
// Any other value identifies a fungible token contract.
var NativeAsset = common.Address{}

// Intent is a stored, recurring multi-recipient payment schedule.
type Intent struct {
	ID         common.Hash      `json:"id"`
	Wallet     common.Address   `json:"wallet"`
	Asset      common.Address   `json:"asset"`
	Name       string           `json:"name"`
	Recipients []common.Address `json:"recipients"`
	Amounts    []*big.Int       `json:"amounts"`

	Interval            time.Duration `json:"interval"`
	TotalExecutions     uint64        `json:"total_executions"`
	ExecutionsPerformed uint64        `json:"executions_performed"`
	StartTime           time.Time     `json:"start_time"`
	EndTime             time.Time     `json:"end_time"`
	// LatestExecution is the zero time until the first run. A zero value
	// means the intent is due as soon as StartTime has passed.
	LatestExecution time.Time `json:"latest_execution"`

	Active    bool          `json:"active"`
	Cancelled bool          `json:"cancelled"`
	Policy    FailurePolicy `json:"failure_policy"`
	// FailedAmount accumulates value that was released from the commitment
	// ledger but never reached a recipient under the skip policy. Zeroed and
	// reported on cancellation.
	FailedAmount *big.Int  `json:"failed_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// TotalAmount returns the sum of per-execution amounts, the value moved by a
// single execution.
func (i *Intent) TotalAmount() *big.Int {
	total := new(big.Int)
	for _, a := range i.Amounts {
		total.Add(total, a)
	}
	return total
}

// RemainingExecutions returns how many scheduled executions have not run yet.
func (i *Intent) RemainingExecutions() uint64 {
	if i.ExecutionsPerformed >= i.TotalExecutions {
		return 0
	}
	return i.TotalExecutions - i.ExecutionsPerformed
}

// RemainingCommitment returns the funds still reserved for this intent:
// per-execution total times remaining executions.
func (i *Intent) RemainingCommitment() *big.Int {
	return new(big.Int).Mul(i.TotalAmount(), new(big.Int).SetUint64(i.RemainingExecutions()))
}

// Status returns the lifecycle state as a string: "active", "completed" or
// "cancelled".
func (i *Intent) Status() string {
	switch {
	case i.Active:
		return "active"
	case i.Cancelled:
		return "cancelled"
	default:
		return "completed"
	}
}

// Clone returns a deep copy, safe to hand to readers outside the engine's
// lock.
func (i *Intent) Clone() *Intent {
	cp := *i
	cp.Recipients = make([]common.Address, len(i.Recipients))
	copy(cp.Recipients, i.Recipients)
	cp.Amounts = make([]*big.Int, len(i.Amounts))
	for k, a := range i.Amounts {
		cp.Amounts[k] = new(big.Int).Set(a)
	}
	if i.FailedAmount != nil {
		cp.FailedAmount = new(big.Int).Set(i.FailedAmount)
	}
	return &cp
}
