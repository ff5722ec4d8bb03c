package events

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/models"
)

// Type enumerates the intent lifecycle events emitted by the engine.
type Type int

const (
	TypeUnknown Type = iota
	IntentCreated
	IntentExecuted
	IntentCancelled
)

func (t Type) String() string {
	return [...]string{"Unknown", "IntentCreated", "IntentExecuted", "IntentCancelled"}[t]
}

// IntentCreatedEvent carries the full schedule so a read-side consumer can
// reconstruct the intent without querying the core.
type IntentCreatedEvent struct {
	Intent          models.Intent
	TotalCommitment *big.Int
	At              time.Time
}

// IntentExecutedEvent records one execution of an intent, including the
// per-recipient outcome.
type IntentExecutedEvent struct {
	Wallet         common.Address
	Asset          common.Address
	IntentID       common.Hash
	ExecutionIndex uint64
	TotalAmount    *big.Int
	FailedAmount   *big.Int
	Results        []models.TransferResult
	Completed      bool
	At             time.Time
}

// IntentCancelledEvent records an owner cancellation: the commitment
// refunded to the wallet and any accumulated failed-transfer amount that was
// reported and zeroed.
type IntentCancelledEvent struct {
	Wallet              common.Address
	Asset               common.Address
	IntentID            common.Hash
	ExecutionsPerformed uint64
	RefundedAmount      *big.Int
	RecoveredFailed     *big.Int
	At                  time.Time
}
