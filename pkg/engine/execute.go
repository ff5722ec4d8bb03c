package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/events"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/paystream-hq/paystreamer/pkg/metrics"
	"github.com/paystream-hq/paystreamer/pkg/models"
)

// Receipt reports one completed execution.
type Receipt struct {
	IntentID       common.Hash             `json:"intent_id"`
	ExecutionIndex uint64                  `json:"execution_index"`
	TotalAmount    *big.Int                `json:"total_amount"`
	FailedAmount   *big.Int                `json:"failed_amount"`
	Results        []models.TransferResult `json:"results"`
	Completed      bool                    `json:"completed"`
}

// execSnapshot captures the fields Execute advances before the external
// transfer, so a revert-policy abort can restore them exactly.
type execSnapshot struct {
	performed uint64
	latest    time.Time
	active    bool
}

// Execute runs one round of the intent. The due predicate is re-checked
// under the lock, schedule state advances before the external transfer, and
// the commitment released for the round is reclaimed if the wallet aborts
// the batch under the revert policy. Anyone may call this; the intent id is
// the only authority required.
func (e *Engine) Execute(ctx context.Context, walletAddr common.Address, id common.Hash) (Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := time.Now()
	defer func() {
		metrics.ExecutionDuration.Observe(time.Since(timer).Seconds())
	}()

	intent, ok := e.store.Get(walletAddr, id)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s for wallet %s", ErrNotFound, id.Hex(), walletAddr.Hex())
	}
	if !intent.Active {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotActive, id.Hex())
	}

	now := e.clock.Now()
	due, err := e.isDue(ctx, intent, now)
	if err != nil {
		return Receipt{}, fmt.Errorf("due check for intent %s: %v", id.Hex(), err)
	}
	if !due {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotExecutable, id.Hex())
	}

	roundTotal := intent.TotalAmount()
	executionIndex := intent.ExecutionsPerformed

	// Schedule state advances before any external call so a re-entrant or
	// concurrent trigger observes the round as already taken.
	snap := execSnapshot{
		performed: intent.ExecutionsPerformed,
		latest:    intent.LatestExecution,
		active:    intent.Active,
	}
	completed := snap.performed+1 >= intent.TotalExecutions
	e.store.Update(walletAddr, id, func(i *models.Intent) {
		i.ExecutionsPerformed++
		i.LatestExecution = now
		if completed {
			i.Active = false
		}
	})
	if completed {
		e.store.Deactivate(walletAddr, id)
	}

	cap, err := e.wallets.Wallet(walletAddr)
	if err != nil {
		e.rollback(intent, snap, walletAddr, id)
		return Receipt{}, fmt.Errorf("failed to resolve wallet %s: %v", walletAddr.Hex(), err)
	}

	// The round's commitment is released up front; the transfer spends it.
	if err := cap.DecreaseCommitment(ctx, intent.Asset, roundTotal); err != nil {
		e.rollback(intent, snap, walletAddr, id)
		return Receipt{}, fmt.Errorf("failed to release round commitment on wallet %s: %v", walletAddr.Hex(), err)
	}
	if err := e.ledger.Decrease(walletAddr, intent.Asset, roundTotal); err != nil {
		e.rollback(intent, snap, walletAddr, id)
		if cerr := cap.IncreaseCommitment(ctx, intent.Asset, roundTotal); cerr != nil {
			e.logger.ErrorWith(logger.Engine, "Failed to restore wallet commitment after ledger underflow on %s: %v", id.Hex(), cerr)
		}
		return Receipt{}, err
	}

	outcome, err := cap.ExecuteBatchTransfer(ctx, models.BatchTransferRequest{
		Asset:          intent.Asset,
		Recipients:     intent.Recipients,
		Amounts:        intent.Amounts,
		IntentID:       id,
		ExecutionIndex: executionIndex,
		Policy:         intent.Policy,
	})
	if err != nil || outcome.Aborted {
		e.rollback(intent, snap, walletAddr, id)
		e.ledger.Increase(walletAddr, intent.Asset, roundTotal)
		if cerr := cap.IncreaseCommitment(ctx, intent.Asset, roundTotal); cerr != nil {
			e.logger.ErrorWith(logger.Engine, "Failed to restore wallet commitment after aborted batch on %s: %v", id.Hex(), cerr)
		}
		metrics.IntentsExecuted.WithLabelValues(intent.Asset.Hex(), "aborted").Inc()
		if err != nil {
			return Receipt{}, fmt.Errorf("batch transfer for intent %s: %v", id.Hex(), err)
		}
		return Receipt{}, fmt.Errorf("%w: %s", ErrTransferAborted, id.Hex())
	}

	failed := outcome.FailedAmount
	if failed == nil {
		failed = new(big.Int)
	}
	if failed.Sign() > 0 {
		// Skip policy: the failed portion left the commitment but never
		// reached a recipient. Park it on the intent for recovery.
		e.store.Update(walletAddr, id, func(i *models.Intent) {
			i.FailedAmount.Add(i.FailedAmount, failed)
		})
		metrics.TransferFailures.WithLabelValues(intent.Asset.Hex()).Add(amountGauge(failed))
	}

	if completed {
		metrics.IntentsCompleted.Inc()
	}
	metrics.IntentsExecuted.WithLabelValues(intent.Asset.Hex(), "completed").Inc()
	metrics.ActiveIntents.Set(float64(e.store.ActiveCount()))
	metrics.CommittedFunds.WithLabelValues(intent.Asset.Hex()).Sub(amountGauge(roundTotal))

	results := append([]models.TransferResult(nil), outcome.Results...)

	e.publish(events.IntentExecuted, events.IntentExecutedEvent{
		Wallet:         walletAddr,
		Asset:          intent.Asset,
		IntentID:       id,
		ExecutionIndex: executionIndex,
		TotalAmount:    roundTotal,
		FailedAmount:   failed,
		Results:        results,
		Completed:      completed,
		At:             now,
	})

	e.logger.InfoWith(logger.Engine, "Executed intent %s round %d/%d: moved %s, failed %s",
		id.Hex(), executionIndex+1, intent.TotalExecutions, roundTotal.String(), failed.String())

	return Receipt{
		IntentID:       id,
		ExecutionIndex: executionIndex,
		TotalAmount:    roundTotal,
		FailedAmount:   failed,
		Results:        results,
		Completed:      completed,
	}, nil
}

// rollback restores the schedule fields advanced by Execute and, if the
// round had deactivated the intent as completed, puts it back in the active
// index.
func (e *Engine) rollback(intent *models.Intent, snap execSnapshot, wallet common.Address, id common.Hash) {
	reactivate := snap.active && !intent.Active
	e.store.Update(wallet, id, func(i *models.Intent) {
		i.ExecutionsPerformed = snap.performed
		i.LatestExecution = snap.latest
		i.Active = snap.active
	})
	if reactivate {
		e.store.Reactivate(wallet, id)
	}
}
