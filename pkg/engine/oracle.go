package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/paystream-hq/paystreamer/pkg/metrics"
	"github.com/paystream-hq/paystreamer/pkg/models"
)

// Candidate identifies one executable intent found by a scan.
type Candidate struct {
	Wallet   common.Address `json:"wallet"`
	IntentID common.Hash    `json:"intent_id"`
}

// FindDueIntent scans registered wallets in registration order, and each
// wallet's active intents in index order, returning the first intent whose
// schedule, remaining executions and wallet balance all permit execution
// right now. It is a pure read: state is untouched and the result is only a
// hint that expires as soon as anything else runs. Returns nil when nothing
// is due.
//
// The schedule state is snapshotted under the lock; the per-wallet balance
// reads happen outside it, so a slow wallet backend cannot stall
// state-changing calls for the length of a scan. Execute re-checks the full
// predicate anyway, so a snapshot gone stale costs at most one
// ErrNotExecutable.
func (e *Engine) FindDueIntent(ctx context.Context) (*Candidate, error) {
	timer := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(timer).Seconds())
	}()

	type scanEntry struct {
		wallet common.Address
		intent *models.Intent
	}

	e.mu.Lock()
	now := e.clock.Now()
	var entries []scanEntry
	for _, w := range e.registry.AllWallets() {
		for _, intent := range e.store.ActiveIntents(w) {
			entries = append(entries, scanEntry{wallet: w, intent: intent})
		}
	}
	e.mu.Unlock()

	for _, entry := range entries {
		if !scheduleDue(entry.intent, now) {
			continue
		}
		cap, err := e.wallets.Wallet(entry.wallet)
		if err != nil {
			e.logger.ErrorWith(logger.Engine, "Skipping intent %s during scan: %v", entry.intent.ID.Hex(), err)
			continue
		}
		balance, err := cap.Balance(ctx, entry.intent.Asset)
		if err != nil {
			e.logger.ErrorWith(logger.Engine, "Skipping intent %s during scan: %v", entry.intent.ID.Hex(), err)
			continue
		}
		if balance.Cmp(entry.intent.TotalAmount()) >= 0 {
			return &Candidate{Wallet: entry.wallet, IntentID: entry.intent.ID}, nil
		}
	}
	return nil, nil
}

// isDue evaluates the full due predicate: active, started, executions left,
// interval elapsed since the last run (first run is due immediately at the
// start time), and the wallet balance covers one full round. The caller holds
// the engine lock.
func (e *Engine) isDue(ctx context.Context, intent *models.Intent, now time.Time) (bool, error) {
	if !scheduleDue(intent, now) {
		return false, nil
	}

	cap, err := e.wallets.Wallet(intent.Wallet)
	if err != nil {
		return false, err
	}
	balance, err := cap.Balance(ctx, intent.Asset)
	if err != nil {
		return false, err
	}
	return balance.Cmp(intent.TotalAmount()) >= 0, nil
}

// scheduleDue is the time-and-count half of the due predicate.
func scheduleDue(intent *models.Intent, now time.Time) bool {
	if !intent.Active {
		return false
	}
	if now.Before(intent.StartTime) {
		return false
	}
	if intent.ExecutionsPerformed >= intent.TotalExecutions {
		return false
	}
	if !intent.LatestExecution.IsZero() && now.Before(intent.LatestExecution.Add(intent.Interval)) {
		return false
	}
	return true
}
