package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/paystream-hq/paystreamer/pkg/events"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Indexer persists lifecycle events into sqlite for history queries. It is a
// pure read-side consumer: the engine never depends on it, and losing the
// database loses history, not funds.
type Indexer struct {
	db     *gorm.DB
	bus    *events.Bus
	logger logger.Logger

	created   chan interface{}
	executed  chan interface{}
	cancelled chan interface{}
}

// New opens (or creates) the database at path and migrates the schema.
func New(path string, bus *events.Bus, log logger.Logger) (*Indexer, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open indexer database %s: %v", path, err)
	}
	if err := db.AutoMigrate(&IntentRecord{}, &ExecutionRecord{}, &TransferRecord{}, &CancellationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate indexer schema: %v", err)
	}
	return &Indexer{
		db:        db,
		bus:       bus,
		logger:    log,
		created:   make(chan interface{}, 64),
		executed:  make(chan interface{}, 64),
		cancelled: make(chan interface{}, 64),
	}, nil
}

// Start subscribes to the bus and consumes events until the context ends.
func (ix *Indexer) Start(ctx context.Context) {
	ix.bus.Subscribe(events.IntentCreated, ix.created)
	ix.bus.Subscribe(events.IntentExecuted, ix.executed)
	ix.bus.Subscribe(events.IntentCancelled, ix.cancelled)

	ix.logger.InfoWith(logger.Indexer, "Indexer started")
	for {
		select {
		case <-ctx.Done():
			ix.bus.Unsubscribe(events.IntentCreated, ix.created)
			ix.bus.Unsubscribe(events.IntentExecuted, ix.executed)
			ix.bus.Unsubscribe(events.IntentCancelled, ix.cancelled)
			ix.logger.InfoWith(logger.Indexer, "Indexer shutting down")
			return
		case raw := <-ix.created:
			if ev, ok := raw.(events.IntentCreatedEvent); ok {
				ix.recordCreated(ev)
			}
		case raw := <-ix.executed:
			if ev, ok := raw.(events.IntentExecutedEvent); ok {
				ix.recordExecuted(ev)
			}
		case raw := <-ix.cancelled:
			if ev, ok := raw.(events.IntentCancelledEvent); ok {
				ix.recordCancelled(ev)
			}
		}
	}
}

func (ix *Indexer) recordCreated(ev events.IntentCreatedEvent) {
	recipients := make([]string, len(ev.Intent.Recipients))
	for i, r := range ev.Intent.Recipients {
		recipients[i] = r.Hex()
	}
	amounts := make([]string, len(ev.Intent.Amounts))
	for i, a := range ev.Intent.Amounts {
		amounts[i] = a.String()
	}

	rec := IntentRecord{
		ID:              uuid.New().String(),
		IntentID:        ev.Intent.ID.Hex(),
		Wallet:          ev.Intent.Wallet.Hex(),
		Asset:           ev.Intent.Asset.Hex(),
		Name:            ev.Intent.Name,
		Recipients:      strings.Join(recipients, ","),
		Amounts:         strings.Join(amounts, ","),
		IntervalSeconds: int64(ev.Intent.Interval.Seconds()),
		TotalExecutions: ev.Intent.TotalExecutions,
		StartTime:       ev.Intent.StartTime,
		EndTime:         ev.Intent.EndTime,
		Policy:          string(ev.Intent.Policy),
		TotalCommitment: ev.TotalCommitment.String(),
		CreatedAt:       ev.At,
	}
	if err := ix.db.Create(&rec).Error; err != nil {
		ix.logger.ErrorWith(logger.Indexer, "Failed to index created intent %s: %v", rec.IntentID, err)
	}
}

func (ix *Indexer) recordExecuted(ev events.IntentExecutedEvent) {
	rec := ExecutionRecord{
		ID:             uuid.New().String(),
		IntentID:       ev.IntentID.Hex(),
		Wallet:         ev.Wallet.Hex(),
		Asset:          ev.Asset.Hex(),
		ExecutionIndex: ev.ExecutionIndex,
		TotalAmount:    ev.TotalAmount.String(),
		FailedAmount:   ev.FailedAmount.String(),
		Completed:      ev.Completed,
		ExecutedAt:     ev.At,
	}
	for _, r := range ev.Results {
		rec.Transfers = append(rec.Transfers, TransferRecord{
			ID:          uuid.New().String(),
			ExecutionID: rec.ID,
			Recipient:   r.Recipient.Hex(),
			Amount:      r.Amount.String(),
			Succeeded:   r.Succeeded,
			Reason:      r.Reason,
		})
	}
	if err := ix.db.Create(&rec).Error; err != nil {
		ix.logger.ErrorWith(logger.Indexer, "Failed to index execution of intent %s: %v", rec.IntentID, err)
	}
}

func (ix *Indexer) recordCancelled(ev events.IntentCancelledEvent) {
	rec := CancellationRecord{
		ID:                  uuid.New().String(),
		IntentID:            ev.IntentID.Hex(),
		Wallet:              ev.Wallet.Hex(),
		ExecutionsPerformed: ev.ExecutionsPerformed,
		RefundedAmount:      ev.RefundedAmount.String(),
		RecoveredFailed:     ev.RecoveredFailed.String(),
		CancelledAt:         ev.At,
	}
	if err := ix.db.Create(&rec).Error; err != nil {
		ix.logger.ErrorWith(logger.Indexer, "Failed to index cancellation of intent %s: %v", rec.IntentID, err)
	}
}

// IntentsByWallet returns the indexed intent rows for a wallet, newest first.
func (ix *Indexer) IntentsByWallet(wallet common.Address) ([]IntentRecord, error) {
	var out []IntentRecord
	err := ix.db.Where("wallet = ?", wallet.Hex()).Order("created_at desc").Find(&out).Error
	return out, err
}

// Executions returns the execution history of one intent with its transfer
// rows, oldest first.
func (ix *Indexer) Executions(intentID common.Hash) ([]ExecutionRecord, error) {
	var out []ExecutionRecord
	err := ix.db.Preload("Transfers").
		Where("intent_id = ?", intentID.Hex()).
		Order("execution_index asc").
		Find(&out).Error
	return out, err
}

// Cancellation returns the cancellation row for an intent, if one exists.
func (ix *Indexer) Cancellation(intentID common.Hash) (*CancellationRecord, error) {
	var rec CancellationRecord
	err := ix.db.Where("intent_id = ?", intentID.Hex()).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
