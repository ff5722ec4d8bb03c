package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/events"
	"github.com/paystream-hq/paystreamer/pkg/ledger"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/paystream-hq/paystreamer/pkg/metrics"
	"github.com/paystream-hq/paystreamer/pkg/models"
	"github.com/paystream-hq/paystreamer/pkg/registry"
	"github.com/paystream-hq/paystreamer/pkg/store"
	"github.com/paystream-hq/paystreamer/pkg/wallet"
)

// Params bound the schedules the engine accepts.
type Params struct {
	MaxRecipients int
	MinInterval   time.Duration
	MaxDuration   time.Duration
}

// DefaultParams returns the standard schedule bounds: at most 10 recipients,
// a 30 second interval floor and a one year duration ceiling.
func DefaultParams() Params {
	return Params{
		MaxRecipients: 10,
		MinInterval:   30 * time.Second,
		MaxDuration:   365 * 24 * time.Hour,
	}
}

// Engine is the intent registry and commitment-accounting core. All
// state-changing operations (CreateIntent, CancelIntent, Execute) run under
// one mutex, which provides the call-level atomicity the accounting
// invariants depend on.
type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	ledger   *ledger.Ledger
	registry *registry.Registry
	wallets  wallet.Provider
	bus      *events.Bus
	clock    Clock
	params   Params
	logger   logger.Logger
}

// New creates an engine over the given collaborators.
func New(st *store.Store, ld *ledger.Ledger, rg *registry.Registry, wallets wallet.Provider, bus *events.Bus, clock Clock, params Params, log logger.Logger) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Engine{
		store:    st,
		ledger:   ld,
		registry: rg,
		wallets:  wallets,
		bus:      bus,
		clock:    clock,
		params:   params,
		logger:   log,
	}
}

// Store exposes the intent store for read-side consumers (the API).
func (e *Engine) Store() *store.Store { return e.store }

// Ledger exposes the commitment ledger for read-side consumers.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Registry exposes the wallet registry for read-side consumers.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// CreateIntentParams carries the validated, structured schedule a wallet
// submits.
type CreateIntentParams struct {
	Wallet     common.Address
	Asset      common.Address
	Name       string
	Recipients []common.Address
	Amounts    []*big.Int
	Duration   time.Duration
	Interval   time.Duration
	// StartTime zero means "now".
	StartTime time.Time
	Policy    models.FailurePolicy
}

// CreateIntent validates the schedule, reserves the full commitment against
// the wallet's available balance, and stores the intent as active. Side
// effects are applied together: wallet registration, storage, ledger
// increase, wallet-side commitment increase and the creation event.
func (e *Engine) CreateIntent(ctx context.Context, p CreateIntentParams) (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	if err := e.validateCreate(p, now); err != nil {
		return common.Hash{}, err
	}

	start := p.StartTime
	if start.IsZero() {
		start = now
	}

	totalExecutions := uint64(p.Duration / p.Interval)
	if totalExecutions == 0 {
		return common.Hash{}, fmt.Errorf("%w: duration %v, interval %v", ErrScheduleTooShort, p.Duration, p.Interval)
	}

	perExecution := new(big.Int)
	for _, a := range p.Amounts {
		perExecution.Add(perExecution, a)
	}
	totalCommitment := new(big.Int).Mul(perExecution, new(big.Int).SetUint64(totalExecutions))

	cap, err := e.wallets.Wallet(p.Wallet)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to resolve wallet %s: %v", p.Wallet.Hex(), err)
	}
	balance, err := cap.Balance(ctx, p.Asset)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read balance for wallet %s: %v", p.Wallet.Hex(), err)
	}
	available := e.ledger.Available(p.Wallet, p.Asset, balance)
	if totalCommitment.Cmp(available) > 0 {
		return common.Hash{}, fmt.Errorf("%w: need %s, available %s", ErrInsufficientFunds, totalCommitment.String(), available.String())
	}

	// The wallet-side mirror goes first: it is the only step that can fail,
	// so local state never needs unwinding.
	if err := cap.IncreaseCommitment(ctx, p.Asset, totalCommitment); err != nil {
		return common.Hash{}, fmt.Errorf("failed to reserve commitment on wallet %s: %v", p.Wallet.Hex(), err)
	}

	if e.registry.RegisterIfNew(p.Wallet) {
		metrics.RegisteredWallets.Set(float64(e.registry.Count()))
	}

	id := e.store.NextID(p.Wallet, p.Asset, p.Recipients, p.Amounts, now.Unix())

	intent := &models.Intent{
		ID:              id,
		Wallet:          p.Wallet,
		Asset:           p.Asset,
		Name:            p.Name,
		Recipients:      append([]common.Address(nil), p.Recipients...),
		Amounts:         cloneAmounts(p.Amounts),
		Interval:        p.Interval,
		TotalExecutions: totalExecutions,
		StartTime:       start,
		EndTime:         start.Add(p.Duration),
		Active:          true,
		Policy:          p.Policy,
		FailedAmount:    new(big.Int),
		CreatedAt:       now,
	}
	e.store.Put(intent)
	e.ledger.Increase(p.Wallet, p.Asset, totalCommitment)

	metrics.IntentsCreated.WithLabelValues(p.Asset.Hex()).Inc()
	metrics.ActiveIntents.Set(float64(e.store.ActiveCount()))
	metrics.CommittedFunds.WithLabelValues(p.Asset.Hex()).Add(amountGauge(totalCommitment))

	e.publish(events.IntentCreated, events.IntentCreatedEvent{
		Intent:          *intent.Clone(),
		TotalCommitment: totalCommitment,
		At:              now,
	})

	e.logger.NoticeWith(logger.Engine, "Created intent %s for wallet %s: %d recipients, %d executions every %v, commitment %s",
		id.Hex(), p.Wallet.Hex(), len(p.Recipients), totalExecutions, p.Interval, totalCommitment.String())

	return id, nil
}

func (e *Engine) validateCreate(p CreateIntentParams, now time.Time) error {
	if len(p.Recipients) == 0 {
		return ErrNoRecipients
	}
	if len(p.Recipients) > e.params.MaxRecipients {
		return fmt.Errorf("%w: %d > %d", ErrTooManyRecipients, len(p.Recipients), e.params.MaxRecipients)
	}
	if len(p.Recipients) != len(p.Amounts) {
		return fmt.Errorf("%w: %d recipients, %d amounts", ErrLengthMismatch, len(p.Recipients), len(p.Amounts))
	}
	for i, a := range p.Amounts {
		if a == nil || a.Sign() <= 0 {
			return fmt.Errorf("%w: index %d", ErrZeroAmount, i)
		}
		if p.Recipients[i] == (common.Address{}) {
			return fmt.Errorf("%w: index %d", ErrZeroRecipient, i)
		}
	}
	if p.Interval < e.params.MinInterval {
		return fmt.Errorf("%w: %v < %v", ErrIntervalTooShort, p.Interval, e.params.MinInterval)
	}
	if p.Duration <= 0 || p.Duration > e.params.MaxDuration {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, p.Duration)
	}
	if !p.StartTime.IsZero() && p.StartTime.Before(now) {
		return fmt.Errorf("%w: %v", ErrStartTimeInPast, p.StartTime)
	}
	if !p.Policy.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, p.Policy)
	}
	return nil
}

// CancelReceipt reports what a cancellation released: the commitment
// refunded for the unexecuted remainder, and any accumulated
// failed-transfer amount that was reported and zeroed for out-of-band
// recovery.
type CancelReceipt struct {
	Refunded        *big.Int
	RecoveredFailed *big.Int
}

// CancelIntent terminates an active intent immediately and irrevocably,
// releasing the commitment for all remaining executions. Only the owning
// wallet's intents are reachable here; an id that does not belong to the
// wallet is NotFound.
func (e *Engine) CancelIntent(ctx context.Context, walletAddr common.Address, id common.Hash) (CancelReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, ok := e.store.Get(walletAddr, id)
	if !ok {
		return CancelReceipt{}, fmt.Errorf("%w: %s for wallet %s", ErrNotFound, id.Hex(), walletAddr.Hex())
	}
	if !intent.Active {
		return CancelReceipt{}, fmt.Errorf("%w: %s", ErrAlreadyInactive, id.Hex())
	}

	refund := intent.RemainingCommitment()
	if refund.Sign() > 0 {
		cap, err := e.wallets.Wallet(walletAddr)
		if err != nil {
			return CancelReceipt{}, fmt.Errorf("failed to resolve wallet %s: %v", walletAddr.Hex(), err)
		}
		if err := cap.DecreaseCommitment(ctx, intent.Asset, refund); err != nil {
			return CancelReceipt{}, fmt.Errorf("failed to release commitment on wallet %s: %v", walletAddr.Hex(), err)
		}
		if err := e.ledger.Decrease(walletAddr, intent.Asset, refund); err != nil {
			// Ledger and wallet commitment have diverged: a core defect.
			e.logger.ErrorWith(logger.Engine, "Ledger underflow on cancel of %s: %v", id.Hex(), err)
			return CancelReceipt{}, err
		}
	}

	var recovered *big.Int
	e.store.Update(walletAddr, id, func(i *models.Intent) {
		i.Active = false
		i.Cancelled = true
		recovered = i.FailedAmount
		i.FailedAmount = new(big.Int)
	})
	e.store.Deactivate(walletAddr, id)

	now := e.clock.Now()
	metrics.IntentsCancelled.Inc()
	metrics.ActiveIntents.Set(float64(e.store.ActiveCount()))
	metrics.CommittedFunds.WithLabelValues(intent.Asset.Hex()).Sub(amountGauge(refund))

	e.publish(events.IntentCancelled, events.IntentCancelledEvent{
		Wallet:              walletAddr,
		Asset:               intent.Asset,
		IntentID:            id,
		ExecutionsPerformed: intent.ExecutionsPerformed,
		RefundedAmount:      refund,
		RecoveredFailed:     recovered,
		At:                  now,
	})

	e.logger.NoticeWith(logger.Engine, "Cancelled intent %s for wallet %s after %d/%d executions: refunded %s, recovered failed %s",
		id.Hex(), walletAddr.Hex(), intent.ExecutionsPerformed, intent.TotalExecutions, refund.String(), recovered.String())

	return CancelReceipt{Refunded: refund, RecoveredFailed: recovered}, nil
}

func (e *Engine) publish(t events.Type, event interface{}) {
	if e.bus != nil {
		e.bus.Publish(t, event)
	}
}

func cloneAmounts(in []*big.Int) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, a := range in {
		out[i] = new(big.Int).Set(a)
	}
	return out
}

func amountGauge(a *big.Int) float64 {
	f, _ := new(big.Float).SetInt(a).Float64()
	return f
}
