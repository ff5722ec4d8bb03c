package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/models"
)

// SimProvider is an in-memory wallet backend. It is the local-mode and test
// implementation of the capability: balances live in a map, commitment
// mutations are checked the way the wallet contract would check them, and
// individual recipient transfers can be made to fail on demand.
type SimProvider struct {
	mu      sync.Mutex
	wallets map[common.Address]*SimWallet
	// pendingFailures carries injected failures forward to wallets that are
	// created after FailTransfersTo was called.
	pendingFailures map[common.Address]string
}

// NewSimProvider creates an empty provider. Wallets are created lazily on
// first access with zero balances; fund them with Fund.
func NewSimProvider() *SimProvider {
	return &SimProvider{
		wallets: make(map[common.Address]*SimWallet),
	}
}

// Wallet returns the simulated wallet for addr, creating it if needed.
func (p *SimProvider) Wallet(addr common.Address) (Capability, error) {
	return p.wallet(addr), nil
}

func (p *SimProvider) wallet(addr common.Address) *SimWallet {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.wallets[addr]
	if !ok {
		w = &SimWallet{
			addr:      addr,
			balances:  make(map[common.Address]*big.Int),
			committed: make(map[common.Address]*big.Int),
			failing:   make(map[common.Address]string),
		}
		for r, reason := range p.pendingFailures {
			w.failing[r] = reason
		}
		p.wallets[addr] = w
	}
	return w
}

// Fund credits the wallet's balance in the asset.
func (p *SimProvider) Fund(addr, asset common.Address, amount *big.Int) {
	w := p.wallet(addr)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.credit(asset, amount)
}

// FailTransfersTo makes every transfer to the recipient fail with the given
// reason, across all wallets, until cleared.
func (p *SimProvider) FailTransfersTo(recipient common.Address, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pendingFailures == nil {
		p.pendingFailures = make(map[common.Address]string)
	}
	p.pendingFailures[recipient] = reason
	for _, w := range p.wallets {
		w.mu.Lock()
		w.failing[recipient] = reason
		w.mu.Unlock()
	}
}

// ClearFailures removes all injected transfer failures.
func (p *SimProvider) ClearFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingFailures = nil
	for _, w := range p.wallets {
		w.mu.Lock()
		w.failing = make(map[common.Address]string)
		w.mu.Unlock()
	}
}

// SimWallet is one simulated wallet.
type SimWallet struct {
	addr      common.Address
	mu        sync.Mutex
	balances  map[common.Address]*big.Int
	committed map[common.Address]*big.Int
	failing   map[common.Address]string
}

var _ Capability = (*SimWallet)(nil)

func (w *SimWallet) balance(asset common.Address) *big.Int {
	if b, ok := w.balances[asset]; ok {
		return b
	}
	b := new(big.Int)
	w.balances[asset] = b
	return b
}

func (w *SimWallet) commitment(asset common.Address) *big.Int {
	if c, ok := w.committed[asset]; ok {
		return c
	}
	c := new(big.Int)
	w.committed[asset] = c
	return c
}

func (w *SimWallet) credit(asset common.Address, amount *big.Int) {
	w.balance(asset).Add(w.balance(asset), amount)
}

// Balance returns the wallet's total balance in the asset.
func (w *SimWallet) Balance(_ context.Context, asset common.Address) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.balance(asset)), nil
}

// IncreaseCommitment reserves funds, failing if the uncommitted balance does
// not cover the amount.
func (w *SimWallet) IncreaseCommitment(_ context.Context, asset common.Address, amount *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	free := new(big.Int).Sub(w.balance(asset), w.commitment(asset))
	if free.Cmp(amount) < 0 {
		return fmt.Errorf("wallet %s: commitment %s exceeds free balance %s for asset %s",
			w.addr.Hex(), amount.String(), free.String(), asset.Hex())
	}
	w.commitment(asset).Add(w.commitment(asset), amount)
	return nil
}

// DecreaseCommitment releases reserved funds, failing on underflow.
func (w *SimWallet) DecreaseCommitment(_ context.Context, asset common.Address, amount *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.commitment(asset).Cmp(amount) < 0 {
		return fmt.Errorf("wallet %s: release %s exceeds committed %s for asset %s",
			w.addr.Hex(), amount.String(), w.commitment(asset).String(), asset.Hex())
	}
	w.commitment(asset).Sub(w.commitment(asset), amount)
	return nil
}

// ExecuteBatchTransfer attempts each transfer independently. Injected
// failures make individual recipients fail; under the revert policy the
// first failure aborts the batch with no balance movement at all.
func (w *SimWallet) ExecuteBatchTransfer(_ context.Context, req models.BatchTransferRequest) (models.BatchTransferOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if req.Policy == models.FailurePolicyRevert {
		for _, r := range req.Recipients {
			if _, bad := w.failing[r]; bad {
				return models.BatchTransferOutcome{Aborted: true}, nil
			}
		}
	}

	outcome := models.BatchTransferOutcome{
		FailedAmount: new(big.Int),
		Results:      make([]models.TransferResult, 0, len(req.Recipients)),
	}
	for i, r := range req.Recipients {
		amount := req.Amounts[i]
		result := models.TransferResult{
			Recipient: r,
			Amount:    new(big.Int).Set(amount),
		}
		if reason, bad := w.failing[r]; bad {
			result.Reason = reason
			outcome.FailedAmount.Add(outcome.FailedAmount, amount)
		} else if w.balance(req.Asset).Cmp(amount) < 0 {
			result.Reason = "insufficient balance"
			outcome.FailedAmount.Add(outcome.FailedAmount, amount)
		} else {
			w.balance(req.Asset).Sub(w.balance(req.Asset), amount)
			result.Succeeded = true
		}
		outcome.Results = append(outcome.Results, result)
	}
	return outcome, nil
}
