package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnderflow indicates a decrease larger than the committed total. This is
// a caller-side accounting bug, never a recoverable condition, so it must
// surface instead of being clamped.
var ErrUnderflow = errors.New("committed funds underflow")

type pair struct {
	wallet common.Address
	asset  common.Address
}

// Ledger tracks committed (locked) funds per (wallet, asset) pair. Pure
// bookkeeping: no I/O, no retries. Entries are created lazily on the first
// increase.
type Ledger struct {
	mu        sync.RWMutex
	committed map[pair]*big.Int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		committed: make(map[pair]*big.Int),
	}
}

// Increase adds amount to the committed total for (wallet, asset).
func (l *Ledger) Increase(wallet, asset common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := pair{wallet, asset}
	cur, ok := l.committed[k]
	if !ok {
		cur = new(big.Int)
		l.committed[k] = cur
	}
	cur.Add(cur, amount)
}

// Decrease subtracts amount from the committed total for (wallet, asset).
// Returns ErrUnderflow if amount exceeds the current total; the total is
// left untouched in that case.
func (l *Ledger) Decrease(wallet, asset common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := pair{wallet, asset}
	cur, ok := l.committed[k]
	if !ok || cur.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have.Set(cur)
		}
		return fmt.Errorf("%w: wallet %s asset %s has %s committed, tried to release %s",
			ErrUnderflow, wallet.Hex(), asset.Hex(), have.String(), amount.String())
	}
	cur.Sub(cur, amount)
	return nil
}

// Committed returns the committed total for (wallet, asset). Zero if no
// entry exists.
func (l *Ledger) Committed(wallet, asset common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cur, ok := l.committed[pair{wallet, asset}]; ok {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}

// Available derives the spendable balance: totalBalance minus committed,
// clamped at zero. A negative intermediate result means invariants were
// violated upstream; callers must treat it as "nothing spendable", never as
// a signed value.
func (l *Ledger) Available(wallet, asset common.Address, totalBalance *big.Int) *big.Int {
	avail := new(big.Int).Sub(totalBalance, l.Committed(wallet, asset))
	if avail.Sign() < 0 {
		return new(big.Int)
	}
	return avail
}
