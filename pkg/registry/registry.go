package registry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry records which wallets have ever created an intent. It exists to
// give the due-intent scan a bounded, deterministically ordered enumeration
// domain. Wallets are never removed.
type Registry struct {
	mu      sync.RWMutex
	seen    map[common.Address]bool
	wallets []common.Address
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		seen: make(map[common.Address]bool),
	}
}

// RegisterIfNew appends the wallet to the enumeration list on first
// occurrence. Idempotent; returns true if the wallet was newly registered.
func (r *Registry) RegisterIfNew(wallet common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[wallet] {
		return false
	}
	r.seen[wallet] = true
	r.wallets = append(r.wallets, wallet)
	return true
}

// IsRegistered reports whether the wallet has ever created an intent.
func (r *Registry) IsRegistered(wallet common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seen[wallet]
}

// Count returns the number of registered wallets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}

// AllWallets returns the registered wallets in registration order.
func (r *Registry) AllWallets() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, len(r.wallets))
	copy(out, r.wallets)
	return out
}
