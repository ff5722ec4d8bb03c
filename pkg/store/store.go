package store

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/paystream-hq/paystreamer/pkg/models"
)

// Store owns the canonical set of intents per wallet and the per-wallet
// active index used by the scheduling scan. Intents are never deleted; a
// completed or cancelled intent only leaves the active index.
//
// All mutation of stored records goes through Put, Update, Deactivate and
// Reactivate, which take the internal write lock. The copy-returning read
// accessors take the read lock, so they are safe to call from any goroutine
// while the engine mutates records. Get hands out the live pointer and is
// for engine-side reads only: the engine's call-level lock serializes those
// against each other, and field writes on the pointer are forbidden outside
// an Update callback.
type Store struct {
	mu      sync.RWMutex
	intents map[common.Address]map[common.Hash]*models.Intent
	active  map[common.Address][]common.Hash
	nonce   uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		intents: make(map[common.Address]map[common.Hash]*models.Intent),
		active:  make(map[common.Address][]common.Hash),
	}
}

// NextID derives a unique intent id from the schedule parameters, the
// creation time and a monotonic counter. The counter makes ids collision
// free even for identical parameters created at the same instant.
func (s *Store) NextID(wallet, asset common.Address, recipients []common.Address, amounts []*big.Int, createdAtUnix int64) common.Hash {
	s.mu.Lock()
	s.nonce++
	nonce := s.nonce
	s.mu.Unlock()

	data := make([][]byte, 0, 2*len(recipients)+4)
	data = append(data, wallet.Bytes(), asset.Bytes())
	for _, r := range recipients {
		data = append(data, r.Bytes())
	}
	for _, a := range amounts {
		data = append(data, common.LeftPadBytes(a.Bytes(), 32))
	}
	var tail [16]byte
	binary.BigEndian.PutUint64(tail[:8], uint64(createdAtUnix))
	binary.BigEndian.PutUint64(tail[8:], nonce)
	data = append(data, tail[:])

	return crypto.Keccak256Hash(data...)
}

// Put stores a new intent and, if it is active, appends it to the wallet's
// active index.
func (s *Store) Put(intent *models.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.intents[intent.Wallet]
	if !ok {
		byID = make(map[common.Hash]*models.Intent)
		s.intents[intent.Wallet] = byID
	}
	byID[intent.ID] = intent
	if intent.Active {
		s.active[intent.Wallet] = append(s.active[intent.Wallet], intent.ID)
	}
}

// Get returns the live intent record for mutation by the engine. The second
// return is false if the id does not exist for that wallet.
func (s *Store) Get(wallet common.Address, id common.Hash) (*models.Intent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[wallet][id]
	return intent, ok
}

// Update applies fn to the live intent record under the write lock, so the
// copy-returning readers never observe a half-applied mutation. Returns
// false if the id does not exist for that wallet. fn must not call back into
// the store.
func (s *Store) Update(wallet common.Address, id common.Hash, fn func(*models.Intent)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[wallet][id]
	if !ok {
		return false
	}
	fn(intent)
	return true
}

// GetCopy returns a deep copy of the intent, safe for readers outside the
// engine's lock.
func (s *Store) GetCopy(wallet common.Address, id common.Hash) (*models.Intent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[wallet][id]
	if !ok {
		return nil, false
	}
	return intent.Clone(), true
}

// ActiveIDs returns the wallet's active index. Order reflects insertion,
// perturbed by swap-removal; the scan only requires that it is stable
// between mutations.
func (s *Store) ActiveIDs(wallet common.Address) []common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]common.Hash, len(s.active[wallet]))
	copy(ids, s.active[wallet])
	return ids
}

// ActiveIntents returns deep copies of the wallet's active intents.
func (s *Store) ActiveIntents(wallet common.Address) []*models.Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Intent, 0, len(s.active[wallet]))
	for _, id := range s.active[wallet] {
		if intent, ok := s.intents[wallet][id]; ok {
			out = append(out, intent.Clone())
		}
	}
	return out
}

// IntentsByWallet returns deep copies of every intent the wallet has ever
// created, active or not.
func (s *Store) IntentsByWallet(wallet common.Address) []*models.Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Intent, 0, len(s.intents[wallet]))
	for _, intent := range s.intents[wallet] {
		out = append(out, intent.Clone())
	}
	return out
}

// ActiveCount returns the total number of active intents across all wallets.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ids := range s.active {
		n += len(ids)
	}
	return n
}

// Deactivate removes the intent from the wallet's active index using
// swap-removal: the last element moves into the removed slot. O(1), order
// not preserved.
func (s *Store) Deactivate(wallet common.Address, id common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.active[wallet]
	for i, cur := range ids {
		if cur == id {
			last := len(ids) - 1
			ids[i] = ids[last]
			s.active[wallet] = ids[:last]
			return
		}
	}
}

// Reactivate re-appends the intent to the active index. Used only to undo a
// natural-completion removal when a revert-policy transfer aborts the call.
func (s *Store) Reactivate(wallet common.Address, id common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cur := range s.active[wallet] {
		if cur == id {
			return
		}
	}
	s.active[wallet] = append(s.active[wallet], id)
}
