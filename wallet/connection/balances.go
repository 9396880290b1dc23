package connection

import (
	"sync"

	"github.com/holiman/uint256"
)

// Balances holds the latest known spendable and pending balances in the
// ledger's smallest unit. The feed consumer inside the supervisor is the only
// writer, everyone else reads snapshots.
type Balances struct {
	mu        sync.RWMutex
	available *uint256.Int
	pending   *uint256.Int
}

func NewBalances() *Balances {
	return &Balances{
		available: uint256.NewInt(0),
		pending:   uint256.NewInt(0),
	}
}

// Set replaces both balances. The only production caller is the supervisor's
// feed consumer.
func (b *Balances) Set(available, pending *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = available.Clone()
	b.pending = pending.Clone()
}

// Snapshot returns copies of the current available and pending balances.
func (b *Balances) Snapshot() (available, pending *uint256.Int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available.Clone(), b.pending.Clone()
}
