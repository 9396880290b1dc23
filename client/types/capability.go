package types

import (
	"context"

	"github.com/holiman/uint256"
)

type (
	// WalletCapability is the external wallet engine: it builds, proves and
	// submits transfers and pushes wallet state over a subscription feed.
	// Implementations wrap a concrete ledger client; this module only consumes
	// the interface.
	WalletCapability interface {
		// Subscribe returns the state feed. Events arrive in order; an event
		// carrying a non-nil Err signals a feed failure, a closed channel
		// signals that the feed completed. Subscribe may be called again after
		// the capability has been rebuilt.
		Subscribe() <-chan StateEvent

		BuildTransfer(ctx context.Context, to string, amount *uint256.Int, tokenType string) (*TransferRecipe, error)
		Prove(ctx context.Context, recipe *TransferRecipe) (*ProvenTransfer, error)
		Submit(ctx context.Context, tx *ProvenTransfer) (string, error)

		// SerializeState returns an opaque snapshot of the capability's local
		// state, suitable for restoring a rebuilt capability.
		SerializeState(ctx context.Context) ([]byte, error)
		Close() error
	}

	// CapabilityFactory builds a wallet capability from stored credentials.
	// The recovery supervisor uses it for the initial connection and for every
	// rebuild attempt.
	CapabilityFactory func(ctx context.Context, cfg CapabilityConfig) (WalletCapability, error)

	CapabilityConfig struct {
		NetworkID    string
		Seed         []byte
		FilenameHint string
		IndexerURL   string
		NodeURL      string
		ProverURL    string
	}

	StateEvent struct {
		State *WalletState
		Err   error
	}

	WalletState struct {
		Address      string
		Balances     map[string]*uint256.Int
		PendingCoins []PendingCoin
		SyncProgress SyncProgress
		History      []HistoryEntry
	}

	PendingCoin struct {
		TokenType string
		Value     *uint256.Int
	}

	SyncProgress struct {
		ApplyGap  uint64
		SourceGap uint64
		Synced    bool
	}

	// HistoryEntry is one entry of the capability's local transaction history
	// view. Identifiers contains every id the ledger knows the transaction by.
	HistoryEntry struct {
		Identifiers []string
		Deltas      map[string]int64
	}

	TransferRecipe struct {
		To        string
		Amount    *uint256.Int
		TokenType string
		Payload   []byte
	}

	ProvenTransfer struct {
		Recipe *TransferRecipe
		Proof  []byte
	}
)

// NativeToken is the token type used for plain value transfers.
const NativeToken = "native"

// Balance returns the balance of the given token type, zero if absent.
func (s *WalletState) Balance(tokenType string) *uint256.Int {
	if b, ok := s.Balances[tokenType]; ok {
		return b
	}
	return uint256.NewInt(0)
}

// PendingTotal sums the pending coins of the given token type.
func (s *WalletState) PendingTotal(tokenType string) *uint256.Int {
	total := uint256.NewInt(0)
	for _, c := range s.PendingCoins {
		if c.TokenType == tokenType {
			total.Add(total, c.Value)
		}
	}
	return total
}

// ContainsIdentifier reports whether the entry's identifier set contains id.
func (e *HistoryEntry) ContainsIdentifier(id string) bool {
	for _, candidate := range e.Identifiers {
		if candidate == id {
			return true
		}
	}
	return false
}
