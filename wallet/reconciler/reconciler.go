package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdktypes "github.com/nightvault/agent-wallet/client/types"
	"github.com/nightvault/agent-wallet/wallet/connection"
	"github.com/nightvault/agent-wallet/wallet/txstore"
)

const DefaultInterval = 15 * time.Second

type (
	TxStore interface {
		ListByState(state txstore.State) ([]*txstore.Record, error)
		MarkCompleted(ledgerID string) (*txstore.Record, error)
	}

	// StateSource provides the connection status and the local transaction
	// history view used as ledger evidence.
	StateSource interface {
		Status() connection.Status
		History() []sdktypes.HistoryEntry
	}

	// Reconciler periodically matches Sent records against the wallet's local
	// transaction history and promotes confirmed ones to Completed. Records
	// without evidence are left untouched and retried on the next tick.
	Reconciler struct {
		store    TxStore
		source   StateSource
		interval time.Duration
		log      *slog.Logger
	}
)

func New(store TxStore, source StateSource, interval time.Duration, log *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{store: store, source: source, interval: interval, log: log}
}

// Run ticks at a fixed interval until the context is cancelled. Ticks are
// skipped entirely while the connection is recovering or not ready, and the
// loop re-arms itself once the connection becomes ready again.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := r.source.Status()
			if !status.Ready || status.Recovering {
				continue
			}
			if err := r.reconcile(ctx); err != nil {
				r.log.WarnContext(ctx, "transaction reconciliation tick failed", "err", err)
			}
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) error {
	records, err := r.store.ListByState(txstore.StateSent)
	if err != nil {
		return fmt.Errorf("failed to list sent transactions: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	history := r.source.History()
	for _, rec := range records {
		if !historyContains(history, rec.LedgerID) {
			continue
		}
		completed, err := r.store.MarkCompleted(rec.LedgerID)
		if err != nil {
			return fmt.Errorf("failed to complete transaction %s: %w", rec.ID, err)
		}
		if completed == nil {
			// already completed by an earlier tick
			continue
		}
		status := r.source.Status()
		r.log.InfoContext(ctx, "transaction confirmed by ledger history",
			"id", completed.ID,
			"ledgerId", completed.LedgerID,
			"amount", completed.Amount,
			"applyGap", status.ApplyGap,
			"sourceGap", status.SourceGap)
	}
	return nil
}

func historyContains(history []sdktypes.HistoryEntry, ledgerID string) bool {
	if ledgerID == "" {
		return false
	}
	for _, entry := range history {
		if entry.ContainsIdentifier(ledgerID) {
			return true
		}
	}
	return false
}
