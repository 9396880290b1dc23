package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sdktypes "github.com/nightvault/agent-wallet/client/types"
	"github.com/nightvault/agent-wallet/util"
	"github.com/nightvault/agent-wallet/wallet/connection"
	"github.com/nightvault/agent-wallet/wallet/reconciler"
	"github.com/nightvault/agent-wallet/wallet/transfer"
	"github.com/nightvault/agent-wallet/wallet/txstore"
)

// ErrTxNotFound is returned when a transaction id is unknown.
var ErrTxNotFound = errors.New("transaction not found")

type (
	Config struct {
		// HomeDir holds the wallet's durable stores.
		HomeDir string
		// Decimals is the ledger's fixed decimal precision, default 6.
		Decimals int32
		// TokenType selects the token used for transfers, default native.
		TokenType string
		// ReconcileInterval is the reconciliation poller tick, default 15s.
		ReconcileInterval time.Duration
		// Recovery overrides the supervisor's backoff parameters.
		Recovery connection.Config
	}

	// Wallet composes the transaction store, submission pipeline,
	// reconciliation poller and recovery supervisor, and exposes the public
	// operations used by transport layers.
	Wallet struct {
		cfg        Config
		store      *txstore.TxStore
		backup     *connection.StateBackup
		supervisor *connection.Supervisor
		pipeline   *transfer.Pipeline
		reconciler *reconciler.Reconciler
		log        *slog.Logger

		cancel    context.CancelFunc
		wg        sync.WaitGroup
		closeOnce sync.Once
	}

	// TransactionStatus pairs a record with whether the ledger history
	// currently confirms its ledger identifier. For Completed records the
	// confirmation may already have rotated out of the local history view.
	TransactionStatus struct {
		Record          *txstore.Record `json:"record"`
		LedgerConfirmed bool            `json:"ledgerConfirmed"`
	}

	ConnectionStatus struct {
		connection.Status `yaml:",inline"`
		AvailableBalance  string `json:"availableBalance" yaml:"availableBalance"`
		PendingBalance    string `json:"pendingBalance" yaml:"pendingBalance"`
		Address           string `json:"address" yaml:"address"`
	}
)

// NewWallet opens the durable stores, connects the wallet capability through
// the recovery supervisor and starts the reconciliation poller. The returned
// wallet accepts transfers once the capability reports fully synced.
func NewWallet(ctx context.Context, factory sdktypes.CapabilityFactory, capCfg sdktypes.CapabilityConfig, cfg Config, log *slog.Logger) (*Wallet, error) {
	if cfg.Decimals == 0 {
		cfg.Decimals = transfer.DefaultDecimals
	}
	store, err := txstore.NewTxStore(cfg.HomeDir)
	if err != nil {
		return nil, err
	}
	backup, err := connection.NewStateBackup(cfg.HomeDir, connection.DefaultBackupMinInterval)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	supervisor := connection.NewSupervisor(factory, capCfg, cfg.Recovery, backup, log)
	w := &Wallet{
		cfg:        cfg,
		store:      store,
		backup:     backup,
		supervisor: supervisor,
		pipeline:   transfer.NewPipeline(store, supervisor, cfg.Decimals, cfg.TokenType, log),
		reconciler: reconciler.New(store, supervisor, cfg.ReconcileInterval, log),
		log:        log,
	}
	if err := supervisor.Start(ctx); err != nil {
		_ = store.Close()
		_ = backup.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reconciler.Run(runCtx)
	}()
	return w, nil
}

// SubmitTransfer validates and durably records a transfer, then broadcasts it
// asynchronously. The caller gets the Initiated record immediately and polls
// GetTransactionStatus for the outcome.
func (w *Wallet) SubmitTransfer(ctx context.Context, to, amount string) (*transfer.InitiationResult, error) {
	return w.pipeline.SubmitTransfer(ctx, to, amount)
}

// SubmitTransferAndWait broadcasts the transfer synchronously and returns the
// assigned ledger identifier. It waits for broadcast, not for settlement.
func (w *Wallet) SubmitTransferAndWait(ctx context.Context, to, amount string) (*transfer.TransferResult, error) {
	return w.pipeline.SubmitTransferAndWait(ctx, to, amount)
}

// GetTransactionStatus returns the record with the given id together with the
// current ledger-history confirmation of its ledger identifier.
func (w *Wallet) GetTransactionStatus(id string) (*TransactionStatus, error) {
	rec, err := w.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, id)
	}
	confirmed := false
	if rec.LedgerID != "" {
		for _, entry := range w.supervisor.History() {
			if entry.ContainsIdentifier(rec.LedgerID) {
				confirmed = true
				break
			}
		}
	}
	return &TransactionStatus{Record: rec, LedgerConfirmed: confirmed}, nil
}

// ListTransactions returns every record, most recently updated first.
func (w *Wallet) ListTransactions() ([]*txstore.Record, error) {
	return w.store.ListAll()
}

// ListPendingTransactions returns Initiated and Sent records, most recently
// updated first.
func (w *Wallet) ListPendingTransactions() ([]*txstore.Record, error) {
	return w.store.ListPending()
}

// GetConnectionStatus returns the connection state together with the latest
// known balances.
func (w *Wallet) GetConnectionStatus() ConnectionStatus {
	available, pending := w.supervisor.Balances().Snapshot()
	return ConnectionStatus{
		Status:           w.supervisor.Status(),
		AvailableBalance: util.AmountToString(available, w.cfg.Decimals),
		PendingBalance:   util.AmountToString(pending, w.cfg.Decimals),
		Address:          w.supervisor.Address(),
	}
}

// Recover requests a manual connection recovery, also clearing an exhausted
// supervisor.
func (w *Wallet) Recover(ctx context.Context) {
	w.supervisor.Recover(ctx)
}

// Close stops the reconciliation poller, drains in-flight broadcasts, writes
// a final state backup and closes the stores. Teardown errors are logged and
// swallowed, Close never fails.
func (w *Wallet) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.wg.Wait()
		w.pipeline.Close()
		w.supervisor.Close()
		if err := w.store.Close(); err != nil {
			w.log.Warn("failed to close transaction store", "err", err)
		}
		if err := w.backup.Close(); err != nil {
			w.log.Warn("failed to close wallet state backup store", "err", err)
		}
	})
}
