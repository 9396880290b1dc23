package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sdktypes "github.com/nightvault/agent-wallet/client/types"
	"github.com/nightvault/agent-wallet/internal/testutils/logger"
	"github.com/nightvault/agent-wallet/wallet/connection"
	"github.com/nightvault/agent-wallet/wallet/txstore"
)

func TestReconciler_PromotesConfirmedTransactions(t *testing.T) {
	store := createReconcilerTestStore(t)
	rec := createSentRecord(t, store, "h1")
	source := &fakeSource{
		status:  connection.Status{Ready: true},
		history: []sdktypes.HistoryEntry{{Identifiers: []string{"h1"}}},
	}

	r := New(store, source, time.Hour, logger.New(t))
	require.NoError(t, r.reconcile(context.Background()))

	completed, err := store.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, txstore.StateCompleted, completed.State)
}

func TestReconciler_LeavesUnconfirmedTransactionsSent(t *testing.T) {
	store := createReconcilerTestStore(t)
	rec := createSentRecord(t, store, "h1")
	source := &fakeSource{
		status:  connection.Status{Ready: true},
		history: []sdktypes.HistoryEntry{{Identifiers: []string{"other"}}},
	}

	r := New(store, source, time.Hour, logger.New(t))
	require.NoError(t, r.reconcile(context.Background()))

	unchanged, err := store.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, txstore.StateSent, unchanged.State)
}

func TestReconciler_SecondTickIsIdempotent(t *testing.T) {
	store := createReconcilerTestStore(t)
	createSentRecord(t, store, "h1")
	source := &fakeSource{
		status:  connection.Status{Ready: true},
		history: []sdktypes.HistoryEntry{{Identifiers: []string{"h1"}}},
	}

	r := New(store, source, time.Hour, logger.New(t))
	require.NoError(t, r.reconcile(context.Background()))
	require.NoError(t, r.reconcile(context.Background()))

	completed, err := store.ListByState(txstore.StateCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
}

func TestReconciler_RunSkipsTicksWhileNotReady(t *testing.T) {
	store := createReconcilerTestStore(t)
	rec := createSentRecord(t, store, "h1")
	source := &fakeSource{
		status:  connection.Status{Recovering: true},
		history: []sdktypes.HistoryEntry{{Identifiers: []string{"h1"}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(store, source, time.Millisecond, logger.New(t))
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	// the record must stay Sent as long as the connection is recovering
	time.Sleep(20 * time.Millisecond)
	unchanged, err := store.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, txstore.StateSent, unchanged.State)

	// once the connection is ready again the loop re-arms by itself
	source.setStatus(connection.Status{Ready: true})
	require.Eventually(t, func() bool {
		completed, err := store.GetByID(rec.ID)
		require.NoError(t, err)
		return completed.State == txstore.StateCompleted
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler loop did not stop on context cancellation")
	}
}

type fakeSource struct {
	mu      sync.Mutex
	status  connection.Status
	history []sdktypes.HistoryEntry
}

func (f *fakeSource) Status() connection.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) setStatus(status connection.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeSource) History() []sdktypes.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history
}

func createReconcilerTestStore(t *testing.T) *txstore.TxStore {
	s, err := txstore.NewTxStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createSentRecord(t *testing.T, store *txstore.TxStore, ledgerID string) *txstore.Record {
	rec, err := store.Create("addr-own", "addr2", "0.5")
	require.NoError(t, err)
	sent, err := store.MarkSent(rec.ID, ledgerID)
	require.NoError(t, err)
	require.NotNil(t, sent)
	return sent
}
