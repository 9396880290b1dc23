package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sdktypes "github.com/nightvault/agent-wallet/client/types"
	"github.com/nightvault/agent-wallet/internal/testutils/capability"
	"github.com/nightvault/agent-wallet/internal/testutils/logger"
	"github.com/nightvault/agent-wallet/wallet/connection"
	"github.com/nightvault/agent-wallet/wallet/txstore"
)

func TestWallet_TransferLifecycle(t *testing.T) {
	mock := capability.NewMock(capability.WithLedgerID("h1"))
	w := createTestWallet(t, mock)

	// the wallet refuses transfers until the capability reports synced
	_, err := w.SubmitTransfer(context.Background(), "addr2", "0.5")
	require.ErrorIs(t, err, connection.ErrNotReady)

	mock.SendState(capability.SyncedState(1000000, 0))
	require.Eventually(t, func() bool {
		return w.GetConnectionStatus().Ready
	}, time.Second, 5*time.Millisecond)

	result, err := w.SubmitTransfer(context.Background(), "addr2", "0.5")
	require.NoError(t, err)
	require.Equal(t, txstore.StateInitiated, result.State)

	// broadcast moves the record to Sent with the assigned ledger id
	require.Eventually(t, func() bool {
		status, err := w.GetTransactionStatus(result.ID)
		require.NoError(t, err)
		return status.Record.State == txstore.StateSent
	}, time.Second, 5*time.Millisecond)

	status, err := w.GetTransactionStatus(result.ID)
	require.NoError(t, err)
	require.Equal(t, "h1", status.Record.LedgerID)
	require.False(t, status.LedgerConfirmed)

	pending, err := w.ListPendingTransactions()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// once the ledger history confirms the transfer the reconciler
	// promotes it to Completed
	mock.SendState(capability.SyncedState(500000, 0, sdktypes.HistoryEntry{
		Identifiers: []string{"h1"},
		Deltas:      map[string]int64{sdktypes.NativeToken: -500000},
	}))
	require.Eventually(t, func() bool {
		status, err := w.GetTransactionStatus(result.ID)
		require.NoError(t, err)
		return status.Record.State == txstore.StateCompleted
	}, time.Second, 5*time.Millisecond)

	status, err = w.GetTransactionStatus(result.ID)
	require.NoError(t, err)
	require.True(t, status.LedgerConfirmed)

	pending, err = w.ListPendingTransactions()
	require.NoError(t, err)
	require.Empty(t, pending)

	all, err := w.ListTransactions()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestWallet_GetTransactionStatusUnknownID(t *testing.T) {
	w := createTestWallet(t, capability.NewMock())
	_, err := w.GetTransactionStatus("no-such-id")
	require.ErrorIs(t, err, ErrTxNotFound)
}

func TestWallet_GetConnectionStatus(t *testing.T) {
	mock := capability.NewMock()
	w := createTestWallet(t, mock)

	status := w.GetConnectionStatus()
	require.False(t, status.Ready)
	require.Equal(t, "0", status.AvailableBalance)

	mock.SendState(capability.SyncedState(1500000, 250000))
	require.Eventually(t, func() bool {
		return w.GetConnectionStatus().Ready
	}, time.Second, 5*time.Millisecond)

	status = w.GetConnectionStatus()
	require.Equal(t, "1.5", status.AvailableBalance)
	require.Equal(t, "0.25", status.PendingBalance)
	require.Equal(t, "addr-own", status.Address)
}

func TestWallet_CloseIsIdempotent(t *testing.T) {
	mock := capability.NewMock()
	w := createTestWallet(t, mock)
	w.Close()
	w.Close()
	require.True(t, mock.Closed)
}

func createTestWallet(t *testing.T, mock *capability.Mock) *Wallet {
	factory := func(_ context.Context, _ sdktypes.CapabilityConfig) (sdktypes.WalletCapability, error) {
		return mock, nil
	}
	w, err := NewWallet(context.Background(), factory,
		sdktypes.CapabilityConfig{NetworkID: "testnet", FilenameHint: "wallet-test"},
		Config{
			HomeDir:           t.TempDir(),
			ReconcileInterval: time.Millisecond,
			Recovery:          connection.Config{MaxRecoveryAttempts: 3, RecoveryBaseDelay: time.Millisecond, RecoveryMaxDelay: 5 * time.Millisecond},
		},
		logger.New(t))
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}
