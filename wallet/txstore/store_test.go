package txstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTxStore_Create(t *testing.T) {
	s := createTestStore(t)

	rec, err := s.Create("addr1", "addr2", "1.5")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, StateInitiated, rec.State)
	require.Equal(t, "addr1", rec.FromAddress)
	require.Equal(t, "addr2", rec.ToAddress)
	require.Equal(t, "1.5", rec.Amount)
	require.Empty(t, rec.LedgerID)
	require.False(t, rec.CreatedAt.IsZero())
	require.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	rec2, err := s.Create("addr1", "addr3", "2")
	require.NoError(t, err)
	require.NotEqual(t, rec.ID, rec2.ID)

	stored, err := s.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, stored.ID)
	require.Equal(t, StateInitiated, stored.State)
}

func TestTxStore_MarkSent(t *testing.T) {
	s := createTestStore(t)
	rec, err := s.Create("addr1", "addr2", "1")
	require.NoError(t, err)

	sent, err := s.MarkSent(rec.ID, "ledger-1")
	require.NoError(t, err)
	require.Equal(t, StateSent, sent.State)
	require.Equal(t, "ledger-1", sent.LedgerID)
	require.False(t, sent.UpdatedAt.Before(rec.UpdatedAt))

	// unknown id is a benign miss, not an error
	missing, err := s.MarkSent("no-such-id", "ledger-2")
	require.NoError(t, err)
	require.Nil(t, missing)

	// a Sent record cannot be marked sent again
	_, err = s.MarkSent(rec.ID, "ledger-3")
	require.ErrorContains(t, err, "state is SENT")

	byLedgerID, err := s.GetByLedgerID("ledger-1")
	require.NoError(t, err)
	require.Equal(t, rec.ID, byLedgerID.ID)
}

func TestTxStore_MarkCompleted(t *testing.T) {
	s := createTestStore(t)
	rec, err := s.Create("addr1", "addr2", "1")
	require.NoError(t, err)
	_, err = s.MarkSent(rec.ID, "ledger-1")
	require.NoError(t, err)

	completed, err := s.MarkCompleted("ledger-1")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, completed.State)
	require.Equal(t, "ledger-1", completed.LedgerID)

	// repeating the same evidence is a no-op
	again, err := s.MarkCompleted("ledger-1")
	require.NoError(t, err)
	require.Nil(t, again)
	stored, err := s.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, stored.State)

	// unknown ledger id is a benign miss
	missing, err := s.MarkCompleted("no-such-ledger-id")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTxStore_MarkFailed(t *testing.T) {
	s := createTestStore(t)
	rec, err := s.Create("addr1", "addr2", "1")
	require.NoError(t, err)

	failed, err := s.MarkFailed(rec.ID, "proof generation failed")
	require.NoError(t, err)
	require.Equal(t, StateFailed, failed.State)
	require.Equal(t, "proof generation failed", failed.ErrorMessage)

	// terminal records are immutable
	again, err := s.MarkFailed(rec.ID, "other reason")
	require.NoError(t, err)
	require.Nil(t, again)
	stored, err := s.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, "proof generation failed", stored.ErrorMessage)

	missing, err := s.MarkFailed("no-such-id", "reason")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTxStore_Lists(t *testing.T) {
	s := createTestStore(t)

	initiated, err := s.Create("addr1", "addr2", "1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	sent, err := s.Create("addr1", "addr3", "2")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	completed, err := s.Create("addr1", "addr4", "3")
	require.NoError(t, err)

	_, err = s.MarkSent(sent.ID, "ledger-1")
	require.NoError(t, err)
	_, err = s.MarkSent(completed.ID, "ledger-2")
	require.NoError(t, err)
	_, err = s.MarkCompleted("ledger-2")
	require.NoError(t, err)

	all, err := s.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 3)

	sentRecords, err := s.ListByState(StateSent)
	require.NoError(t, err)
	require.Len(t, sentRecords, 1)
	require.Equal(t, sent.ID, sentRecords[0].ID)

	// pending = Initiated + Sent, most recently updated first
	pending, err := s.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, sent.ID, pending[0].ID)
	require.Equal(t, initiated.ID, pending[1].ID)
}

func TestTxStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewTxStore(dir)
	require.NoError(t, err)
	rec, err := s.Create("addr1", "addr2", "1")
	require.NoError(t, err)
	_, err = s.MarkSent(rec.ID, "ledger-1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewTxStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	stored, err := s.GetByLedgerID("ledger-1")
	require.NoError(t, err)
	require.Equal(t, rec.ID, stored.ID)
	require.Equal(t, StateSent, stored.State)
}

func createTestStore(t *testing.T) *TxStore {
	s, err := NewTxStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
