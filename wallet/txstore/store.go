package txstore

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/nightvault/agent-wallet/util"
)

const txStoreFileName = "transactions.db"

var (
	bucketTransactions = []byte("transactions")
	bucketLedgerIndex  = []byte("ledgerIndex")

	// timestamps need sub-second precision, the default CBOR time encoding
	// truncates to whole seconds
	cborEnc = func() cbor.EncMode {
		enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
		if err != nil {
			panic(err)
		}
		return enc
	}()
)

// TxStore is a bbolt backed store of transfer records, keyed by record id with
// a secondary index from ledger identifier to record id. Every transition is a
// single read-write transaction so partial writes are impossible. Records are
// never deleted, they are kept for audit and query.
type TxStore struct {
	db *bolt.DB
}

func NewTxStore(dir string) (*TxStore, error) {
	db, err := bolt.Open(filepath.Join(dir, txStoreFileName), 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTransactions); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketLedgerIndex)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init transaction store buckets: %w", err)
	}
	return &TxStore{db: db}, nil
}

func (s *TxStore) Close() error {
	return s.db.Close()
}

// Create persists a new record in StateInitiated and returns a copy of it.
func (s *TxStore) Create(from, to, amount string) (*Record, error) {
	now := time.Now()
	rec := &Record{
		ID:          uuid.NewString(),
		State:       StateInitiated,
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putRecord(tx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist transaction record: %w", err)
	}
	return rec, nil
}

// MarkSent transitions an Initiated record to Sent and attaches the ledger
// identifier assigned by the network. Returns nil if the id is unknown; an
// unknown id is a benign race, not an error.
func (s *TxStore) MarkSent(id, ledgerID string) (*Record, error) {
	var rec *Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		if rec, err = getRecord(tx, id); err != nil || rec == nil {
			return err
		}
		if rec.State != StateInitiated {
			return fmt.Errorf("cannot mark record %s sent: state is %s", id, rec.State)
		}
		rec.State = StateSent
		rec.LedgerID = ledgerID
		rec.UpdatedAt = time.Now()
		if err = tx.Bucket(bucketLedgerIndex).Put([]byte(ledgerID), []byte(id)); err != nil {
			return err
		}
		return putRecord(tx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark record sent: %w", err)
	}
	return rec, nil
}

// MarkCompleted transitions the Sent record matching the ledger identifier to
// Completed. Returns nil if no matching Sent record exists, which makes the
// call idempotent: reporting the same ledger evidence twice is a no-op.
func (s *TxStore) MarkCompleted(ledgerID string) (*Record, error) {
	var rec *Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketLedgerIndex).Get([]byte(ledgerID))
		if id == nil {
			return nil
		}
		var err error
		if rec, err = getRecord(tx, string(id)); err != nil || rec == nil {
			return err
		}
		if rec.State != StateSent {
			rec = nil
			return nil
		}
		rec.State = StateCompleted
		rec.UpdatedAt = time.Now()
		return putRecord(tx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark record completed: %w", err)
	}
	return rec, nil
}

// MarkFailed transitions any non-terminal record to Failed with the given
// reason. Returns nil if the id is unknown or the record is already terminal.
func (s *TxStore) MarkFailed(id, reason string) (*Record, error) {
	var rec *Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		if rec, err = getRecord(tx, id); err != nil || rec == nil {
			return err
		}
		if rec.State.Terminal() {
			rec = nil
			return nil
		}
		rec.State = StateFailed
		rec.ErrorMessage = reason
		rec.UpdatedAt = time.Now()
		return putRecord(tx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark record failed: %w", err)
	}
	return rec, nil
}

// GetByID returns the record with the given id, nil if not found.
func (s *TxStore) GetByID(id string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction record: %w", err)
	}
	return rec, nil
}

// GetByLedgerID returns the record broadcast under the given ledger
// identifier, nil if not found.
func (s *TxStore) GetByLedgerID(ledgerID string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketLedgerIndex).Get([]byte(ledgerID))
		if id == nil {
			return nil
		}
		var err error
		rec, err = getRecord(tx, string(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction record: %w", err)
	}
	return rec, nil
}

// ListByState returns all records in the given state, most recently updated
// first.
func (s *TxStore) ListByState(state State) ([]*Record, error) {
	records, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	return util.FilterSlice(records, func(r *Record) (bool, error) {
		return r.State == state, nil
	})
}

// ListPending returns all Initiated and Sent records, most recently updated
// first. The oldest entries at the tail are the ones an operator should look
// at when hunting for transfers the ledger never confirmed.
func (s *TxStore) ListPending() ([]*Record, error) {
	records, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	return util.FilterSlice(records, func(r *Record) (bool, error) {
		return r.State.Pending(), nil
	})
}

// ListAll returns every record, most recently updated first.
func (s *TxStore) ListAll() ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTransactions).ForEach(func(_, v []byte) error {
			rec := &Record{}
			if err := cbor.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("failed to decode transaction record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction records: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

func getRecord(tx *bolt.Tx, id string) (*Record, error) {
	data := tx.Bucket(bucketTransactions).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	rec := &Record{}
	if err := cbor.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode transaction record: %w", err)
	}
	return rec, nil
}

func putRecord(tx *bolt.Tx, rec *Record) error {
	data, err := cborEnc.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode transaction record: %w", err)
	}
	return tx.Bucket(bucketTransactions).Put([]byte(rec.ID), data)
}
