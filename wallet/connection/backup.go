package connection

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	sdktypes "github.com/nightvault/agent-wallet/client/types"
)

const backupFileName = "walletstate.db"

var bucketWalletState = []byte("walletState")

type (
	// StateBackup persists serialized wallet capability state, keyed by the
	// wallet filename hint. While the capability is actively syncing the
	// writes are rate limited to one per minimum interval to bound I/O; the
	// snapshot taken on reaching fully-synced is always written.
	StateBackup struct {
		db          *bolt.DB
		minInterval time.Duration

		mu       sync.Mutex
		lastSave time.Time
	}

	BackupEnvelope struct {
		_       struct{} `cbor:",toarray"`
		State   []byte
		Synced  bool
		SavedAt time.Time
	}
)

func NewStateBackup(dir string, minInterval time.Duration) (*StateBackup, error) {
	db, err := bolt.Open(filepath.Join(dir, backupFileName), 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet state backup store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketWalletState)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init wallet state backup bucket: %w", err)
	}
	return &StateBackup{db: db, minInterval: minInterval}, nil
}

func (b *StateBackup) Close() error {
	return b.db.Close()
}

// Save serializes the capability state and writes it unconditionally.
func (b *StateBackup) Save(ctx context.Context, key string, capability sdktypes.WalletCapability, synced bool) error {
	state, err := capability.SerializeState(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize wallet state: %w", err)
	}
	envelope := &BackupEnvelope{State: state, Synced: synced, SavedAt: time.Now()}
	data, err := cbor.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode wallet state backup: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWalletState).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write wallet state backup: %w", err)
	}
	b.mu.Lock()
	b.lastSave = time.Now()
	b.mu.Unlock()
	return nil
}

// MaybeSave writes a backup unless one was written within the minimum
// interval. Returns true if a backup was written.
func (b *StateBackup) MaybeSave(ctx context.Context, key string, capability sdktypes.WalletCapability, synced bool) (bool, error) {
	b.mu.Lock()
	elapsed := time.Since(b.lastSave)
	b.mu.Unlock()
	if elapsed < b.minInterval {
		return false, nil
	}
	if err := b.Save(ctx, key, capability, synced); err != nil {
		return false, err
	}
	return true, nil
}

// Load returns the stored backup for the given key, nil if none exists.
func (b *StateBackup) Load(key string) (*BackupEnvelope, error) {
	var envelope *BackupEnvelope
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketWalletState).Get([]byte(key))
		if data == nil {
			return nil
		}
		envelope = &BackupEnvelope{}
		return cbor.Unmarshal(data, envelope)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet state backup: %w", err)
	}
	return envelope, nil
}
