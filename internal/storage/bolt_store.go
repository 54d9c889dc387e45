package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const uploadBucket = "uploads"

var (
	errBucketMissing = errors.New("upload bucket missing")
	errReadOnly      = errors.New("ledger opened read-only")
)

// record is the stored value: the upload plus its expiry.
type record struct {
	Upload
	ExpiresAt int64 `json:"expires_at"`
}

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	retention       time.Duration
	cleanupInterval time.Duration
	readOnly        bool
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	if opts.ReadOnly {
		return openBoltReadOnly(path, opts)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(uploadBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	return newBoltStore(db, opts), nil
}

// openBoltReadOnly opens an existing ledger without creating it. A missing
// file yields an empty store.
func openBoltReadOnly(path string, opts Options) (Store, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return noopStore{}, nil
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	store := newBoltStore(db, opts)
	store.readOnly = true
	return store, nil
}

func newBoltStore(db *bolt.DB, opts Options) *boltStore {
	store := &boltStore{
		db:              db,
		retention:       opts.Retention,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// RecordUpload stores u, replacing any entry with the same id.
func (b *boltStore) RecordUpload(u Upload) error {
	if b == nil || b.db == nil {
		return nil
	}
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("upload id is required")
	}
	if b.readOnly {
		return errReadOnly
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = now.UTC()
	}

	value, err := json.Marshal(record{Upload: u, ExpiresAt: u.UploadedAt.Add(b.retention).Unix()})
	if err != nil {
		return fmt.Errorf("encode upload %s: %w", u.ID, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucket))
		if bucket == nil {
			return errBucketMissing
		}
		return bucket.Put([]byte(u.ID), value)
	})
}

// ForgetUpload removes the entry for id. Unknown ids are ignored.
func (b *boltStore) ForgetUpload(id string) error {
	if b == nil || b.db == nil {
		return nil
	}
	if b.readOnly {
		return errReadOnly
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucket))
		if bucket == nil {
			return errBucketMissing
		}
		return bucket.Delete([]byte(id))
	})
}

// Uploads lists unexpired entries, newest first.
func (b *boltStore) Uploads() ([]Upload, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	now := b.now()
	var out []Upload
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucket))
		if bucket == nil {
			if b.readOnly {
				return nil
			}
			return errBucketMissing
		}
		return bucket.ForEach(func(_, v []byte) error {
			rec, ok := decodeRecord(v)
			if ok && rec.expiry().After(now) {
				out = append(out, rec.Upload)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

// maybeCleanupExpired removes expired entries on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucket))
		if bucket == nil {
			return errBucketMissing
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			rec, ok := decodeRecord(v)
			if !ok || !rec.expiry().After(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func (r record) expiry() time.Time {
	return time.Unix(r.ExpiresAt, 0)
}

// decodeRecord decodes a stored value. Corrupt values report !ok and are
// treated as expired.
func decodeRecord(value []byte) (record, bool) {
	var rec record
	if err := json.Unmarshal(value, &rec); err != nil {
		return record{}, false
	}
	if rec.ExpiresAt <= 0 || rec.ID == "" {
		return record{}, false
	}
	return rec, true
}
