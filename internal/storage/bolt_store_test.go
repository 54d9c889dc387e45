package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestStore(t *testing.T, opts Options) *boltStore {
	t.Helper()
	raw, err := openBolt(filepath.Join(t.TempDir(), "uploads.db"), normalizeOptions(opts))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := raw.(*boltStore)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStoreRecordsListsAndForgets(t *testing.T) {
	store := openTestStore(t, Options{})

	older := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	if err := store.RecordUpload(Upload{ID: "img-1", Source: "a.jpg", UploadedAt: older}); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if err := store.RecordUpload(Upload{ID: "img-2", Source: "b.jpg", Metadata: map[string]any{"sku": "X1"}}); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}

	uploads, err := store.Uploads()
	if err != nil {
		t.Fatalf("Uploads: %v", err)
	}
	if len(uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(uploads))
	}
	if uploads[0].ID != "img-2" || uploads[1].ID != "img-1" {
		t.Fatalf("expected newest first, got %s, %s", uploads[0].ID, uploads[1].ID)
	}
	if uploads[0].Metadata["sku"] != "X1" {
		t.Fatalf("metadata not persisted: %+v", uploads[0].Metadata)
	}
	if !uploads[1].UploadedAt.Equal(older) {
		t.Fatalf("UploadedAt = %v, want %v", uploads[1].UploadedAt, older)
	}

	if err := store.ForgetUpload("img-1"); err != nil {
		t.Fatalf("ForgetUpload: %v", err)
	}
	uploads, err = store.Uploads()
	if err != nil || len(uploads) != 1 || uploads[0].ID != "img-2" {
		t.Fatalf("expected only img-2 after forget, got %v err=%v", uploads, err)
	}
	if err := store.ForgetUpload("missing"); err != nil {
		t.Fatalf("ForgetUpload unknown id: %v", err)
	}
}

func TestBoltStoreExpiresUploads(t *testing.T) {
	store := openTestStore(t, Options{Retention: time.Hour, CleanupInterval: time.Minute})

	now := time.Now()
	store.now = func() time.Time { return now }
	if err := store.RecordUpload(Upload{ID: "img-1", UploadedAt: now}); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}

	// Move past both the retention window and the cleanup cadence.
	now = now.Add(2 * time.Hour)

	uploads, err := store.Uploads()
	if err != nil || len(uploads) != 0 {
		t.Fatalf("expected empty ledger, got %v err=%v", uploads, err)
	}

	// The next write runs the cleanup and drops the expired key.
	if err := store.RecordUpload(Upload{ID: "img-2", UploadedAt: now}); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	err = store.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(uploadBucket)).Get([]byte("img-1")); v != nil {
			t.Fatalf("expected expired entry removed, got %s", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestReadOnlyStoreListsWithoutWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.db")

	writer, err := NewStore("bbolt", path, Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := writer.RecordUpload(Upload{ID: "img-1", Source: "a.jpg"}); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := NewStore("bbolt", path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("NewStore read-only: %v", err)
	}
	t.Cleanup(func() { reader.Close() })

	uploads, err := reader.Uploads()
	if err != nil || len(uploads) != 1 || uploads[0].ID != "img-1" {
		t.Fatalf("read-only Uploads = %v, %v", uploads, err)
	}
	if err := reader.RecordUpload(Upload{ID: "img-2"}); !errors.Is(err, errReadOnly) {
		t.Fatalf("expected read-only error, got %v", err)
	}
	if err := reader.ForgetUpload("img-1"); !errors.Is(err, errReadOnly) {
		t.Fatalf("expected read-only error, got %v", err)
	}
}

func TestReadOnlyStoreMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "uploads.db")

	store, err := NewStore("bbolt", path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("NewStore read-only: %v", err)
	}
	uploads, err := store.Uploads()
	if err != nil || len(uploads) != 0 {
		t.Fatalf("Uploads = %v, %v", uploads, err)
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Fatalf("read-only open must not create the ledger directory, stat err=%v", err)
	}
}

func TestBoltStoreRejectsEmptyID(t *testing.T) {
	store := openTestStore(t, Options{})
	if err := store.RecordUpload(Upload{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if err := store.RecordUpload(Upload{ID: "x"}); err != nil {
		t.Fatalf("noop store RecordUpload: %v", err)
	}
	uploads, err := store.Uploads()
	if err != nil || len(uploads) != 0 {
		t.Fatalf("noop store Uploads = %v, %v", uploads, err)
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStore("redis", "x", Options{}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if _, err := NewStore("bbolt", " ", Options{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}
