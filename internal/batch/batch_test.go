package batch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biggo-labs/birse-go/internal/storage"
	"github.com/biggo-labs/birse-go/pkg/birse"
	"github.com/biggo-labs/birse-go/pkg/imagefile"
	"github.com/biggo-labs/birse-go/pkg/publishers"
)

type fakeUploader struct {
	calls    []string
	failOn   string
	onUpload func()
}

func (f *fakeUploader) UploadImage(_ context.Context, img *imagefile.Image, _ map[string]any) (*birse.UploadResponse, error) {
	data, _ := io.ReadAll(img.Reader())
	name := string(data)
	f.calls = append(f.calls, name)
	if f.onUpload != nil {
		f.onUpload()
	}
	if name == f.failOn {
		return nil, errors.New("rejected")
	}
	return &birse.UploadResponse{ID: "id-" + name}, nil
}

type recordingStore struct {
	storage.Store
	recorded []storage.Upload
}

func (s *recordingStore) RecordUpload(u storage.Upload) error {
	s.recorded = append(s.recorded, u)
	return nil
}

type countingPublisher struct {
	events []publishers.Event
}

func (p *countingPublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	p.events = append(p.events, evt)
	return 1, nil
}

func writeImages(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n+".jpg"), []byte(n), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestLoadManifestResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	raw := `
images:
  - path: a.jpg
    metadata:
      sku: A1
  - path: /abs/b.jpg
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Images[0].Path != filepath.Join(dir, "a.jpg") {
		t.Fatalf("relative path not resolved: %s", m.Images[0].Path)
	}
	if m.Images[1].Path != "/abs/b.jpg" {
		t.Fatalf("absolute path changed: %s", m.Images[1].Path)
	}
	if m.Images[0].Metadata["sku"] != "A1" {
		t.Fatalf("metadata not decoded: %#v", m.Images[0].Metadata)
	}
}

func TestLoadManifestRejectsEmptyAndUnknown(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"images":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadManifest(empty); err == nil {
		t.Fatal("expected error for empty manifest")
	}
	if _, err := LoadManifest(filepath.Join(dir, "batch.toml")); err == nil {
		t.Fatal("expected error for missing or unsupported manifest")
	}
}

func TestRunnerRecordsSuccessesAndJoinsFailures(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, "a", "b", "c")

	uploader := &fakeUploader{failOn: "b"}
	store := &recordingStore{}
	pub := &countingPublisher{}
	runner := &Runner{Uploader: uploader, Store: store, Publisher: pub}

	m := &Manifest{Images: []Entry{
		{Path: filepath.Join(dir, "a.jpg"), Metadata: map[string]any{"sku": "A"}},
		{Path: filepath.Join(dir, "b.jpg")},
		{Path: filepath.Join(dir, "missing.jpg")},
		{Path: filepath.Join(dir, "c.jpg")},
	}}

	summary, err := runner.Run(context.Background(), m)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !strings.Contains(err.Error(), "rejected") || !strings.Contains(err.Error(), "missing.jpg") {
		t.Fatalf("error should mention each failure: %v", err)
	}
	if summary.Uploaded != 2 || summary.Failed != 2 || summary.Published != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(uploader.calls) != 3 {
		t.Fatalf("missing file must not reach the uploader, calls=%v", uploader.calls)
	}
	if len(store.recorded) != 2 || store.recorded[0].ID != "id-a" || store.recorded[0].Metadata["sku"] != "A" {
		t.Fatalf("unexpected ledger writes %+v", store.recorded)
	}
	if pub.events[1].Type != publishers.EventImageUploaded || pub.events[1].ImageID != "id-c" {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	uploader := &fakeUploader{onUpload: cancel}
	runner := &Runner{Uploader: uploader}

	summary, err := runner.Run(ctx, &Manifest{Images: []Entry{
		{Path: filepath.Join(dir, "a.jpg")},
		{Path: filepath.Join(dir, "b.jpg")},
	}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(uploader.calls) != 1 || summary.Uploaded != 1 {
		t.Fatalf("expected run to stop after first entry, calls=%v summary=%+v", uploader.calls, summary)
	}
}
