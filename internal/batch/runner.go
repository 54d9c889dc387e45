// Package batch uploads the images listed in a manifest one after another.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biggo-labs/birse-go/internal/storage"
	"github.com/biggo-labs/birse-go/pkg/birse"
	"github.com/biggo-labs/birse-go/pkg/imagefile"
	"github.com/biggo-labs/birse-go/pkg/publishers"
	"github.com/biggo-labs/birse-go/pkg/sdklog"
)

// Uploader is the subset of birse.Client the runner needs.
type Uploader interface {
	UploadImage(ctx context.Context, img *imagefile.Image, metadata map[string]any) (*birse.UploadResponse, error)
}

// EventPublisher receives an image.uploaded event per successful upload.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Result reports the outcome for one manifest entry.
type Result struct {
	Path    string `json:"path"`
	ImageID string `json:"image_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	Results   []Result `json:"results"`
	Uploaded  int      `json:"uploaded"`
	Failed    int      `json:"failed"`
	Published int      `json:"published"`
}

// Runner uploads manifest entries sequentially.
type Runner struct {
	Uploader  Uploader
	Store     storage.Store
	Publisher EventPublisher
	Log       sdklog.Logger
}

// Run uploads every entry of m. Entry failures are collected and joined; the
// run stops early only when ctx is done.
func (r *Runner) Run(ctx context.Context, m *Manifest) (Summary, error) {
	var summary Summary
	if r == nil || r.Uploader == nil {
		return summary, errors.New("batch runner has no uploader")
	}
	if m == nil {
		return summary, errors.New("manifest is nil")
	}
	log := sdklog.Ensure(r.Log)

	var errs []error
	for i, entry := range m.Images {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("batch stopped before images[%d]: %w", i, err))
			break
		}

		id, published, err := r.uploadOne(ctx, entry)
		res := Result{Path: entry.Path, ImageID: id}
		summary.Published += published
		if err != nil {
			res.Error = err.Error()
			summary.Failed++
			errs = append(errs, fmt.Errorf("images[%d] %s: %w", i, entry.Path, err))
			log.WarnObj("batch entry failed", "batch_entry", res)
		} else {
			summary.Uploaded++
			log.InfoObj("batch entry uploaded", "batch_entry", res)
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, errors.Join(errs...)
}

// uploadOne returns the new image id and the number of sinks that accepted
// the event. A ledger or publish failure after a successful upload is still
// reported with the id.
func (r *Runner) uploadOne(ctx context.Context, entry Entry) (string, int, error) {
	img, err := imagefile.Open(entry.Path)
	if err != nil {
		return "", 0, err
	}
	defer img.Close()

	resp, err := r.Uploader.UploadImage(ctx, img, entry.Metadata)
	if err != nil {
		return "", 0, err
	}

	var errs []error
	if r.Store != nil {
		if err := r.Store.RecordUpload(storage.Upload{
			ID:         resp.ID,
			Source:     entry.Path,
			Metadata:   entry.Metadata,
			UploadedAt: time.Now().UTC(),
		}); err != nil {
			errs = append(errs, fmt.Errorf("record upload: %w", err))
		}
	}

	published := 0
	if r.Publisher != nil {
		evt := publishers.NewEvent(publishers.EventImageUploaded, resp.ID, entry.Path, entry.Metadata)
		n, err := r.Publisher.Publish(ctx, evt)
		published = n
		if err != nil {
			errs = append(errs, fmt.Errorf("publish event: %w", err))
		}
	}
	return resp.ID, published, errors.Join(errs...)
}
