// Package storage keeps a local ledger of images uploaded through the CLI.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Upload is one ledger entry.
type Upload struct {
	ID         string         `json:"id"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	UploadedAt time.Time      `json:"uploaded_at"`
}

// Store tracks uploaded image ids.
type Store interface {
	Close() error
	RecordUpload(u Upload) error
	ForgetUpload(id string) error
	Uploads() ([]Upload, error)
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	Retention       time.Duration
	CleanupInterval time.Duration
	// ReadOnly opens the ledger with a shared lock. Writes fail and a
	// missing ledger file lists as empty.
	ReadOnly bool
}

const (
	defaultRetention       = 90 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error               { return nil }
func (noopStore) RecordUpload(Upload) error  { return nil }
func (noopStore) ForgetUpload(string) error  { return nil }
func (noopStore) Uploads() ([]Upload, error) { return nil, nil }
