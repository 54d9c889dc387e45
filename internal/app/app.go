// Package app wires configuration, SDK clients, the upload ledger and event
// publishers for the birse CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/biggo-labs/birse-go/internal/batch"
	"github.com/biggo-labs/birse-go/internal/config"
	"github.com/biggo-labs/birse-go/internal/logger"
	"github.com/biggo-labs/birse-go/internal/pageimage"
	"github.com/biggo-labs/birse-go/internal/storage"
	"github.com/biggo-labs/birse-go/pkg/birse"
	"github.com/biggo-labs/birse-go/pkg/httpclient"
	"github.com/biggo-labs/birse-go/pkg/imagefile"
	"github.com/biggo-labs/birse-go/pkg/publishers"
	"github.com/biggo-labs/birse-go/pkg/shopify"
)

// App is the CLI runtime. Clients and the ledger are built on first use so
// commands that only need one variant do not require the other's credentials
// and do not lock the ledger.
type App struct {
	cfg      *config.Config
	log      logger.Logger
	restyLog resty.Logger
	http     httpclient.Client

	fanout *publishers.Fanout

	mu       sync.Mutex
	store    storage.Store
	api      *birse.Client
	shop     *shopify.Client
	resolver *pageimage.Resolver
}

// Option configures the App.
type Option func(*App)

// WithHTTPClient makes every client use hc instead of its own resty transport.
func WithHTTPClient(hc httpclient.Client) Option {
	return func(a *App) { a.http = hc }
}

// WithRestyLogger routes resty's internal warnings through log.
func WithRestyLogger(log resty.Logger) Option {
	return func(a *App) { a.restyLog = log }
}

// WithPublishers replaces the publishers loaded from cfg.PublishersFile.
func WithPublishers(pubs ...publishers.Publisher) Option {
	return func(a *App) { a.fanout = publishers.NewFanout(pubs) }
}

// New builds the runtime from cfg.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a := &App{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(a)
	}

	if a.fanout == nil {
		fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
		if err != nil {
			return nil, err
		}
		a.fanout = fanout
	}

	return a, nil
}

func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(path) == "" {
		return publishers.NewFanout(nil), nil
	}

	reg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, c := range enabled {
		summaries = append(summaries, map[string]string{"id": c.ID, "type": c.Type})
	}
	log.DebugObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubs), nil
}

func (a *App) transport(timeout time.Duration) httpclient.Client {
	if a.http != nil {
		return a.http
	}
	return httpclient.NewRestyClient(timeout).WithLogger(a.restyLog)
}

// API returns the API-key client.
func (a *App) API() (*birse.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.api != nil {
		return a.api, nil
	}
	if !a.cfg.HasAPI() {
		return nil, errors.New("api key is not configured (set BIRSE_API_KEY or api_key)")
	}
	timeout := a.cfg.Timeout
	if timeout <= 0 {
		timeout = birse.DefaultTimeout
	}
	c, err := birse.New(birse.Config{
		APIKey:  a.cfg.APIKey,
		BaseURL: a.cfg.BaseURL,
		Timeout: timeout,
	}, birse.WithHTTPClient(a.transport(timeout)), birse.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	a.api = c
	return c, nil
}

// Shop returns the shop-bound client.
func (a *App) Shop() (*shopify.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shop != nil {
		return a.shop, nil
	}
	if !a.cfg.HasShop() {
		return nil, errors.New("shop is not configured (set BIRSE_SHOP_ID and BIRSE_SHOP_DOMAIN)")
	}
	c, err := shopify.New(shopify.Config{
		ShopID:              a.cfg.ShopID,
		ShopPermanentDomain: a.cfg.ShopDomain,
		Timeout:             a.cfg.ShopTimeout,
	}, shopify.WithHTTPClient(a.transport(a.cfg.ShopTimeout)), shopify.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	a.shop = c
	return c, nil
}

func (a *App) ledgerOptions(readOnly bool) storage.Options {
	return storage.Options{
		Retention:       a.cfg.LedgerRetention,
		CleanupInterval: a.cfg.LedgerCleanupInterval,
		ReadOnly:        readOnly,
	}
}

// ledger opens the writable ledger on first use and keeps it until Close.
func (a *App) ledger() (storage.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	store, err := storage.NewStore(a.cfg.LedgerType, a.cfg.LedgerPath, a.ledgerOptions(false))
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	a.store = store
	a.log.DebugObj("ledger initialized", "ledger_config", map[string]any{
		"type":                     a.cfg.LedgerType,
		"path":                     a.cfg.LedgerPath,
		"retention_seconds":        int(a.cfg.LedgerRetention.Seconds()),
		"cleanup_interval_seconds": int(a.cfg.LedgerCleanupInterval.Seconds()),
	})
	return store, nil
}

func (a *App) pageResolver() *pageimage.Resolver {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.resolver == nil {
		a.resolver = pageimage.NewResolver(a.http)
	}
	return a.resolver
}

// UploadImage uploads img through the API client, records it in the ledger
// and publishes image.uploaded. Once the upload succeeds, ledger and publish
// failures are logged and do not fail the call.
func (a *App) UploadImage(ctx context.Context, img *imagefile.Image, source string, metadata map[string]any) (*birse.UploadResponse, error) {
	api, err := a.API()
	if err != nil {
		return nil, err
	}
	resp, err := api.UploadImage(ctx, img, metadata)
	if err != nil {
		return nil, err
	}

	if store, err := a.ledger(); err != nil {
		a.log.WarnObj("ledger unavailable", "ledger_error", map[string]any{"image_id": resp.ID, "error": err.Error()})
	} else if err := store.RecordUpload(storage.Upload{
		ID:         resp.ID,
		Source:     source,
		Metadata:   metadata,
		UploadedAt: time.Now().UTC(),
	}); err != nil {
		a.log.WarnObj("ledger write failed", "ledger_error", map[string]any{"image_id": resp.ID, "error": err.Error()})
	}
	a.publish(ctx, publishers.NewEvent(publishers.EventImageUploaded, resp.ID, source, metadata))
	return resp, nil
}

// DeleteImage removes the image from the index and the ledger and publishes
// image.deleted.
func (a *App) DeleteImage(ctx context.Context, imageID string) (*birse.DeleteResponse, error) {
	api, err := a.API()
	if err != nil {
		return nil, err
	}
	resp, err := api.DeleteImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if store, err := a.ledger(); err != nil {
		a.log.WarnObj("ledger unavailable", "ledger_error", map[string]any{"image_id": imageID, "error": err.Error()})
	} else if err := store.ForgetUpload(imageID); err != nil {
		a.log.WarnObj("ledger delete failed", "ledger_error", map[string]any{"image_id": imageID, "error": err.Error()})
	}
	a.publish(ctx, publishers.NewEvent(publishers.EventImageDeleted, imageID, "", nil))
	return resp, nil
}

// SearchPage resolves the product image declared by pageURL and searches by it.
func (a *App) SearchPage(ctx context.Context, pageURL string, opts birse.SearchOptions) (string, *birse.SearchResponse, error) {
	api, err := a.API()
	if err != nil {
		return "", nil, err
	}
	imageURL, err := a.pageResolver().Resolve(ctx, pageURL)
	if err != nil {
		return "", nil, fmt.Errorf("resolve page image: %w", err)
	}
	a.log.DebugObj("page image resolved", "page_image", map[string]string{"page": pageURL, "image": imageURL})
	resp, err := api.SearchByURL(ctx, imageURL, opts)
	return imageURL, resp, err
}

// RunBatch uploads every image listed in the manifest at path.
func (a *App) RunBatch(ctx context.Context, path string) (batch.Summary, error) {
	m, err := batch.LoadManifest(path)
	if err != nil {
		return batch.Summary{}, err
	}
	api, err := a.API()
	if err != nil {
		return batch.Summary{}, err
	}
	store, err := a.ledger()
	if err != nil {
		return batch.Summary{}, err
	}
	runner := &batch.Runner{Uploader: api, Store: store, Publisher: a.fanout, Log: a.log}
	return runner.Run(ctx, m)
}

// Uploads lists the ledger, newest first. Unless this App already holds the
// ledger, it is opened read-only for the duration of the call.
func (a *App) Uploads() ([]storage.Upload, error) {
	a.mu.Lock()
	open := a.store
	a.mu.Unlock()
	if open != nil {
		return open.Uploads()
	}

	store, err := storage.NewStore(a.cfg.LedgerType, a.cfg.LedgerPath, a.ledgerOptions(true))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	return store.Uploads()
}

func (a *App) publish(ctx context.Context, evt publishers.Event) {
	if a.fanout.Size() == 0 {
		return
	}
	n, err := a.fanout.Publish(ctx, evt)
	if err != nil {
		a.log.WarnObj("event publish failed", "publish_error", map[string]any{
			"event_id":  evt.ID,
			"type":      evt.Type,
			"delivered": n,
			"error":     err.Error(),
		})
		return
	}
	a.log.DebugObj("event published", "publish_meta", map[string]any{"event_id": evt.ID, "type": evt.Type, "delivered": n})
}

// Close releases publishers and the ledger.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if err := a.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	a.mu.Lock()
	store := a.store
	a.store = nil
	a.mu.Unlock()
	if store != nil {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}
