// Package pageimage finds the representative image of a product page.
package pageimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/biggo-labs/birse-go/pkg/apierror"
	"github.com/biggo-labs/birse-go/pkg/httpclient"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
	defaultTimeout   = 15 * time.Second
	// DefaultUserAgent is sent unless the caller overrides it.
	DefaultUserAgent = "Mozilla/5.0 (compatible; birse-go/1.0; +https://biggo.com)"
)

// ErrNoImage is returned when a page declares no image.
var ErrNoImage = errors.New("page declares no image")

// Selectors in lookup order. The first non-empty value wins.
var imageSelectors = []struct {
	sel  string
	attr string
}{
	{`meta[property="og:image"]`, "content"},
	{`meta[property="og:image:secure_url"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`link[rel="image_src"]`, "href"},
}

// Resolver fetches pages and extracts their image URL.
type Resolver struct {
	client    httpclient.Client
	userAgent string
}

// NewResolver constructs a resolver with the provided HTTP client (or default).
func NewResolver(client httpclient.Client) *Resolver {
	if client == nil {
		client = httpclient.NewRestyClient(defaultTimeout)
	}
	return &Resolver{client: client, userAgent: DefaultUserAgent}
}

// Resolve GETs pageURL and returns the absolute URL of its declared image.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid page url %q", pageURL)
	}

	resp, err := r.client.Get(ctx, base.String(), map[string]string{
		"User-Agent": r.userAgent,
		"Accept":     "text/html,application/xhtml+xml",
	})
	if err != nil {
		return "", fmt.Errorf("http fetch: %w", err)
	}
	if !httpclient.IsSuccess(resp.StatusCode()) {
		return "", fmt.Errorf("status %d body: %s", resp.StatusCode(), apierror.Snippet(resp.Body()))
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	raw, err := findImage(body)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return "", ErrNoImage
	}
	return resolveURL(raw, base), nil
}

func findImage(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	for _, s := range imageSelectors {
		if node := doc.Find(s.sel).First(); node.Length() > 0 {
			if val, ok := node.Attr(s.attr); ok && strings.TrimSpace(val) != "" {
				return strings.TrimSpace(val), nil
			}
		}
	}
	return "", nil
}

// resolveURL makes ref absolute against base. Protocol-relative and
// path-relative references are both handled.
func resolveURL(ref string, base *url.URL) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
