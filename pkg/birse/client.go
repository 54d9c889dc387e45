// Package birse is a client for the BIRSE visual search API.
//
// Every request carries the configured API key in the X-API-Key header and is
// bounded by the configured timeout. Failed calls are not retried.
package birse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/biggo-labs/birse-go/pkg/apierror"
	"github.com/biggo-labs/birse-go/pkg/httpclient"
	"github.com/biggo-labs/birse-go/pkg/imagefile"
	"github.com/biggo-labs/birse-go/pkg/sdklog"
)

const (
	DefaultBaseURL = "https://birse-image-insight.biggo.com/api"
	DefaultTimeout = 30 * time.Second
	APIKeyHeader   = "X-API-Key"
)

const (
	opSearch      = "search"
	opSearchByURL = "search_by_url"
	opUpload      = "upload"
	opDelete      = "delete_image"
	opStatus      = "status"
)

// Config holds the API credentials and endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	http    httpclient.Client
	log     sdklog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default resty transport. The API key header is
// still added to every request.
func WithHTTPClient(hc httpclient.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(log sdklog.Logger) Option {
	return func(c *Client) {
		c.log = sdklog.Ensure(log)
	}
}

// New creates a client. BaseURL defaults to DefaultBaseURL and Timeout to
// DefaultTimeout.
func New(cfg Config, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("api key is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		apiKey:  key,
		baseURL: strings.TrimRight(base, "/"),
		log:     sdklog.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewRestyClient(timeout)
	}
	return c, nil
}

// BaseURL returns the normalized API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends req to baseURL+path and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, req *httpclient.Request) ([]byte, error) {
	if req == nil {
		req = &httpclient.Request{}
	}
	req.Method = method
	req.URL = c.baseURL + path
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers[APIKeyHeader] = c.apiKey
	req.Headers = headers

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.log.ErrorObj("birse request failed", "birse_request", map[string]any{
			"op":    op,
			"error": err.Error(),
		})
		return nil, &apierror.TransportError{Op: op, Err: err}
	}
	c.log.DebugObj("birse request completed", "birse_request", map[string]any{
		"op":         op,
		"status":     resp.StatusCode(),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	if !httpclient.IsSuccess(resp.StatusCode()) {
		return nil, apierror.NewStatusError(op, resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

func decodeError(op string, err error) error {
	return &apierror.ApplicationError{Op: op, Message: "decode response", Err: err}
}

// SearchByImage searches for images similar to img.
func (c *Client) SearchByImage(ctx context.Context, img *imagefile.Image, opts SearchOptions) (*SearchResponse, error) {
	if img == nil || img.Reader() == nil {
		return nil, &apierror.SearchError{Err: errors.New("image is required")}
	}
	form, err := searchForm(opts)
	if err != nil {
		return nil, &apierror.SearchError{Err: err}
	}

	body, err := c.do(ctx, opSearch, http.MethodPost, "/search", &httpclient.Request{
		Form:  form,
		Files: []httpclient.FilePart{imagePart(img)},
	})
	if err != nil {
		return nil, &apierror.SearchError{Err: err}
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &apierror.SearchError{Err: decodeError(opSearch, err)}
	}
	return &out, nil
}

// SearchByURL searches for images similar to the one at imageURL.
func (c *Client) SearchByURL(ctx context.Context, imageURL string, opts SearchOptions) (*SearchResponse, error) {
	payload := map[string]any{"url": imageURL}
	if opts.MaxResults != nil {
		payload["maxResults"] = *opts.MaxResults
	}
	if opts.MinScore != nil {
		payload["minScore"] = *opts.MinScore
	}
	if len(opts.Metadata) > 0 {
		payload["metadata"] = opts.Metadata
	}

	body, err := c.do(ctx, opSearchByURL, http.MethodPost, "/search-by-url", &httpclient.Request{JSON: payload})
	if err != nil {
		return nil, &apierror.SearchError{Err: err}
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &apierror.SearchError{Err: decodeError(opSearchByURL, err)}
	}
	return &out, nil
}

// UploadImage stores img in the index. It fails with *apierror.UploadError on
// a non-2xx status, a body with success=false, or a body without an id.
func (c *Client) UploadImage(ctx context.Context, img *imagefile.Image, metadata map[string]any) (*UploadResponse, error) {
	if img == nil || img.Reader() == nil {
		return nil, &apierror.UploadError{Err: errors.New("image is required")}
	}
	form := map[string]string{}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, &apierror.UploadError{Err: fmt.Errorf("encode metadata: %w", err)}
		}
		form["metadata"] = string(raw)
	}

	body, err := c.do(ctx, opUpload, http.MethodPost, "/upload", &httpclient.Request{
		Form:  form,
		Files: []httpclient.FilePart{imagePart(img)},
	})
	if err != nil {
		return nil, &apierror.UploadError{Err: err}
	}

	var out UploadResponse
	if err := decodeWithFields(body, &out, &out.Fields); err != nil {
		return nil, &apierror.UploadError{Err: decodeError(opUpload, err)}
	}
	if out.Success != nil && !*out.Success {
		return nil, &apierror.UploadError{Err: &apierror.ApplicationError{Op: opUpload, Message: "server reported failure"}}
	}
	if out.ID == "" {
		return nil, &apierror.UploadError{Err: &apierror.ApplicationError{Op: opUpload, Message: "response has no image id"}}
	}
	return &out, nil
}

// DeleteImage removes the image with the given id from the index.
func (c *Client) DeleteImage(ctx context.Context, imageID string) (*DeleteResponse, error) {
	if strings.TrimSpace(imageID) == "" {
		return nil, errors.New("image id is required")
	}
	body, err := c.do(ctx, opDelete, http.MethodDelete, "/images/"+url.PathEscape(imageID), nil)
	if err != nil {
		return nil, err
	}
	var out DeleteResponse
	if err := decodeWithFields(body, &out, &out.Fields); err != nil {
		return nil, decodeError(opDelete, err)
	}
	return &out, nil
}

// GetStatus returns API status and version information.
func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	body, err := c.do(ctx, opStatus, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	var out StatusResponse
	if err := decodeWithFields(body, &out, &out.Fields); err != nil {
		return nil, decodeError(opStatus, err)
	}
	return &out, nil
}

// imagePart sends every image as image.jpg with type image/jpeg.
func imagePart(img *imagefile.Image) httpclient.FilePart {
	return httpclient.FilePart{
		Param:       "image",
		FileName:    imagefile.DefaultFileName,
		ContentType: imagefile.DefaultContentType,
		Reader:      img.Reader(),
	}
}

func searchForm(opts SearchOptions) (map[string]string, error) {
	form := map[string]string{}
	if opts.MaxResults != nil {
		form["maxResults"] = strconv.Itoa(*opts.MaxResults)
	}
	if opts.MinScore != nil {
		form["minScore"] = strconv.FormatFloat(*opts.MinScore, 'f', -1, 64)
	}
	if len(opts.Metadata) > 0 {
		raw, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		form["metadata"] = string(raw)
	}
	return form, nil
}
