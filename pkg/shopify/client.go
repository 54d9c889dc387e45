// Package shopify is a client for the BigGo image search plugin API used by
// Shopify storefronts. A Client is bound to one shop and is safe for
// concurrent use.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/biggo-labs/birse-go/pkg/apierror"
	"github.com/biggo-labs/birse-go/pkg/httpclient"
	"github.com/biggo-labs/birse-go/pkg/imagefile"
	"github.com/biggo-labs/birse-go/pkg/sdklog"
)

// Fixed backend endpoints.
const (
	UploadImageURL     = "https://api.biggo.com/api/v1/shopify/upload_image"
	SimilarImageURL    = "https://api.biggo.com/api/v1/shopify/similar_image"
	GetProductsURL     = "https://platformplugin.biggo.com/api/get_products"
	SimilarProductsURL = "https://platformplugin.biggo.com/api/similar_products"
)

const (
	opUpload          = "upload_image"
	opSimilarImage    = "similar_image"
	opGetProducts     = "get_products"
	opSimilarProducts = "similar_products"
)

// Config identifies the shop. Timeout is optional; zero leaves requests
// bounded only by the caller's context.
type Config struct {
	ShopID              string
	ShopPermanentDomain string
	Timeout             time.Duration
}

// Client calls the plugin API on behalf of one shop.
type Client struct {
	shopID     string
	shopDomain string
	http       httpclient.Client
	log        sdklog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default resty transport.
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

// New creates a client for the shop described by cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	shopID := strings.TrimSpace(cfg.ShopID)
	domain := strings.TrimSpace(cfg.ShopPermanentDomain)
	if shopID == "" {
		return nil, errors.New("shop id is required")
	}
	if domain == "" {
		return nil, errors.New("shop permanent domain is required")
	}

	c := &Client{
		shopID:     shopID,
		shopDomain: domain,
		log:        sdklog.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewRestyClient(cfg.Timeout)
	}
	return c, nil
}

// ShopID returns the configured shop id.
func (c *Client) ShopID() string { return c.shopID }

// ShopPermanentDomain returns the configured myshopify domain.
func (c *Client) ShopPermanentDomain() string { return c.shopDomain }

func (c *Client) send(ctx context.Context, op string, req *httpclient.Request) (httpclient.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.log.ErrorObj("shopify request failed", "shopify_request", map[string]any{
			"op":    op,
			"error": err.Error(),
		})
		return nil, &apierror.TransportError{Op: op, Err: err}
	}
	c.log.DebugObj("shopify request completed", "shopify_request", map[string]any{
		"op":         op,
		"status":     resp.StatusCode(),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return resp, nil
}

// statusError builds a StatusError whose message is the server's
// error.message, or fallback when the body carries none.
func statusError(op string, resp httpclient.Response, fallback string) error {
	serr := apierror.NewStatusError(op, resp.StatusCode(), resp.Body())
	serr.Message = apierror.ServerMessage(resp.Body())
	if serr.Message == "" {
		serr.Message = fallback
	}
	return serr
}

// UploadImage uploads img and returns the image id assigned by the backend.
// It fails with *apierror.UploadError on a non-2xx status, a body with
// result=false, or a body without image_id.
func (c *Client) UploadImage(ctx context.Context, img *imagefile.Image) (*UploadResult, error) {
	if img == nil || img.Reader() == nil {
		return nil, &apierror.UploadError{Err: errors.New("image is required")}
	}
	contentType, err := img.DetectContentType()
	if err != nil {
		return nil, &apierror.UploadError{Err: err}
	}

	resp, err := c.send(ctx, opUpload, &httpclient.Request{
		Method: http.MethodPost,
		URL:    UploadImageURL,
		Form:   map[string]string{"shop": c.shopID},
		Files: []httpclient.FilePart{{
			Param:       "image",
			FileName:    img.FileName(),
			ContentType: contentType,
			Reader:      img.Reader(),
		}},
	})
	if err != nil {
		return nil, &apierror.UploadError{Err: err}
	}
	if !httpclient.IsSuccess(resp.StatusCode()) {
		return nil, &apierror.UploadError{Err: statusError(opUpload, resp, "Upload failed")}
	}

	var out UploadResult
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &apierror.UploadError{Err: &apierror.ApplicationError{Op: opUpload, Message: "decode response", Err: err}}
	}
	if out.Result != nil && !*out.Result {
		return nil, &apierror.UploadError{Err: &apierror.ApplicationError{Op: opUpload, Message: "Upload failed"}}
	}
	if out.ImageID == "" {
		return nil, &apierror.UploadError{Err: &apierror.ApplicationError{Op: opUpload, Message: "No image id"}}
	}
	return &out, nil
}

// SearchImage looks up images similar to params.ImageID and returns the
// matching products. When the similarity lookup yields no candidates the
// product lookup is skipped and an empty successful response is returned.
func (c *Client) SearchImage(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	ids, err := c.similarImageIDs(ctx, params)
	if err != nil {
		return nil, &apierror.SearchError{Err: err}
	}
	if len(ids) == 0 {
		return &SearchResponse{Result: true, Products: []Product{}}, nil
	}

	body := map[string]any{
		"shop": c.shopDomain,
		"ids":  ids,
	}
	if params.Metafields != nil {
		body["metafields"] = params.Metafields
	}
	if params.Country != nil {
		body["country"] = *params.Country
	}
	if params.Lang != nil {
		body["lang"] = *params.Lang
	}

	resp, err := c.send(ctx, opGetProducts, &httpclient.Request{
		Method: http.MethodPost,
		URL:    GetProductsURL,
		JSON:   body,
	})
	if err != nil {
		return nil, &apierror.SearchError{Err: err}
	}
	if !httpclient.IsSuccess(resp.StatusCode()) {
		return nil, &apierror.SearchError{Err: statusError(opGetProducts, resp, "Get products failed")}
	}

	var out SearchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &apierror.SearchError{Err: &apierror.ApplicationError{Op: opGetProducts, Message: "decode response", Err: err}}
	}
	return &out, nil
}

// similarImageIDs runs the similarity lookup. Candidate ids are kept as raw
// JSON so they are forwarded to get_products exactly as received.
func (c *Client) similarImageIDs(ctx context.Context, params SearchParams) ([]json.RawMessage, error) {
	body := map[string]any{
		"image_id":       params.ImageID,
		"is_orientation": false,
		"shop":           c.shopID,
	}
	if params.XYWH != nil {
		body["xywh"] = *params.XYWH
	}

	resp, err := c.send(ctx, opSimilarImage, &httpclient.Request{
		Method: http.MethodPost,
		URL:    SimilarImageURL,
		JSON:   body,
	})
	if err != nil {
		return nil, err
	}
	if !httpclient.IsSuccess(resp.StatusCode()) {
		return nil, statusError(opSimilarImage, resp, "Search failed")
	}

	raw := bytes.TrimSpace(resp.Body())
	if !json.Valid(raw) {
		return nil, &apierror.ApplicationError{Op: opSimilarImage, Message: "decode response", Err: fmt.Errorf("invalid json body: %s", apierror.Snippet(raw))}
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, nil
	}
	var ids []json.RawMessage
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, &apierror.ApplicationError{Op: opSimilarImage, Message: "decode response", Err: err}
	}
	return ids, nil
}

// SimilarProducts returns products similar to params.ProductID.
//
// The HTTP status is not checked: a non-2xx body is decoded and returned as
// if it were a success, with a warning logged.
func (c *Client) SimilarProducts(ctx context.Context, params SimilarProductParams) (*SearchResponse, error) {
	query, err := c.similarProductsQuery(params)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, opSimilarProducts, &httpclient.Request{
		Method: http.MethodGet,
		URL:    SimilarProductsURL,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	if !httpclient.IsSuccess(resp.StatusCode()) {
		c.log.WarnObj("similar products returned non-success status; body returned unchecked", "shopify_similar_products", map[string]any{
			"status":     resp.StatusCode(),
			"product_id": params.ProductID,
		})
	}

	var out SearchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &apierror.ApplicationError{Op: opSimilarProducts, Message: "decode response", Err: err}
	}
	return &out, nil
}

func (c *Client) similarProductsQuery(params SimilarProductParams) (url.Values, error) {
	q := url.Values{}
	q.Set("shop", c.shopDomain)
	q.Set("shop_id", c.shopID)
	q.Set("product_id", params.ProductID)
	if params.ImageURL != nil && *params.ImageURL != "" {
		q.Set("image_url", *params.ImageURL)
	}
	if params.Country != nil && *params.Country != "" {
		q.Set("country", *params.Country)
	}
	if params.Lang != nil && *params.Lang != "" {
		q.Set("lang", *params.Lang)
	}
	if params.Metafields != nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(params.Metafields); err != nil {
			return nil, fmt.Errorf("encode metafields: %w", err)
		}
		q.Set("metafields", strings.TrimRight(buf.String(), "\n"))
	}
	return q, nil
}
