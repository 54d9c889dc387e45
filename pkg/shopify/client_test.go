package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/biggo-labs/birse-go/pkg/apierror"
	"github.com/biggo-labs/birse-go/pkg/httpclient"
	"github.com/biggo-labs/birse-go/pkg/imagefile"
	"github.com/biggo-labs/birse-go/pkg/ptr"
)

type mockResponse struct {
	body       []byte
	statusCode int
}

func (r mockResponse) Body() []byte    { return r.body }
func (r mockResponse) StatusCode() int { return r.statusCode }

type reply struct {
	status int
	body   string
	err    error
}

// recordingClient answers requests by URL and records everything it receives.
type recordingClient struct {
	replies  map[string]reply
	requests []*httpclient.Request
	payloads [][]byte
}

func (m *recordingClient) Get(ctx context.Context, url string, headers map[string]string) (httpclient.Response, error) {
	return m.Do(ctx, &httpclient.Request{Method: http.MethodGet, URL: url, Headers: headers})
}

func (m *recordingClient) Do(_ context.Context, req *httpclient.Request) (httpclient.Response, error) {
	m.requests = append(m.requests, req)
	var payload []byte
	for _, f := range req.Files {
		payload, _ = io.ReadAll(f.Reader)
	}
	m.payloads = append(m.payloads, payload)

	r, ok := m.replies[req.URL]
	if !ok {
		return mockResponse{statusCode: http.StatusNotFound, body: []byte(`{}`)}, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return mockResponse{statusCode: status, body: []byte(r.body)}, nil
}

func (m *recordingClient) calls(url string) int {
	n := 0
	for _, r := range m.requests {
		if r.URL == url {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, mock *recordingClient) *Client {
	t.Helper()
	c, err := New(Config{ShopID: "shop-1", ShopPermanentDomain: "demo.myshopify.com"}, WithHTTPClient(mock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// wireJSON round-trips a request body through encoding/json, the way it goes on the wire.
func wireJSON(t *testing.T, body any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	return out
}

func TestNewRequiresShop(t *testing.T) {
	if _, err := New(Config{ShopPermanentDomain: "x.myshopify.com"}); err == nil {
		t.Fatal("expected error for missing shop id")
	}
	if _, err := New(Config{ShopID: "1"}); err == nil {
		t.Fatal("expected error for missing shop domain")
	}
}

func TestUploadImageSuccess(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		UploadImageURL: {body: `{"result":true,"image_id":"img-42"}`},
	}}
	c := newTestClient(t, mock)

	res, err := c.UploadImage(context.Background(), imagefile.FromReader(strings.NewReader("\x89PNG\r\n\x1a\n"), "shoe.png"))
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if res.ImageID != "img-42" {
		t.Fatalf("ImageID = %q", res.ImageID)
	}

	req := mock.requests[0]
	if req.Method != http.MethodPost {
		t.Fatalf("method = %s", req.Method)
	}
	if req.Form["shop"] != "shop-1" {
		t.Fatalf("shop form field = %q", req.Form["shop"])
	}
	if len(req.Files) != 1 || req.Files[0].Param != "image" || req.Files[0].FileName != "shoe.png" {
		t.Fatalf("unexpected file parts %#v", req.Files)
	}
	if req.Files[0].ContentType != "image/png" {
		t.Fatalf("content type = %q", req.Files[0].ContentType)
	}
	if string(mock.payloads[0]) != "\x89PNG\r\n\x1a\n" {
		t.Fatalf("payload = %q", mock.payloads[0])
	}
}

func TestUploadImageFailures(t *testing.T) {
	cases := []struct {
		name     string
		reply    reply
		wantKind func(error) bool
	}{
		{name: "non-2xx", reply: reply{status: http.StatusInternalServerError, body: `{"image_id":"partial"}`}, wantKind: apierror.IsStatus},
		{name: "result false", reply: reply{body: `{"result":false,"image_id":"img-1"}`}, wantKind: apierror.IsApplication},
		{name: "missing image id", reply: reply{body: `{"result":true}`}, wantKind: apierror.IsApplication},
		{name: "empty image id", reply: reply{body: `{"image_id":""}`}, wantKind: apierror.IsApplication},
		{name: "transport", reply: reply{err: errors.New("dial tcp: refused")}, wantKind: apierror.IsTransport},
		{name: "invalid json", reply: reply{body: `<html>`}, wantKind: apierror.IsApplication},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &recordingClient{replies: map[string]reply{UploadImageURL: tc.reply}}
			c := newTestClient(t, mock)

			res, err := c.UploadImage(context.Background(), imagefile.FromBytes([]byte("jpeg")))
			if err == nil {
				t.Fatal("expected error")
			}
			if res != nil {
				t.Fatalf("expected no partial result, got %#v", res)
			}
			var uerr *apierror.UploadError
			if !errors.As(err, &uerr) {
				t.Fatalf("expected UploadError, got %T: %v", err, err)
			}
			if !tc.wantKind(err) {
				t.Fatalf("unexpected error kind: %v", err)
			}
		})
	}
}

func TestSearchImageEmptyCandidatesSkipsProductLookup(t *testing.T) {
	for _, body := range []string{`[]`, `{"ids":["a"]}`, `null`} {
		mock := &recordingClient{replies: map[string]reply{
			SimilarImageURL: {body: body},
			GetProductsURL:  {body: `{"result":true,"products":[{"id":"p1"}]}`},
		}}
		c := newTestClient(t, mock)

		res, err := c.SearchImage(context.Background(), SearchParams{ImageID: "abc"})
		if err != nil {
			t.Fatalf("SearchImage(%s): %v", body, err)
		}
		if !res.Result || res.Products == nil || len(res.Products) != 0 {
			t.Fatalf("expected {result:true, products:[]}, got %#v", res)
		}
		if n := mock.calls(GetProductsURL); n != 0 {
			t.Fatalf("product lookup called %d times for %s", n, body)
		}
	}
}

func TestSearchImageStageOneBody(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{SimilarImageURL: {body: `[]`}}}
	c := newTestClient(t, mock)

	_, err := c.SearchImage(context.Background(), SearchParams{ImageID: "abc", XYWH: &Box{1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("SearchImage: %v", err)
	}

	got := wireJSON(t, mock.requests[0].JSON)
	want := map[string]any{
		"image_id":       "abc",
		"xywh":           []any{1.0, 2.0, 3.0, 4.0},
		"is_orientation": false,
		"shop":           "shop-1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("similarity body = %#v, want %#v", got, want)
	}
}

func TestSearchImageOmitsAbsentCrop(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{SimilarImageURL: {body: `[]`}}}
	c := newTestClient(t, mock)

	if _, err := c.SearchImage(context.Background(), SearchParams{ImageID: "abc"}); err != nil {
		t.Fatalf("SearchImage: %v", err)
	}
	if _, ok := wireJSON(t, mock.requests[0].JSON)["xywh"]; ok {
		t.Fatal("xywh must be omitted when not provided")
	}
}

func TestSearchImageProductLookup(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		SimilarImageURL: {body: `["gid://1", 2]`},
		GetProductsURL: {body: `{"result":true,"products":[{"id":"p1","title":"Shoe","images":[null,{"url":"https://cdn/x.jpg"}],
			"variants":{"nodes":[{"id":"v1","availableForSale":true,"price":{"amount":"10.00","currencyCode":"USD"},"compareAtPrice":null,"selectedOptions":[{"name":"Size","value":"M"}]}]},
			"metafields":[null]}]}`},
	}}
	c := newTestClient(t, mock)

	res, err := c.SearchImage(context.Background(), SearchParams{
		ImageID:    "abc",
		Metafields: []MetafieldKey{{Namespace: "custom", Key: "brand"}},
		Country:    ptr.String("TW"),
	})
	if err != nil {
		t.Fatalf("SearchImage: %v", err)
	}
	if len(res.Products) != 1 || res.Products[0].Title != "Shoe" {
		t.Fatalf("unexpected products %#v", res.Products)
	}
	p := res.Products[0]
	if p.Images[0] != nil || p.Images[1].URL != "https://cdn/x.jpg" {
		t.Fatalf("images not mirrored: %#v", p.Images)
	}
	if p.Variants.Nodes[0].CompareAtPrice != nil || p.Variants.Nodes[0].Price.Amount != "10.00" {
		t.Fatalf("variant not mirrored: %#v", p.Variants.Nodes[0])
	}

	body := wireJSON(t, mock.requests[1].JSON)
	if body["shop"] != "demo.myshopify.com" {
		t.Fatalf("shop = %v", body["shop"])
	}
	if !reflect.DeepEqual(body["ids"], []any{"gid://1", 2.0}) {
		t.Fatalf("ids = %#v", body["ids"])
	}
	if body["country"] != "TW" {
		t.Fatalf("country = %v", body["country"])
	}
	if _, ok := body["lang"]; ok {
		t.Fatal("lang must be omitted when not provided")
	}
	if !reflect.DeepEqual(body["metafields"], []any{map[string]any{"namespace": "custom", "key": "brand"}}) {
		t.Fatalf("metafields = %#v", body["metafields"])
	}
}

func TestSearchImageStatusErrors(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		SimilarImageURL: {status: http.StatusBadRequest, body: `{"error":{"message":"image expired"}}`},
	}}
	c := newTestClient(t, mock)

	_, err := c.SearchImage(context.Background(), SearchParams{ImageID: "abc"})
	var serr *apierror.SearchError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SearchError, got %v", err)
	}
	var status *apierror.StatusError
	if !errors.As(err, &status) || status.Message != "image expired" || status.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected server message, got %#v", status)
	}

	mock = &recordingClient{replies: map[string]reply{
		SimilarImageURL: {body: `["1"]`},
		GetProductsURL:  {status: http.StatusBadGateway, body: `oops`},
	}}
	c = newTestClient(t, mock)
	_, err = c.SearchImage(context.Background(), SearchParams{ImageID: "abc"})
	if !errors.As(err, &status) || status.Message != "Get products failed" {
		t.Fatalf("expected fallback message, got %v", err)
	}
}

func TestSimilarProductsQueryOmitsAbsentParams(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		SimilarProductsURL: {body: `{"result":true,"products":[]}`},
	}}
	c := newTestClient(t, mock)

	if _, err := c.SimilarProducts(context.Background(), SimilarProductParams{ProductID: "p-9"}); err != nil {
		t.Fatalf("SimilarProducts: %v", err)
	}
	q := mock.requests[0].Query
	if q.Get("shop") != "demo.myshopify.com" || q.Get("shop_id") != "shop-1" || q.Get("product_id") != "p-9" {
		t.Fatalf("unexpected required params %v", q)
	}
	for _, key := range []string{"image_url", "country", "lang", "metafields"} {
		if _, ok := q[key]; ok {
			t.Fatalf("%s must be omitted, got %v", key, q)
		}
	}
	if mock.requests[0].Method != http.MethodGet {
		t.Fatalf("method = %s", mock.requests[0].Method)
	}
}

func TestSimilarProductsQueryIncludesProvidedParams(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		SimilarProductsURL: {body: `{"result":true,"products":[]}`},
	}}
	c := newTestClient(t, mock)

	_, err := c.SimilarProducts(context.Background(), SimilarProductParams{
		ProductID:  "p-9",
		ImageURL:   ptr.String("https://cdn.example.com/a b.jpg"),
		Country:    ptr.String("TW"),
		Lang:       ptr.String("zh-TW"),
		Metafields: []MetafieldKey{{Namespace: "custom", Key: "brand"}},
	})
	if err != nil {
		t.Fatalf("SimilarProducts: %v", err)
	}
	q := mock.requests[0].Query
	if q.Get("image_url") != "https://cdn.example.com/a b.jpg" {
		t.Fatalf("image_url = %q", q.Get("image_url"))
	}
	if q.Get("country") != "TW" || q.Get("lang") != "zh-TW" {
		t.Fatalf("locale params = %v", q)
	}
	if q.Get("metafields") != `[{"namespace":"custom","key":"brand"}]` {
		t.Fatalf("metafields = %q", q.Get("metafields"))
	}
}

func TestSimilarProductsMetafieldsKeepMarkupCharacters(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		SimilarProductsURL: {body: `{"result":true,"products":[]}`},
	}}
	c := newTestClient(t, mock)

	_, err := c.SimilarProducts(context.Background(), SimilarProductParams{
		ProductID:  "p",
		Metafields: []MetafieldKey{{Namespace: "a&b", Key: "a<b>"}},
	})
	if err != nil {
		t.Fatalf("SimilarProducts: %v", err)
	}
	if got := mock.requests[0].Query.Get("metafields"); got != `[{"namespace":"a&b","key":"a<b>"}]` {
		t.Fatalf("metafields = %q", got)
	}
}

func TestSimilarProductsEmptyMetafieldsStillSent(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		SimilarProductsURL: {body: `{"result":true,"products":[]}`},
	}}
	c := newTestClient(t, mock)

	if _, err := c.SimilarProducts(context.Background(), SimilarProductParams{ProductID: "p", Metafields: []MetafieldKey{}}); err != nil {
		t.Fatalf("SimilarProducts: %v", err)
	}
	if got := mock.requests[0].Query.Get("metafields"); got != "[]" {
		t.Fatalf("metafields = %q", got)
	}
}

func TestSimilarProductsDoesNotCheckStatus(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		SimilarProductsURL: {status: http.StatusInternalServerError, body: `{"result":false,"products":[]}`},
	}}
	c := newTestClient(t, mock)

	res, err := c.SimilarProducts(context.Background(), SimilarProductParams{ProductID: "p"})
	if err != nil {
		t.Fatalf("non-2xx must be returned as a body, got %v", err)
	}
	if res.Result {
		t.Fatalf("expected body verbatim, got %#v", res)
	}
}

func TestSimilarProductsTransportError(t *testing.T) {
	mock := &recordingClient{replies: map[string]reply{
		SimilarProductsURL: {err: errors.New("timeout")},
	}}
	c := newTestClient(t, mock)

	if _, err := c.SimilarProducts(context.Background(), SimilarProductParams{ProductID: "p"}); !apierror.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
