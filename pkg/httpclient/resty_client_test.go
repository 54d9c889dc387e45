package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestRestyClientDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
			t.Errorf("unexpected content type %q", got)
		}
		if got := r.Header.Get("X-Test"); got != "1" {
			t.Errorf("missing header, got %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["url"] != "https://example.com/a.jpg" {
			t.Errorf("unexpected body %#v", body)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewRestyClient(2 * time.Second)
	resp, err := client.Do(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"X-Test": "1"},
		JSON:    map[string]any{"url": "https://example.com/a.jpg"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode())
	}
	if string(resp.Body()) != `{"ok":true}` {
		t.Fatalf("body = %s", resp.Body())
	}
}

func TestRestyClientDoMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("shop"); got != "shop-1" {
			t.Errorf("shop = %q", got)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "jpegbytes" {
			t.Errorf("file content = %q", data)
		}
		if header.Filename != "image.jpg" {
			t.Errorf("filename = %q", header.Filename)
		}
		if got := header.Header.Get("Content-Type"); got != "image/jpeg" {
			t.Errorf("part content type = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewRestyClient(2 * time.Second)
	resp, err := client.Do(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Form:   map[string]string{"shop": "shop-1"},
		Files: []FilePart{{
			Param:       "image",
			FileName:    "image.jpg",
			ContentType: "image/jpeg",
			Reader:      strings.NewReader("jpegbytes"),
		}},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode())
	}
}

func TestRestyClientGetWithQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("product_id"); got != "p1" {
			t.Errorf("product_id = %q", got)
		}
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewRestyClient(0)
	resp, err := client.Do(context.Background(), &Request{
		URL:   srv.URL,
		Query: url.Values{"product_id": {"p1"}},
	})
	if err != nil {
		t.Fatalf("non-2xx must not be a transport error: %v", err)
	}
	if resp.StatusCode() != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode())
	}
}

func TestRestyClientTransportError(t *testing.T) {
	client := NewRestyClient(time.Second)
	if _, err := client.Get(context.Background(), "http://127.0.0.1:1", nil); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestIsSuccess(t *testing.T) {
	for status, want := range map[int]bool{199: false, 200: true, 204: true, 299: true, 300: false, 404: false} {
		if got := IsSuccess(status); got != want {
			t.Errorf("IsSuccess(%d) = %v", status, got)
		}
	}
}
