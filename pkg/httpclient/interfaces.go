package httpclient

import (
	"context"
	"io"
	"net/url"
)

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// FilePart is a file attached to a multipart request.
type FilePart struct {
	Param       string
	FileName    string
	ContentType string
	Reader      io.Reader
}

// Request describes one outbound call. At most one of JSON or (Form, Files)
// is used; a request carrying Files or Form is sent as multipart/form-data.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values
	JSON    any
	Form    map[string]string
	Files   []FilePart
}

// Multipart reports whether the request body is a multipart form.
func (r *Request) Multipart() bool {
	return r != nil && (len(r.Files) > 0 || len(r.Form) > 0)
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	Do(ctx context.Context, req *Request) (Response, error)
}

// IsSuccess reports whether status is in the 2xx range.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
