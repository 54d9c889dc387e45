// Package apierror holds the error kinds returned by the SDK clients.
//
// Every failed call returns one of three kinds: TransportError when no HTTP
// response was received, StatusError when the server answered with a
// non-2xx status, and ApplicationError when the body itself signals failure,
// omits a required field or cannot be decoded. Upload and search calls wrap
// the kind in UploadError or SearchError; errors.As reaches both layers.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxSnippetBytes = 512

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

// Unwrap returns the underlying network or timeout error.
func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Op         string
	StatusCode int
	// Message is the server supplied message when one could be extracted.
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = Snippet(e.Body)
	}
	return fmt.Sprintf("%s: http status %d: %s", e.Op, e.StatusCode, msg)
}

// NewStatusError builds a StatusError keeping a copy of the response body.
func NewStatusError(op string, status int, body []byte) *StatusError {
	return &StatusError{
		Op:         op,
		StatusCode: status,
		Body:       append([]byte(nil), body...),
	}
}

// ApplicationError reports a 2xx response that still cannot be used.
type ApplicationError struct {
	Op      string
	Message string
	Err     error
}

func (e *ApplicationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the decode error, if any.
func (e *ApplicationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UploadError is returned by the UploadImage calls.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	if e == nil || e.Err == nil {
		return "upload failed"
	}
	return "upload failed: " + e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SearchError is returned by the search calls.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	if e == nil || e.Err == nil {
		return "search failed"
	}
	return "search failed: " + e.Err.Error()
}

func (e *SearchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransport reports whether err wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsStatus reports whether err wraps a StatusError.
func IsStatus(err error) bool {
	var target *StatusError
	return errors.As(err, &target)
}

// IsApplication reports whether err wraps an ApplicationError.
func IsApplication(err error) bool {
	var target *ApplicationError
	return errors.As(err, &target)
}

// ServerMessage extracts error.message from a JSON error body.
func ServerMessage(body []byte) string {
	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		return ""
	}
	return strings.TrimSpace(payload.Error.Message)
}

// Snippet returns a trimmed prefix of body suitable for error messages.
func Snippet(body []byte) string {
	if len(body) == 0 {
		return "<empty>"
	}
	if len(body) > maxSnippetBytes {
		cut := maxSnippetBytes
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		return strings.TrimSpace(string(body[:cut])) + "..."
	}
	return strings.TrimSpace(string(body))
}
