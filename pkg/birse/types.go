package birse

import (
	"bytes"
	"encoding/json"
)

// SearchOptions narrows a search. Nil fields are not sent.
type SearchOptions struct {
	MaxResults *int
	// MinScore is a similarity threshold between 0 and 1.
	MinScore *float64
	// Metadata filters results; it is sent only when non-empty.
	Metadata map[string]any
}

// SearchResult is a single match.
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
	ImageURL string         `json:"imageUrl,omitempty"`
}

// SearchResponse is the body returned by both search endpoints.
type SearchResponse struct {
	Success        bool           `json:"success"`
	Results        []SearchResult `json:"results"`
	TotalCount     *int           `json:"totalCount,omitempty"`
	ProcessingTime *float64       `json:"processingTime,omitempty"`
}

// UploadResponse is the body returned by the upload endpoint. Fields holds
// the whole decoded body.
type UploadResponse struct {
	Success *bool          `json:"success,omitempty"`
	ID      string         `json:"id"`
	Fields  map[string]any `json:"-"`
}

// DeleteResponse is the body returned by the delete endpoint.
type DeleteResponse struct {
	Success *bool          `json:"success,omitempty"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"-"`
}

// StatusResponse is the body returned by the status endpoint.
type StatusResponse struct {
	Status  string         `json:"status,omitempty"`
	Version string         `json:"version,omitempty"`
	Fields  map[string]any `json:"-"`
}

// decodeWithFields decodes body into dst and into fields. An empty body
// (e.g. 204 No Content) leaves both untouched.
func decodeWithFields(body []byte, dst any, fields *map[string]any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return err
	}
	return json.Unmarshal(body, fields)
}
