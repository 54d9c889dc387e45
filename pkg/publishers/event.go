package publishers

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the CLI.
const (
	EventImageUploaded = "image.uploaded"
	EventImageDeleted  = "image.deleted"
)

// Event represents the payload published downstream.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ImageID    string         `json:"image_id"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent constructs an Event with a fresh id.
func NewEvent(typ, imageID, source string, metadata map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ImageID:    imageID,
		Source:     source,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}
}

// attributes are attached to queue and topic messages.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"event_type": e.Type,
		"image_id":   e.ImageID,
	}
}
