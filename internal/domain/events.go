package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCorrelationDiscovered  EventType = "correlation.discovered"
	EventCorrelationValidated   EventType = "correlation.validated"
	EventCorrelationInvalidated EventType = "correlation.invalidated"
	EventCorrelationDeleted     EventType = "correlation.deleted"
)

// Event is what the engine emits for the external logging/metrics
// collaborator. The engine never formats or ships logs from these itself.
type Event struct {
	Type            EventType       `json:"type"`
	CorrelationID   uuid.UUID       `json:"correlation_id"`
	SourceDatasetID uuid.UUID       `json:"source_dataset_id,omitempty"`
	TargetDatasetID uuid.UUID       `json:"target_dataset_id,omitempty"`
	CorrelationType CorrelationType `json:"correlation_type,omitempty"`
	ValidityScore   float64         `json:"validity_score,omitempty"`
	At              time.Time       `json:"at"`
}

// NewEvent stamps an emission time and copies the identifying fields of the
// correlation the event is about.
func NewEvent(t EventType, c *Correlation) Event {
	ev := Event{Type: t, At: time.Now().UTC()}
	if c != nil {
		ev.CorrelationID = c.ID
		ev.SourceDatasetID = c.SourceDatasetID
		ev.TargetDatasetID = c.TargetDatasetID
		ev.CorrelationType = c.Type
	}
	return ev
}
