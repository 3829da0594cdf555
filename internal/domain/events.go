package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for outbox events.
const (
	EventTypePersonMerged           = "person.merged"
	EventTypePersonRemoved          = "person.removed"
	EventTypePublicationsImported   = "publications.imported"
	EventTypePublicationTransformed = "publication.transformed"
)

// Aggregate type constants for outbox events.
const (
	AggregatePerson      = "person"
	AggregatePublication = "publication"
	AggregateImport      = "import"
)

// OutboxEvent represents an event to be published via the outbox pattern.
type OutboxEvent struct {
	EventID       string
	EventVersion  int
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       []byte
	Metadata      map[string]interface{}
	CreatedAt     time.Time
}

// NewOutboxEvent creates a new outbox event with the given parameters.
// The payload is JSON-serialized automatically.
func NewOutboxEvent(eventType, aggregateID, aggregateType string, payload interface{}) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		EventID:       uuid.New().String(),
		EventVersion:  1,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now(),
	}, nil
}

// WithMetadata sets the metadata on the event.
func (e *OutboxEvent) WithMetadata(metadata map[string]interface{}) *OutboxEvent {
	e.Metadata = metadata
	return e
}

// PersonMergedPayload is the payload for person.merged events.
type PersonMergedPayload struct {
	TargetID  int64          `json:"target_id"`
	SourceIDs []int64        `json:"source_ids"`
	Moved     map[string]int `json:"moved"`
}

// PersonRemovedPayload is the payload for person.removed events.
type PersonRemovedPayload struct {
	PersonID               int64   `json:"person_id"`
	RenumberedPublications []int64 `json:"renumbered_publications"`
}

// PublicationsImportedPayload is the payload for publications.imported events.
type PublicationsImportedPayload struct {
	Format         string  `json:"format"`
	PublicationIDs []int64 `json:"publication_ids"`
	Failed         int     `json:"failed"`
}

// PublicationTransformedPayload is the payload for publication.transformed events.
type PublicationTransformedPayload struct {
	PublicationID int64           `json:"publication_id"`
	From          PublicationType `json:"from"`
	To            PublicationType `json:"to"`
}
