package outbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
)

// EmitterConfig configures the Emitter with service context.
type EmitterConfig struct {
	// ServiceName identifies the source service in event metadata.
	ServiceName string
}

// EmitParams contains the parameters for emitting an event.
type EmitParams struct {
	// AggregateID identifies the entity the event is about.
	AggregateID string
	// AggregateType is one of the domain.Aggregate* constants.
	AggregateType string
	// EventType is one of the domain.EventType* constants.
	EventType string
	// Payload is the event payload that will be JSON-serialized.
	Payload interface{}
	// CorrelationID for request tracing (optional).
	CorrelationID string
	// RequestID of the API call that caused the event (optional).
	RequestID string
}

// Emitter creates outbox events enriched with service context.
type Emitter struct {
	config EmitterConfig
}

// NewEmitter creates a new Emitter with the given service configuration.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.ServiceName == "" {
		config.ServiceName = "research-registry-service"
	}
	return &Emitter{config: config}
}

// Emit builds an event ready to be inserted into the outbox table.
func (e *Emitter) Emit(params EmitParams) (*domain.OutboxEvent, error) {
	if params.AggregateID == "" {
		return nil, fmt.Errorf("aggregate_id is required")
	}
	if params.AggregateType == "" {
		return nil, fmt.Errorf("aggregate_type is required")
	}
	if params.EventType == "" {
		return nil, fmt.Errorf("event_type is required")
	}

	event, err := domain.NewOutboxEvent(params.EventType, params.AggregateID, params.AggregateType, params.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	metadata := map[string]interface{}{"source": e.config.ServiceName}
	if params.CorrelationID != "" {
		metadata["correlation_id"] = params.CorrelationID
	}
	if params.RequestID != "" {
		metadata["request_id"] = params.RequestID
	}
	return event.WithMetadata(metadata), nil
}

// EmitFromContext is Emit with the request and correlation ids taken from ctx.
func (e *Emitter) EmitFromContext(ctx context.Context, params EmitParams) (*domain.OutboxEvent, error) {
	if params.RequestID == "" {
		params.RequestID = observability.RequestIDFromContext(ctx)
	}
	if params.CorrelationID == "" {
		params.CorrelationID = observability.CorrelationIDFromContext(ctx)
	}
	return e.Emit(params)
}

// PersonMerged builds a person.merged event keyed on the surviving person.
func (e *Emitter) PersonMerged(ctx context.Context, payload domain.PersonMergedPayload) (*domain.OutboxEvent, error) {
	return e.EmitFromContext(ctx, EmitParams{
		AggregateID:   strconv.FormatInt(payload.TargetID, 10),
		AggregateType: domain.AggregatePerson,
		EventType:     domain.EventTypePersonMerged,
		Payload:       payload,
	})
}

// PersonRemoved builds a person.removed event.
func (e *Emitter) PersonRemoved(ctx context.Context, payload domain.PersonRemovedPayload) (*domain.OutboxEvent, error) {
	return e.EmitFromContext(ctx, EmitParams{
		AggregateID:   strconv.FormatInt(payload.PersonID, 10),
		AggregateType: domain.AggregatePerson,
		EventType:     domain.EventTypePersonRemoved,
		Payload:       payload,
	})
}

// PublicationsImported builds a publications.imported event for one import run.
func (e *Emitter) PublicationsImported(ctx context.Context, importID string, payload domain.PublicationsImportedPayload) (*domain.OutboxEvent, error) {
	return e.EmitFromContext(ctx, EmitParams{
		AggregateID:   importID,
		AggregateType: domain.AggregateImport,
		EventType:     domain.EventTypePublicationsImported,
		Payload:       payload,
	})
}

// PublicationTransformed builds a publication.transformed event.
func (e *Emitter) PublicationTransformed(ctx context.Context, payload domain.PublicationTransformedPayload) (*domain.OutboxEvent, error) {
	return e.EmitFromContext(ctx, EmitParams{
		AggregateID:   strconv.FormatInt(payload.PublicationID, 10),
		AggregateType: domain.AggregatePublication,
		EventType:     domain.EventTypePublicationTransformed,
		Payload:       payload,
	})
}
