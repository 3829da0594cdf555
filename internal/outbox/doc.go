// Package outbox implements the transactional outbox of the research registry.
//
// # Overview
//
// Services append domain events to the outbox_events table on the same
// transaction that changes the data, so an event exists if and only if its
// change committed. A Relay then claims pending rows, publishes them to Kafka
// and stamps them as published.
//
// # Components
//
//   - Emitter: builds events enriched with service and request context
//   - PgStore: inserts, claims and marks outbox rows
//   - Relay: the polling loop moving events to a Publisher
//   - KafkaPublisher: a Publisher backed by a kafka-go Writer
//
// # Event Types
//
//   - person.merged: duplicate persons were merged into one
//   - person.removed: a person was deleted and co-author ranks renumbered
//   - publications.imported: a bibliography import finished
//   - publication.transformed: a publication changed type
//
// # Usage
//
//	event, err := emitter.PersonMerged(ctx, domain.PersonMergedPayload{...})
//	if err != nil {
//	    return err
//	}
//	return outbox.NewPgStore(tx).Insert(ctx, event)
package outbox
