// Package observability provides logging and metrics support for the
// research registry service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithPersonContext(logger, personID)
//
// # Metrics
//
//	metrics := observability.NewMetrics("research_registry")
//	metrics.RecordImportCompleted("bibtex", imported, failed, skipped, time.Since(start))
//	metrics.RecordMerge(moved)
//
// # Standard Fields
//
//   - request_id: HTTP request identifier
//   - correlation_id: identifier carried into outbox events
//   - person_id, publication_id: registry identifiers
//   - format: bibliography format (bibtex, ris)
//   - platform: bibliometric platform (scopus, openalex)
//
// All components are safe for concurrent use from multiple goroutines.
package observability
