// Package observability provides logging and metrics support for the
// record cleaner service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for canonicalization, references and duplicate detection
//   - Context helpers for propagating request and run IDs
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger = observability.WithRunContext(logger, runID, "people.csv")
//	logger.Info().Int("rows", n).Msg("table pass started")
//
// # Metrics
//
// Initialize metrics once per process:
//
//	metrics := observability.NewMetrics("record_cleaner")
//	metrics.RecordCanonicalization("country", "fuzzy")
//
// A nil *Metrics is valid and records nothing.
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - run_id: table pass identifier
//   - component: emitting package
//   - column: table column being processed
//   - field_type: canonicalization policy (name, city, country, email, generic)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
