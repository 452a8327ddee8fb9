// Package telemetry groups the observability subpackages for choked.
//
// # Components
//
//   - logging: structured logging setup over log/slog
//
// Prometheus metrics for admission decisions live next to the code that
// records them, in pkg/limiter.
package telemetry
