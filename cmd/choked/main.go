// Choked is a distributed rate limiter for API clients.
//
// It enforces dual token-bucket limits per logical key: a request-count
// bucket and a call-cost bucket, backed by shared state in Redis, SQLite,
// a hosted bucket service, or process memory.
//
// Usage:
//
//	# Validate a configuration file
//	choked validate --config choked.yaml
//
//	# Check whether a call would be admitted right now
//	choked check --key chat --cost 1200
//
//	# List the configured keys and their limits
//	choked keys
//
//	# Show version information
//	choked version
package main

func main() {
	Execute()
}
