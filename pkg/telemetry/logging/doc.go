// Package logging configures structured logging for choked.
//
// The package is a thin setup layer over Go's standard log/slog: it builds
// a handler from configuration (level, format, source annotation) and
// optionally installs it as the process default. The rest of the codebase
// logs through *slog.Logger directly, tagging loggers with a "component"
// attribute.
//
// # Usage
//
//	logger, err := logging.Setup(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    // ...
//	}
//	logger.Info("limits registered", "keys", 3)
package logging
