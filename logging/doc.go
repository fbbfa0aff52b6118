// Package logging provides a minimal logging interface and adapters for the
// book trader.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that negotiations, the dispatcher and the settlement client use
// for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - TraderLogger with agent/conversation context and protocol helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	trader, err := booktrader.New(endpoint, network, authority, func(o *booktrader.Options) {
//	    o.Logger = logger
//	})
package logging
