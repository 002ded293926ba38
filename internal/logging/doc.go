// Package logging provides structured logging for the linkup daemon.
//
// It wraps a process-wide zap logger with convenience functions for the
// logging patterns used throughout the daemon: plain leveled messages
// plus domain helpers for connectivity state transitions, radio events,
// and control API requests.
//
// Initialize the logger once at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// When no level is configured (neither argument nor LINKUP_LOG_LEVEL),
// logging is silent. All functions are safe for concurrent use.
package logging
