// Package logging provides a simple leveled logging interface for peekraw.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//
// The log level is configured via the LOG_LEVEL (or DEBUG) environment
// variable and can be overridden with SetLevel. Output goes to stderr through
// zap; setting LOG_FILE adds a rotating file sink.
package logging
