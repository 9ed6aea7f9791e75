// Package logger provides structured logging for metalgate.
//
// It wraps log/slog with:
//
//   - JSON (server) and text (CLI) output
//   - a process-wide level that can be changed at runtime
//   - masking of session tokens (mgt_) and API keys (mgk_), and full
//     redaction of attributes whose names look like credentials
//   - context propagation of the logger and request ID
package logger
