// Package monitoring carries diagnostic messages from the probe and Hough
// detectors.
//
// Stdout is the MCP transport, so these messages must never reach it. Logf
// goes through the standard log package, which cmd/pupil-mcp points at
// stderr, and cmd/pupil-mcp calls SetLogger(nil) unless
// PUPIL_MCP_LOG_LEVEL=debug so a normal session stays quiet.
package monitoring

import "log"

// Logf receives every detector diagnostic. Tests swap it with SetLogger to
// capture messages.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger routes detector diagnostics to f. A nil f discards them.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
