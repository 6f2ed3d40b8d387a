// Package server implements the MCP (Model Context Protocol) server for pupil
// detection tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the probe-based
// pupil locator through the MCP protocol, so MCP-compatible clients can
// detect, train and inspect the pupil detector on eye images.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load an eye image and get metadata and intensity statistics
//   - image_dimensions: Get width and height
//
// Detection:
//   - pupil_detect: Full coarse-to-fine detection (probe) or Hough circle voting
//   - pupil_locate: Coarse probe search only, optionally radius-restricted
//   - pupil_refine: Fine ellipse fit around a caller-supplied estimate
//   - pupil_score: Score one coarse hypothesis
//
// Training:
//   - pupil_train: Supervised or self-calibrating training rounds
//   - pupil_normalize: Rescale learned weights to a percentile
//
// Configuration and Persistence:
//   - pupil_configure: Change probe geometry, refinement or area of interest
//   - pupil_stats: Active settings and learned table state
//   - pupil_save / pupil_load: Persist learned tables
//
// Visualization:
//   - pupil_overlay: Draw the pupil outline (and optionally the area of
//     interest) on the image
//
// # Image Caching
//
// The server keeps decoded images and their grayscale frames in memory, keyed
// by path and blur sigma, for the lifetime of the process. Repeated detection
// and training on the same file reuse the cached frame.
//
// # Learned State
//
// One probe detector lives for the whole session. Training and normalization
// change it in place; pupil_configure with new geometry discards what was
// learned. When the configuration names a table file that exists, New loads
// it at startup.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	cfg, err := config.LoadConfig(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
