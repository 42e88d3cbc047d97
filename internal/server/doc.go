// Package server implements the MCP (Model Context Protocol) server for
// non-destructive image editing.
//
// The server exposes one editing session backed by a history.Engine: an
// original image, an operation log and one materialized image per log
// prefix. Clients apply edits, step through the history and delete
// individual operations, and every view is recomputed from the original.
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
// Input:
//   - image_load: Load a file or base64 image as the new original
//   - image_capture_webcam: Load one camera frame as the new original
//
// Edits:
//   - image_apply_color: original, grayscale, hsv or binary (from the original)
//   - image_apply_geometric: rotate, flip, crop or resize (from the current view)
//
// History:
//   - history_undo, history_redo, history_jump: Move through the entries
//   - history_delete_operation: Remove one operation and replay the rest
//   - history_reset: Drop the session
//   - history_state: Operation log, entries and cursor
//
// Output and inspection:
//   - image_current, image_original: Base64 PNG renderings
//   - image_export: Write the current view to disk
//   - image_sample_color, image_dominant_colors: Pixel values
//   - image_ocr: Tesseract text extraction
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.WithConfig(cfg), server.WithLogger(logger))
//	defer srv.Close()
//	if err := srv.Run(); err != nil {
//	    logger.Fatal(err)
//	}
package server
