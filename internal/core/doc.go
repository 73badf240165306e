// Package core implements the streaming multipart upload pipeline.
//
// This package is the heart of the upload gateway, containing all domain
// logic independent of any transport layer. A [Session] consumes the parts
// produced by a mime/multipart.Reader (the decoder) and builds two outputs:
// a scalar field mapping and a file artifact mapping.
//
// # Architecture
//
// The pipeline is organized around several key concepts:
//
//   - Sink: destination for one file part's bytes, either an in-memory
//     buffer or a uniquely named temporary file. Sinks hash and count
//     incrementally as chunks arrive.
//   - Session: the per-request coordinator. It owns the aggregate byte
//     counter, the cleanup registry, and the flush barrier.
//   - Limits: per-file and aggregate size caps plus a file-count cap.
//     The aggregate cap is checked before every sink write, so a sink
//     never observes bytes beyond it.
//   - Idle guard: a per-part timer, rearmed on every chunk, that releases
//     a stalled part without disturbing its siblings.
//   - Flush barrier: temporary-file writes are asynchronous and can outlive
//     the part that issued them. The session only completes after every
//     outstanding write has settled.
//
// # Streaming Consumption
//
// The flow for one request:
//
//  1. The web layer fast-rejects oversized declared lengths, then calls
//     [Session.Consume] with the decoder.
//  2. Field parts are folded into the field mapping; repeated names become
//     ordered slices.
//  3. File parts stream chunk by chunk into a sink selected once per
//     session by [Options.UseTempFiles].
//  4. On decoder finish the session waits out the flush barrier, optionally
//     expands bracket-path keys, and returns the completed [Form].
//
// # Error Handling
//
// Failures are classified by sentinel errors (ErrDecoding, ErrFileSizeLimit,
// ErrTotalSizeLimit, ErrFileCountLimit, ErrFlush, ErrAborted) and mapped to
// user-facing messages with support codes via [MapError]:
//
//   - UP001-UP003: limit violations (file size, total size, file count)
//   - UP005-UP008: stream failures (decoding, flush, abort, timeout)
//
// Part-local failures stay local: an idle stall or a truncated file never
// fails the whole session. Session-fatal paths (decoder error, abort,
// aggregate limit) always run full cleanup before any further signaling.
package core
