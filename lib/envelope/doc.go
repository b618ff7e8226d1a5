// Package envelope implements the two-level wire object every message
// travels in: an inner JSON record (version, source, destination, user,
// timestamp, optional topic, payload) wrapped in an outer {message,
// signature} pair. The payload is codec-encoded into the inner JSON, the
// inner JSON is encoded into the outer JSON, and the outer JSON is
// encoded once more before it reaches a queue, keeping every layer
// binary-transparent against a line-delimited store.
//
// The detached signature covers the encoded inner message exactly as it
// is stored in the outer object. Validation re-verifies that stored
// token; it never re-encodes the reparsed inner record, since marshaling
// is free to reorder fields.
package envelope
