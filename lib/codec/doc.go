// Package codec provides the binary-safe token encoding used everywhere a
// byte string crosses a JSON field or a queue item boundary: payloads,
// serialized inner messages, detached signatures, and whole envelopes.
package codec
