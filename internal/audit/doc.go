// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] — structured audit record with UUID, timestamp, type, user, IP, metadata.
//
// This package owns event buffering and sink delivery. It does not decide which
// events to emit; that responsibility belongs to the engine.
package audit
