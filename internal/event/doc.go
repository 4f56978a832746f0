// Package event defines the wire protocol between the boardroom engine and
// this client.
//
// # Event Types
//
// The engine emits four named events over SSE:
//
//	event: meta
//	data: {"selected_agents": ["critic", "historian"]}
//
//	event: stream
//	data: {"agent": "critic", "delta": "Hel"}
//
//	event: stream_end
//	data: {"agent": "critic"}
//
//	event: error
//	data: {"agent": "critic", "error": "rate_limited"}
//
// An error event without an agent field means the whole round failed.
//
// # Parsing Policy
//
// Parse validates payloads against a closed schema: the tag must be one of the
// four kinds, agent roles must belong to the fixed persona set, and required
// fields must be present. Any failure yields nil rather than an error — a
// single malformed event must never terminate a session, so callers simply
// skip nil results and keep reading the stream.
package event
