// Package boardroom wires the client together.
//
// The Service owns one active conversation: it submits queries to the
// orchestration machine, drives whichever transport the config names, and
// saves the session whenever a round reaches a terminal status.
//
// # Transport modes
//
// In fetch mode each query gets its own request-scoped streaming transport
// carrying the full history; the previous round's transport is disconnected
// first, and its generation goes stale at submit, so late chunks are
// double-protected against touching the new round.
//
// In subscribe mode one persistent subscription outlives all rounds. Queries
// are posted as plain requests and answers arrive on the subscription;
// stream chunks pass through the multiplexer so at most MaxConcurrent agents
// render at once, with overflow agents queued FIFO and their content
// buffered until admission.
//
// # Persistence
//
// A background watcher subscribes to machine snapshots and saves the session
// on every transition into finished or error. The session title is the first
// query, truncated.
package boardroom
