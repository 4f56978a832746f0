// Package transport moves engine events from the wire to the orchestrator.
//
// # Strategies
//
// Two interchangeable strategies implement the Transport interface, selected
// by configuration:
//
//   - Subscriber: a persistent SSE subscription (server push). Reconnects
//     with exponential backoff (1s doubling to a 30s cap, at most 10
//     consecutive attempts) and resumes from the last successfully processed
//     event id via the Last-Event-ID header. Any delivered event resets the
//     retry counter.
//
//   - Fetcher: a single POST carrying the full outgoing payload (query plus
//     conversation history) whose response body is decoded incrementally as
//     event:/data: frames. Two independent deadlines guard an attempt: the
//     metadata timeout (first parsed event within ~10s) and the stall timeout
//     (rearmed on every received chunk, ~30s). Transient failures, timeouts
//     included, are retried up to 3 times with 1s doubling backoff; a 4xx
//     response is fatal immediately.
//
// Both guarantee per-agent delivery in wire order. Cross-agent ordering is
// not guaranteed and consumers must not assume it.
//
// # Failure Surface
//
// Transient failures are invisible to consumers beyond OnConnectionChange.
// OnFatalError fires at most once — when the retry budget is exhausted or a
// non-retriable failure occurs — and the transport stops. A deliberate
// Disconnect aborts the in-flight request and all timers without firing
// either a retry or the fatal callback.
//
// The literal payload "data: [DONE]" is a sentinel stripped during frame
// assembly; it never reaches the codec.
package transport
