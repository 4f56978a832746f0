// Package mux bounds how many agent streams accumulate at once.
//
// The engine interleaves chunks for several agents on one wire. The
// multiplexer turns that flat sequence into per-agent cumulative buffers and
// acts as a backpressure device: at most MaxConcurrent agents are "active"
// (notifying their consumer), and agents beyond the cap wait in a FIFO queue
// for a slot freed by Complete.
//
// Consumers receive the full current text on every notification rather than
// a diff, so a notification can always be applied idempotently regardless of
// what was seen before — including the catch-up flush a queued agent emits
// when it is finally admitted.
//
// Only the persistent-subscription integration path uses this package; the
// request-scoped path applies deltas directly to round state. Both produce
// identical observable content for the same event sequence.
package mux
