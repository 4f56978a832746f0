// Package orchestrator is the multi-agent session state machine.
//
// # State Shape
//
// A session is a list of Rounds — one per user query — plus the flattened
// conversation history exchanged with the engine. Each round holds a map of
// per-agent states moving through a small lifecycle:
//
//	thinking -> streaming -> done
//	          \-> error (from any non-terminal state)
//
// Session-wide status mirrors the round in flight:
//
//	idle -> orchestrating -> streaming -> finished
//	                       \-> error (round-level failure)
//
// # Transitions
//
// The reducer in reducer.go is the only writer of round state. Every handler
// is copy-on-write: it clones the snapshot shell, the touched round, and the
// touched agent, so previously returned snapshots stay valid forever and
// consumers can rely on pointer equality for change detection.
//
// When a round's last agent reaches a terminal status the session becomes
// finished and the round's answer is folded into history exactly once:
// the synthesizer's content when it completed, otherwise the content of the
// last agent to complete. Submit re-checks the fold so a follow-up query
// always carries complete context.
//
// # Generations
//
// Submitting while a round is in flight supersedes it. Every Apply carries
// the generation of the round its transport serves; a stale generation is
// dropped, which is what keeps late chunks and abandoned retries from
// mutating the new round.
//
// # Subscriptions
//
// The Machine publishes each accepted snapshot to channel subscribers (the
// same fan-out shape as a conversation broadcaster). Delivery is
// non-blocking; since snapshots are complete, a slow consumer that misses
// intermediate ones loses nothing but granularity.
package orchestrator
