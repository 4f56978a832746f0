// ABOUTME: The session state container: generation-keyed event application.
// ABOUTME: Publishes immutable snapshots to subscribers on every transition.

package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sruim/boardroom-client/internal/event"
)

// snapshotBufferSize is the channel buffer for each state subscriber.
const snapshotBufferSize = 64

// Machine owns the in-memory orchestration state. All mutation goes through
// its methods; every accepted transition swaps in a fresh immutable snapshot
// and publishes it to subscribers.
//
// Event application is keyed by a round generation: Submit bumps the
// generation, and Apply calls carrying a stale generation become no-ops, so a
// superseded round's late chunks or retries can never touch the new round.
type Machine struct {
	mu     sync.RWMutex
	state  *State
	gen    uint64
	logger *slog.Logger

	subMu sync.RWMutex
	subs  map[string]chan *State
}

// NewMachine creates an idle machine. Pass nil logger for the default.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		state:  newState(),
		logger: logger.With("component", "orchestrator"),
		subs:   make(map[string]chan *State),
	}
}

// Snapshot returns the current state. Snapshots are immutable; callers may
// hold them indefinitely.
func (m *Machine) Snapshot() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Generation returns the current round generation. Transports and timers are
// keyed to the generation current when their round started.
func (m *Machine) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// Submit opens a new round for the query: folds the previous round's answer
// into history if that has not happened yet, appends the user turn, and makes
// the new round current. Returns the round id and the new generation.
func (m *Machine) Submit(query string) (string, uint64) {
	m.mu.Lock()

	next := m.state.clone()

	// A round still unfolded contributes its answer first so the context
	// sent to the engine is complete. A session-level error leaves the round
	// non-terminal (agents stuck mid-flight), so the error status folds too,
	// carrying whatever the round managed to complete.
	if prev := next.CurrentRound(); prev != nil && (prev.Terminal() || next.Status == StatusError) {
		next = foldRound(next, prev)
	}

	round := &Round{
		ID:        uuid.New().String(),
		Query:     query,
		Agents:    make(map[string]*AgentState),
		CreatedAt: time.Now(),
	}
	next.Rounds = append(next.Rounds, round)
	next.CurrentRoundID = round.ID
	next.History = append(next.History, HistoryMessage{Role: HistoryRoleUser, Content: query})
	next.Status = StatusOrchestrating
	next.Error = ""

	m.gen++
	gen := m.gen
	m.state = next
	m.mu.Unlock()

	m.logger.Info("round started", "round_id", round.ID, "generation", gen)
	m.publish(next)
	return round.ID, gen
}

// Apply runs one event through the reducer. Events carrying a generation
// other than the current one are dropped: they belong to a superseded round.
func (m *Machine) Apply(gen uint64, ev *event.Event) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.logger.Debug("dropping stale event", "kind", ev.Kind, "generation", gen)
		return
	}
	next := apply(m.state, ev)
	changed := next != m.state
	m.state = next
	m.mu.Unlock()

	if changed {
		m.publish(next)
	}
}

// SetAgentContent replaces an agent's cumulative content. This is the
// multiplexer delivery path; it is observably equivalent to applying the
// deltas one by one.
func (m *Machine) SetAgentContent(gen uint64, agentID, content string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	next := setContent(m.state, agentID, content)
	changed := next != m.state
	m.state = next
	m.mu.Unlock()

	if changed {
		m.publish(next)
	}
}

// Fail routes a transport-level fatal failure through the same transition as
// a server-sent error event: there is no distinction between "the engine said
// error" and "we gave up retrying".
func (m *Machine) Fail(gen uint64, message string) {
	m.Apply(gen, &event.Event{Kind: event.KindError, Message: message})
}

// ToggleCard flips the collapse flag for one agent card. UI bookkeeping, but
// it lives here so it survives round transitions with the rest of the state.
func (m *Machine) ToggleCard(roundID, agentID string) {
	m.mu.Lock()
	next := m.state.clone()
	key := CardKey(roundID, agentID)
	next.CardCollapsed[key] = !next.CardCollapsed[key]
	m.state = next
	m.mu.Unlock()

	m.publish(next)
}

// Reset drops all rounds, history, and collapse flags, returning to idle.
// The generation bump orphans any in-flight round.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.gen++
	m.state = newState()
	next := m.state
	m.mu.Unlock()

	m.logger.Info("state reset")
	m.publish(next)
}

// Restore replaces the session wholesale from a persisted snapshot, landing
// in idle so a follow-up query continues the loaded conversation.
func (m *Machine) Restore(history []HistoryMessage, rounds []*Round) {
	m.mu.Lock()
	m.gen++
	next := newState()
	next.History = append(next.History, history...)
	next.Rounds = append(next.Rounds, rounds...)
	m.state = next
	m.mu.Unlock()

	m.logger.Info("state restored", "rounds", len(rounds), "history", len(history))
	m.publish(next)
}

// Subscribe registers for state snapshots. The returned channel receives
// every published snapshot; the subscription is cleaned up when ctx is
// cancelled. Slow subscribers miss snapshots rather than blocking delivery —
// each snapshot is complete, so the latest one is always sufficient.
func (m *Machine) Subscribe(ctx context.Context) (<-chan *State, string) {
	subID := uuid.New().String()
	ch := make(chan *State, snapshotBufferSize)

	m.subMu.Lock()
	m.subs[subID] = ch
	m.subMu.Unlock()

	go func() {
		<-ctx.Done()
		m.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Machine) Unsubscribe(subID string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	ch, ok := m.subs[subID]
	if !ok {
		return
	}
	delete(m.subs, subID)
	close(ch)
}

func (m *Machine) publish(s *State) {
	m.subMu.RLock()
	targets := make([]chan *State, 0, len(m.subs))
	for _, ch := range m.subs {
		targets = append(targets, ch)
	}
	m.subMu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- s:
		default:
			// Subscriber channel full — drop this snapshot for it.
		}
	}
}
