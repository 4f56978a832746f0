// ABOUTME: Pure transition functions applying wire events to session state.
// ABOUTME: Copy-on-write: every handler returns a new snapshot, never mutating.

package orchestrator

import (
	"time"

	"github.com/sruim/boardroom-client/internal/event"
)

// apply dispatches one event to its handler and returns the resulting state.
// The input state is never mutated; handlers that decide an event is a no-op
// return the input unchanged, which callers use to skip notification.
func apply(s *State, ev *event.Event) *State {
	switch ev.Kind {
	case event.KindMeta:
		return applyMeta(s, ev)
	case event.KindStream:
		return applyStream(s, ev)
	case event.KindStreamEnd:
		return applyStreamEnd(s, ev)
	case event.KindError:
		return applyError(s, ev)
	default:
		return s
	}
}

// applyMeta populates the current round's agent map from selected_agents and
// moves the session from orchestrating to streaming.
func applyMeta(s *State, ev *event.Event) *State {
	if s.Status == StatusError {
		return s
	}
	round := s.CurrentRound()
	if round == nil {
		return s
	}

	now := time.Now()
	next := s.clone()
	updated := round.clone()
	updated.Agents = make(map[string]*AgentState, len(ev.SelectedAgents))
	for _, role := range ev.SelectedAgents {
		id := string(role)
		updated.Agents[id] = &AgentState{
			ID:        id,
			Role:      role,
			Status:    AgentThinking,
			CreatedAt: now,
		}
	}
	next.replaceRound(updated)
	next.Status = StatusStreaming
	return next
}

// applyStream appends a delta to the named agent. An agent missing from the
// current round's map is ignored, not an error; so is a chunk arriving after
// the agent reached a terminal status.
func applyStream(s *State, ev *event.Event) *State {
	if s.Status == StatusError {
		return s
	}
	round := s.CurrentRound()
	if round == nil {
		return s
	}
	agent, ok := round.Agents[string(ev.Agent)]
	if !ok || agent.Status.Terminal() {
		return s
	}

	next := s.clone()
	updated := round.clone()
	a := agent.clone()
	a.Status = AgentStreaming
	a.Content += ev.Delta
	updated.Agents[a.ID] = a
	next.replaceRound(updated)
	return next
}

// applyStreamEnd marks the agent done and, when it was the round's last
// non-terminal agent, finishes the round and folds its answer into history.
func applyStreamEnd(s *State, ev *event.Event) *State {
	if s.Status == StatusError {
		return s
	}
	round := s.CurrentRound()
	if round == nil {
		return s
	}
	agent, ok := round.Agents[string(ev.Agent)]
	if !ok || agent.Status.Terminal() {
		return s
	}

	next := s.clone()
	updated := round.clone()
	a := agent.clone()
	a.Status = AgentDone
	updated.Agents[a.ID] = a
	updated.CompletionOrder = append(updated.CompletionOrder, a.ID)
	next.replaceRound(updated)
	return finishIfTerminal(next, updated)
}

// applyError handles both failure scopes: an event naming an agent fails only
// that agent, an event without one fails the whole session. Either way the
// content accumulated so far is preserved.
func applyError(s *State, ev *event.Event) *State {
	if s.Status == StatusError {
		return s
	}

	if ev.Agent == "" {
		next := s.clone()
		next.Status = StatusError
		next.Error = ev.Message
		return next
	}

	round := s.CurrentRound()
	if round == nil {
		return s
	}
	agent, ok := round.Agents[string(ev.Agent)]
	if !ok || agent.Status.Terminal() {
		return s
	}

	next := s.clone()
	updated := round.clone()
	a := agent.clone()
	a.Status = AgentError
	a.Error = ev.Message
	updated.Agents[a.ID] = a
	next.replaceRound(updated)
	return finishIfTerminal(next, updated)
}

// setContent replaces the agent's cumulative content outright. This is the
// multiplexer integration path: the mux hands over full buffered text per
// notification, which must observably match the delta-append path.
func setContent(s *State, agentID, content string) *State {
	if s.Status == StatusError {
		return s
	}
	round := s.CurrentRound()
	if round == nil {
		return s
	}
	agent, ok := round.Agents[agentID]
	if !ok || agent.Status.Terminal() {
		return s
	}

	next := s.clone()
	updated := round.clone()
	a := agent.clone()
	a.Status = AgentStreaming
	a.Content = content
	updated.Agents[a.ID] = a
	next.replaceRound(updated)
	return next
}

// finishIfTerminal flips the session to finished once every agent in the
// round is terminal, folding the round's final answer exactly once.
func finishIfTerminal(s *State, round *Round) *State {
	if !round.Terminal() {
		return s
	}
	s.Status = StatusFinished
	return foldRound(s, round)
}

// foldRound appends the round's final content to history as the assistant
// turn. Guarded by HistoryFolded so repeat calls cannot duplicate the entry;
// a round where no agent completed folds to nothing but is still marked, so
// the check never re-fires.
func foldRound(s *State, round *Round) *State {
	if round.HistoryFolded {
		return s
	}
	folded := round.clone()
	folded.HistoryFolded = true
	s.replaceRound(folded)

	if content, ok := folded.FinalContent(); ok {
		s.History = append(s.History, HistoryMessage{
			Role:    HistoryRoleAssistant,
			Content: content,
		})
	}
	return s
}
