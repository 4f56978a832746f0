// ABOUTME: Pure read-side selectors over orchestration state snapshots.
// ABOUTME: Flattened agent lists, collapse lookups, and final-answer selection.

package orchestrator

import "github.com/sruim/boardroom-client/internal/event"

// RoundAgent pairs an agent with the round it belongs to, for flattened
// cross-round display.
type RoundAgent struct {
	RoundID string
	Agent   *AgentState
}

// AllAgents flattens every round's agents in round order, agents within a
// round in the fixed persona display order.
func AllAgents(s *State) []RoundAgent {
	var out []RoundAgent
	for _, round := range s.Rounds {
		for _, role := range event.Roles {
			if agent, ok := round.Agents[string(role)]; ok {
				out = append(out, RoundAgent{RoundID: round.ID, Agent: agent})
			}
		}
	}
	return out
}

// ActiveAgents lists the current round's agents that are still thinking or
// streaming.
func ActiveAgents(s *State) []*AgentState {
	round := s.CurrentRound()
	if round == nil {
		return nil
	}
	var out []*AgentState
	for _, role := range event.Roles {
		if agent, ok := round.Agents[string(role)]; ok && !agent.Status.Terminal() {
			out = append(out, agent)
		}
	}
	return out
}

// CardKey builds the collapse-map key for one agent card.
func CardKey(roundID, agentID string) string {
	return roundID + "-" + agentID
}

// IsCardCollapsed reports the collapse flag for one agent card.
func IsCardCollapsed(s *State, roundID, agentID string) bool {
	return s.CardCollapsed[CardKey(roundID, agentID)]
}

// SynthesizerContent returns the current round's synthesizer answer, if that
// agent completed successfully.
func SynthesizerContent(s *State) (string, bool) {
	round := s.CurrentRound()
	if round == nil {
		return "", false
	}
	synth, ok := round.Agents[string(event.RoleSynthesizer)]
	if !ok || synth.Status != AgentDone {
		return "", false
	}
	return synth.Content, true
}
