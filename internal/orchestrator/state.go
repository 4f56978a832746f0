// ABOUTME: Session state types for the boardroom orchestration machine.
// ABOUTME: Rounds, per-agent state, conversation history, and clone helpers.

package orchestrator

import (
	"time"

	"github.com/sruim/boardroom-client/internal/event"
)

// AgentStatus is the lifecycle position of one agent within a round.
type AgentStatus string

const (
	AgentThinking  AgentStatus = "thinking"  // named by meta, no content yet
	AgentStreaming AgentStatus = "streaming" // first delta received
	AgentDone      AgentStatus = "done"      // stream_end received
	AgentError     AgentStatus = "error"     // engine reported a failure
)

// Terminal reports whether the status admits no further transitions.
func (s AgentStatus) Terminal() bool {
	return s == AgentDone || s == AgentError
}

// AgentState is one agent's progress within a round. Content is append-only
// until the agent reaches a terminal status.
type AgentState struct {
	ID        string      `json:"id"`
	Role      event.Role  `json:"role"`
	Status    AgentStatus `json:"status"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Error     string      `json:"error,omitempty"`
}

func (a *AgentState) clone() *AgentState {
	c := *a
	return &c
}

// Round is one user query plus every agent response it produced. Rounds are
// append-only on the round list and never deleted except on a full reset.
type Round struct {
	ID        string                 `json:"id"`
	Query     string                 `json:"query"`
	Agents    map[string]*AgentState `json:"agents"`
	CreatedAt time.Time              `json:"created_at"`

	// CompletionOrder records agent ids in stream_end arrival order; it picks
	// the fallback answer when the round has no completed synthesizer.
	CompletionOrder []string `json:"completion_order,omitempty"`

	// HistoryFolded guards the once-per-round append of the round's final
	// content to the conversation history.
	HistoryFolded bool `json:"history_folded"`
}

func (r *Round) clone() *Round {
	c := *r
	c.Agents = make(map[string]*AgentState, len(r.Agents))
	for id, agent := range r.Agents {
		c.Agents[id] = agent
	}
	c.CompletionOrder = append([]string(nil), r.CompletionOrder...)
	return &c
}

// Terminal reports whether every agent in the round is done or errored.
// A round with no agents yet is not terminal.
func (r *Round) Terminal() bool {
	if len(r.Agents) == 0 {
		return false
	}
	for _, agent := range r.Agents {
		if !agent.Status.Terminal() {
			return false
		}
	}
	return true
}

// FinalContent picks the round's canonical answer: the synthesizer's content
// if it completed successfully, otherwise the content of the agent whose
// stream_end arrived last. The second return is false when no agent completed.
func (r *Round) FinalContent() (string, bool) {
	if synth, ok := r.Agents[string(event.RoleSynthesizer)]; ok && synth.Status == AgentDone {
		return synth.Content, true
	}
	if len(r.CompletionOrder) == 0 {
		return "", false
	}
	last := r.CompletionOrder[len(r.CompletionOrder)-1]
	agent, ok := r.Agents[last]
	if !ok {
		return "", false
	}
	return agent.Content, true
}

// History roles for the flattened, backend-facing conversation log.
const (
	HistoryRoleUser      = "user"
	HistoryRoleAssistant = "assistant"
)

// HistoryMessage is one turn of the flattened conversation log sent back to
// the engine on follow-up queries.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Status is the session-wide orchestration status.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusOrchestrating Status = "orchestrating" // query submitted, awaiting meta
	StatusStreaming     Status = "streaming"
	StatusFinished      Status = "finished"
	StatusError         Status = "error"
)

// State is one immutable snapshot of the whole session. Transitions produce a
// fresh State (copy-on-write down to the touched round and agent), so a
// snapshot handed to a consumer is never mutated underneath it.
type State struct {
	Status         Status           `json:"status"`
	Rounds         []*Round         `json:"rounds"`
	CurrentRoundID string           `json:"current_round_id,omitempty"`
	History        []HistoryMessage `json:"history"`
	CardCollapsed  map[string]bool  `json:"card_collapsed,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func newState() *State {
	return &State{
		Status:        StatusIdle,
		CardCollapsed: make(map[string]bool),
	}
}

// clone copies the snapshot shell: the round list, history list, and collapse
// map are fresh, while round pointers are shared until a transition clones the
// specific round it touches.
func (s *State) clone() *State {
	c := *s
	c.Rounds = append([]*Round(nil), s.Rounds...)
	c.History = append([]HistoryMessage(nil), s.History...)
	c.CardCollapsed = make(map[string]bool, len(s.CardCollapsed))
	for k, v := range s.CardCollapsed {
		c.CardCollapsed[k] = v
	}
	return &c
}

// CurrentRound returns the round named by CurrentRoundID, or nil.
func (s *State) CurrentRound() *Round {
	if s.CurrentRoundID == "" {
		return nil
	}
	for _, r := range s.Rounds {
		if r.ID == s.CurrentRoundID {
			return r
		}
	}
	return nil
}

// replaceRound swaps the round with the given id for the updated value. An id
// not in the list leaves the state untouched.
func (s *State) replaceRound(updated *Round) {
	for i, r := range s.Rounds {
		if r.ID == updated.ID {
			s.Rounds[i] = updated
			return
		}
	}
}
