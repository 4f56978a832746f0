// ABOUTME: Tests for the orchestration machine and reducer transitions.
// ABOUTME: Covers the agent lifecycle, history folding, staleness, and copy-on-write.

package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sruim/boardroom-client/internal/event"
)

func metaEvent(roles ...event.Role) *event.Event {
	return &event.Event{Kind: event.KindMeta, SelectedAgents: roles}
}

func streamEvent(role event.Role, delta string) *event.Event {
	return &event.Event{Kind: event.KindStream, Agent: role, Delta: delta}
}

func streamEndEvent(role event.Role) *event.Event {
	return &event.Event{Kind: event.KindStreamEnd, Agent: role}
}

func errorEvent(role event.Role, msg string) *event.Event {
	return &event.Event{Kind: event.KindError, Agent: role, Message: msg}
}

func agent(t *testing.T, s *State, role event.Role) *AgentState {
	t.Helper()
	round := s.CurrentRound()
	require.NotNil(t, round)
	a, ok := round.Agents[string(role)]
	require.True(t, ok, "agent %s not in current round", role)
	return a
}

func TestMachine_SubmitOpensRound(t *testing.T) {
	m := NewMachine(nil)

	roundID, gen := m.Submit("Q1")
	s := m.Snapshot()

	assert.Equal(t, StatusOrchestrating, s.Status)
	assert.Equal(t, roundID, s.CurrentRoundID)
	assert.Equal(t, uint64(1), gen)
	require.Len(t, s.Rounds, 1)
	assert.Equal(t, "Q1", s.Rounds[0].Query)
	require.Len(t, s.History, 1)
	assert.Equal(t, HistoryMessage{Role: HistoryRoleUser, Content: "Q1"}, s.History[0])
}

func TestMachine_FullRoundLifecycle(t *testing.T) {
	// Scenario: two agents, one streams content, the other finishes empty.
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")

	m.Apply(gen, metaEvent(event.RoleCritic, event.RoleHistorian))
	s := m.Snapshot()
	assert.Equal(t, StatusStreaming, s.Status)
	assert.Equal(t, AgentThinking, agent(t, s, event.RoleCritic).Status)
	assert.Equal(t, AgentThinking, agent(t, s, event.RoleHistorian).Status)

	m.Apply(gen, streamEvent(event.RoleCritic, "Hel"))
	m.Apply(gen, streamEvent(event.RoleCritic, "lo"))
	s = m.Snapshot()
	critic := agent(t, s, event.RoleCritic)
	assert.Equal(t, "Hello", critic.Content)
	assert.Equal(t, AgentStreaming, critic.Status)

	m.Apply(gen, streamEndEvent(event.RoleCritic))
	s = m.Snapshot()
	assert.Equal(t, AgentDone, agent(t, s, event.RoleCritic).Status)
	assert.Equal(t, StatusStreaming, s.Status, "historian still pending")

	m.Apply(gen, streamEndEvent(event.RoleHistorian))
	s = m.Snapshot()
	assert.Equal(t, "", agent(t, s, event.RoleHistorian).Content)
	assert.Equal(t, StatusFinished, s.Status)
}

func TestMachine_AgentErrorDoesNotFailRound(t *testing.T) {
	// Scenario: critic is rate limited mid-round while historian streams on.
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic, event.RoleHistorian))
	m.Apply(gen, streamEvent(event.RoleCritic, "partial"))

	m.Apply(gen, errorEvent(event.RoleCritic, "rate_limited"))
	s := m.Snapshot()
	critic := agent(t, s, event.RoleCritic)
	assert.Equal(t, AgentError, critic.Status)
	assert.Equal(t, "rate_limited", critic.Error)
	assert.Equal(t, "partial", critic.Content, "accumulated content survives failure")
	assert.Equal(t, StatusStreaming, s.Status)

	m.Apply(gen, streamEvent(event.RoleHistorian, "ok"))
	m.Apply(gen, streamEndEvent(event.RoleHistorian))
	assert.Equal(t, StatusFinished, m.Snapshot().Status)
}

func TestMachine_RoundLevelErrorIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic))
	m.Apply(gen, streamEvent(event.RoleCritic, "some"))

	m.Apply(gen, &event.Event{Kind: event.KindError, Message: "engine exploded"})
	s := m.Snapshot()
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "engine exploded", s.Error)
	assert.Equal(t, "some", agent(t, s, event.RoleCritic).Content)

	// No further productive transitions for this round.
	m.Apply(gen, streamEvent(event.RoleCritic, "more"))
	m.Apply(gen, streamEndEvent(event.RoleCritic))
	s = m.Snapshot()
	assert.Equal(t, "some", agent(t, s, event.RoleCritic).Content)
	assert.Equal(t, StatusError, s.Status)
}

func TestMachine_UnknownAgentEventIsIgnored(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic))

	before := m.Snapshot()
	m.Apply(gen, streamEvent(event.RoleMediator, "stray"))
	assert.Same(t, before, m.Snapshot(), "no-op event publishes no new snapshot")
}

func TestMachine_StaleGenerationIsDropped(t *testing.T) {
	// Scenario: a new query supersedes a streaming round; the old round's
	// late chunks must not touch the new one.
	m := NewMachine(nil)
	_, gen1 := m.Submit("Q1")
	m.Apply(gen1, metaEvent(event.RoleCritic))
	m.Apply(gen1, streamEvent(event.RoleCritic, "old"))

	roundID2, gen2 := m.Submit("Q2")
	m.Apply(gen2, metaEvent(event.RoleCritic))

	m.Apply(gen1, streamEvent(event.RoleCritic, " round chunk"))
	s := m.Snapshot()
	assert.Equal(t, roundID2, s.CurrentRoundID)
	assert.Equal(t, "", agent(t, s, event.RoleCritic).Content)
}

func TestMachine_SynthesizerPreferredForHistory(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic, event.RoleSynthesizer))

	m.Apply(gen, streamEvent(event.RoleCritic, "critique"))
	m.Apply(gen, streamEndEvent(event.RoleCritic))
	m.Apply(gen, streamEvent(event.RoleSynthesizer, "the answer"))
	m.Apply(gen, streamEndEvent(event.RoleSynthesizer))

	s := m.Snapshot()
	require.Equal(t, StatusFinished, s.Status)
	require.Len(t, s.History, 2)
	assert.Equal(t, HistoryMessage{Role: HistoryRoleAssistant, Content: "the answer"}, s.History[1])
}

func TestMachine_FallbackToLastCompletedAgent(t *testing.T) {
	// No synthesizer in the round: the last stream_end arrival wins.
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic, event.RoleHistorian))

	m.Apply(gen, streamEvent(event.RoleHistorian, "context"))
	m.Apply(gen, streamEndEvent(event.RoleHistorian))
	m.Apply(gen, streamEvent(event.RoleCritic, "verdict"))
	m.Apply(gen, streamEndEvent(event.RoleCritic))

	s := m.Snapshot()
	require.Len(t, s.History, 2)
	assert.Equal(t, "verdict", s.History[1].Content)
}

func TestMachine_ErroredSynthesizerFallsBack(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic, event.RoleSynthesizer))

	m.Apply(gen, streamEvent(event.RoleCritic, "critique"))
	m.Apply(gen, streamEndEvent(event.RoleCritic))
	m.Apply(gen, errorEvent(event.RoleSynthesizer, "overloaded"))

	s := m.Snapshot()
	require.Equal(t, StatusFinished, s.Status)
	require.Len(t, s.History, 2)
	assert.Equal(t, "critique", s.History[1].Content)
}

func TestMachine_AllAgentsErroredFoldsNothing(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic))
	m.Apply(gen, errorEvent(event.RoleCritic, "boom"))

	s := m.Snapshot()
	assert.Equal(t, StatusFinished, s.Status)
	require.Len(t, s.History, 1, "no assistant entry when nothing completed")

	// A follow-up submit must not fold anything either.
	m.Submit("Q2")
	s = m.Snapshot()
	assert.Equal(t, HistoryRoleUser, s.History[1].Role)
}

func TestMachine_SubmitAfterSessionErrorFoldsCompletedWork(t *testing.T) {
	// Scenario: the critic finished before the engine died mid-round. Its
	// answer must still reach the history when the conversation continues,
	// even though the round never went all-terminal.
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic, event.RoleHistorian))
	m.Apply(gen, streamEvent(event.RoleCritic, "done work"))
	m.Apply(gen, streamEndEvent(event.RoleCritic))
	m.Apply(gen, &event.Event{Kind: event.KindError, Message: "engine exploded"})

	s := m.Snapshot()
	assert.Equal(t, StatusError, s.Status)
	assert.False(t, s.Rounds[0].HistoryFolded)
	require.Len(t, s.History, 1)

	m.Submit("Q2")
	s = m.Snapshot()
	assert.True(t, s.Rounds[0].HistoryFolded)
	require.Len(t, s.History, 3)
	assert.Equal(t, HistoryMessage{Role: HistoryRoleAssistant, Content: "done work"}, s.History[1])
	assert.Equal(t, "Q2", s.History[2].Content)
}

func TestMachine_FoldHappensExactlyOnce(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleSynthesizer))
	m.Apply(gen, streamEvent(event.RoleSynthesizer, "answer"))
	m.Apply(gen, streamEndEvent(event.RoleSynthesizer))

	require.Len(t, m.Snapshot().History, 2)

	// A duplicate stream_end must not re-fold.
	m.Apply(gen, streamEndEvent(event.RoleSynthesizer))
	require.Len(t, m.Snapshot().History, 2)

	// Neither may the next submit.
	m.Submit("Q2")
	s := m.Snapshot()
	require.Len(t, s.History, 3)
	assert.Equal(t, "Q2", s.History[2].Content)
}

func TestMachine_HistoryRoundTrip(t *testing.T) {
	// History folded from one round and restored into a fresh machine must
	// reconstruct the same conversation context.
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleSynthesizer))
	m.Apply(gen, streamEvent(event.RoleSynthesizer, "A1"))
	m.Apply(gen, streamEndEvent(event.RoleSynthesizer))

	first := m.Snapshot()

	restored := NewMachine(nil)
	restored.Restore(first.History, first.Rounds)
	s := restored.Snapshot()
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, first.History, s.History)

	restored.Submit("Q2")
	s = restored.Snapshot()
	require.Len(t, s.History, 3)
	assert.Equal(t, []HistoryMessage{
		{Role: HistoryRoleUser, Content: "Q1"},
		{Role: HistoryRoleAssistant, Content: "A1"},
		{Role: HistoryRoleUser, Content: "Q2"},
	}, s.History)
}

func TestMachine_CopyOnWriteSnapshots(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic))

	before := m.Snapshot()
	criticBefore := agent(t, before, event.RoleCritic)

	m.Apply(gen, streamEvent(event.RoleCritic, "mutating?"))

	// The old snapshot is unobservably mutated: same status, same content.
	assert.Equal(t, AgentThinking, criticBefore.Status)
	assert.Equal(t, "", criticBefore.Content)
	assert.NotSame(t, before, m.Snapshot())
	assert.Equal(t, StatusStreaming, before.Status)
}

func TestMachine_SetAgentContentMatchesDeltaPath(t *testing.T) {
	// The multiplexer path hands over cumulative text; the result must be
	// indistinguishable from applying the deltas.
	deltas := []string{"a", "b", "c"}

	viaDeltas := NewMachine(nil)
	_, gen1 := viaDeltas.Submit("Q")
	viaDeltas.Apply(gen1, metaEvent(event.RoleCritic))
	for _, d := range deltas {
		viaDeltas.Apply(gen1, streamEvent(event.RoleCritic, d))
	}

	viaMux := NewMachine(nil)
	_, gen2 := viaMux.Submit("Q")
	viaMux.Apply(gen2, metaEvent(event.RoleCritic))
	cumulative := ""
	for _, d := range deltas {
		cumulative += d
		viaMux.SetAgentContent(gen2, string(event.RoleCritic), cumulative)
	}

	a1 := agent(t, viaDeltas.Snapshot(), event.RoleCritic)
	a2 := agent(t, viaMux.Snapshot(), event.RoleCritic)
	assert.Equal(t, a1.Content, a2.Content)
	assert.Equal(t, a1.Status, a2.Status)
}

func TestMachine_FatalTransportFailureUsesErrorPath(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic))
	m.Apply(gen, streamEvent(event.RoleCritic, "kept"))

	m.Fail(gen, "retries exhausted: connection refused")

	s := m.Snapshot()
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "retries exhausted: connection refused", s.Error)
	assert.Equal(t, "kept", agent(t, s, event.RoleCritic).Content)
}

func TestMachine_ToggleCardSurvivesRounds(t *testing.T) {
	m := NewMachine(nil)
	round1, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic))
	m.Apply(gen, streamEndEvent(event.RoleCritic))

	m.ToggleCard(round1, string(event.RoleCritic))
	assert.True(t, IsCardCollapsed(m.Snapshot(), round1, string(event.RoleCritic)))

	m.Submit("Q2")
	assert.True(t, IsCardCollapsed(m.Snapshot(), round1, string(event.RoleCritic)),
		"collapse flags survive round transitions")

	m.ToggleCard(round1, string(event.RoleCritic))
	assert.False(t, IsCardCollapsed(m.Snapshot(), round1, string(event.RoleCritic)))
}

func TestMachine_SubscribersReceiveSnapshots(t *testing.T) {
	m := NewMachine(nil)
	ch, _ := m.Subscribe(context.Background())

	m.Submit("Q1")

	s := <-ch
	assert.Equal(t, StatusOrchestrating, s.Status)
}

func TestMachine_ResetOrphansInFlightRound(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic))

	m.Reset()
	s := m.Snapshot()
	assert.Equal(t, StatusIdle, s.Status)
	assert.Empty(t, s.Rounds)
	assert.Empty(t, s.History)

	m.Apply(gen, streamEvent(event.RoleCritic, "late"))
	assert.Empty(t, m.Snapshot().Rounds, "stale events after reset are dropped")
}

func TestSelectors_AllAgentsFlattensInDisplayOrder(t *testing.T) {
	m := NewMachine(nil)
	round1, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleSynthesizer, event.RoleCritic))
	m.Apply(gen, streamEndEvent(event.RoleCritic))
	m.Apply(gen, streamEndEvent(event.RoleSynthesizer))

	round2, gen2 := m.Submit("Q2")
	m.Apply(gen2, metaEvent(event.RoleHistorian))

	agents := AllAgents(m.Snapshot())
	require.Len(t, agents, 3)
	assert.Equal(t, round1, agents[0].RoundID)
	assert.Equal(t, event.RoleCritic, agents[0].Agent.Role, "display order, not arrival order")
	assert.Equal(t, event.RoleSynthesizer, agents[1].Agent.Role)
	assert.Equal(t, round2, agents[2].RoundID)
}

func TestSelectors_ActiveAgents(t *testing.T) {
	m := NewMachine(nil)
	_, gen := m.Submit("Q1")
	m.Apply(gen, metaEvent(event.RoleCritic, event.RoleHistorian))
	m.Apply(gen, streamEndEvent(event.RoleCritic))

	active := ActiveAgents(m.Snapshot())
	require.Len(t, active, 1)
	assert.Equal(t, event.RoleHistorian, active[0].Role)
}
