// ABOUTME: Demultiplexes a flat event stream into per-agent content buffers.
// ABOUTME: Caps concurrent active agents, queueing overflow agents FIFO.

package mux

import "log/slog"

// DefaultMaxConcurrent is the active-agent cap applied when the config leaves
// MaxConcurrent at zero.
const DefaultMaxConcurrent = 5

// Chunk is a buffered-content notification. Content is the agent's cumulative
// text so far, not the delta; Done marks the terminal notification.
type Chunk struct {
	AgentID string
	Content string
	Done    bool
}

// Config wires a Multiplexer to its consumer.
type Config struct {
	// MaxConcurrent bounds the active set (default 5).
	MaxConcurrent int

	// OnChunk receives a notification per Push on an active agent (cumulative
	// content) and one terminal notification per Complete.
	OnChunk func(Chunk)

	// OnComplete fires after the terminal chunk, once per agent.
	OnComplete func(agentID string)

	Logger *slog.Logger
}

// Multiplexer splits an interleaved stream of per-agent chunks into
// independent growing buffers. At most MaxConcurrent agents are active at
// once; agents arriving beyond the cap queue in arrival order and are
// admitted as active agents complete.
//
// Chunks for a queued agent are buffered, not dropped: on admission the
// pending content is flushed as one cumulative notification. Not
// thread-safe — feed it from a single event-delivery goroutine.
type Multiplexer struct {
	cfg       Config
	logger    *slog.Logger
	buffers   map[string]string
	active    map[string]struct{}
	queue     []string
	completed map[string]struct{}
}

// New creates a multiplexer. Pass a zero MaxConcurrent for the default cap.
func New(cfg Config) *Multiplexer {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		cfg:       cfg,
		logger:    logger.With("component", "mux"),
		buffers:   make(map[string]string),
		active:    make(map[string]struct{}),
		completed: make(map[string]struct{}),
	}
}

// Push appends a chunk to the agent's buffer. An unknown agent is admitted if
// a slot is free, otherwise enqueued; queued agents accumulate silently and
// notify once admitted. Chunks for an already-completed agent are dropped so a
// late straggler cannot re-occupy a slot.
func (m *Multiplexer) Push(agentID, chunk string) {
	if _, done := m.completed[agentID]; done {
		return
	}
	if _, ok := m.active[agentID]; !ok {
		if len(m.active) >= m.cfg.MaxConcurrent {
			if !m.queued(agentID) {
				m.queue = append(m.queue, agentID)
				m.logger.Debug("agent queued", "agent_id", agentID, "queue_len", len(m.queue))
			}
			m.buffers[agentID] += chunk
			return
		}
		m.active[agentID] = struct{}{}
	}

	m.buffers[agentID] += chunk
	m.notify(agentID, false)
}

// Complete emits the terminal notification for the agent, frees its slot, and
// promotes the next queued agent. An agent that never streamed still notifies,
// with empty content, so a silent finish propagates to the consumer. Repeat
// calls are no-ops: duplicate stream_end events cannot double-notify or
// corrupt queue promotion.
func (m *Multiplexer) Complete(agentID string) {
	if _, done := m.completed[agentID]; done {
		return
	}
	m.completed[agentID] = struct{}{}

	m.notify(agentID, true)
	delete(m.buffers, agentID)

	if _, isActive := m.active[agentID]; isActive {
		delete(m.active, agentID)
		m.promote()
	} else {
		m.dequeue(agentID)
	}

	if m.cfg.OnComplete != nil {
		m.cfg.OnComplete(agentID)
	}
}

// Clear resets all buffers, the active set, the queue, and the completed set.
// Agent ids are role names that recur across rounds, so completion guards must
// not leak from one round into the next.
func (m *Multiplexer) Clear() {
	m.buffers = make(map[string]string)
	m.active = make(map[string]struct{})
	m.queue = nil
	m.completed = make(map[string]struct{})
}

// ActiveCount reports the number of currently active agents.
func (m *Multiplexer) ActiveCount() int { return len(m.active) }

// QueuedCount reports the number of agents waiting for a slot.
func (m *Multiplexer) QueuedCount() int { return len(m.queue) }

func (m *Multiplexer) notify(agentID string, done bool) {
	if m.cfg.OnChunk == nil {
		return
	}
	m.cfg.OnChunk(Chunk{
		AgentID: agentID,
		Content: m.buffers[agentID],
		Done:    done,
	})
}

// promote admits the oldest queued agent and flushes any content it
// accumulated while waiting.
func (m *Multiplexer) promote() {
	if len(m.queue) == 0 || len(m.active) >= m.cfg.MaxConcurrent {
		return
	}

	next := m.queue[0]
	m.queue = m.queue[1:]
	m.active[next] = struct{}{}
	m.logger.Debug("agent promoted", "agent_id", next)

	if m.buffers[next] != "" {
		m.notify(next, false)
	}
}

func (m *Multiplexer) queued(agentID string) bool {
	for _, id := range m.queue {
		if id == agentID {
			return true
		}
	}
	return false
}

func (m *Multiplexer) dequeue(agentID string) {
	for i, id := range m.queue {
		if id == agentID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}
