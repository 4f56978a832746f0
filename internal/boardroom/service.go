// ABOUTME: Coordinator wiring the state machine, transports, multiplexer, and store.
// ABOUTME: Owns the ask lifecycle: submit, stream, fold, persist.

package boardroom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sruim/boardroom-client/internal/config"
	"github.com/sruim/boardroom-client/internal/event"
	"github.com/sruim/boardroom-client/internal/mux"
	"github.com/sruim/boardroom-client/internal/orchestrator"
	"github.com/sruim/boardroom-client/internal/session"
	"github.com/sruim/boardroom-client/internal/transport"
)

// requestMode is the engine request discriminator for boardroom rounds.
const requestMode = "polymath"

// saveTimeout bounds each background session save.
const saveTimeout = 5 * time.Second

// Service runs conversations against the engine: it submits queries to the
// state machine, drives the configured transport, and persists the session
// when a round finishes. One Service serves one active session at a time.
type Service struct {
	cfg    *config.Config
	store  session.Store
	engine *orchestrator.Machine
	client *http.Client
	logger *slog.Logger

	// gen mirrors the machine generation for the subscribe path, whose
	// persistent transport outlives any single round.
	gen atomic.Uint64

	mu        sync.Mutex
	sessionID string
	createdAt time.Time
	fetcher   transport.Transport // fetch mode, one per round
	sub       transport.Transport // subscribe mode, persistent

	// The multiplexer is single-goroutine by contract; muxMu serializes the
	// subscriber's delivery goroutine against Clear calls from user goroutines.
	muxMu   sync.Mutex
	streams *mux.Multiplexer // subscribe mode only

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New creates a service over an idle machine and a fresh session. The store
// stays owned by the caller; Close does not close it.
func New(cfg *config.Config, store session.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:       cfg,
		store:     store,
		engine:    orchestrator.NewMachine(logger),
		client:    http.DefaultClient,
		logger:    logger.With("component", "boardroom"),
		sessionID: uuid.New().String(),
		createdAt: time.Now().UTC(),
	}

	if cfg.Engine.Mode == config.ModeSubscribe {
		s.streams = mux.New(mux.Config{
			MaxConcurrent: cfg.Stream.MaxConcurrent,
			Logger:        logger,
			OnChunk: func(c mux.Chunk) {
				s.engine.SetAgentContent(s.gen.Load(), c.AgentID, c.Content)
			},
			OnComplete: func(agentID string) {
				s.engine.Apply(s.gen.Load(), &event.Event{
					Kind:  event.KindStreamEnd,
					Agent: event.Role(agentID),
				})
			},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	s.watchDone = make(chan struct{})
	go s.watch(ctx)

	return s
}

// Machine exposes the state machine for snapshot reads and subscriptions.
func (s *Service) Machine() *orchestrator.Machine {
	return s.engine
}

// SessionID returns the id the active conversation persists under.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Ask submits a query: it supersedes any round still in flight, opens a new
// round, and starts streaming the engine's response into the machine.
func (s *Service) Ask(ctx context.Context, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The superseded round's transport must stop before the new round
	// starts; its generation is already stale, so this is belt only.
	if s.fetcher != nil {
		s.fetcher.Disconnect()
		s.fetcher = nil
	}
	s.clearStreams()

	_, gen := s.engine.Submit(query)
	s.gen.Store(gen)

	req := transport.Request{
		Mode:    requestMode,
		Query:   query,
		History: historyMessages(s.engine.Snapshot().History),
	}

	if s.cfg.Engine.Mode == config.ModeSubscribe {
		return s.askSubscribe(ctx, gen, req)
	}
	s.askFetch(gen, req)
	return nil
}

// askFetch starts a request-scoped streaming transport for the round.
func (s *Service) askFetch(gen uint64, req transport.Request) {
	f := transport.NewFetcher(transport.FetcherConfig{
		URL:          s.cfg.Engine.URL,
		Request:      req,
		Token:        s.cfg.Engine.Token,
		MetaTimeout:  s.cfg.Engine.MetaTimeout,
		StallTimeout: s.cfg.Engine.StallTimeout,
		MaxRetries:   s.cfg.Engine.MaxRetries,
		Client:       s.client,
		Logger:       s.logger,
		Callbacks: transport.Callbacks{
			OnEvent: func(ev *event.Event) {
				s.engine.Apply(gen, ev)
			},
			OnFatalError: func(err error) {
				s.engine.Fail(gen, err.Error())
			},
		},
	})
	s.fetcher = f
	f.Connect()
}

// askSubscribe posts the query and makes sure the persistent subscription is
// up; events for the round arrive over that channel and pass through the
// multiplexer for paced delivery.
func (s *Service) askSubscribe(ctx context.Context, gen uint64, req transport.Request) error {
	if s.sub == nil {
		s.sub = transport.NewSubscriber(transport.SubscriberConfig{
			URL:    s.cfg.Engine.URL,
			Token:  s.cfg.Engine.Token,
			Client: s.client,
			Logger: s.logger,
			Callbacks: transport.Callbacks{
				OnEvent:      s.deliverSubscribed,
				OnFatalError: func(err error) { s.engine.Fail(s.gen.Load(), err.Error()) },
			},
		})
		s.sub.Connect()
	}

	if err := s.postQuery(ctx, req); err != nil {
		s.engine.Fail(gen, err.Error())
		return err
	}
	return nil
}

// deliverSubscribed routes one subscription event. Stream chunks and ends go
// through the multiplexer so no more than MaxConcurrent agents render at
// once, and an agent error frees its mux slot the way a stream_end would;
// everything else hits the machine directly.
func (s *Service) deliverSubscribed(ev *event.Event) {
	switch ev.Kind {
	case event.KindStream:
		s.muxMu.Lock()
		s.streams.Push(string(ev.Agent), ev.Delta)
		s.muxMu.Unlock()
	case event.KindStreamEnd:
		s.muxMu.Lock()
		s.streams.Complete(string(ev.Agent))
		s.muxMu.Unlock()
	case event.KindError:
		s.engine.Apply(s.gen.Load(), ev)
		// An errored agent sends no stream_end; completing it here frees its
		// slot so agents queued behind it still get promoted. The machine
		// already holds the agent terminal, so the completion callbacks
		// land as no-ops there.
		if ev.Agent != "" {
			s.muxMu.Lock()
			s.streams.Complete(string(ev.Agent))
			s.muxMu.Unlock()
		}
	default:
		s.engine.Apply(s.gen.Load(), ev)
	}
}

// clearStreams resets the multiplexer between rounds (subscribe mode only).
func (s *Service) clearStreams() {
	if s.streams == nil {
		return
	}
	s.muxMu.Lock()
	s.streams.Clear()
	s.muxMu.Unlock()
}

// postQuery submits the round request over plain HTTP. The response body is
// irrelevant; the answer arrives on the subscription.
func (s *Service) postQuery(ctx context.Context, req transport.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Engine.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.Engine.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.Engine.Token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("posting query: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &transport.StatusError{Status: resp.StatusCode}
	}
	return nil
}

// Stop aborts the round in flight without touching accumulated state. The
// next Ask starts cleanly.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetcher != nil {
		s.fetcher.Disconnect()
		s.fetcher = nil
	}
	s.clearStreams()
}

// NewSession resets the machine and starts persisting under a fresh id. The
// previous session stays in the store as saved.
func (s *Service) NewSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetcher != nil {
		s.fetcher.Disconnect()
		s.fetcher = nil
	}
	s.clearStreams()

	s.sessionID = uuid.New().String()
	s.createdAt = time.Now().UTC()
	s.engine.Reset()
	s.logger.Info("new session", "session_id", s.sessionID)
}

// LoadSession replaces the active conversation with a stored one. The machine
// lands idle; the next Ask continues the loaded history.
func (s *Service) LoadSession(ctx context.Context, id string) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetcher != nil {
		s.fetcher.Disconnect()
		s.fetcher = nil
	}
	s.clearStreams()

	s.sessionID = sess.ID
	s.createdAt = sess.CreatedAt
	s.engine.Restore(sess.History, sess.Rounds)
	s.logger.Info("session loaded", "session_id", sess.ID, "rounds", len(sess.Rounds))
	return nil
}

// DeleteSession removes a stored session. Deleting the active session leaves
// the in-memory conversation running under its id; a later round completion
// simply re-saves it.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Sessions lists stored sessions, most recently active first.
func (s *Service) Sessions(ctx context.Context) ([]*session.Session, error) {
	return s.store.List(ctx)
}

// Close stops the watcher and all transports. The store is the caller's to
// close.
func (s *Service) Close() {
	s.watchCancel()
	<-s.watchDone

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetcher != nil {
		s.fetcher.Disconnect()
		s.fetcher = nil
	}
	if s.sub != nil {
		s.sub.Disconnect()
		s.sub = nil
	}
}

// watch persists the session every time a round completes.
func (s *Service) watch(ctx context.Context) {
	defer close(s.watchDone)

	states, subID := s.engine.Subscribe(ctx)
	defer s.engine.Unsubscribe(subID)

	var lastSaved orchestrator.Status
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			terminal := state.Status == orchestrator.StatusFinished || state.Status == orchestrator.StatusError
			if terminal && state.Status != lastSaved {
				s.save(state)
			}
			lastSaved = state.Status
		}
	}
}

// save writes the current conversation to the store.
func (s *Service) save(state *orchestrator.State) {
	if len(state.Rounds) == 0 {
		return
	}

	s.mu.Lock()
	sess := &session.Session{
		ID:        s.sessionID,
		Title:     session.TitleFor(state.Rounds[0].Query),
		History:   state.History,
		Rounds:    state.Rounds,
		CreatedAt: s.createdAt,
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.store.Save(ctx, sess); err != nil {
		s.logger.Error("saving session", "session_id", sess.ID, "error", err)
		return
	}
	s.logger.Debug("session saved", "session_id", sess.ID, "rounds", len(sess.Rounds))
}

// historyMessages maps folded history into the wire shape. The outgoing
// history includes the just-submitted user turn.
func historyMessages(history []orchestrator.HistoryMessage) []transport.Message {
	out := make([]transport.Message, len(history))
	for i, h := range history {
		out[i] = transport.Message{Role: h.Role, Content: h.Content}
	}
	return out
}
