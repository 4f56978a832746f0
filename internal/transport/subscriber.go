// ABOUTME: Persistent SSE subscription transport with reconnect and resume.
// ABOUTME: Holds a long-lived connection, backing off exponentially on drops.

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sruim/boardroom-client/internal/event"
)

const (
	defaultInitialRetry  = 1000 * time.Millisecond
	defaultMaxRetryDelay = 30 * time.Second
	defaultMaxReconnects = 10
)

// errConnectionClosed marks a server-side close of the persistent stream.
var errConnectionClosed = errors.New("connection closed")

// SubscriberConfig configures a persistent subscription transport.
type SubscriberConfig struct {
	// URL of the engine's SSE endpoint.
	URL string

	// Token, when set, is sent as a bearer Authorization header.
	Token string

	// InitialRetry is the first reconnect delay (default 1s). It doubles on
	// each consecutive failure up to MaxRetryDelay (default 30s).
	InitialRetry  time.Duration
	MaxRetryDelay time.Duration

	// MaxRetries bounds consecutive reconnect attempts (default 10). Any
	// successfully processed event resets the counter.
	MaxRetries int

	Client    *http.Client
	Logger    *slog.Logger
	Callbacks Callbacks
}

// Subscriber is the persistent-subscription transport. It keeps one long-lived
// SSE connection open, reconnects with exponential backoff when it drops, and
// resumes from the last successfully processed event id so a reconnect does
// not silently skip events (replay itself is the engine's contract).
type Subscriber struct {
	cfg    SubscriberConfig
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// Touched only from the run goroutine.
	retries     int
	lastEventID string
}

// NewSubscriber creates a subscription transport. Zero config fields take the
// documented defaults.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.InitialRetry <= 0 {
		cfg.InitialRetry = defaultInitialRetry
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxReconnects
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		cfg:    cfg,
		logger: logger.With("component", "transport", "mode", "subscribe"),
	}
}

// Connect opens the subscription in a background goroutine.
func (s *Subscriber) Connect() {
	if s.cancel != nil {
		return // already connected
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Disconnect aborts the connection and any pending reconnect timer. It never
// triggers a retry or a fatal callback, and waits for the run loop to exit.
func (s *Subscriber) Disconnect() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)

	for {
		err := s.stream(ctx)
		s.cfg.Callbacks.connection(false)

		if ctx.Err() != nil {
			return // deliberate disconnect
		}

		if s.retries >= s.cfg.MaxRetries {
			s.logger.Warn("reconnect retries exhausted", "retries", s.retries, "error", err)
			s.cfg.Callbacks.fatal(fmt.Errorf("reconnect retries exhausted: %w", err))
			return
		}

		delay := backoffDelay(s.retries, s.cfg.InitialRetry, s.cfg.MaxRetryDelay)
		s.retries++
		s.logger.Debug("scheduling reconnect", "attempt", s.retries, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// stream opens one connection and delivers frames until it drops.
func (s *Subscriber) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.lastEventID != "" {
		req.Header.Set("Last-Event-ID", s.lastEventID)
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode}
	}

	s.cfg.Callbacks.connection(true)
	s.logger.Debug("subscription open", "last_event_id", s.lastEventID)

	if err := readFrames(resp.Body, s.handleFrame); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return errConnectionClosed
}

func (s *Subscriber) handleFrame(f frame) {
	ev := event.Parse(f.event, f.data)
	if ev == nil {
		s.logger.Debug("dropping malformed frame", "event", f.event)
		return
	}
	ev.ID = f.id

	// Only an event that made it through the codec advances the resume cursor.
	if f.id != "" {
		s.lastEventID = f.id
	}
	s.retries = 0
	s.cfg.Callbacks.emit(ev)
}
