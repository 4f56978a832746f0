// ABOUTME: Request-scoped streaming transport: one POST, one streamed SSE body.
// ABOUTME: Enforces metadata and stall deadlines, retries transient failures.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sruim/boardroom-client/internal/event"
)

const (
	defaultMetaTimeout  = 10 * time.Second
	defaultStallTimeout = 30 * time.Second
	defaultMaxAttempts  = 3
)

// Timeout sentinels. Both abort a single attempt; the attempt then counts
// against the retry budget like any other transient failure.
var (
	errMetaTimeout  = errors.New("timed out waiting for first event")
	errStallTimeout = errors.New("stream stalled")
)

// FetcherConfig configures a request-scoped streaming transport.
type FetcherConfig struct {
	// URL of the engine endpoint; Request is POSTed there as JSON.
	URL     string
	Request Request

	// Token, when set, is sent as a bearer Authorization header.
	Token string

	// MetaTimeout bounds the wait for the first parsed event of an attempt
	// (default 10s). StallTimeout is reset on every received chunk and aborts
	// an attempt that goes quiet (default 30s). The two run independently.
	MetaTimeout  time.Duration
	StallTimeout time.Duration

	// MaxRetries bounds retries after the initial attempt (default 3).
	// InitialRetry is the first backoff delay (default 1s, doubling).
	MaxRetries   int
	InitialRetry time.Duration

	Client    *http.Client
	Logger    *slog.Logger
	Callbacks Callbacks
}

// Fetcher issues a single engine request carrying the full outgoing payload
// and incrementally decodes the streamed response body. One Fetcher serves
// one round; create a new one per query.
type Fetcher struct {
	cfg    FetcherConfig
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// attempts is the consecutive-failure count; any parsed event resets it.
	// Touched only from the run goroutine.
	attempts int
}

// NewFetcher creates a request-scoped transport. Zero config fields take the
// documented defaults.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.MetaTimeout <= 0 {
		cfg.MetaTimeout = defaultMetaTimeout
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = defaultStallTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxAttempts
	}
	if cfg.InitialRetry <= 0 {
		cfg.InitialRetry = defaultInitialRetry
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:    cfg,
		logger: logger.With("component", "transport", "mode", "fetch"),
	}
}

// Connect issues the request in a background goroutine.
func (f *Fetcher) Connect() {
	if f.cancel != nil {
		return // already in flight
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx)
}

// Disconnect aborts the in-flight request and clears all pending timers.
// A deliberate disconnect never fires a retry or a fatal callback.
func (f *Fetcher) Disconnect() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.cancel = nil
}

func (f *Fetcher) run(ctx context.Context) {
	defer close(f.done)

	for {
		err := f.stream(ctx)
		if err == nil {
			return // stream completed cleanly
		}
		if ctx.Err() != nil {
			return // deliberate cancellation
		}

		if isFatalStatus(err) {
			f.logger.Warn("request failed", "error", err)
			f.cfg.Callbacks.fatal(err)
			return
		}

		if f.attempts >= f.cfg.MaxRetries {
			f.logger.Warn("request retries exhausted", "attempts", f.attempts, "error", err)
			f.cfg.Callbacks.fatal(fmt.Errorf("retries exhausted: %w", err))
			return
		}

		delay := backoffDelay(f.attempts, f.cfg.InitialRetry, 0)
		f.attempts++
		f.logger.Debug("retrying request", "attempt", f.attempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// stream performs one attempt: POST the payload and decode the body until EOF.
func (f *Fetcher) stream(ctx context.Context) error {
	body, err := json.Marshal(f.cfg.Request)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	attemptCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, f.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	// The metadata deadline covers everything up to the first parsed event.
	metaTimer := time.AfterFunc(f.cfg.MetaTimeout, func() { abort(errMetaTimeout) })
	defer metaTimer.Stop()

	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return attemptError(attemptCtx, fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode}
	}

	f.cfg.Callbacks.connection(true)
	defer f.cfg.Callbacks.connection(false)

	// The stall deadline is rearmed by every chunk read off the wire.
	stallTimer := time.AfterFunc(f.cfg.StallTimeout, func() { abort(errStallTimeout) })
	defer stallTimer.Stop()

	reader := &watchdogReader{r: resp.Body, timer: stallTimer, d: f.cfg.StallTimeout}

	err = readFrames(reader, func(fr frame) {
		ev := event.Parse(fr.event, fr.data)
		if ev == nil {
			f.logger.Debug("dropping malformed frame", "event", fr.event)
			return
		}
		ev.ID = fr.id
		metaTimer.Stop()
		f.attempts = 0
		f.cfg.Callbacks.emit(ev)
	})
	if err != nil {
		return attemptError(attemptCtx, fmt.Errorf("reading stream: %w", err))
	}
	return nil
}

// attemptError maps an aborted attempt back to its root cause: a timeout
// sentinel when one of the watchdogs fired, the context error on deliberate
// cancellation, or the raw error otherwise.
func attemptError(ctx context.Context, err error) error {
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, errMetaTimeout):
		return errMetaTimeout
	case errors.Is(cause, errStallTimeout):
		return errStallTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}

// isFatalStatus reports whether err is a 4xx response, which is a client
// error and never worth retrying.
func isFatalStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status >= 400 && se.Status < 500
}

// watchdogReader rearms a timer on every successful read, implementing the
// stream-stall deadline without instrumenting the frame scanner.
type watchdogReader struct {
	r     io.Reader
	timer *time.Timer
	d     time.Duration
}

func (w *watchdogReader) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if n > 0 {
		w.timer.Reset(w.d)
	}
	return n, err
}
