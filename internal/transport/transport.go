// ABOUTME: Common transport contract shared by both engine stream strategies.
// ABOUTME: Defines the Transport interface, delivery callbacks, and error types.

package transport

import (
	"fmt"

	"github.com/sruim/boardroom-client/internal/event"
)

// Transport is the shared surface of both streaming strategies. Connect starts
// delivering events in a background goroutine; Disconnect aborts any in-flight
// request, cancels pending retry and timeout timers, and never triggers a retry.
type Transport interface {
	Connect()
	Disconnect()
}

// Callbacks are invoked by a transport as the stream progresses. All callbacks
// are optional and are called from the transport's own goroutine, one at a
// time — consumers never see concurrent delivery.
type Callbacks struct {
	// OnEvent receives each successfully parsed wire event, in the order the
	// bytes arrived. Malformed frames are dropped before this point.
	OnEvent func(*event.Event)

	// OnConnectionChange reports the connection going up or down.
	OnConnectionChange func(connected bool)

	// OnFatalError fires at most once, after the retry budget is exhausted or
	// a non-retriable failure occurs. The transport is stopped afterwards.
	OnFatalError func(error)
}

func (c Callbacks) emit(ev *event.Event) {
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}

func (c Callbacks) connection(connected bool) {
	if c.OnConnectionChange != nil {
		c.OnConnectionChange(connected)
	}
}

func (c Callbacks) fatal(err error) {
	if c.OnFatalError != nil {
		c.OnFatalError(err)
	}
}

// Message is one turn of backend-facing conversation history carried in an
// engine request.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is the JSON body POSTed to the engine to start a round.
type Request struct {
	Mode    string         `json:"mode"`
	Query   string         `json:"query"`
	History []Message      `json:"history"`
	Config  map[string]any `json:"config,omitempty"`
}

// StatusError reports a non-2xx HTTP response from the engine.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine returned status %d", e.Status)
}
