// ABOUTME: Tests for the persistent SSE subscription transport.
// ABOUTME: Covers resume-from-last-id, reconnect backoff, and retry exhaustion.

package transport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sruim/boardroom-client/internal/event"
)

func writeFrameWithID(w http.ResponseWriter, tag, id, data string) {
	fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", tag, id, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestSubscriber_DeliversEventsAndTracksLastID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrameWithID(w, "meta", "1", `{"selected_agents":["critic"]}`)
		writeFrameWithID(w, "stream", "2", `{"agent":"critic","delta":"Hi"}`)
	}))
	defer srv.Close()

	s := newSink()
	sub := NewSubscriber(SubscriberConfig{
		URL:          srv.URL,
		InitialRetry: time.Millisecond,
		MaxRetries:   1,
		Callbacks:    s.callbacks(),
	})
	sub.Connect()
	defer sub.Disconnect()

	meta := s.nextEvent(t)
	assert.Equal(t, event.KindMeta, meta.Kind)
	assert.Equal(t, "1", meta.ID)

	chunk := s.nextEvent(t)
	assert.Equal(t, "Hi", chunk.Delta)
	assert.Equal(t, "2", chunk.ID)
}

func TestSubscriber_ReconnectResumesFromLastEventID(t *testing.T) {
	var requests atomic.Int32
	lastID := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		lastID <- r.Header.Get("Last-Event-ID")

		w.Header().Set("Content-Type", "text/event-stream")
		if n == 1 {
			// First connection delivers one event and then drops.
			writeFrameWithID(w, "stream", "7", `{"agent":"critic","delta":"a"}`)
			return
		}
		writeFrameWithID(w, "stream", "8", `{"agent":"critic","delta":"b"}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := newSink()
	sub := NewSubscriber(SubscriberConfig{
		URL:          srv.URL,
		InitialRetry: time.Millisecond,
		Callbacks:    s.callbacks(),
	})
	sub.Connect()
	defer sub.Disconnect()

	assert.Equal(t, "a", s.nextEvent(t).Delta)
	assert.Equal(t, "b", s.nextEvent(t).Delta)

	assert.Equal(t, "", <-lastID, "first connection carries no resume id")
	assert.Equal(t, "7", <-lastID, "reconnect resumes from last processed id")
	s.assertNoFatal(t)
}

func TestSubscriber_ExhaustedReconnectsSurfaceFatalOnce(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newSink()
	sub := NewSubscriber(SubscriberConfig{
		URL:          srv.URL,
		InitialRetry: time.Millisecond,
		MaxRetries:   2,
		Callbacks:    s.callbacks(),
	})
	sub.Connect()
	defer sub.Disconnect()

	err := s.nextFatal(t)
	assert.ErrorContains(t, err, "reconnect retries exhausted")
	assert.Equal(t, int32(3), requests.Load())
	s.assertNoFatal(t)
}

func TestSubscriber_SuccessfulEventResetsRetryCounter(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if n%2 == 1 {
			// Odd connections fail outright.
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		// Even connections deliver an event (resetting the counter) and drop.
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrameWithID(w, "stream", fmt.Sprint(n), `{"agent":"critic","delta":"x"}`)
	}))
	defer srv.Close()

	s := newSink()
	sub := NewSubscriber(SubscriberConfig{
		URL:          srv.URL,
		InitialRetry: time.Millisecond,
		MaxRetries:   2,
		Callbacks:    s.callbacks(),
	})
	sub.Connect()
	defer sub.Disconnect()

	// Well past MaxRetries total failures without a fatal, because each
	// delivered event resets the consecutive-failure count.
	for i := 0; i < 4; i++ {
		require.NotNil(t, s.nextEvent(t))
	}
	s.assertNoFatal(t)
}

func TestSubscriber_MalformedFramesAreDroppedSilently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrameWithID(w, "stream", "1", `not json`)
		writeFrameWithID(w, "bogus", "2", `{}`)
		writeFrameWithID(w, "stream_end", "3", `{"agent":"critic"}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := newSink()
	sub := NewSubscriber(SubscriberConfig{
		URL:          srv.URL,
		InitialRetry: time.Millisecond,
		Callbacks:    s.callbacks(),
	})
	sub.Connect()
	defer sub.Disconnect()

	ev := s.nextEvent(t)
	assert.Equal(t, event.KindStreamEnd, ev.Kind)
	assert.Equal(t, "3", ev.ID)
}
