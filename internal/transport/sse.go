// ABOUTME: Incremental reader for text/event-stream response bodies.
// ABOUTME: Assembles event:/data:/id: lines into frames, skipping the [DONE] sentinel.

package transport

import (
	"bufio"
	"io"
	"strings"
)

// doneSentinel is a literal data payload meaning "ignore this line". It is
// never valid JSON and must not reach the codec.
const doneSentinel = "[DONE]"

// maxLineSize bounds a single SSE line. Deltas are small but a synthesizer
// frame can carry a full response on replay.
const maxLineSize = 1024 * 1024

// frame is one server-sent event: a tag, its data payload, and an optional id.
type frame struct {
	event string
	data  string
	id    string
}

// readFrames scans r line by line, invoking fn for each complete frame.
// A blank line terminates a frame; frames without an event tag or data are
// dropped. Returns the scanner error, or nil on clean EOF.
func readFrames(r io.Reader, fn func(frame)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var current frame
	var dataLines []string

	flush := func() {
		if current.event != "" && len(dataLines) > 0 {
			current.data = strings.Join(dataLines, "\n")
			fn(current)
		}
		current = frame{}
		dataLines = nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			current.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if data == doneSentinel {
				continue
			}
			dataLines = append(dataLines, data)
		case strings.HasPrefix(line, "id:"):
			current.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		default:
			// Comment lines (":keepalive") and unknown fields are ignored.
		}
	}

	// A final frame not followed by a blank line still counts.
	flush()

	return scanner.Err()
}
