// ABOUTME: Store interface and data types for conversation persistence.
// ABOUTME: Defines the Session record and the operations a backing store provides.

package session

import (
	"context"
	"errors"
	"time"

	"github.com/sruim/boardroom-client/internal/orchestrator"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("session not found")

// TitleRuneLimit is the maximum length of a derived session title before
// truncation.
const TitleRuneLimit = 30

// Session is one persisted conversation: the folded history plus the full
// round records so a loaded session can be displayed exactly as it ran.
type Session struct {
	ID        string
	Title     string
	History   []orchestrator.HistoryMessage
	Rounds    []*orchestrator.Round
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TitleFor derives a session title from its first query, truncated to
// TitleRuneLimit runes with an ellipsis.
func TitleFor(query string) string {
	runes := []rune(query)
	if len(runes) <= TitleRuneLimit {
		return query
	}
	return string(runes[:TitleRuneLimit]) + "..."
}

// Store defines the interface for session persistence.
type Store interface {
	// Save inserts or replaces a session and bumps its UpdatedAt.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by ID. Returns ErrNotFound if it does not
	// exist.
	Get(ctx context.Context, id string) (*Session, error)

	// List returns all sessions ordered by most recent activity. Histories
	// and rounds are included; listings are small enough not to need a
	// summary projection.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes a session. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}
