// Package session persists conversations across restarts.
//
// A Session is the folded history plus the complete round records of one
// conversation, stored as JSON documents in SQLite. Sessions are saved
// whole on every round completion and read back whole on load; nothing
// queries inside the documents, so a sessions table with two JSON columns
// is the entire schema.
//
// Use NewSQLiteStore for real persistence and NewMockStore in tests.
package session
