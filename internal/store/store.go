// Package store holds all persistence for the lost-and-found service:
// users, items (with FTS and geo filtering), matches, messages, and saved
// searches over a single SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors for multi-step operations. Callers map these to HTTP
// statuses; simple lookups keep the (nil, nil) not-found convention.
var (
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an actor without ownership or participancy.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a uniqueness violation (duplicate match pair,
	// duplicate account email).
	ErrConflict = errors.New("conflict")
	// ErrInvalid marks rejected input (bad enum value, broken invariant).
	ErrInvalid = errors.New("invalid")
)

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. Concurrent duplicate inserts race on the index, not on any
// application lock, so this is how the loser of that race is recognized.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// DefaultLimit is the page size used when none is requested.
const DefaultLimit = 10

// clampPage normalizes 1-based pagination parameters.
func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	return page, limit
}

// encodeStrings marshals a string slice for a JSON text column.
func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// decodeStrings unmarshals a JSON text column into a string slice.
func decodeStrings(s string) []string {
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return []string{}
	}
	return v
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// timePtr converts a nullable scan target to a *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
