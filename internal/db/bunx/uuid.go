package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for primary keys and token IDs.
//
// IDs are generated in Go rather than by a column default so the same models
// work on PostgreSQL and SQLite. Panics only if the entropy source fails.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
