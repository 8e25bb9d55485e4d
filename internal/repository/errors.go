package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
)

// wrapErr classifies storage errors into the domain taxonomy so callers can
// use errors.Is with auth.ErrNotFound and auth.ErrConflict.
func wrapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, auth.ErrNotFound)
	case bunx.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, auth.ErrConflict, err)
	case bunx.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", op, auth.ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// expectRows returns ErrNotFound when a write touched no rows.
func expectRows(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: get rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, auth.ErrNotFound)
	}
	return nil
}
