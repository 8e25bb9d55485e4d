package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// BunRevokedTokenRepository implements RevokedTokenRepository using Bun ORM
type BunRevokedTokenRepository struct {
	db bun.IDB
}

// NewBunRevokedTokenRepository creates a new Bun-based revoked token repository
func NewBunRevokedTokenRepository(db bun.IDB) RevokedTokenRepository {
	return &BunRevokedTokenRepository{db: db}
}

// Create adds a JTI to the revocation denylist. Revoking an already revoked
// JTI is reported as auth.ErrConflict so refresh rotation is single-use.
func (r *BunRevokedTokenRepository) Create(ctx context.Context, token *models.RevokedToken) error {
	if token.RevokedAt.IsZero() {
		token.RevokedAt = time.Now()
	}
	_, err := r.db.NewInsert().
		Model(token).
		Exec(ctx)
	return wrapErr("revoke token", err)
}

// IsRevoked checks if a JTI exists in the revocation table
func (r *BunRevokedTokenRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.RevokedToken)(nil)).
		Where("jti = ?", jti).
		Exists(ctx)
	if err != nil {
		return false, wrapErr("check revoked token", err)
	}
	return exists, nil
}

// DeleteExpired removes entries whose token expired before the cutoff.
// Expired tokens fail decoding anyway, so their rows are dead weight.
func (r *BunRevokedTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.RevokedToken)(nil)).
		Where("expires_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, wrapErr("delete expired revoked tokens", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete expired revoked tokens", err)
	}
	return n, nil
}
