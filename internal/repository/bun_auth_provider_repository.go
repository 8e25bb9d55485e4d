package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// BunAuthProviderRepository implements AuthProviderRepository using Bun ORM
type BunAuthProviderRepository struct {
	db bun.IDB
}

// NewBunAuthProviderRepository creates a new Bun-based auth provider repository
func NewBunAuthProviderRepository(db bun.IDB) AuthProviderRepository {
	return &BunAuthProviderRepository{db: db}
}

// Create links a provider identity to a user. Unique per (user, provider)
// and per (provider, subject); violations surface as auth.ErrConflict.
func (r *BunAuthProviderRepository) Create(ctx context.Context, provider *models.AuthProvider) error {
	if provider.ID == "" {
		provider.ID = bunx.NewUUIDv7()
	}
	provider.CreatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(provider).
		Exec(ctx)
	return wrapErr("create auth provider", err)
}

// GetByProviderSubject finds the link for an external subject
func (r *BunAuthProviderRepository) GetByProviderSubject(ctx context.Context, providerName, subject string) (*models.AuthProvider, error) {
	provider := new(models.AuthProvider)
	err := r.db.NewSelect().
		Model(provider).
		Where("provider_name = ?", providerName).
		Where("provider_user_id = ?", subject).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get auth provider", err)
	}
	return provider, nil
}

// ListByUser returns every provider linked to a user
func (r *BunAuthProviderRepository) ListByUser(ctx context.Context, userID string) ([]models.AuthProvider, error) {
	var providers []models.AuthProvider
	err := r.db.NewSelect().
		Model(&providers).
		Where("user_id = ?", userID).
		Order("provider_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("list auth providers", err)
	}
	return providers, nil
}
