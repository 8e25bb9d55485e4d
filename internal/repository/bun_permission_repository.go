package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// BunPermissionRepository implements PermissionRepository using Bun ORM
type BunPermissionRepository struct {
	db bun.IDB
}

// NewBunPermissionRepository creates a new Bun-based permission catalog repository
func NewBunPermissionRepository(db bun.IDB) PermissionRepository {
	return &BunPermissionRepository{db: db}
}

// CreateContentType inserts a resource kind
func (r *BunPermissionRepository) CreateContentType(ctx context.Context, ct *models.ContentType) error {
	if ct.ID == "" {
		ct.ID = bunx.NewUUIDv7()
	}
	ct.CreatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(ct).
		Exec(ctx)
	return wrapErr("create content type", err)
}

// GetContentTypeByName retrieves a content type by name
func (r *BunPermissionRepository) GetContentTypeByName(ctx context.Context, name string) (*models.ContentType, error) {
	ct := new(models.ContentType)
	err := r.db.NewSelect().
		Model(ct).
		Where("ct.name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get content type", err)
	}
	return ct, nil
}

// DeleteContentType removes a content type; remaining permissions cascade
func (r *BunPermissionRepository) DeleteContentType(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.ContentType)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapErr("delete content type", err)
	}
	return expectRows("delete content type", res)
}

// CountByContentType counts the permissions a content type owns
func (r *BunPermissionRepository) CountByContentType(ctx context.Context, contentTypeID string) (int, error) {
	n, err := r.db.NewSelect().
		Model((*models.Permission)(nil)).
		Where("content_type_id = ?", contentTypeID).
		Count(ctx)
	if err != nil {
		return 0, wrapErr("count permissions", err)
	}
	return n, nil
}

// Create inserts a permission
func (r *BunPermissionRepository) Create(ctx context.Context, permission *models.Permission) error {
	if permission.ID == "" {
		permission.ID = bunx.NewUUIDv7()
	}
	permission.CreatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(permission).
		Exec(ctx)
	return wrapErr("create permission", err)
}

// GetByName retrieves a permission by its scope name
func (r *BunPermissionRepository) GetByName(ctx context.Context, name string) (*models.Permission, error) {
	permission := new(models.Permission)
	err := r.db.NewSelect().
		Model(permission).
		Where("p.name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get permission", err)
	}
	return permission, nil
}

// GetByIDs retrieves the permissions whose IDs are listed; missing IDs are skipped
func (r *BunPermissionRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var permissions []models.Permission
	err := r.db.NewSelect().
		Model(&permissions).
		Where("p.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get permissions", err)
	}
	return permissions, nil
}

// DeleteByNames removes permissions by scope name; grants cascade
func (r *BunPermissionRepository) DeleteByNames(ctx context.Context, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	res, err := r.db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("name IN (?)", bun.In(names)).
		Exec(ctx)
	if err != nil {
		return 0, wrapErr("delete permissions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete permissions", err)
	}
	return n, nil
}

// ListWithContentTypes returns the catalog grouped by content type
func (r *BunPermissionRepository) ListWithContentTypes(ctx context.Context) ([]models.ContentType, error) {
	var cts []models.ContentType
	err := r.db.NewSelect().
		Model(&cts).
		Relation("Permissions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("p.name ASC")
		}).
		Order("ct.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("list permission catalog", err)
	}
	return cts, nil
}
