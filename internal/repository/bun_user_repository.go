package repository

import (
	"context"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db bun.IDB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db bun.IDB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// NormalizeEmail lower-cases and trims an address; emails are stored normalized.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = bunx.NewUUIDv7()
	}
	user.Email = NormalizeEmail(user.Email)
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(user).
		Exec(ctx)
	return wrapErr("create user", err)
}

// GetByID retrieves a user by ID
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get user by id", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("u.email = ?", NormalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get user by email", err)
	}
	return user, nil
}

// GetByEmailWithProviders retrieves a user by email along with linked providers
func (r *BunUserRepository) GetByEmailWithProviders(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Relation("AuthProviders").
		Where("u.email = ?", NormalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get user with providers", err)
	}
	return user, nil
}

// LoadPrincipal retrieves a user with direct permissions and roles, then
// fills every role's permissions with a single join query over all roles.
func (r *BunUserRepository) LoadPrincipal(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Relation("Roles").
		Relation("Permissions").
		Where("u.email = ?", NormalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("load principal", err)
	}

	if len(user.Roles) == 0 {
		return user, nil
	}

	roleIDs := make([]string, len(user.Roles))
	for i, role := range user.Roles {
		roleIDs[i] = role.ID
	}

	var grants []models.RolePermission
	err = r.db.NewSelect().
		Model(&grants).
		Relation("Permission").
		Where("rp.role_id IN (?)", bun.In(roleIDs)).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("load role permissions", err)
	}

	byRole := make(map[string][]models.Permission, len(user.Roles))
	for _, g := range grants {
		if g.Permission != nil {
			byRole[g.RoleID] = append(byRole[g.RoleID], *g.Permission)
		}
	}
	for i := range user.Roles {
		user.Roles[i].Permissions = byRole[user.Roles[i].ID]
	}
	return user, nil
}

// Update writes the given columns of user, or all columns when none are named
func (r *BunUserRepository) Update(ctx context.Context, user *models.User, columns ...string) error {
	user.UpdatedAt = time.Now()
	q := r.db.NewUpdate().
		Model(user).
		WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	} else {
		q = q.ExcludeColumn("id", "created_at")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return wrapErr("update user", err)
	}
	return expectRows("update user", res)
}

// UpdateLastLogin records a successful login
func (r *BunUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapErr("update last login", err)
	}
	return expectRows("update last login", res)
}

// SetPasswordHash replaces a user's password hash
func (r *BunUserRepository) SetPasswordHash(ctx context.Context, id string, passwordHash string) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapErr("set password hash", err)
	}
	return expectRows("set password hash", res)
}

// MarkEmailVerified flags a user's email as confirmed
func (r *BunUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("email_verified = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapErr("mark email verified", err)
	}
	return expectRows("mark email verified", res)
}

// List returns users ordered by email. A non-positive limit returns all rows.
func (r *BunUserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	q := r.db.NewSelect().
		Model(&users).
		Order("u.email ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, wrapErr("list users", err)
	}
	return users, nil
}

// AddRoles assigns roles to a user, ignoring roles already held
func (r *BunUserRepository) AddRoles(ctx context.Context, userID string, roleIDs ...string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	rows := make([]models.UserRole, len(roleIDs))
	for i, id := range roleIDs {
		rows[i] = models.UserRole{UserID: userID, RoleID: id}
	}
	_, err := r.db.NewInsert().
		Model(&rows).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return wrapErr("add user roles", err)
}

// ReplaceRoles sets a user's roles to exactly roleIDs
func (r *BunUserRepository) ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error {
	_, err := r.db.NewDelete().
		Model((*models.UserRole)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return wrapErr("clear user roles", err)
	}
	return r.AddRoles(ctx, userID, roleIDs...)
}

// AddPermissions grants permissions directly to a user, ignoring existing grants
func (r *BunUserRepository) AddPermissions(ctx context.Context, userID string, permissionIDs ...string) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	rows := make([]models.UserPermission, len(permissionIDs))
	for i, id := range permissionIDs {
		rows[i] = models.UserPermission{UserID: userID, PermissionID: id}
	}
	_, err := r.db.NewInsert().
		Model(&rows).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return wrapErr("add user permissions", err)
}
