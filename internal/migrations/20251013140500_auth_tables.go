package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20251013140500, down_20251013140500)
}

type tableSpec struct {
	name        string
	model       interface{}
	foreignKeys []string
}

// Parents first; join tables reference both sides with ON DELETE CASCADE.
var authTables = []tableSpec{
	{name: "users", model: (*models.User)(nil)},
	{
		name:  "auth_providers",
		model: (*models.AuthProvider)(nil),
		foreignKeys: []string{
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
		},
	},
	{name: "roles", model: (*models.Role)(nil)},
	{name: "content_types", model: (*models.ContentType)(nil)},
	{
		name:  "permissions",
		model: (*models.Permission)(nil),
		foreignKeys: []string{
			`("content_type_id") REFERENCES "content_types" ("id") ON DELETE CASCADE`,
		},
	},
	{
		name:  "user_roles",
		model: (*models.UserRole)(nil),
		foreignKeys: []string{
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
			`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`,
		},
	},
	{
		name:  "user_permissions",
		model: (*models.UserPermission)(nil),
		foreignKeys: []string{
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
			`("permission_id") REFERENCES "permissions" ("id") ON DELETE CASCADE`,
		},
	},
	{
		name:  "role_permissions",
		model: (*models.RolePermission)(nil),
		foreignKeys: []string{
			`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`,
			`("permission_id") REFERENCES "permissions" ("id") ON DELETE CASCADE`,
		},
	},
	{name: "revoked_tokens", model: (*models.RevokedToken)(nil)},
}

type indexSpec struct {
	name    string
	model   interface{}
	unique  bool
	columns []string
}

var authIndexes = []indexSpec{
	{"idx_auth_providers_user_provider", (*models.AuthProvider)(nil), true, []string{"user_id", "provider_name"}},
	{"idx_auth_providers_provider_subject", (*models.AuthProvider)(nil), true, []string{"provider_name", "provider_user_id"}},
	{"idx_permissions_content_type", (*models.Permission)(nil), false, []string{"content_type_id"}},
	{"idx_user_roles_role", (*models.UserRole)(nil), false, []string{"role_id"}},
	{"idx_user_permissions_permission", (*models.UserPermission)(nil), false, []string{"permission_id"}},
	{"idx_role_permissions_permission", (*models.RolePermission)(nil), false, []string{"permission_id"}},
	{"idx_revoked_tokens_expires_at", (*models.RevokedToken)(nil), false, []string{"expires_at"}},
}

// up_20251013140500 creates the user, role and permission catalog tables
func up_20251013140500(ctx context.Context, db *bun.DB) error {
	for _, table := range authTables {
		fmt.Printf(" [up] creating %s table...", table.name)
		q := db.NewCreateTable().
			Model(table.model).
			IfNotExists()
		for _, fk := range table.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
		fmt.Println(" OK")
	}

	fmt.Print(" [up] creating auth indexes...")
	for _, idx := range authIndexes {
		q := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20251013140500 drops all auth tables in reverse order
func down_20251013140500(ctx context.Context, db *bun.DB) error {
	for i := len(authTables) - 1; i >= 0; i-- {
		table := authTables[i]
		fmt.Printf(" [down] dropping %s table...", table.name)
		_, err := db.NewDropTable().
			Model(table.model).
			IfExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table.name, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
