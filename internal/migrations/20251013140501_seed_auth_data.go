package migrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
	"github.com/terraconstructs/gatekeeper/internal/repository"
	"github.com/terraconstructs/gatekeeper/internal/services/catalog"
)

// Seeded role names. RoleUser is the default role assigned at signup.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type seedRole struct {
	name        string
	description string
	permissions []string // nil grants the whole built-in catalog
}

var seedRoles = []seedRole{
	{
		name:        RoleUser,
		description: "Self-service access to the caller's own profile",
		permissions: []string{auth.UsersGet, auth.UsersUpdate},
	},
	{
		name:        RoleAdmin,
		description: "Every built-in permission",
	},
}

func init() {
	Migrations.MustRegister(up_20251013140501, down_20251013140501)
}

// up_20251013140501 bootstraps the built-in permission catalog and seeds default roles
func up_20251013140501(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] bootstrapping built-in permission catalog...")
	reg := catalog.BuiltinRegistry()
	if _, err := catalog.NewBootstrapper(db, nil).BootstrapAll(ctx, reg); err != nil {
		return fmt.Errorf("failed to bootstrap catalog: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding default roles...")
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)
		for _, sr := range seedRoles {
			names := sr.permissions
			if names == nil {
				names = reg.PermissionNames()
			}

			role, err := repos.Roles.GetByName(ctx, sr.name)
			switch {
			case errors.Is(err, auth.ErrNotFound):
				role = &models.Role{Name: sr.name, Description: sr.description}
				if err := repos.Roles.Create(ctx, role); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				// Already seeded; leave an operator-edited grant set alone.
				continue
			}

			ids := make([]string, 0, len(names))
			for _, name := range names {
				p, err := repos.Permissions.GetByName(ctx, name)
				if err != nil {
					return fmt.Errorf("seed role %s: %w", sr.name, err)
				}
				ids = append(ids, p.ID)
			}
			if err := repos.Roles.AddPermissions(ctx, role.ID, ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20251013140501 removes seeded roles and the built-in catalog
func down_20251013140501(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing seeded roles...")
	names := make([]string, len(seedRoles))
	for i, sr := range seedRoles {
		names[i] = sr.name
	}
	_, err := db.NewDelete().
		Model((*models.Role)(nil)).
		Where("name IN (?)", bun.In(names)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove seeded roles: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [down] tearing down built-in permission catalog...")
	if err := catalog.NewBootstrapper(db, nil).TeardownAll(ctx, catalog.BuiltinRegistry()); err != nil {
		return fmt.Errorf("failed to tear down catalog: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
