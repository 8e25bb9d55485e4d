package cmdutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/services/iam"
)

// RoleIDs resolves role names to IDs, failing on the first unknown name.
func RoleIDs(ctx context.Context, svc iam.Service, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		role, err := svc.GetRoleByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", name, err)
		}
		ids = append(ids, role.ID)
	}
	return ids, nil
}

// PermissionIDs resolves permission names to IDs, failing on the first unknown name.
func PermissionIDs(ctx context.Context, svc iam.Service, names []string) ([]string, error) {
	catalog, err := svc.ListPermissionCatalog(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string)
	for _, ct := range catalog {
		for _, p := range ct.Permissions {
			byName[p.Name] = p.ID
		}
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("%w: permission %q", auth.ErrNotFound, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
