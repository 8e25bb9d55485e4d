package roles

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/gatekeeper/cmd/cmdutil"
)

var (
	descriptionFlag  string
	permissionsInput []string
)

// RolesCmd is the parent command for role management operations
var RolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Manage roles and their permissions",
}

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := openBundle()
		if err != nil {
			return err
		}
		defer bundle.Close()

		ctx := cmd.Context()
		permissionIDs, err := cmdutil.PermissionIDs(ctx, bundle.Service, permissionsInput)
		if err != nil {
			return err
		}
		role, err := bundle.Service.CreateRole(ctx, args[0], descriptionFlag, permissionIDs)
		if err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Role %s created (%s) with %d permission(s)\n", role.Name, role.ID, len(role.Permissions))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles and their permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := openBundle()
		if err != nil {
			return err
		}
		defer bundle.Close()

		ctx := cmd.Context()
		roles, err := bundle.Service.ListRoles(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPERMISSIONS")
		for _, r := range roles {
			full, err := bundle.Service.GetRole(ctx, r.ID)
			if err != nil {
				return err
			}
			names := make([]string, len(full.Permissions))
			for i, p := range full.Permissions {
				names[i] = p.Name
			}
			sort.Strings(names)
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Name, strings.Join(names, ","))
		}
		return w.Flush()
	},
}

var setPermissionsCmd = &cobra.Command{
	Use:   "set-permissions NAME",
	Short: "Replace a role's permissions with exactly the given set",
	Long: `Reconciles the role's permissions against --permission. Only the
difference is written; an unchanged set writes nothing. Pass no
--permission flags to clear the role.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := openBundle()
		if err != nil {
			return err
		}
		defer bundle.Close()

		ctx := cmd.Context()
		role, err := bundle.Service.GetRoleByName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("role %q: %w", args[0], err)
		}
		permissionIDs, err := cmdutil.PermissionIDs(ctx, bundle.Service, permissionsInput)
		if err != nil {
			return err
		}
		result, err := bundle.Service.ReconcileRolePermissions(ctx, role.ID, permissionIDs)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d added, %d removed\n", role.Name, len(result.Added), len(result.Removed))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a role; its user assignments are removed with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := openBundle()
		if err != nil {
			return err
		}
		defer bundle.Close()

		ctx := cmd.Context()
		role, err := bundle.Service.GetRoleByName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("role %q: %w", args[0], err)
		}
		if err := bundle.Service.DeleteRole(ctx, role.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Role %s deleted\n", role.Name)
		return nil
	},
}

func openBundle() (*cmdutil.IAMServiceBundle, error) {
	cfg, log, err := cmdutil.Runtime()
	if err != nil {
		return nil, err
	}
	return cmdutil.NewIAMServiceBundle(cfg, log, cmdutil.IAMServiceOptions{})
}

func init() {
	createCmd.Flags().StringVar(&descriptionFlag, "description", "", "Role description")
	createCmd.Flags().StringSliceVar(&permissionsInput, "permission", []string{}, "Permission name(s) to grant, e.g. users_get")
	setPermissionsCmd.Flags().StringSliceVar(&permissionsInput, "permission", []string{}, "Desired permission name(s)")

	RolesCmd.AddCommand(createCmd, listCmd, setPermissionsCmd, deleteCmd)
}
