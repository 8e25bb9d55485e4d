package catalog

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/gatekeeper/cmd/cmdutil"
	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
	"github.com/terraconstructs/gatekeeper/internal/services/catalog"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create a resource's content type and permissions",
	Long: `Ensures a content type and one permission per declared action exist.
Existing rows are kept, so the command is safe to re-run.

Example:
  gatekeeper catalog bootstrap --resource articles --actions read,create`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := cmdutil.Runtime()
		if err != nil {
			return err
		}
		reg, err := registryFromFlags()
		if err != nil {
			return err
		}

		db, err := cmdutil.OpenDB(cfg)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		results, err := catalog.NewBootstrapper(db, log).WithMaxAttempts(maxAttemptsFlag).BootstrapAll(cmd.Context(), reg)
		out := cmd.OutOrStdout()
		for _, r := range results {
			fmt.Fprintf(out, "%s: created [%s], existing [%s]\n",
				r.Resource, strings.Join(r.Created, ", "), strings.Join(r.Existing, ", "))
		}
		return err
	},
}

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete a resource's permissions",
	Long: `Deletes exactly the permissions named by the declared actions. The content
type is removed once it owns no permissions. Role and user grants of the
deleted permissions are removed with them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := cmdutil.Runtime()
		if err != nil {
			return err
		}
		reg, err := registryFromFlags()
		if err != nil {
			return err
		}

		db, err := cmdutil.OpenDB(cfg)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		b := catalog.NewBootstrapper(db, log)
		resources := reg.Resources()
		out := cmd.OutOrStdout()
		for i := len(resources) - 1; i >= 0; i-- {
			r, err := b.Teardown(cmd.Context(), resources[i])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %d permission(s) deleted, content type deleted: %t\n",
				r.Resource, r.PermissionsDeleted, r.ContentTypeDeleted)
		}
		return nil
	},
}
