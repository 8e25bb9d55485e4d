package catalog

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/gatekeeper/internal/services/catalog"
)

var (
	resourceFlag    string
	actionsFlag     []string
	fileFlag        string
	builtinFlag     bool
	maxAttemptsFlag int
)

// CatalogCmd is the parent command for permission catalog operations
var CatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the permission catalog",
	Long: `Creates and removes the content type and permissions of a resource.

A resource is given either inline with --resource and --actions, or as a YAML
manifest with --file:

  resources:
    - name: articles
      actions: [full]
    - name: comments
      actions: [read, create]`,
}

// registryFromFlags builds the set of resources a command operates on.
func registryFromFlags() (*catalog.Registry, error) {
	sources := 0
	for _, set := range []bool{resourceFlag != "", fileFlag != "", builtinFlag} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return nil, fmt.Errorf("exactly one of --resource, --file or --builtin is required")
	}

	switch {
	case builtinFlag:
		return catalog.BuiltinRegistry(), nil
	case fileFlag != "":
		f, err := os.Open(fileFlag)
		if err != nil {
			return nil, fmt.Errorf("open manifest: %w", err)
		}
		defer f.Close()
		return catalog.LoadManifest(f)
	default:
		actions, err := catalog.ParseActions(actionsFlag)
		if err != nil {
			return nil, err
		}
		return catalog.NewRegistry(catalog.Resource{Name: resourceFlag, Actions: actions})
	}
}

func init() {
	for _, c := range []*cobra.Command{bootstrapCmd, teardownCmd} {
		c.Flags().StringVar(&resourceFlag, "resource", "", "Resource name in lower_snake_case")
		c.Flags().StringSliceVar(&actionsFlag, "actions", []string{"full"}, "Actions: create, get, get_all, update, delete, read or full")
		c.Flags().StringVarP(&fileFlag, "file", "f", "", "YAML resource manifest")
		c.Flags().BoolVar(&builtinFlag, "builtin", false, "Operate on the built-in resources")
		CatalogCmd.AddCommand(c)
	}
	bootstrapCmd.Flags().IntVar(&maxAttemptsFlag, "max-attempts", catalog.DefaultMaxAttempts, "Transaction attempts per resource when a concurrent bootstrap wins a race")
}
