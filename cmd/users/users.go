package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for user management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
	Long:  `Commands for managing user accounts directly from the server.`,
}

func init() {
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the user (use --stdin to avoid shell history)")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")
	createCmd.Flags().StringVar(&firstNameFlag, "first-name", "", "First name")
	createCmd.Flags().StringVar(&lastNameFlag, "last-name", "", "Last name")
	createCmd.Flags().BoolVar(&staffFlag, "staff", false, "Allow access to the admin API")
	createCmd.Flags().BoolVar(&superUserFlag, "super-user", false, "Bypass every scope check")
	createCmd.Flags().StringSliceVar(&rolesInput, "role", []string{}, "Role(s) to assign; defaults to the configured default role")
	UsersCmd.AddCommand(createCmd)

	for _, c := range []*cobra.Command{activateCmd, deactivateCmd} {
		c.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
		UsersCmd.AddCommand(c)
	}

	grantCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
	grantCmd.Flags().StringSliceVar(&rolesInput, "role", []string{}, "Role(s) to assign")
	grantCmd.Flags().StringSliceVar(&permissionsInput, "permission", []string{}, "Permission(s) to grant directly")
	UsersCmd.AddCommand(grantCmd)

	listCmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum number of users to list (0 lists all)")
	listCmd.Flags().IntVar(&offsetFlag, "offset", 0, "Number of users to skip")
	UsersCmd.AddCommand(listCmd)
}
