package users

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/gatekeeper/cmd/cmdutil"
	"github.com/terraconstructs/gatekeeper/internal/services/iam"
)

var (
	emailFlag        string
	passwordFlag     string
	stdinFlag        bool
	firstNameFlag    string
	lastNameFlag     string
	staffFlag        bool
	superUserFlag    bool
	rolesInput       []string
	permissionsInput []string
	limitFlag        int
	offsetFlag       int
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	Long: `Creates a verified, active local account. Use --super-user --staff to
create the first administrator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		cfg, log, err := cmdutil.Runtime()
		if err != nil {
			return err
		}
		bundle, err := cmdutil.NewIAMServiceBundle(cfg, log, cmdutil.IAMServiceOptions{})
		if err != nil {
			return err
		}
		defer bundle.Close()

		ctx := cmd.Context()
		roleIDs, err := cmdutil.RoleIDs(ctx, bundle.Service, rolesInput)
		if err != nil {
			return err
		}

		user, err := bundle.Service.CreateUser(ctx, iam.CreateUserInput{
			Email:       emailFlag,
			Password:    password,
			FirstName:   firstNameFlag,
			LastName:    lastNameFlag,
			IsStaff:     staffFlag,
			IsSuperUser: superUserFlag,
			RoleIDs:     roleIDs,
		})
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "User created successfully!")
		fmt.Fprintln(out, "----------------------------------------")
		fmt.Fprintf(out, "User ID: %s\n", user.ID)
		fmt.Fprintf(out, "Email: %s\n", user.Email)
		fmt.Fprintf(out, "Staff: %t  Super user: %t\n", user.IsStaff, user.IsSuperUser)
		if len(rolesInput) > 0 {
			fmt.Fprintf(out, "Roles: %s\n", strings.ToUpper(strings.Join(rolesInput, ", ")))
		} else {
			fmt.Fprintf(out, "Roles: %s\n", cfg.Security.DefaultRole)
		}
		fmt.Fprintln(out, "----------------------------------------")
		return nil
	},
}
