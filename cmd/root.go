package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terraconstructs/gatekeeper/cmd/catalog"
	"github.com/terraconstructs/gatekeeper/cmd/cmdutil"
	"github.com/terraconstructs/gatekeeper/cmd/roles"
	"github.com/terraconstructs/gatekeeper/cmd/users"
	"github.com/terraconstructs/gatekeeper/internal/config"
	"github.com/terraconstructs/gatekeeper/internal/logging"
)

var (
	cfg     *config.Config
	logger  *logrus.Logger
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Gatekeeper authentication and authorization server",
	Long: `Gatekeeper issues scoped bearer tokens for local and external identities
and enforces role and permission based access to its admin API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.SetConfigName("gatekeeper")
			viper.AddConfigPath(".")
			viper.AddConfigPath("/etc/gatekeeper")
		}
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if cfgFile != "" || !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger, err = logging.New(cfg.Log, cfg.Debug)
		if err != nil {
			return err
		}
		cmdutil.SetRuntime(cfg, logger)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	flags.String("db-url", "", "Database connection URL (env: GATEKEEPER_DATABASE_URL)")
	flags.String("server-addr", "", "Server bind address (env: GATEKEEPER_SERVER_ADDR)")
	flags.String("public-url", "", "Public base URL used in emailed links (env: GATEKEEPER_PUBLIC_URL)")
	flags.Bool("debug", false, "Enable debug logging (env: GATEKEEPER_DEBUG)")

	cobra.CheckErr(viper.BindPFlag("database_url", flags.Lookup("db-url")))
	cobra.CheckErr(viper.BindPFlag("server_addr", flags.Lookup("server-addr")))
	cobra.CheckErr(viper.BindPFlag("public_url", flags.Lookup("public-url")))
	cobra.CheckErr(viper.BindPFlag("debug", flags.Lookup("debug")))

	rootCmd.AddCommand(catalog.CatalogCmd)
	rootCmd.AddCommand(users.UsersCmd)
	rootCmd.AddCommand(roles.RolesCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
