// Package commands implements the schemadelta command line.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemadelta/cli/internal/ui"
	"github.com/satishbabariya/schemadelta/cli/internal/version"
)

type rootOptions struct {
	configFile    string
	databaseURL   string
	provider      string
	migrationsDir string
	logLevel      string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "schemadelta",
		Short: "Apply schema delta descriptors to a database",
		Long: `schemadelta resolves migration dependencies, applies each migration in its own
transaction and records it in the _schemadelta_migrations table.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default .schemadelta.yaml in ., $HOME or $HOME/.config/schemadelta)")
	pf.StringVar(&opts.databaseURL, "database-url", "", "database connection URL (overrides DATABASE_URL)")
	pf.StringVar(&opts.provider, "provider", "", "database provider: postgres, mysql or sqlite")
	pf.StringVar(&opts.migrationsDir, "migrations-dir", "", "directory of .delta files loaded alongside the bundled migrations")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")

	cmd.AddCommand(
		newMigrateCommand(opts),
		newShowMigrationsCommand(opts),
		newSQLMigrateCommand(opts),
		newInspectCommand(opts),
		newWatchCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute is the main entry point for the CLI
func Execute() error {
	err := NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		ui.PrintError("%v", err)
	}
	return err
}
