package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemadelta/migrate/executor"
)

func newSQLMigrateCommand(root *rootOptions) *cobra.Command {
	var backwards, pretty bool
	cmd := &cobra.Command{
		Use:   "sqlmigrate <app> <migration>",
		Short: "Print the SQL for one migration",
		Long: `Print the statements a migration runs, assuming every migration it depends on
is applied. No database connection is made; only the provider is needed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.load(cmd)
			if err != nil {
				return err
			}
			if e.cfg.Provider == "" {
				return errors.New("no provider configured; pass --provider or --database-url")
			}
			g, err := e.graph()
			if err != nil {
				return err
			}
			key, err := resolveTarget(g, args[0], args[1])
			if err != nil {
				return err
			}
			if key.Name == executor.Zero {
				return errors.New(`"zero" is not a migration`)
			}

			stmts, err := executor.CollectSQL(g, e.cfg.Provider, key, backwards)
			if err != nil {
				return err
			}

			var b strings.Builder
			b.WriteString("BEGIN;\n")
			for _, s := range stmts {
				b.WriteString(strings.TrimSpace(s))
				b.WriteString(";\n")
			}
			b.WriteString("COMMIT;\n")

			if pretty {
				e.out.SQL(e.cfg.Provider, b.String())
				return nil
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), b.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&backwards, "backwards", false, "print the SQL that unapplies the migration")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "render the SQL in a styled block")
	return cmd
}
