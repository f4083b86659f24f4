package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/diff"
	"github.com/satishbabariya/schemadelta/migrate/executor"
	"github.com/satishbabariya/schemadelta/migrate/graph"
	"github.com/satishbabariya/schemadelta/migrate/introspect"
	"github.com/satishbabariya/schemadelta/migrate/shadow"
)

type migrateOptions struct {
	fake      bool
	plan      bool
	check     bool
	noInput   bool
	shadowURL string
}

func newMigrateCommand(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate [app] [migration]",
		Short: "Apply or unapply migrations",
		Long: `Bring the database schema in line with the migration graph.

With no arguments every app is migrated to its latest migration. With an app,
that app is migrated to its latest migration. With an app and a migration name
(or a unique prefix of one) the database is moved to exactly that migration,
unapplying later ones if needed. Use "zero" to unapply every migration of an app.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, root, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.fake, "fake", false, "record the migrations as applied or unapplied without running their SQL")
	cmd.Flags().BoolVar(&opts.plan, "plan", false, "show the operations that would run and exit")
	cmd.Flags().BoolVar(&opts.check, "check", false, "verify the graph on a shadow database and exit non-zero if migrations are pending")
	cmd.Flags().BoolVar(&opts.noInput, "noinput", false, "do not prompt before unapplying migrations")
	cmd.Flags().StringVar(&opts.shadowURL, "shadow-database-url", "", "database used by --check (derived from the main URL by default)")
	return cmd
}

func runMigrate(cmd *cobra.Command, root *rootOptions, opts *migrateOptions, args []string) error {
	ctx := cmd.Context()
	e, err := root.load(cmd)
	if err != nil {
		return err
	}
	g, err := e.graph()
	if err != nil {
		return err
	}

	var targets []descriptor.Key
	if len(args) > 0 {
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		target, err := resolveTarget(g, args[0], name)
		if err != nil {
			return err
		}
		targets = append(targets, target)
	}

	db, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	ex, err := e.executor(db, g)
	if err != nil {
		return err
	}
	if err := ex.CheckConsistentHistory(ctx); err != nil {
		return err
	}

	plan, err := ex.Plan(ctx, targets...)
	if err != nil {
		return err
	}

	switch {
	case opts.plan:
		return e.out.Markdown(planMarkdown(g, plan))
	case opts.check:
		report, err := verifyShadow(ctx, e, g, opts.shadowURL)
		if err != nil {
			return err
		}
		if !plan.Empty() {
			return fmt.Errorf("%d unapplied migration(s)", len(plan.Steps))
		}
		changes, err := liveDrift(ctx, e, db, report.Schema)
		if err != nil {
			return err
		}
		if len(changes) > 0 {
			for _, c := range changes {
				e.out.Warning("%s", c)
			}
			return fmt.Errorf("database schema differs from its migrations in %d place(s)", len(changes))
		}
		e.out.Success("No unapplied migrations")
		return nil
	}

	if plan.Empty() {
		e.out.Info("No migrations to apply.")
		return nil
	}

	if plan.Steps[0].Backwards && !opts.noInput {
		ok := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Unapply %d migration(s)? Dropped columns and tables lose their data.", len(plan.Steps)),
		}
		if err := survey.AskOne(prompt, &ok); err != nil {
			return err
		}
		if !ok {
			e.out.Warning("Cancelled")
			return nil
		}
	}

	results, err := ex.Migrate(ctx, plan, executor.RunOptions{Fake: opts.fake})
	for _, r := range results {
		suffix := ""
		if r.Fake {
			suffix = " (faked)"
		}
		e.out.Success("%s: %d statement(s) in %s%s", r.Step, len(r.Statements), r.Duration.Round(time.Millisecond), suffix)
	}
	return err
}

func verifyShadow(ctx context.Context, e *env, g *graph.Graph, shadowURL string) (*shadow.Report, error) {
	sdb, err := shadow.NewShadowDB(e.cfg.Provider, e.cfg.DatabaseURL, shadowURL)
	if err != nil {
		return nil, err
	}
	defer sdb.Close()

	report, err := sdb.Verify(ctx, g, executorOptions(e)...)
	if err != nil {
		return nil, err
	}
	e.out.Success("Shadow database: applied %d and unapplied %d migration(s)", len(report.Applied), len(report.Unapplied))
	return report, nil
}

// liveDrift compares the live schema with the fully migrated shadow schema.
func liveDrift(ctx context.Context, e *env, db *sql.DB, expected *introspect.DatabaseSchema) ([]diff.Change, error) {
	in, err := introspect.NewIntrospector(db, e.cfg.Provider)
	if err != nil {
		return nil, err
	}
	actual, err := in.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	d, err := diff.NewDiffer(e.cfg.Provider)
	if err != nil {
		return nil, err
	}
	return d.Diff(expected, actual), nil
}

// planMarkdown renders a plan with each migration's operations.
func planMarkdown(g *graph.Graph, plan *executor.Plan) string {
	var b strings.Builder
	b.WriteString("# Migration plan\n\n")
	if plan.Empty() {
		b.WriteString("No planned migration operations.\n")
		return b.String()
	}
	for i, step := range plan.Steps {
		verb := "Apply"
		if step.Backwards {
			verb = "Unapply"
		}
		fmt.Fprintf(&b, "%d. **%s** `%s`\n", i+1, verb, step.Key)
		m, ok := g.Migration(step.Key)
		if !ok {
			continue
		}
		for _, op := range m.Operations {
			desc := op.Describe()
			if step.Backwards && !op.Reversible() {
				desc += " (irreversible)"
			}
			fmt.Fprintf(&b, "    - %s\n", desc)
		}
	}
	return b.String()
}
