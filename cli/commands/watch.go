package commands

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemadelta/cli/internal/watch"
	"github.com/satishbabariya/schemadelta/migrate/dsl"
	"github.com/satishbabariya/schemadelta/migrate/executor"
)

func newWatchCommand(root *rootOptions) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Apply .delta migrations as they are written",
		Long: `Watch a directory of .delta files and migrate every app to its latest
migration whenever one changes. The directory defaults to migrations_dir.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := root.load(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				e.cfg.MigrationsDir = args[0]
			}
			if e.cfg.MigrationsDir == "" {
				e.cfg.MigrationsDir = "."
			}

			db, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			migrate := func(changed []string) error {
				for _, path := range changed {
					e.logger.Info("migration file changed", e.logger.Args("file", filepath.Base(path)))
				}
				g, err := e.graph()
				if err != nil {
					e.out.Error("%v", err)
					return nil
				}
				ex, err := e.executor(db, g)
				if err != nil {
					return err
				}
				plan, err := ex.Plan(ctx)
				if err != nil {
					e.out.Error("%v", err)
					return nil
				}
				if plan.Empty() {
					e.out.Info("Database is up to date")
					return nil
				}
				results, err := ex.Migrate(ctx, plan, executor.RunOptions{})
				for _, r := range results {
					e.out.Success("%s", r.Step)
				}
				if err != nil {
					e.out.Error("%v", err)
				}
				return nil
			}

			w, err := watch.NewWatcher(e.cfg.MigrationsDir, migrate,
				watch.WithFilter(func(path string) bool { return filepath.Ext(path) == dsl.Ext }),
				watch.WithDebounce(debounce),
				watch.WithLogger(e.logger),
			)
			if err != nil {
				return err
			}
			defer w.Stop()

			e.out.Info("Watching %s for %s files. Press Ctrl+C to stop.", w.Dir(), dsl.Ext)
			if err := w.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			return w.Stop()
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "wait this long after the last change before migrating")
	return cmd
}
