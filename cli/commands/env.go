package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satishbabariya/schemadelta/apps"
	"github.com/satishbabariya/schemadelta/cli/internal/config"
	"github.com/satishbabariya/schemadelta/cli/internal/ui"
	"github.com/satishbabariya/schemadelta/cli/internal/version"
	"github.com/satishbabariya/schemadelta/migrate/database"
	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/dsl"
	"github.com/satishbabariya/schemadelta/migrate/executor"
	"github.com/satishbabariya/schemadelta/migrate/graph"
)

var errNoDatabase = errors.New("no database configured; set DATABASE_URL or pass --database-url")

// env is the resolved configuration shared by every command.
type env struct {
	cfg    *config.Config
	logger *pterm.Logger
	out    *ui.Printer
}

func (o *rootOptions) load(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(viper.New(), o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("database-url") {
		cfg.DatabaseURL = o.databaseURL
		cfg.Provider = database.DetectProvider(o.databaseURL)
	}
	if flags.Changed("provider") {
		cfg.Provider = o.provider
	}
	if flags.Changed("migrations-dir") {
		cfg.MigrationsDir = o.migrationsDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(o.logLevel)
	}

	return &env{
		cfg:    cfg,
		logger: ui.NewLogger(cfg.LogLevel, cmd.ErrOrStderr()),
		out:    ui.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}, nil
}

// graph builds the dependency graph of the bundled migrations plus any
// .delta files in the migrations directory.
func (e *env) graph() (*graph.Graph, error) {
	var extra []*descriptor.Migration
	if e.cfg.MigrationsDir != "" {
		var err error
		if extra, err = dsl.LoadDir(config.AppFs, e.cfg.MigrationsDir); err != nil {
			return nil, err
		}
	}
	reg, err := apps.Registry(extra...)
	if err != nil {
		return nil, err
	}
	return graph.Build(reg, e.cfg.Settings())
}

func (e *env) open(ctx context.Context) (*sql.DB, error) {
	if e.cfg.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	return database.Open(ctx, e.cfg.Provider, e.cfg.DatabaseURL)
}

func (e *env) executor(db *sql.DB, g *graph.Graph) (*executor.Executor, error) {
	return executor.New(db, e.cfg.Provider, g, executorOptions(e)...)
}

func executorOptions(e *env) []executor.Option {
	return []executor.Option{
		executor.WithLogger(e.logger),
		executor.WithToolVersion(version.Version),
	}
}

// resolveTarget turns command arguments into a migration key. name may be
// a unique prefix of a migration name, or "zero".
func resolveTarget(g *graph.Graph, app, name string) (descriptor.Key, error) {
	if len(g.Roots(app)) == 0 {
		return descriptor.Key{}, fmt.Errorf("app %q has no migrations", app)
	}
	if name == "" {
		leaf, _ := g.Leaf(app)
		return leaf, nil
	}
	if name == executor.Zero {
		return descriptor.Key{App: app, Name: executor.Zero}, nil
	}
	if key := (descriptor.Key{App: app, Name: name}); g.Has(key) {
		return key, nil
	}
	var matches []descriptor.Key
	for _, k := range g.Keys() {
		if k.App == app && strings.HasPrefix(k.Name, name) {
			matches = append(matches, k)
		}
	}
	switch len(matches) {
	case 0:
		return descriptor.Key{}, fmt.Errorf("cannot find a migration matching %q in app %q", name, app)
	case 1:
		return matches[0], nil
	default:
		return descriptor.Key{}, fmt.Errorf("more than one migration matches %q in app %q", name, app)
	}
}
