package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemadelta/cli/internal/ui"
	"github.com/satishbabariya/schemadelta/cli/internal/update"
	"github.com/satishbabariya/schemadelta/cli/internal/version"
	"github.com/satishbabariya/schemadelta/migrate/executor"
)

func newShowMigrationsCommand(root *rootOptions) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "showmigrations [app...]",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := root.load(cmd)
			if err != nil {
				return err
			}
			g, err := e.graph()
			if err != nil {
				return err
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
			statuses, err := ex.Status(ctx)
			if err != nil {
				return err
			}
			statuses = filterApps(statuses, args)

			if plain {
				writePlainStatus(cmd.OutOrStdout(), statuses)
			} else {
				if err := printStatusTables(e.out, statuses); err != nil {
					return err
				}
			}
			warnNewerHistory(e.out, statuses)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print one line per migration without colors")
	return cmd
}

func filterApps(statuses []executor.Status, apps []string) []executor.Status {
	if len(apps) == 0 {
		return statuses
	}
	want := make(map[string]bool, len(apps))
	for _, a := range apps {
		want[a] = true
	}
	var out []executor.Status
	for _, st := range statuses {
		if want[st.Key.App] {
			out = append(out, st)
		}
	}
	return out
}

func writePlainStatus(w io.Writer, statuses []executor.Status) {
	for _, st := range statuses {
		mark := "[ ]"
		if st.Applied {
			mark = "[X]"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, st.Key, statusNote(st))
	}
}

func statusNote(st executor.Status) string {
	switch {
	case st.Unknown:
		return " (not in the migration graph)"
	case st.Drift:
		return " (changed since applied)"
	}
	return ""
}

func printStatusTables(p *ui.Printer, statuses []executor.Status) error {
	var app string
	var rows [][]string
	flush := func() error {
		defer func() { rows = nil }()
		if len(rows) == 0 {
			return nil
		}
		p.Section(app)
		return p.Table([]string{"", "Migration", "Applied at", "Notes"}, rows)
	}
	for _, st := range statuses {
		if st.Key.App != app {
			if err := flush(); err != nil {
				return err
			}
			app = st.Key.App
		}
		applied := ""
		if st.Applied {
			applied = st.AppliedAt.Local().Format("2006-01-02 15:04:05")
		}
		note := statusNote(st)
		if note != "" {
			note = ui.Highlight(note[1:])
		}
		rows = append(rows, []string{ui.StatusMark(st.Applied), st.Key.Name, applied, note})
	}
	if err := flush(); err != nil {
		return err
	}

	for _, st := range statuses {
		if st.Drift {
			p.Warning("%s was edited after it was applied", st.Key)
		}
		if st.Unknown {
			p.Warning("%s is recorded as applied but no longer exists", st.Key)
		}
	}
	return nil
}

// warnNewerHistory flags history rows written by a newer binary.
func warnNewerHistory(p *ui.Printer, statuses []executor.Status) {
	var recorded []string
	for _, st := range statuses {
		if st.ToolVersion != "" {
			recorded = append(recorded, st.ToolVersion)
		}
	}
	newest, err := update.NewestRecorded(version.Version, recorded)
	if err != nil || newest == nil {
		return
	}
	p.Warning("Migrations were applied by schemadelta %s; this is %s", newest, version.Version)
	p.Info("Upgrade with: %s", update.InstallHint(newest))
}
