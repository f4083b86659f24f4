package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemadelta/cli/internal/ui"
	"github.com/satishbabariya/schemadelta/migrate/history"
	"github.com/satishbabariya/schemadelta/migrate/introspect"
)

func newInspectCommand(root *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "inspect [table...]",
		Short: "Show the tables, columns and constraints of the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := root.load(cmd)
			if err != nil {
				return err
			}
			db, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			in, err := introspect.NewIntrospector(db, e.cfg.Provider)
			if err != nil {
				return err
			}
			schema, err := in.Introspect(ctx)
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				for _, n := range schema.TableNames() {
					if n != history.TableName || all {
						names = append(names, n)
					}
				}
			}
			for _, name := range names {
				t, err := schema.Table(name)
				if err != nil {
					return err
				}
				if err := printTable(e.out, t); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include the migration history table")
	return cmd
}

func printTable(p *ui.Printer, t *introspect.Table) error {
	p.Section(t.Name)

	rows := make([][]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := ""
		if c.DefaultValue != nil {
			def = *c.DefaultValue
		}
		var notes []string
		if t.PrimaryKey != nil && contains(t.PrimaryKey.Columns, c.Name) {
			notes = append(notes, "primary key")
		}
		if c.AutoIncrement {
			notes = append(notes, "auto")
		}
		if t.IsUnique(c.Name) {
			notes = append(notes, "unique")
		}
		if fk, ok := t.ForeignKeyOn(c.Name); ok {
			notes = append(notes, fmt.Sprintf("-> %s(%s) on delete %s",
				fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "), strings.ToLower(fk.OnDelete)))
		}
		rows = append(rows, []string{c.Name, c.Type, yesNo(c.Nullable), def, strings.Join(notes, ", ")})
	}
	if err := p.Table([]string{"Column", "Type", "Null", "Default", "Constraints"}, rows); err != nil {
		return err
	}
	for _, check := range t.Checks {
		p.Info("CHECK %s", check)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
