package executor_test

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemadelta/apps"
	auth "github.com/satishbabariya/schemadelta/apps/auth/migrations"
	groupapp "github.com/satishbabariya/schemadelta/apps/groupapp/migrations"
	"github.com/satishbabariya/schemadelta/migrate/database"
	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/executor"
	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/graph"
	"github.com/satishbabariya/schemadelta/migrate/history"
	"github.com/satishbabariya/schemadelta/migrate/introspect"
	"github.com/satishbabariya/schemadelta/migrate/operation"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

var (
	authInitial  = auth.Initial.Key()
	groupInitial = groupapp.Initial.Key()
	groupSecond  = groupapp.GroupMatchGroup2Accept.Key()
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func bundledGraph(t *testing.T) *graph.Graph {
	t.Helper()
	reg, err := apps.Registry()
	require.NoError(t, err)
	g, err := graph.Build(reg, nil)
	require.NoError(t, err)
	return g
}

func graphOf(t *testing.T, ms ...*descriptor.Migration) *graph.Graph {
	t.Helper()
	reg := descriptor.NewRegistry()
	require.NoError(t, reg.Register(ms...))
	g, err := graph.Build(reg, nil)
	require.NoError(t, err)
	return g
}

func newExecutor(t *testing.T, db *sql.DB, g *graph.Graph, opts ...executor.Option) *executor.Executor {
	t.Helper()
	ex, err := executor.New(db, "sqlite", g, append([]executor.Option{executor.WithToolVersion("0.1.0")}, opts...)...)
	require.NoError(t, err)
	return ex
}

func migrateTo(t *testing.T, ex *executor.Executor, targets ...descriptor.Key) []executor.Result {
	t.Helper()
	ctx := context.Background()
	plan, err := ex.Plan(ctx, targets...)
	require.NoError(t, err)
	results, err := ex.Migrate(ctx, plan, executor.RunOptions{})
	require.NoError(t, err)
	return results
}

func schemaOf(t *testing.T, db *sql.DB) *introspect.DatabaseSchema {
	t.Helper()
	in, err := introspect.NewIntrospector(db, "sqlite")
	require.NoError(t, err)
	s, err := in.Introspect(context.Background())
	require.NoError(t, err)
	return s
}

func table(t *testing.T, db *sql.DB, name string) *introspect.Table {
	t.Helper()
	tbl, err := schemaOf(t, db).Table(name)
	require.NoError(t, err)
	return tbl
}

func steps(plan *executor.Plan) []string {
	out := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		out[i] = s.String()
	}
	return out
}

// TestPlan tests target resolution into ordered steps.
func TestPlan(t *testing.T) {
	ctx := context.Background()
	ex := newExecutor(t, openDB(t), bundledGraph(t))

	plan, err := ex.Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"apply auth.0001_initial",
		"apply groupApp.0001_initial",
		"apply groupApp.0002_groupmatch_group2accept_and_more",
	}, steps(plan))

	plan, err = ex.Plan(ctx, groupInitial)
	require.NoError(t, err)
	assert.Equal(t, []string{"apply auth.0001_initial", "apply groupApp.0001_initial"}, steps(plan))

	plan, err = ex.Plan(ctx, descriptor.Key{App: groupapp.App, Name: executor.Zero})
	require.NoError(t, err)
	assert.True(t, plan.Empty())

	_, err = ex.Plan(ctx, descriptor.Key{App: groupapp.App, Name: "0009_missing"})
	assert.Error(t, err)
	_, err = ex.Plan(ctx, descriptor.Key{App: "nope", Name: executor.Zero})
	assert.Error(t, err)
}

// TestMigrateAppliesDescriptor tests the schema after every migration is
// applied.
func TestMigrateAppliesDescriptor(t *testing.T) {
	db := openDB(t)
	var logs bytes.Buffer
	ex := newExecutor(t, db, bundledGraph(t), executor.WithLogger(pterm.DefaultLogger.WithWriter(&logs)))

	results := migrateTo(t, ex)
	require.Len(t, results, 3)
	assert.Equal(t, groupSecond, results[2].Step.Key)
	assert.Len(t, results[2].Statements, 9, "one ADD COLUMN plus two table rebuilds")
	assert.Contains(t, logs.String(), "apply groupApp.0002_groupmatch_group2accept_and_more")

	match := table(t, db, "groupapp_groupmatch")
	col, ok := match.Column("group2Accept")
	require.True(t, ok)
	assert.Equal(t, "bool", col.Type)
	assert.False(t, col.Nullable)
	require.NotNil(t, col.DefaultValue)
	assert.Equal(t, "0", *col.DefaultValue)

	group := table(t, db, "groupapp_interestgroup")
	assert.True(t, group.HasCheck("description", "<= 500"))
	desc, ok := group.Column("description")
	require.True(t, ok)
	assert.Equal(t, "text", desc.Type)
	assert.Equal(t, "''", *desc.DefaultValue)

	assert.True(t, group.IsUnique("groupAdmin_id"))
	fk, ok := group.ForeignKeyOn("groupAdmin_id")
	require.True(t, ok)
	assert.Equal(t, "auth_user", fk.ReferencedTable)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	assert.Equal(t, "NO ACTION", fk.OnDelete)

	// The graph's final state carries the reverse accessor.
	p, err := ex.Graph().StateAt(map[descriptor.Key]bool{authInitial: true, groupInitial: true, groupSecond: true})
	require.NoError(t, err)
	m, err := p.Model(groupapp.App, "InterestGroup")
	require.NoError(t, err)
	admin, _ := m.Get("groupAdmin")
	assert.Equal(t, "admin", state.ReverseAccessor(m, admin))

	// Running again does nothing.
	assert.Empty(t, migrateTo(t, ex))
	applied, err := ex.Applied(context.Background())
	require.NoError(t, err)
	assert.Len(t, applied, 3)
	assert.Equal(t, groupapp.GroupMatchGroup2Accept.Checksum(), applied[groupSecond].Checksum)
	assert.Equal(t, "0.1.0", applied[groupSecond].ToolVersion)
}

// TestMigratePreservesRows tests that table rebuilds keep existing data and
// that the new constraints are enforced.
func TestMigratePreservesRows(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	ex := newExecutor(t, db, bundledGraph(t))
	migrateTo(t, ex, groupInitial)

	for _, stmt := range []string{
		`INSERT INTO auth_user (username) VALUES ('alice'), ('bob')`,
		`INSERT INTO groupapp_interestgroup (name, description, "groupAdmin_id") VALUES ('chess', 'weekly games', 1)`,
		`INSERT INTO groupapp_groupmatch (group1_id, group2_id, "group1Accept") VALUES (1, 1, 1)`,
	} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	migrateTo(t, ex)

	var description string
	var adminID int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT description, "groupAdmin_id" FROM groupapp_interestgroup WHERE name = 'chess'`).Scan(&description, &adminID))
	assert.Equal(t, "weekly games", description)
	assert.Equal(t, 1, adminID)

	var accept1, accept2 int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT "group1Accept", "group2Accept" FROM groupapp_groupmatch`).Scan(&accept1, &accept2))
	assert.Equal(t, 1, accept1)
	assert.Equal(t, 0, accept2)

	_, err := db.ExecContext(ctx,
		`INSERT INTO groupapp_interestgroup (name, description, "groupAdmin_id") VALUES ('go', ?, 2)`, strings.Repeat("x", 501))
	assert.Error(t, err, "descriptions are bounded")

	_, err = db.ExecContext(ctx,
		`INSERT INTO groupapp_interestgroup (name, description, "groupAdmin_id") VALUES ('go', ?, 2)`, strings.Repeat("x", 500))
	assert.NoError(t, err)

	_, err = db.ExecContext(ctx, `DELETE FROM auth_user WHERE id = 1`)
	assert.Error(t, err, "deleting an admin no longer cascades")
}

// TestMigrateBackwards tests unapplying to an earlier migration and to zero.
func TestMigrateBackwards(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	ex := newExecutor(t, db, bundledGraph(t))
	migrateTo(t, ex)

	plan, err := ex.Plan(ctx, groupInitial)
	require.NoError(t, err)
	assert.Equal(t, []string{"unapply groupApp.0002_groupmatch_group2accept_and_more"}, steps(plan))
	_, err = ex.Migrate(ctx, plan, executor.RunOptions{})
	require.NoError(t, err)

	match := table(t, db, "groupapp_groupmatch")
	_, ok := match.Column("group2Accept")
	assert.False(t, ok)
	group := table(t, db, "groupapp_interestgroup")
	assert.Empty(t, group.Checks)
	fk, ok := group.ForeignKeyOn("groupAdmin_id")
	require.True(t, ok)
	assert.Equal(t, "CASCADE", fk.OnDelete)
	assert.True(t, group.IsUnique("groupAdmin_id"))

	plan, err = ex.Plan(ctx, descriptor.Key{App: groupapp.App, Name: executor.Zero})
	require.NoError(t, err)
	assert.Equal(t, []string{"unapply groupApp.0001_initial"}, steps(plan))
	_, err = ex.Migrate(ctx, plan, executor.RunOptions{})
	require.NoError(t, err)

	names := schemaOf(t, db).TableNames()
	assert.ElementsMatch(t, []string{"auth_user", history.TableName}, names)

	applied, err := ex.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
	assert.Contains(t, applied, authInitial)

	// Unapplying auth takes its dependants with it.
	migrateTo(t, ex)
	plan, err = ex.Plan(ctx, descriptor.Key{App: auth.App, Name: executor.Zero})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"unapply groupApp.0002_groupmatch_group2accept_and_more",
		"unapply groupApp.0001_initial",
		"unapply auth.0001_initial",
	}, steps(plan))
}

func TestMigrateFake(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	ex := newExecutor(t, db, bundledGraph(t))

	plan, err := ex.Plan(ctx)
	require.NoError(t, err)
	results, err := ex.Migrate(ctx, plan, executor.RunOptions{Fake: true})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Fake)

	assert.Equal(t, []string{history.TableName}, schemaOf(t, db).TableNames())
	applied, err := ex.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 3)
}

// TestStatementFailureRollsBack tests that a failing statement leaves
// neither schema changes nor a history row.
func TestStatementFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	_, err := db.ExecContext(ctx, `CREATE TABLE groupapp_extra (id integer)`)
	require.NoError(t, err)

	broken := &descriptor.Migration{
		App:          groupapp.App,
		Name:         "0003_broken",
		Dependencies: []descriptor.Dependency{descriptor.DependsOn(groupapp.App, groupSecond.Name)},
		Operations: []operation.Operation{
			operation.AddField{Model: "groupmatch", Name: "note", Field: field.TextField(field.Default(""))},
			operation.CreateModel{Name: "Extra", Fields: []state.NamedField{{Name: "id", Field: field.AutoField()}}},
		},
	}
	ms := append(apps.Migrations(), broken)
	ex := newExecutor(t, db, graphOf(t, ms...))

	plan, err := ex.Plan(ctx)
	require.NoError(t, err)
	results, err := ex.Migrate(ctx, plan, executor.RunOptions{})
	require.Error(t, err)
	assert.Len(t, results, 3)

	var stmtErr *executor.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, broken.Key(), stmtErr.Key)
	assert.Equal(t, 1, stmtErr.Index)
	assert.Contains(t, stmtErr.SQL, `CREATE TABLE "groupapp_extra"`)

	_, ok := table(t, db, "groupapp_groupmatch").Column("note")
	assert.False(t, ok)
	applied, err := ex.Applied(ctx)
	require.NoError(t, err)
	assert.NotContains(t, applied, broken.Key())
	assert.Contains(t, applied, groupSecond)
}

func TestInconsistentHistory(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	ex := newExecutor(t, db, bundledGraph(t))

	hm, err := history.NewManager("sqlite")
	require.NoError(t, err)
	require.NoError(t, hm.InitTable(ctx, db))
	require.NoError(t, hm.Record(ctx, db, history.MigrationRecord{
		App: groupapp.App, Name: groupSecond.Name, AppliedAt: time.Now(), Checksum: "x",
	}))

	err = ex.CheckConsistentHistory(ctx)
	var inconsistent *executor.InconsistentHistoryError
	require.ErrorAs(t, err, &inconsistent)
	assert.Equal(t, groupSecond, inconsistent.Applied)

	plan, err := ex.Plan(ctx)
	require.NoError(t, err)
	_, err = ex.Migrate(ctx, plan, executor.RunOptions{})
	assert.ErrorAs(t, err, &inconsistent)
}

func TestMixedDirectionPlan(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	reports := &descriptor.Migration{
		App:          "reports",
		Name:         "0001_initial",
		Dependencies: []descriptor.Dependency{descriptor.Swappable(field.AuthUserModel)},
		Operations: []operation.Operation{
			operation.CreateModel{Name: "Report", Fields: []state.NamedField{{Name: "id", Field: field.AutoField()}}},
		},
	}
	ex := newExecutor(t, db, graphOf(t, append(apps.Migrations(), reports)...))
	migrateTo(t, ex, groupSecond)

	_, err := ex.Plan(ctx, groupInitial, reports.Key())
	assert.Error(t, err)
}

// TestStatus tests drift and unknown history rows.
func TestStatus(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	migrateTo(t, newExecutor(t, db, bundledGraph(t)), groupInitial)

	statuses, err := newExecutor(t, db, bundledGraph(t)).Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Applied)
	assert.True(t, statuses[1].Applied)
	assert.False(t, statuses[2].Applied)
	assert.Equal(t, "0.1.0", statuses[1].ToolVersion)
	assert.False(t, statuses[1].AppliedAt.IsZero())

	edited := *groupapp.Initial
	edited.Operations = edited.Operations[:1]
	statuses, err = newExecutor(t, db, graphOf(t, auth.Initial, &edited)).Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[1].Drift)

	statuses, err = newExecutor(t, db, graphOf(t, auth.All()...)).Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, groupInitial, statuses[1].Key)
	assert.True(t, statuses[1].Unknown)
}

// TestCollectSQL tests rendering without a database.
func TestCollectSQL(t *testing.T) {
	g := bundledGraph(t)

	forwards, err := executor.CollectSQL(g, "postgres", groupSecond, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`ALTER TABLE "groupapp_groupmatch" ADD COLUMN "group2Accept" boolean NOT NULL DEFAULT FALSE`,
		`ALTER TABLE "groupapp_interestgroup" ADD CONSTRAINT "groupapp_interestgroup_description_check" CHECK (char_length("description") <= 500)`,
		`ALTER TABLE "groupapp_interestgroup" DROP CONSTRAINT "groupapp_interestgroup_groupadmin_id_fk"`,
		`ALTER TABLE "groupapp_interestgroup" ADD CONSTRAINT "groupapp_interestgroup_groupadmin_id_fk" FOREIGN KEY ("groupAdmin_id") REFERENCES "auth_user" ("id") ON DELETE NO ACTION`,
	}, forwards)

	backwards, err := executor.CollectSQL(g, "postgres", groupSecond, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`ALTER TABLE "groupapp_interestgroup" DROP CONSTRAINT "groupapp_interestgroup_groupadmin_id_fk"`,
		`ALTER TABLE "groupapp_interestgroup" ADD CONSTRAINT "groupapp_interestgroup_groupadmin_id_fk" FOREIGN KEY ("groupAdmin_id") REFERENCES "auth_user" ("id") ON DELETE CASCADE`,
		`ALTER TABLE "groupapp_interestgroup" DROP CONSTRAINT "groupapp_interestgroup_description_check"`,
		`ALTER TABLE "groupapp_groupmatch" DROP COLUMN "group2Accept"`,
	}, backwards)

	sqlite, err := executor.CollectSQL(g, "sqlite", groupSecond, true)
	require.NoError(t, err)
	assert.Len(t, sqlite, 12)

	_, err = executor.CollectSQL(g, "postgres", descriptor.Key{App: groupapp.App, Name: "0009"}, false)
	assert.Error(t, err)
	_, err = executor.CollectSQL(g, "oracle", groupSecond, false)
	assert.Error(t, err)
}

// TestSwappableUserModel tests that the user model setting redirects both
// the dependency and the relation target.
func TestSwappableUserModel(t *testing.T) {
	member := &descriptor.Migration{
		App:  "accounts",
		Name: "0001_initial",
		Operations: []operation.Operation{
			operation.CreateModel{Name: "Member", Fields: []state.NamedField{{Name: "id", Field: field.AutoField()}}},
		},
	}
	reg := descriptor.NewRegistry()
	require.NoError(t, reg.Register(member))
	require.NoError(t, reg.Register(groupapp.All()...))
	g, err := graph.Build(reg, field.Settings{field.AuthUserModel: "accounts.Member"})
	require.NoError(t, err)

	db := openDB(t)
	migrateTo(t, newExecutor(t, db, g))

	fk, ok := table(t, db, "groupapp_interestgroup").ForeignKeyOn("groupAdmin_id")
	require.True(t, ok)
	assert.Equal(t, "accounts_member", fk.ReferencedTable)
}
