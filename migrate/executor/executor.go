// Package executor applies migration plans to databases.
//
// Every migration runs in its own transaction together with the history
// row that records it, so a failed migration leaves neither schema changes
// nor a record behind (on databases with transactional DDL).
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"

	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/graph"
	"github.com/satishbabariya/schemadelta/migrate/history"
	"github.com/satishbabariya/schemadelta/migrate/sqlgen"
)

// Zero is the target name that unapplies every migration of an app.
const Zero = "zero"

// Step is one migration in a plan.
type Step struct {
	Key       descriptor.Key
	Backwards bool
}

func (s Step) String() string {
	if s.Backwards {
		return "unapply " + s.Key.String()
	}
	return "apply " + s.Key.String()
}

// Plan is an ordered list of steps, all in the same direction.
type Plan struct {
	Steps []Step
}

// Empty reports whether there is nothing to do.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}

// InconsistentHistoryError reports an applied migration whose dependency
// is not applied.
type InconsistentHistoryError struct {
	Applied    descriptor.Key
	Dependency descriptor.Key
}

func (e *InconsistentHistoryError) Error() string {
	return fmt.Sprintf("migration %s is applied before its dependency %s", e.Applied, e.Dependency)
}

// StatementError wraps a failed statement.
type StatementError struct {
	Key   descriptor.Key
	Index int
	SQL   string
	Err   error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("migration %s statement %d failed: %v\n%s", e.Key, e.Index+1, e.Err, e.SQL)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Result describes one executed step.
type Result struct {
	Step       Step
	Statements []string
	Duration   time.Duration
	Fake       bool
}

// Status is the applied state of one migration.
type Status struct {
	Key         descriptor.Key
	Applied     bool
	AppliedAt   time.Time
	ToolVersion string
	// Drift is set when the recorded checksum no longer matches the
	// migration's operations.
	Drift bool
	// Unknown is set for history rows with no matching migration.
	Unknown bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for progress output.
func WithLogger(logger *pterm.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithToolVersion sets the version recorded with each applied migration.
func WithToolVersion(v string) Option {
	return func(e *Executor) { e.toolVersion = v }
}

// Executor runs migrations from a graph against one database.
type Executor struct {
	db          *sql.DB
	provider    string
	graph       *graph.Graph
	history     *history.Manager
	logger      *pterm.Logger
	toolVersion string
}

// New creates an executor for db.
func New(db *sql.DB, provider string, g *graph.Graph, opts ...Option) (*Executor, error) {
	normalized, err := sqlgen.NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	hm, err := history.NewManager(normalized)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		db:       db,
		provider: normalized,
		graph:    g,
		history:  hm,
		logger:   pterm.DefaultLogger.WithWriter(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Graph returns the migration graph the executor plans against.
func (e *Executor) Graph() *graph.Graph {
	return e.graph
}

// Provider returns the normalized database provider.
func (e *Executor) Provider() string {
	return e.provider
}

// Applied ensures the history table exists and returns its records.
func (e *Executor) Applied(ctx context.Context) (map[descriptor.Key]history.MigrationRecord, error) {
	if err := e.history.InitTable(ctx, e.db); err != nil {
		return nil, err
	}
	return e.history.Applied(ctx, e.db)
}

func (e *Executor) appliedSet(ctx context.Context) (map[descriptor.Key]bool, error) {
	records, err := e.Applied(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[descriptor.Key]bool, len(records))
	for k := range records {
		applied[k] = true
	}
	return applied, nil
}

// CheckConsistentHistory fails if any applied migration has an unapplied
// dependency.
func (e *Executor) CheckConsistentHistory(ctx context.Context) error {
	applied, err := e.appliedSet(ctx)
	if err != nil {
		return err
	}
	return e.checkConsistent(applied)
}

func (e *Executor) checkConsistent(applied map[descriptor.Key]bool) error {
	for _, k := range e.graph.Keys() {
		if !applied[k] {
			continue
		}
		for _, p := range e.graph.Parents(k) {
			if !applied[p] {
				return &InconsistentHistoryError{Applied: k, Dependency: p}
			}
		}
	}
	return nil
}

// Plan builds the steps needed to reach targets. A target named Zero
// unapplies its whole app; a target that is already applied unapplies the
// later migrations of its app; anything else applies the target and its
// ancestors. With no targets every app is migrated to its leaf.
func (e *Executor) Plan(ctx context.Context, targets ...descriptor.Key) (*Plan, error) {
	applied, err := e.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	return e.plan(applied, targets)
}

func (e *Executor) plan(applied map[descriptor.Key]bool, targets []descriptor.Key) (*Plan, error) {
	if len(targets) == 0 {
		targets = e.graph.Leaves()
	}
	forwards := make(map[descriptor.Key]bool)
	backwards := make(map[descriptor.Key]bool)
	unapply := func(from descriptor.Key) error {
		keys, err := e.graph.BackwardsPlan(from)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if applied[k] {
				backwards[k] = true
			}
		}
		return nil
	}

	for _, target := range targets {
		switch {
		case target.Name == Zero:
			roots := e.graph.Roots(target.App)
			if len(roots) == 0 {
				return nil, fmt.Errorf("app %s has no migrations", target.App)
			}
			for _, root := range roots {
				if err := unapply(root); err != nil {
					return nil, err
				}
			}
		case applied[target]:
			for _, child := range e.graph.Children(target) {
				if child.App != target.App {
					continue
				}
				if err := unapply(child); err != nil {
					return nil, err
				}
			}
		default:
			keys, err := e.graph.ForwardsPlan(target)
			if err != nil {
				return nil, err
			}
			for _, k := range keys {
				if !applied[k] {
					forwards[k] = true
				}
			}
		}
	}

	if len(forwards) > 0 && len(backwards) > 0 {
		return nil, fmt.Errorf("plan mixes applying and unapplying migrations; migrate one direction at a time")
	}
	plan := &Plan{}
	keys := e.graph.Keys()
	for _, k := range keys {
		if forwards[k] {
			plan.Steps = append(plan.Steps, Step{Key: k})
		}
	}
	for i := len(keys) - 1; i >= 0; i-- {
		if backwards[keys[i]] {
			plan.Steps = append(plan.Steps, Step{Key: keys[i], Backwards: true})
		}
	}
	return plan, nil
}

// RunOptions tune a Migrate call.
type RunOptions struct {
	// Fake records or removes history rows without running any SQL.
	Fake bool
}

// Migrate executes plan. Steps whose migration is already in the wanted
// state are skipped, so running the same plan twice is a no-op.
func (e *Executor) Migrate(ctx context.Context, plan *Plan, opts RunOptions) ([]Result, error) {
	applied, err := e.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.checkConsistent(applied); err != nil {
		return nil, err
	}
	if plan.Empty() {
		e.logger.Info("no migrations to apply")
		return nil, nil
	}

	ed, err := sqlgen.NewEditor(e.provider)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, step := range plan.Steps {
		m, ok := e.graph.Migration(step.Key)
		if !ok {
			return results, fmt.Errorf("unknown migration %s", step.Key)
		}
		if applied[step.Key] != step.Backwards {
			e.logger.Debug("skipping migration", e.logger.Args("migration", step.Key.String(), "backwards", step.Backwards))
			continue
		}

		var stmts []string
		if step.Backwards {
			for _, c := range e.graph.Children(step.Key) {
				if applied[c] {
					return results, &InconsistentHistoryError{Applied: c, Dependency: step.Key}
				}
			}
			rest := make(map[descriptor.Key]bool, len(applied))
			for k := range applied {
				if k != step.Key {
					rest[k] = true
				}
			}
			before, err := e.graph.StateAt(rest)
			if err != nil {
				return results, err
			}
			if stmts, err = BackwardsSQL(ed, m, before); err != nil {
				return results, err
			}
		} else {
			for _, p := range e.graph.Parents(step.Key) {
				if !applied[p] {
					return results, &InconsistentHistoryError{Applied: step.Key, Dependency: p}
				}
			}
			before, err := e.graph.StateAt(applied)
			if err != nil {
				return results, err
			}
			if _, stmts, err = ForwardsSQL(ed, m, before); err != nil {
				return results, err
			}
		}

		res, err := e.run(ctx, m, step, stmts, opts.Fake)
		if err != nil {
			e.logger.Error("migration failed", e.logger.Args("migration", step.Key.String(), "error", err))
			return results, err
		}
		results = append(results, res)
		if step.Backwards {
			delete(applied, step.Key)
		} else {
			applied[step.Key] = true
		}
		e.logger.Info(step.String(), e.logger.Args(
			"statements", len(stmts),
			"fake", opts.Fake,
			"duration", res.Duration.Round(time.Millisecond),
		))
	}
	return results, nil
}

// run executes one step inside a transaction on a dedicated connection.
func (e *Executor) run(ctx context.Context, m *descriptor.Migration, step Step, stmts []string, fake bool) (res Result, err error) {
	res = Result{Step: step, Statements: stmts, Fake: fake}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if e.provider == "sqlite" && !fake {
		restore, ferr := disableForeignKeys(ctx, conn)
		if ferr != nil {
			return res, ferr
		}
		defer func() {
			if rerr := restore(); rerr != nil && err == nil {
				err = rerr
			}
		}()
	}

	start := time.Now()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if !fake {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return res, &StatementError{Key: step.Key, Index: i, SQL: stmt, Err: err}
			}
		}
		if e.provider == "sqlite" {
			if err := checkForeignKeys(ctx, tx); err != nil {
				_ = tx.Rollback()
				return res, fmt.Errorf("migration %s: %w", step.Key, err)
			}
		}
	}

	res.Duration = time.Since(start)
	if step.Backwards {
		err = e.history.Remove(ctx, tx, step.Key)
	} else {
		err = e.history.Record(ctx, tx, history.MigrationRecord{
			App:           m.App,
			Name:          m.Name,
			AppliedAt:     time.Now(),
			Checksum:      m.Checksum(),
			ExecutionTime: res.Duration.Milliseconds(),
			ToolVersion:   e.toolVersion,
		})
	}
	if err != nil {
		_ = tx.Rollback()
		return res, err
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit migration %s: %w", step.Key, err)
	}
	return res, nil
}

// disableForeignKeys turns off enforcement for the table rebuilds SQLite
// needs. The pragma is ignored inside a transaction, so it is set on the
// connection before BEGIN and restored after COMMIT.
func disableForeignKeys(ctx context.Context, conn *sql.Conn) (func() error, error) {
	var enabled int
	if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return nil, fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if enabled == 0 {
		return func() error { return nil }, nil
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return nil, fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	return func() error {
		if _, err := conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to re-enable foreign keys: %w", err)
		}
		return nil
	}, nil
}

func checkForeignKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("failed to check foreign keys: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		var table, parent string
		var rowid sql.NullInt64
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("foreign key violation after rebuild")
		}
		return fmt.Errorf("foreign key violation in %s (row %d) referencing %s", table, rowid.Int64, parent)
	}
	return rows.Err()
}

// Status reports every migration in dependency order, followed by history
// rows that no longer match a known migration.
func (e *Executor) Status(ctx context.Context) ([]Status, error) {
	records, err := e.Applied(ctx)
	if err != nil {
		return nil, err
	}
	var out []Status
	for _, k := range e.graph.Keys() {
		st := Status{Key: k}
		if rec, ok := records[k]; ok {
			m, _ := e.graph.Migration(k)
			st.Applied = true
			st.AppliedAt = rec.AppliedAt
			st.ToolVersion = rec.ToolVersion
			st.Drift = rec.Checksum != m.Checksum()
		}
		out = append(out, st)
	}
	var unknown []descriptor.Key
	for k := range records {
		if !e.graph.Has(k) {
			unknown = append(unknown, k)
		}
	}
	descriptor.SortKeys(unknown)
	for _, k := range unknown {
		rec := records[k]
		out = append(out, Status{
			Key:         k,
			Applied:     true,
			AppliedAt:   rec.AppliedAt,
			ToolVersion: rec.ToolVersion,
			Unknown:     true,
		})
	}
	return out, nil
}
