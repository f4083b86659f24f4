// Package shadow applies a migration graph to a throwaway database to
// prove every migration runs, and unapplies cleanly, before touching the
// real one.
package shadow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/satishbabariya/schemadelta/migrate/database"
	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/executor"
	"github.com/satishbabariya/schemadelta/migrate/graph"
	"github.com/satishbabariya/schemadelta/migrate/introspect"
	"github.com/satishbabariya/schemadelta/migrate/sqlgen"
)

// ShadowDB manages shadow database operations
type ShadowDB struct {
	provider      string
	mainConnStr   string
	shadowConnStr string
	shadowDB      *sql.DB
	tmpDir        string
}

// NewShadowDB creates a shadow database manager. An empty shadowConnStr
// derives one from mainConnStr: a temporary file for sqlite, and the main
// database name with a _shadow suffix otherwise.
func NewShadowDB(provider, mainConnStr, shadowConnStr string) (*ShadowDB, error) {
	normalized, err := sqlgen.NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	return &ShadowDB{
		provider:      normalized,
		mainConnStr:   mainConnStr,
		shadowConnStr: shadowConnStr,
	}, nil
}

// Create creates the shadow database and connects to it.
func (s *ShadowDB) Create(ctx context.Context) error {
	if s.shadowDB != nil {
		return nil
	}
	switch s.provider {
	case "postgres":
		if err := s.createPostgresShadow(ctx); err != nil {
			return err
		}
	case "mysql":
		if err := s.createMySQLShadow(ctx); err != nil {
			return err
		}
	default:
		if s.shadowConnStr == "" {
			dir, err := os.MkdirTemp("", "schemadelta-shadow-*")
			if err != nil {
				return fmt.Errorf("failed to create shadow directory: %w", err)
			}
			s.tmpDir = dir
			s.shadowConnStr = filepath.Join(dir, "shadow.db")
		}
	}

	db, err := database.Open(ctx, s.provider, s.shadowConnStr)
	if err != nil {
		return fmt.Errorf("failed to connect to shadow database: %w", err)
	}
	s.shadowDB = db
	return nil
}

// Drop closes the connection and removes the shadow database.
func (s *ShadowDB) Drop(ctx context.Context) error {
	if err := s.Close(); err != nil {
		return err
	}
	switch s.provider {
	case "postgres":
		return s.dropPostgresShadow(ctx)
	case "mysql":
		return s.dropMySQLShadow(ctx)
	default:
		if s.tmpDir == "" {
			return nil
		}
		err := os.RemoveAll(s.tmpDir)
		s.tmpDir, s.shadowConnStr = "", ""
		return err
	}
}

// DB returns the shadow database connection
func (s *ShadowDB) DB() *sql.DB {
	return s.shadowDB
}

// Close closes the shadow database connection
func (s *ShadowDB) Close() error {
	if s.shadowDB == nil {
		return nil
	}
	err := s.shadowDB.Close()
	s.shadowDB = nil
	return err
}

// Report summarises a verification run.
type Report struct {
	Applied   []descriptor.Key
	Unapplied []descriptor.Key
	// Schema is the shadow schema with every migration applied.
	Schema *introspect.DatabaseSchema
}

// Verify creates the shadow database, applies every migration in g, reads
// back the schema, unapplies everything and drops the database.
func (s *ShadowDB) Verify(ctx context.Context, g *graph.Graph, opts ...executor.Option) (report *Report, err error) {
	if err := s.Create(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if derr := s.Drop(ctx); derr != nil && err == nil {
			err = fmt.Errorf("failed to drop shadow database: %w", derr)
		}
	}()

	ex, err := executor.New(s.shadowDB, s.provider, g, opts...)
	if err != nil {
		return nil, err
	}

	report = &Report{}
	plan, err := ex.Plan(ctx)
	if err != nil {
		return nil, err
	}
	results, err := ex.Migrate(ctx, plan, executor.RunOptions{})
	if err != nil {
		return nil, fmt.Errorf("shadow apply failed: %w", err)
	}
	for _, r := range results {
		report.Applied = append(report.Applied, r.Step.Key)
	}

	introspector, err := introspect.NewIntrospector(s.shadowDB, s.provider)
	if err != nil {
		return nil, err
	}
	if report.Schema, err = introspector.Introspect(ctx); err != nil {
		return nil, fmt.Errorf("failed to introspect shadow database: %w", err)
	}

	var zero []descriptor.Key
	for _, app := range g.Apps() {
		zero = append(zero, descriptor.Key{App: app, Name: executor.Zero})
	}
	if plan, err = ex.Plan(ctx, zero...); err != nil {
		return nil, err
	}
	if results, err = ex.Migrate(ctx, plan, executor.RunOptions{}); err != nil {
		return nil, fmt.Errorf("shadow unapply failed: %w", err)
	}
	for _, r := range results {
		report.Unapplied = append(report.Unapplied, r.Step.Key)
	}
	return report, nil
}

// postgresURLs returns the shadow URL and the maintenance URL used to
// create and drop it.
func (s *ShadowDB) postgresURLs() (shadow, maintenance string, name string, err error) {
	base := s.mainConnStr
	if s.shadowConnStr != "" {
		base = s.shadowConnStr
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return "", "", "", fmt.Errorf("shadow databases need a postgres:// url")
	}
	name = strings.TrimPrefix(u.Path, "/")
	if s.shadowConnStr == "" {
		name += "_shadow"
	}
	u.Path = "/" + name
	shadow = u.String()
	u.Path = "/postgres"
	return shadow, u.String(), name, nil
}

func (s *ShadowDB) createPostgresShadow(ctx context.Context) error {
	shadowURL, maintenance, name, err := s.postgresURLs()
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, "postgres", maintenance)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		var pqErr *pq.Error
		// 42P04: duplicate_database
		if !errors.As(err, &pqErr) || pqErr.Code != "42P04" {
			return fmt.Errorf("failed to create shadow database: %w", err)
		}
	}
	s.shadowConnStr = shadowURL
	return nil
}

func (s *ShadowDB) dropPostgresShadow(ctx context.Context) error {
	_, maintenance, name, err := s.postgresURLs()
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, "postgres", maintenance)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(name))
	return err
}

// mysqlConfigs returns the shadow DSN and a DSN without a database.
func (s *ShadowDB) mysqlConfigs() (shadow, server *mysql.Config, err error) {
	base := s.mainConnStr
	if s.shadowConnStr != "" {
		base = s.shadowConnStr
	}
	cfg, err := database.MySQLConfig(base)
	if err != nil {
		return nil, nil, err
	}
	shadow = cfg.Clone()
	if s.shadowConnStr == "" {
		shadow.DBName = cfg.DBName + "_shadow"
	}
	server = cfg.Clone()
	server.DBName = ""
	return shadow, server, nil
}

func (s *ShadowDB) createMySQLShadow(ctx context.Context) error {
	shadow, server, err := s.mysqlConfigs()
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, "mysql", server.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteMySQL(shadow.DBName)); err != nil {
		return fmt.Errorf("failed to create shadow database: %w", err)
	}
	s.shadowConnStr = shadow.FormatDSN()
	return nil
}

func (s *ShadowDB) dropMySQLShadow(ctx context.Context) error {
	shadow, server, err := s.mysqlConfigs()
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, "mysql", server.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoteMySQL(shadow.DBName))
	return err
}

func quoteMySQL(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
