package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mediclaim.org/internal/obs"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"
)

// Migration is a discovered up/down pair. Down may be empty when the author
// provided no rollback file.
type Migration struct {
	Name string // base name without the .up.sql suffix
	Up   string
	Down string
}

// Runner applies SQL migrations and idempotent seed files against the user
// database. Every applied file is recorded with a content checksum so a
// silently edited migration is caught instead of skipped.
type Runner struct {
	db              *sql.DB
	migrationsDir   string
	seedsDir        string
	migrationsTable string
	seedsTable      string
}

// Option configures Runner.
type Option func(*Runner)

// WithMigrationsTable overrides the bookkeeping table for migrations.
func WithMigrationsTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.migrationsTable = name
		}
	}
}

// WithSeedsTable overrides the bookkeeping table for seeds.
func WithSeedsTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.seedsTable = name
		}
	}
}

// NewRunner constructs a Runner over the given directories.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Runner {
	r := &Runner{
		db:              db,
		migrationsDir:   migrationsDir,
		seedsDir:        seedsDir,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover lists the migration pairs on disk in lexical order.
func (r *Runner) Discover() ([]Migration, error) {
	if r.migrationsDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(r.migrationsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	byName := map[string]*Migration{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			name := strings.TrimSuffix(e.Name(), ".up.sql")
			m := byName[name]
			if m == nil {
				m = &Migration{Name: name}
				byName[name] = m
			}
			m.Up = filepath.Join(r.migrationsDir, e.Name())
		case strings.HasSuffix(e.Name(), ".down.sql"):
			name := strings.TrimSuffix(e.Name(), ".down.sql")
			m := byName[name]
			if m == nil {
				m = &Migration{Name: name}
				byName[name] = m
			}
			m.Down = filepath.Join(r.migrationsDir, e.Name())
		}
	}
	out := make([]Migration, 0, len(byName))
	for _, m := range byName {
		if m.Up == "" {
			return nil, fmt.Errorf("migrate: %s has a down file but no up file", m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Up applies every pending migration in order.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.appliedChecksums(ctx, r.migrationsTable)
	if err != nil {
		return err
	}
	migrations, err := r.Discover()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		body, err := os.ReadFile(m.Up)
		if err != nil {
			return err
		}
		sum := checksum(body)
		if prev, ok := applied[m.Name]; ok {
			if prev != sum {
				return fmt.Errorf("migrate: %s was modified after being applied", m.Name)
			}
			continue
		}
		if err := r.execBatch(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate: apply %s: %w", m.Name, err)
		}
		if err := r.record(ctx, r.migrationsTable, m.Name, sum); err != nil {
			return err
		}
		logger := obs.Logger()
		logger.Info().Str("migration", m.Name).Msg("migration applied")
	}
	return nil
}

// Down rolls back the most recently applied migration. It refuses to proceed
// when the rollback file is missing.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	names, err := r.appliedOrder(ctx, r.migrationsTable)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("migrate: nothing to roll back")
	}
	last := names[len(names)-1]

	migrations, err := r.Discover()
	if err != nil {
		return err
	}
	var target *Migration
	for i := range migrations {
		if migrations[i].Name == last {
			target = &migrations[i]
			break
		}
	}
	if target == nil || target.Down == "" {
		return fmt.Errorf("migrate: no down file for %s", last)
	}
	body, err := os.ReadFile(target.Down)
	if err != nil {
		return err
	}
	if err := r.execBatch(ctx, string(body)); err != nil {
		return fmt.Errorf("migrate: roll back %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name=$1`, r.migrationsTable), last)
	if err == nil {
		logger := obs.Logger()
		logger.Info().Str("migration", last).Msg("migration rolled back")
	}
	return err
}

// Seed applies every pending seed file. Seeds run once; re-seeding requires
// clearing the bookkeeping table.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.appliedChecksums(ctx, r.seedsTable)
	if err != nil {
		return err
	}
	if r.seedsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.seedsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := applied[name]; ok {
			continue
		}
		body, err := os.ReadFile(filepath.Join(r.seedsDir, name))
		if err != nil {
			return err
		}
		if err := r.execBatch(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate: apply seed %s: %w", name, err)
		}
		if err := r.record(ctx, r.seedsTable, name, checksum(body)); err != nil {
			return err
		}
		logger := obs.Logger()
		logger.Info().Str("seed", name).Msg("seed applied")
	}
	return nil
}

// Status returns applied migration names in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	return r.appliedOrder(ctx, r.migrationsTable)
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{r.migrationsTable, r.seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				checksum text not null,
				applied_at timestamptz not null default now()
			)`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// execBatch runs the file's statements inside one transaction so a failed
// migration leaves no partial schema behind.
func (r *Runner) execBatch(ctx context.Context, body string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range splitStatements(body) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name, sum string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, checksum, applied_at) values($1,$2,$3)`, table),
		name, sum, time.Now().UTC())
	return err
}

func (r *Runner) appliedChecksums(ctx context.Context, table string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name, checksum from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		out[name] = sum
	}
	return out, rows.Err()
}

func (r *Runner) appliedOrder(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// splitStatements splits on semicolons outside single-quoted strings. Enough
// for the plain DDL and seed files shipped with the service.
func splitStatements(body string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range body {
		switch r {
		case '\'':
			inString = !inString
			current.WriteRune(r)
		case ';':
			if inString {
				current.WriteRune(r)
				continue
			}
			stmts = append(stmts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
