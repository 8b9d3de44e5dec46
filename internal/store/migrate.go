package store

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Formato de archivo: {version}_{name}.sql (ej: 0001_init.sql)
var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// Migration representa una migración individual.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationResult resultado de aplicar migraciones.
type MigrationResult struct {
	Applied  []int
	Skipped  []int
	Duration time.Duration
}

// MigrationExecutor abstrae pgx vs database/sql.
type MigrationExecutor interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryInts(ctx context.Context, query string) ([]int, error)
}

// Migrator aplica migraciones SQL embebidas.
type Migrator struct {
	fsys    fs.FS
	dir     string
	dialect string // "postgres" | "sqlite"
}

func NewMigrator(fsys fs.FS, dir, dialect string) *Migrator {
	return &Migrator{fsys: fsys, dir: dir, dialect: dialect}
}

// ParseMigrations lee las migraciones ordenadas por versión.
func (m *Migrator) ParseMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		version, _ := strconv.Atoi(match[1])
		content, err := fs.ReadFile(m.fsys, path.Join(m.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: match[2], SQL: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run aplica las migraciones pendientes.
func (m *Migrator) Run(ctx context.Context, exec MigrationExecutor) (*MigrationResult, error) {
	start := time.Now()
	res := &MigrationResult{}

	if err := exec.Exec(ctx, m.createTableSQL()); err != nil {
		return res, fmt.Errorf("creating migrations table: %w", err)
	}
	versions, err := exec.QueryInts(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return res, fmt.Errorf("getting applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	migrations, err := m.ParseMigrations()
	if err != nil {
		return res, err
	}
	insert := "INSERT INTO _migrations (version, name) VALUES ($1, $2)"
	if m.dialect == "sqlite" {
		insert = "INSERT INTO _migrations (version, name) VALUES (?, ?)"
	}
	for _, mig := range migrations {
		if applied[mig.Version] {
			res.Skipped = append(res.Skipped, mig.Version)
			continue
		}
		if err := exec.Exec(ctx, mig.SQL); err != nil {
			return res, fmt.Errorf("applying migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
		if err := exec.Exec(ctx, insert, mig.Version, mig.Name); err != nil {
			return res, fmt.Errorf("recording migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
		res.Applied = append(res.Applied, mig.Version)
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (m *Migrator) createTableSQL() string {
	if m.dialect == "postgres" {
		return `CREATE TABLE IF NOT EXISTS _migrations (
			version INT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`
	}
	return `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
}
