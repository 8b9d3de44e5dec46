// Package sqlite implementa el Connection Store sobre SQLite (modernc.org/sqlite,
// sin cgo). Pensado para desarrollo local y despliegues de una sola instancia.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/store"
	"github.com/dropDatabas3/devpulse/migrations"
)

func init() {
	store.RegisterAdapter(sqliteAdapter{})
}

func toMillis(t time.Time) int64   { return t.UTC().UnixMilli() }
func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

type sqliteAdapter struct{}

func (sqliteAdapter) Name() string { return "sqlite" }

// Open abre la base y aplica migraciones embebidas. DSN es un path o ":memory:".
func (sqliteAdapter) Open(ctx context.Context, cfg store.Config) (repository.Store, error) {
	return Open(ctx, cfg.DSN)
}

// Open abre un Store sobre path y migra el esquema.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := path
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Una sola conexión: SQLite serializa escrituras y ":memory:" es por conexión.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &Store{db: db}
	if _, err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Store es la conexión activa a SQLite.
type Store struct {
	db *sql.DB
}

func (s *Store) Users() repository.UserRepository             { return &userRepo{db: s.db} }
func (s *Store) Connections() repository.ConnectionRepository { return &connRepo{db: s.db} }
func (s *Store) Ping(ctx context.Context) error               { return s.db.PingContext(ctx) }
func (s *Store) Close() error                                 { return s.db.Close() }

// Migrate implementa store.Migratable.
func (s *Store) Migrate(ctx context.Context) (*store.MigrationResult, error) {
	return store.NewMigrator(migrations.FS, migrations.SQLiteDir, "sqlite").Run(ctx, &dbExecutor{db: s.db})
}

type dbExecutor struct{ db *sql.DB }

func (e *dbExecutor) Exec(ctx context.Context, query string, args ...any) error {
	_, err := e.db.ExecContext(ctx, query, args...)
	return err
}

func (e *dbExecutor) QueryInts(ctx context.Context, query string) ([]int, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ─── UserRepository ───

type userRepo struct{ db *sql.DB }

func (r *userRepo) Get(ctx context.Context, uid string) (*repository.User, error) {
	var (
		u                repository.User
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, email, display_name, photo_url, created_at, updated_at FROM app_user WHERE uid = ?`, uid,
	).Scan(&u.UID, &u.Email, &u.DisplayName, &u.PhotoURL, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &u, nil
}

func (r *userRepo) Ensure(ctx context.Context, u repository.User) error {
	if u.UID == "" {
		return repository.ErrInvalidInput
	}
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_user (uid, email, display_name, photo_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			email        = CASE WHEN excluded.email <> '' THEN excluded.email ELSE app_user.email END,
			display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE app_user.display_name END,
			photo_url    = CASE WHEN excluded.photo_url <> '' THEN excluded.photo_url ELSE app_user.photo_url END,
			updated_at   = excluded.updated_at`,
		u.UID, u.Email, u.DisplayName, u.PhotoURL, now, now)
	return err
}

// ─── ConnectionRepository ───

type connRepo struct{ db *sql.DB }

const connColumns = `id, user_id, provider, access_token, refresh_token, token_type, scope,
	expires_at, profile, status, status_reason, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanConn(row scanner) (*repository.Connection, error) {
	var (
		c                 repository.Connection
		kind, profile, st string
		expires           sql.NullInt64
		created, updated  int64
	)
	err := row.Scan(&c.ID, &c.UserID, &kind, &c.AccessToken, &c.RefreshToken, &c.TokenType, &c.Scope,
		&expires, &profile, &st, &c.StatusReason, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.Provider = types.ProviderKind(kind)
	c.Status = repository.ConnectionStatus(st)
	c.CreatedAt, c.UpdatedAt = fromMillis(created), fromMillis(updated)
	if expires.Valid {
		t := fromMillis(expires.Int64)
		c.ExpiresAt = &t
	}
	if profile != "" {
		if err := json.Unmarshal([]byte(profile), &c.Profile); err != nil {
			return nil, fmt.Errorf("sqlite: decode profile: %w", err)
		}
	}
	return &c, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func (r *connRepo) Get(ctx context.Context, uid string, provider types.ProviderKind) (*repository.Connection, error) {
	c, err := scanConn(r.db.QueryRowContext(ctx,
		`SELECT `+connColumns+` FROM provider_connection WHERE user_id = ? AND provider = ?`, uid, string(provider)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return c, err
}

func (r *connRepo) List(ctx context.Context, uid string) ([]repository.Connection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+connColumns+` FROM provider_connection WHERE user_id = ? ORDER BY provider`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repository.Connection
	for rows.Next() {
		c, err := scanConn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *connRepo) Upsert(ctx context.Context, c *repository.Connection) error {
	if c.UserID == "" || !c.Provider.Valid() || c.AccessToken == "" {
		return repository.ErrInvalidInput
	}
	profile, err := json.Marshal(c.Profile)
	if err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = repository.ConnectionActive
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO app_user (uid, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT (uid) DO NOTHING`,
		c.UserID, toMillis(now), toMillis(now)); err != nil {
		return err
	}

	var created int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO provider_connection
			(id, user_id, provider, access_token, refresh_token, token_type, scope, expires_at,
			 profile, status, status_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type    = excluded.token_type,
			scope         = excluded.scope,
			expires_at    = excluded.expires_at,
			profile       = excluded.profile,
			status        = excluded.status,
			status_reason = excluded.status_reason,
			updated_at    = excluded.updated_at
		RETURNING id, created_at`,
		uuid.NewString(), c.UserID, string(c.Provider), c.AccessToken, c.RefreshToken, c.TokenType, c.Scope,
		nullMillis(c.ExpiresAt), string(profile), string(c.Status), c.StatusReason, toMillis(now), toMillis(now),
	).Scan(&c.ID, &created)
	if err != nil {
		return err
	}
	c.CreatedAt, c.UpdatedAt = fromMillis(created), fromMillis(toMillis(now))
	return tx.Commit()
}

func (r *connRepo) UpdateTokens(ctx context.Context, uid string, provider types.ProviderKind, upd repository.TokenUpdate) error {
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE provider_connection SET
			access_token = ?, refresh_token = ?, token_type = ?, scope = ?, expires_at = ?,
			status = 'active', status_reason = '', updated_at = ?
		WHERE user_id = ? AND provider = ? AND (? = '' OR refresh_token = ?)`,
		upd.AccessToken, upd.RefreshToken, upd.TokenType, upd.Scope, nullMillis(upd.ExpiresAt), toMillis(upd.UpdatedAt),
		uid, string(provider), upd.ExpectedRefreshToken, upd.ExpectedRefreshToken)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM provider_connection WHERE user_id = ? AND provider = ?`, uid, string(provider),
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrPreconditionFailed
}

func (r *connRepo) MarkNeedsReconnect(ctx context.Context, uid string, provider types.ProviderKind, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE provider_connection SET status = ?, status_reason = ?, updated_at = ? WHERE user_id = ? AND provider = ?`,
		string(repository.ConnectionNeedsReconnect), reason, toMillis(time.Now()), uid, string(provider))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *connRepo) Delete(ctx context.Context, uid string, provider types.ProviderKind) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM provider_connection WHERE user_id = ? AND provider = ?`, uid, string(provider))
	return err
}
