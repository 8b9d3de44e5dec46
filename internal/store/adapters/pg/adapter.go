// Package pg implementa el Connection Store sobre PostgreSQL (pgxpool).
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/store"
	"github.com/dropDatabas3/devpulse/migrations"
)

func init() {
	store.RegisterAdapter(&postgresAdapter{})
}

// nullIfEmpty returns nil if the string is empty, otherwise returns the string pointer.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type postgresAdapter struct{}

func (a *postgresAdapter) Name() string { return "postgres" }

func (a *postgresAdapter) Open(ctx context.Context, cfg store.Config) (repository.Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = 2
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Store es la conexión activa a PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func (s *Store) Users() repository.UserRepository             { return &userRepo{pool: s.pool} }
func (s *Store) Connections() repository.ConnectionRepository { return &connRepo{pool: s.pool} }
func (s *Store) Ping(ctx context.Context) error               { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate implementa store.Migratable.
func (s *Store) Migrate(ctx context.Context) (*store.MigrationResult, error) {
	return store.NewMigrator(migrations.FS, migrations.PostgresDir, "postgres").Run(ctx, &poolExecutor{pool: s.pool})
}

type poolExecutor struct{ pool *pgxpool.Pool }

func (e *poolExecutor) Exec(ctx context.Context, query string, args ...any) error {
	_, err := e.pool.Exec(ctx, query, args...)
	return err
}

func (e *poolExecutor) QueryInts(ctx context.Context, query string) ([]int, error) {
	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// ─── UserRepository ───

type userRepo struct{ pool *pgxpool.Pool }

func (r *userRepo) Get(ctx context.Context, uid string) (*repository.User, error) {
	const query = `
		SELECT uid, COALESCE(email, ''), COALESCE(display_name, ''), COALESCE(photo_url, ''), created_at, updated_at
		FROM app_user WHERE uid = $1`
	var u repository.User
	err := r.pool.QueryRow(ctx, query, uid).Scan(&u.UID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Ensure(ctx context.Context, u repository.User) error {
	if u.UID == "" {
		return repository.ErrInvalidInput
	}
	const query = `
		INSERT INTO app_user (uid, email, display_name, photo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (uid) DO UPDATE SET
			email        = COALESCE(EXCLUDED.email, app_user.email),
			display_name = COALESCE(EXCLUDED.display_name, app_user.display_name),
			photo_url    = COALESCE(EXCLUDED.photo_url, app_user.photo_url),
			updated_at   = NOW()`
	_, err := r.pool.Exec(ctx, query, u.UID, nullIfEmpty(u.Email), nullIfEmpty(u.DisplayName), nullIfEmpty(u.PhotoURL))
	return err
}

// ─── ConnectionRepository ───

type connRepo struct{ pool *pgxpool.Pool }

const connColumns = `id, user_id, provider, access_token, COALESCE(refresh_token, ''), token_type,
	COALESCE(scope, ''), expires_at, profile, status, COALESCE(status_reason, ''), created_at, updated_at`

func scanConn(row pgx.Row) (*repository.Connection, error) {
	var (
		c       repository.Connection
		id      uuid.UUID
		kind    string
		profile []byte
		status  string
	)
	err := row.Scan(&id, &c.UserID, &kind, &c.AccessToken, &c.RefreshToken, &c.TokenType,
		&c.Scope, &c.ExpiresAt, &profile, &status, &c.StatusReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = id.String()
	c.Provider = types.ProviderKind(kind)
	c.Status = repository.ConnectionStatus(status)
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &c.Profile); err != nil {
			return nil, fmt.Errorf("pg: decode profile: %w", err)
		}
	}
	return &c, nil
}

func (r *connRepo) Get(ctx context.Context, uid string, provider types.ProviderKind) (*repository.Connection, error) {
	query := `SELECT ` + connColumns + ` FROM provider_connection WHERE user_id = $1 AND provider = $2`
	c, err := scanConn(r.pool.QueryRow(ctx, query, uid, string(provider)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return c, err
}

func (r *connRepo) List(ctx context.Context, uid string) ([]repository.Connection, error) {
	query := `SELECT ` + connColumns + ` FROM provider_connection WHERE user_id = $1 ORDER BY provider`
	rows, err := r.pool.Query(ctx, query, uid)
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

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// El documento de usuario se crea implícitamente con la primera conexión.
	if _, err := tx.Exec(ctx, `INSERT INTO app_user (uid) VALUES ($1) ON CONFLICT (uid) DO NOTHING`, c.UserID); err != nil {
		return err
	}

	const query = `
		INSERT INTO provider_connection
			(id, user_id, provider, access_token, refresh_token, token_type, scope, expires_at,
			 profile, status, status_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type    = EXCLUDED.token_type,
			scope         = EXCLUDED.scope,
			expires_at    = EXCLUDED.expires_at,
			profile       = EXCLUDED.profile,
			status        = EXCLUDED.status,
			status_reason = EXCLUDED.status_reason,
			updated_at    = NOW()
		RETURNING id, created_at, updated_at`
	var id uuid.UUID
	err = tx.QueryRow(ctx, query,
		uuid.New(), c.UserID, string(c.Provider), c.AccessToken, nullIfEmpty(c.RefreshToken),
		c.TokenType, nullIfEmpty(c.Scope), c.ExpiresAt, profile, string(c.Status), nullIfEmpty(c.StatusReason),
	).Scan(&id, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}
	c.ID = id.String()
	return tx.Commit(ctx)
}

func (r *connRepo) UpdateTokens(ctx context.Context, uid string, provider types.ProviderKind, upd repository.TokenUpdate) error {
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = time.Now().UTC()
	}
	const query = `
		UPDATE provider_connection SET
			access_token  = $3,
			refresh_token = $4,
			token_type    = $5,
			scope         = $6,
			expires_at    = $7,
			status        = 'active',
			status_reason = NULL,
			updated_at    = $8
		WHERE user_id = $1 AND provider = $2
		  AND ($9::text = '' OR refresh_token = $9::text)`
	tag, err := r.pool.Exec(ctx, query, uid, string(provider),
		upd.AccessToken, nullIfEmpty(upd.RefreshToken), upd.TokenType, nullIfEmpty(upd.Scope),
		upd.ExpiresAt, upd.UpdatedAt, upd.ExpectedRefreshToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missOrConflict(ctx, uid, provider)
}

func (r *connRepo) missOrConflict(ctx context.Context, uid string, provider types.ProviderKind) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM provider_connection WHERE user_id = $1 AND provider = $2)`,
		uid, string(provider)).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrPreconditionFailed
}

func (r *connRepo) MarkNeedsReconnect(ctx context.Context, uid string, provider types.ProviderKind, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE provider_connection SET status = $3, status_reason = $4, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2`,
		uid, string(provider), string(repository.ConnectionNeedsReconnect), nullIfEmpty(reason))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *connRepo) Delete(ctx context.Context, uid string, provider types.ProviderKind) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM provider_connection WHERE user_id = $1 AND provider = $2`, uid, string(provider))
	return err
}
