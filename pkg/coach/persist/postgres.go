package persist

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the durable server-side bridge.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Bridge = (*Postgres)(nil)

// NewPostgres opens a connection pool and applies pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("persist: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist: ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate applies the embedded migrations through database/sql; goose does
// not speak pgx pools directly.
func Migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("persist: open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("persist: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("persist: run migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM coach_state WHERE user_id = $1 AND session_id = $2 AND kind = $3`,
		key.UserID, key.SessionID, string(key.Kind),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: get %s: %w", key.Kind, err)
	}
	return data, nil
}

func (p *Postgres) Set(ctx context.Context, key Key, data []byte) error {
	if err := key.validate(); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO coach_state (user_id, session_id, kind, data, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, session_id, kind)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key.UserID, key.SessionID, string(key.Kind), data,
	)
	if err != nil {
		return fmt.Errorf("persist: set %s: %w", key.Kind, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key Key) error {
	if err := key.validate(); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM coach_state WHERE user_id = $1 AND session_id = $2 AND kind = $3`,
		key.UserID, key.SessionID, string(key.Kind),
	)
	if err != nil {
		return fmt.Errorf("persist: delete %s: %w", key.Kind, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
