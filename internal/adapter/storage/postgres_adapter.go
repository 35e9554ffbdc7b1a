package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/pokestore/internal/core/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pokemons (
	name       TEXT        PRIMARY KEY,
	price      INTEGER     NOT NULL,
	stock      INTEGER     NOT NULL DEFAULT 1 CHECK (stock >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create pokemons table: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) FindByName(ctx context.Context, name string) (*domain.Item, error) {
	const query = `SELECT name, price, stock, created_at, updated_at FROM pokemons WHERE name = $1`

	var it domain.Item
	err := p.pool.QueryRow(ctx, query, name).
		Scan(&it.Name, &it.Price, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pokemon: %w", err)
	}
	return &it, nil
}

func (p *PostgresAdapter) FindAll(ctx context.Context) ([]domain.Item, error) {
	const query = `SELECT name, price, stock, created_at, updated_at FROM pokemons ORDER BY name`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pokemons: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.Name, &it.Price, &it.Stock, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pokemon: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pokemons: %w", err)
	}
	return items, nil
}

func (p *PostgresAdapter) Create(ctx context.Context, item domain.Item) (*domain.Item, error) {
	const stmt = `
INSERT INTO pokemons (name, price, stock, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := p.pool.Exec(ctx, stmt, item.Name, item.Price, item.Stock, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, fmt.Errorf("create pokemon: %w", err)
	}
	return &item, nil
}

func (p *PostgresAdapter) DeleteByName(ctx context.Context, name string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM pokemons WHERE name = $1`, name)
	if err != nil {
		return 0, fmt.Errorf("delete pokemon: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Update writes only the fields present in patch; COALESCE keeps the rest.
func (p *PostgresAdapter) Update(ctx context.Context, name string, patch domain.ItemPatch) (*domain.Item, error) {
	const stmt = `
UPDATE pokemons
SET price = COALESCE($2, price),
    stock = COALESCE($3, stock),
    updated_at = $4
WHERE name = $1
RETURNING name, price, stock, created_at, updated_at`

	var it domain.Item
	err := p.pool.QueryRow(ctx, stmt, name, patch.Price, patch.Stock, time.Now().UTC()).
		Scan(&it.Name, &it.Price, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update pokemon: %w", err)
	}
	return &it, nil
}

func (p *PostgresAdapter) DecrementStock(ctx context.Context, name string, quantity int) (*domain.Item, error) {
	const stmt = `
UPDATE pokemons
SET stock = stock - $2, updated_at = $3
WHERE name = $1 AND stock >= $2
RETURNING name, price, stock, created_at, updated_at`

	var it domain.Item
	err := p.pool.QueryRow(ctx, stmt, name, quantity, time.Now().UTC()).
		Scan(&it.Name, &it.Price, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	if err == nil {
		return &it, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	existing, err := p.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrStockConflict
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
