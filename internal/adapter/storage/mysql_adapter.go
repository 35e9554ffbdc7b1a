package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/pokestore/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS pokemons (
	name       VARCHAR(191) NOT NULL PRIMARY KEY,
	price      INT          NOT NULL,
	stock      INT          NOT NULL DEFAULT 1 CHECK (stock >= 0),
	created_at DATETIME(6)  NOT NULL,
	updated_at DATETIME(6)  NOT NULL
)`

// MySQLAdapter stores items in MySQL. The DSN must carry parseTime=true.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("create pokemons table: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) FindByName(ctx context.Context, name string) (*domain.Item, error) {
	return m.findByName(ctx, m.db, name, false)
}

func (m *MySQLAdapter) FindAll(ctx context.Context) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT name, price, stock, created_at, updated_at
		FROM pokemons ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query pokemons: %w", err)
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
		return nil, fmt.Errorf("iterate pokemons: %w", err)
	}
	return items, nil
}

func (m *MySQLAdapter) Create(ctx context.Context, item domain.Item) (*domain.Item, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO pokemons (name, price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		item.Name, item.Price, item.Stock, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return nil, domain.ErrDuplicateName
		}
		return nil, fmt.Errorf("insert pokemon: %w", err)
	}
	return &item, nil
}

func (m *MySQLAdapter) DeleteByName(ctx context.Context, name string) (int64, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM pokemons WHERE name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("delete pokemon: %w", err)
	}
	return rowsAffected(result, "delete pokemon")
}

func (m *MySQLAdapter) Update(ctx context.Context, name string, patch domain.ItemPatch) (*domain.Item, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := m.findByName(ctx, tx, name, true)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}

	updated := current.Apply(patch)
	_, err = tx.ExecContext(ctx, `
		UPDATE pokemons
		SET price = ?, stock = ?, updated_at = ?
		WHERE name = ?`,
		updated.Price, updated.Stock, updated.UpdatedAt, name,
	)
	if err != nil {
		return nil, fmt.Errorf("update pokemon: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &updated, nil
}

// DecrementStock removes quantity only while enough stock remains, so two
// concurrent writers can never push stock below zero.
func (m *MySQLAdapter) DecrementStock(ctx context.Context, name string, quantity int) (*domain.Item, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE pokemons
		SET stock = stock - ?, updated_at = ?
		WHERE name = ? AND stock >= ?`,
		quantity, time.Now().UTC(), name, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	rows, err := rowsAffected(result, "decrement stock")
	if err != nil {
		return nil, err
	}
	item, err := m.findByName(ctx, tx, name, false)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if rows == 0 {
		return nil, domain.ErrStockConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return item, nil
}

func rowsAffected(result sql.Result, op string) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m *MySQLAdapter) findByName(ctx context.Context, q queryRower, name string, forUpdate bool) (*domain.Item, error) {
	query := `
		SELECT name, price, stock, created_at, updated_at
		FROM pokemons WHERE name = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var it domain.Item
	err := q.QueryRowContext(ctx, query, name).
		Scan(&it.Name, &it.Price, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pokemon: %w", err)
	}
	return &it, nil
}
