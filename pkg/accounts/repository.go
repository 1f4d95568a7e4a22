package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Repository persists accounts in PostgreSQL.
type Repository struct {
	db *sql.DB
}

// NewRepository wires the repository and creates its schema.
func NewRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize accounts schema: %w", err)
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS storage_accounts (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		endpoint_url VARCHAR(1024) NOT NULL DEFAULT '',
		region VARCHAR(100) NOT NULL DEFAULT '',
		access_key VARCHAR(512) NOT NULL,
		secret_key VARCHAR(512) NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_default ON storage_accounts(is_default);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Create stores a new account. The first account becomes the default.
func (r *Repository) Create(ctx context.Context, a *Account) error {
	now := time.Now()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM storage_accounts`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count accounts: %w", err)
	}
	if count == 0 {
		a.IsDefault = true
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO storage_accounts (name, endpoint_url, region, access_key, secret_key, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`,
		a.Name, a.EndpointURL, a.Region, a.AccessKey, a.SecretKey, a.IsDefault, now,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// Get fetches one account by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
}

// Default returns the account marked as default.
func (r *Repository) Default(ctx context.Context) (*Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE is_default = TRUE ORDER BY id LIMIT 1`))
}

// List returns every account, default first.
func (r *Repository) List(ctx context.Context) ([]*Account, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY is_default DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*Account{}
	for rows.Next() {
		a := &Account{}
		if err := rows.Scan(&a.ID, &a.Name, &a.EndpointURL, &a.Region, &a.AccessKey, &a.SecretKey, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Update rewrites an account's connection details. An empty SecretKey keeps
// the stored one, so clients never have to echo secrets back.
func (r *Repository) Update(ctx context.Context, a *Account) error {
	if a.SecretKey == "" {
		current, err := r.Get(ctx, a.ID)
		if err != nil {
			return err
		}
		a.SecretKey = current.SecretKey
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE storage_accounts
		SET name = $1, endpoint_url = $2, region = $3, access_key = $4, secret_key = $5, updated_at = $6
		WHERE id = $7`,
		a.Name, a.EndpointURL, a.Region, a.AccessKey, a.SecretKey, time.Now(), a.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res)
}

// SetDefault makes one account the default and clears the flag elsewhere.
func (r *Repository) SetDefault(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE storage_accounts SET is_default = FALSE WHERE is_default = TRUE`); err != nil {
		return fmt.Errorf("failed to clear default account: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE storage_accounts SET is_default = TRUE, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set default account: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes an account. Deleting the default promotes the oldest
// remaining account.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var wasDefault bool
	err = tx.QueryRowContext(ctx, `DELETE FROM storage_accounts WHERE id = $1 RETURNING is_default`, id).Scan(&wasDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if wasDefault {
		_, err = tx.ExecContext(ctx, `
			UPDATE storage_accounts SET is_default = TRUE
			WHERE id = (SELECT id FROM storage_accounts ORDER BY created_at ASC LIMIT 1)`)
		if err != nil {
			return fmt.Errorf("failed to promote new default account: %w", err)
		}
	}
	return tx.Commit()
}

const selectColumns = `
	SELECT id, name, endpoint_url, region, access_key, secret_key, is_default, created_at, updated_at
	FROM storage_accounts`

func (r *Repository) scanOne(row *sql.Row) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.Name, &a.EndpointURL, &a.Region, &a.AccessKey, &a.SecretKey, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
