package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists share links in PostgreSQL.
type Repository struct {
	db *sql.DB
}

// NewRepository wires the repository and creates its schema.
func NewRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize shares schema: %w", err)
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS share_links (
		id BIGSERIAL PRIMARY KEY,
		token VARCHAR(64) NOT NULL UNIQUE,
		account_id BIGINT NOT NULL,
		bucket VARCHAR(255) NOT NULL,
		object_key VARCHAR(1024) NOT NULL,
		password_hash VARCHAR(255) NOT NULL DEFAULT '',
		max_downloads INT NOT NULL DEFAULT 0,
		downloads INT NOT NULL DEFAULT 0,
		expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_shares_token ON share_links(token);
	CREATE INDEX IF NOT EXISTS idx_shares_bucket ON share_links(account_id, bucket);
	CREATE INDEX IF NOT EXISTS idx_shares_expires ON share_links(expires_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

const selectColumns = `
	SELECT id, token, account_id, bucket, object_key, password_hash, max_downloads, downloads, expires_at, created_at
	FROM share_links`

// Create stores a new share link.
func (r *Repository) Create(ctx context.Context, s *Share) error {
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO share_links (token, account_id, bucket, object_key, password_hash, max_downloads, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		s.Token, s.AccountID, s.Bucket, s.Key, s.PasswordHash, s.MaxDownloads, s.ExpiresAt, now,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create share link: %w", err)
	}
	s.CreatedAt = now
	return nil
}

// GetByToken fetches a share link by its public token.
func (r *Repository) GetByToken(ctx context.Context, token string) (*Share, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE token = $1`, token))
}

// Get fetches a share link by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Share, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
}

// List returns every share link for an account, newest first.
func (r *Repository) List(ctx context.Context, accountID int64) ([]*Share, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share links: %w", err)
	}
	defer rows.Close()

	shares := []*Share{}
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// Delete removes one share link.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete share link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForBucket removes every link pointing into a bucket. Runs as the
// cleanup step of bucket deletion.
func (r *Repository) DeleteForBucket(ctx context.Context, accountID int64, bucket string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_links WHERE account_id = $1 AND bucket = $2`, accountID, bucket)
	if err != nil {
		return 0, fmt.Errorf("failed to delete share links for bucket %q: %w", bucket, err)
	}
	return res.RowsAffected()
}

// IncrementDownloads bumps the download counter and returns the new count.
func (r *Repository) IncrementDownloads(ctx context.Context, id int64) (int, error) {
	var downloads int
	err := r.db.QueryRowContext(ctx, `
		UPDATE share_links SET downloads = downloads + 1 WHERE id = $1
		RETURNING downloads`, id).Scan(&downloads)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count download: %w", err)
	}
	return downloads, nil
}

// PurgeExpired drops links past their expiry. Runs on the housekeeping
// schedule.
func (r *Repository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_links WHERE expires_at IS NOT NULL AND expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired share links: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShare(row rowScanner) (*Share, error) {
	s := &Share{}
	var expiresAt sql.NullTime
	err := row.Scan(&s.ID, &s.Token, &s.AccountID, &s.Bucket, &s.Key, &s.PasswordHash, &s.MaxDownloads, &s.Downloads, &expiresAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		s.ExpiresAt = &expiresAt.Time
	}
	return s, nil
}

func (r *Repository) scanOne(row *sql.Row) (*Share, error) {
	s, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load share link: %w", err)
	}
	return s, nil
}
