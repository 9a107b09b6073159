package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/domainkv/apiserver/types"
)

// RecordRepository handles persistence for key-value entries. Rows are
// never physically removed: the composite (user_id, domain, key) slot
// is created once and reused by every later upsert.
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `user_id, domain, key, value, is_deleted, created_at, modified_at`

func scanRecord(row interface{ Scan(...any) error }) (types.Record, error) {
	var record types.Record
	err := row.Scan(
		&record.UserID,
		&record.Domain,
		&record.Key,
		&record.Value,
		&record.IsDeleted,
		&record.CreatedAt,
		&record.ModifiedAt,
	)
	return record, err
}

// List returns the live records of one user in one domain.
func (r *RecordRepository) List(ctx context.Context, userID int, domain string) ([]types.Record, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM store
		WHERE user_id = $1 AND domain = $2 AND is_deleted = FALSE
		ORDER BY key`
	return r.queryRecords(ctx, query, userID, domain)
}

// ListByDomain returns every live record in a domain across all users.
func (r *RecordRepository) ListByDomain(ctx context.Context, domain string) ([]types.Record, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM store
		WHERE domain = $1 AND is_deleted = FALSE
		ORDER BY user_id, key`
	return r.queryRecords(ctx, query, domain)
}

func (r *RecordRepository) queryRecords(ctx context.Context, query string, args ...any) ([]types.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]types.Record, 0, 16)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *RecordRepository) Get(ctx context.Context, userID int, domain, key string) (types.Record, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM store
		WHERE user_id = $1 AND domain = $2 AND key = $3 AND is_deleted = FALSE`
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, userID, domain, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Record{}, ErrNotFound
		}
		return types.Record{}, err
	}
	return record, nil
}

// Upsert inserts a record or, when the (user_id, domain, key) slot
// already exists, overwrites the value, clears the delete flag, and
// refreshes modified_at. One atomic statement.
func (r *RecordRepository) Upsert(ctx context.Context, userID int, domain, key string, value *string) (types.Record, error) {
	const query = `
		INSERT INTO store (user_id, domain, key, value, is_deleted)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (user_id, domain, key)
		DO UPDATE SET value = EXCLUDED.value, is_deleted = FALSE, modified_at = NOW()
		RETURNING ` + recordColumns
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, userID, domain, key, value))
	if err != nil {
		return types.Record{}, err
	}
	return record, nil
}

// UpdateValue overwrites the value of a live record. Returns whether a
// row matched; deleted rows are never touched.
func (r *RecordRepository) UpdateValue(ctx context.Context, userID int, domain, key string, value *string) (bool, error) {
	const query = `
		UPDATE store
		SET value = $1, modified_at = NOW()
		WHERE user_id = $2 AND domain = $3 AND key = $4 AND is_deleted = FALSE`
	result, err := r.db.ExecContext(ctx, query, value, userID, domain, key)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SoftDelete flips the delete flag on a live record. A no-op (missing
// or already-deleted key) is not an error, just changed = false.
func (r *RecordRepository) SoftDelete(ctx context.Context, userID int, domain, key string) (bool, error) {
	const query = `
		UPDATE store
		SET is_deleted = TRUE, modified_at = NOW()
		WHERE user_id = $1 AND domain = $2 AND key = $3 AND is_deleted = FALSE`
	result, err := r.db.ExecContext(ctx, query, userID, domain, key)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
