package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/domainkv/apiserver/types"
)

// DomainRepository handles persistence for tenant domains.
type DomainRepository struct {
	db *sql.DB
}

func NewDomainRepository(db *sql.DB) *DomainRepository {
	return &DomainRepository{db: db}
}

func (r *DomainRepository) Get(ctx context.Context, name string) (types.Domain, error) {
	const query = `
		SELECT name, is_deleted, created_at, modified_at
		FROM domains
		WHERE name = $1 AND is_deleted = FALSE`
	var domain types.Domain
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&domain.Name,
		&domain.IsDeleted,
		&domain.CreatedAt,
		&domain.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Domain{}, ErrNotFound
		}
		return types.Domain{}, err
	}
	return domain, nil
}

func (r *DomainRepository) List(ctx context.Context) ([]types.Domain, error) {
	const query = `
		SELECT name, is_deleted, created_at, modified_at
		FROM domains
		WHERE is_deleted = FALSE
		ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	domains := make([]types.Domain, 0, 16)
	for rows.Next() {
		var domain types.Domain
		if err := rows.Scan(
			&domain.Name,
			&domain.IsDeleted,
			&domain.CreatedAt,
			&domain.ModifiedAt,
		); err != nil {
			return nil, err
		}
		domains = append(domains, domain)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domains, nil
}

// Create inserts a domain. The name must already be normalized
// (lowercased, trimmed) by the caller. Duplicates surface as ErrConflict.
func (r *DomainRepository) Create(ctx context.Context, name string) (types.Domain, error) {
	now := time.Now()
	domain := types.Domain{Name: name, CreatedAt: now, ModifiedAt: now}

	const query = `
		INSERT INTO domains (name, created_at, modified_at)
		VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, domain.Name, domain.CreatedAt, domain.ModifiedAt); err != nil {
		if isUniqueViolation(err) {
			return types.Domain{}, ErrConflict
		}
		return types.Domain{}, err
	}
	return domain, nil
}

// SoftDelete marks a domain deleted. Returns whether a live row matched.
func (r *DomainRepository) SoftDelete(ctx context.Context, name string) (bool, error) {
	const query = `
		UPDATE domains
		SET is_deleted = TRUE, modified_at = NOW()
		WHERE name = $1 AND is_deleted = FALSE`
	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
