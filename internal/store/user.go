package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/domainkv/apiserver/types"
)

// UserRepository handles persistence for users. Every lookup excludes
// soft-deleted rows; deletion only ever flips is_deleted.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, password_hash, is_active, is_admin, domains, version, is_deleted, created_at, modified_at`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var user types.User
	var domains sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsAdmin,
		&domains,
		&user.Version,
		&user.IsDeleted,
		&user.CreatedAt,
		&user.ModifiedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	if domains.Valid {
		user.Domains = types.SplitDomainList(domains.String)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND is_deleted = FALSE`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1 AND is_deleted = FALSE`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_deleted = FALSE
		ORDER BY id`
	return r.queryUsers(ctx, query)
}

// ListByDomain returns non-deleted users whose domain set contains the
// given name, plus admins, who have access to every domain.
func (r *UserRepository) ListByDomain(ctx context.Context, domain string) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_deleted = FALSE
		  AND (is_admin = TRUE OR $1 = ANY(string_to_array(replace(COALESCE(domains, ''), ' ', ''), ',')))
		ORDER BY id`
	return r.queryUsers(ctx, query, domain)
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Create inserts a new user. A live-username collision surfaces as
// ErrConflict; soft-deleted usernames may be reused.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.ModifiedAt = now

	const query = `
		INSERT INTO users (username, password_hash, is_active, is_admin, domains, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.IsAdmin,
		encodeDomains(user.Domains),
		user.CreatedAt,
		user.ModifiedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateStatus sets is_active and, when isDeleted is non-nil, the
// soft-delete flag. Only live rows are touched, so an already-deleted
// user cannot be resurrected through this path.
func (r *UserRepository) UpdateStatus(ctx context.Context, id int, isActive bool, isDeleted *bool) (bool, error) {
	var result sql.Result
	var err error
	if isDeleted != nil {
		const query = `
			UPDATE users
			SET is_active = $1, is_deleted = $2, modified_at = NOW()
			WHERE id = $3 AND is_deleted = FALSE`
		result, err = r.db.ExecContext(ctx, query, isActive, *isDeleted, id)
	} else {
		const query = `
			UPDATE users
			SET is_active = $1, modified_at = NOW()
			WHERE id = $2 AND is_deleted = FALSE`
		result, err = r.db.ExecContext(ctx, query, isActive, id)
	}
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SoftDelete marks a user deleted. Returns whether a live row matched.
func (r *UserRepository) SoftDelete(ctx context.Context, id int) (bool, error) {
	const query = `
		UPDATE users
		SET is_deleted = TRUE, modified_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateDomains rewrites the whole domain set, guarded by the row
// version read alongside it. A stale version matches no row and
// returns ErrVersionConflict so the caller can retry.
func (r *UserRepository) UpdateDomains(ctx context.Context, id int, domains []string, expectedVersion int) error {
	const query = `
		UPDATE users
		SET domains = $1, version = version + 1, modified_at = NOW()
		WHERE id = $2 AND version = $3 AND is_deleted = FALSE`
	result, err := r.db.ExecContext(ctx, query, encodeDomains(domains), id, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// encodeDomains renders the set in its stored comma-joined form; an
// empty set is persisted as NULL, not an empty string.
func encodeDomains(domains []string) any {
	encoded := types.JoinDomainList(domains)
	if encoded == "" {
		return nil
	}
	return encoded
}
