package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/domainkv/apiserver/internal/store"
	"github.com/domainkv/apiserver/types"
)

// Authorization failures, ordered by the gate that produces them.
// Handlers map these onto 404/401/403.
var (
	// ErrDomainNotFound: the target domain does not exist or is deleted.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrUserNotCurrent: the token's user no longer exists, is deleted,
	// or has been deactivated since the token was issued.
	ErrUserNotCurrent = errors.New("user not found or inactive")
	// ErrDomainForbidden: an active non-admin without membership in the
	// target domain.
	ErrDomainForbidden = errors.New("access denied to this domain")
	// ErrAdminRequired: an admin-only endpoint called by a non-admin.
	ErrAdminRequired = errors.New("admin access required")
)

// AccessService decides, per request, whether an authenticated caller
// may act on a target domain or call an admin endpoint. It always
// re-reads the user row: the isAdmin/isActive copies inside a token
// are snapshots from login time and can be up to 90 days stale.
type AccessService struct {
	users   UserRepository
	domains DomainRepository
}

func NewAccessService(users UserRepository, domains DomainRepository) *AccessService {
	return &AccessService{users: users, domains: domains}
}

// AuthorizeDomain evaluates the per-domain gates in strict order:
// the domain must exist, the user row must be live and active, then
// admins pass unconditionally and everyone else needs the domain in
// their membership set. The first failing gate short-circuits.
func (s *AccessService) AuthorizeDomain(ctx context.Context, userID int, domain string) (types.User, error) {
	if err := s.CheckDomain(ctx, domain); err != nil {
		return types.User{}, err
	}

	user, err := s.currentUser(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	if user.IsAdmin {
		return user, nil
	}
	if !user.HasDomain(domain) {
		return types.User{}, ErrDomainForbidden
	}
	return user, nil
}

// CheckDomain verifies the target domain exists and is not deleted.
func (s *AccessService) CheckDomain(ctx context.Context, domain string) error {
	if _, err := s.domains.Get(ctx, domain); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDomainNotFound
		}
		return fmt.Errorf("check domain: %w", err)
	}
	return nil
}

// AuthorizeAdmin evaluates the admin-only gate: the user row must be
// live, active, and an admin right now, regardless of what the token
// claims.
func (s *AccessService) AuthorizeAdmin(ctx context.Context, userID int) (types.User, error) {
	user, err := s.currentUser(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if !user.IsAdmin {
		return types.User{}, ErrAdminRequired
	}
	return user, nil
}

func (s *AccessService) currentUser(ctx context.Context, userID int) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUserNotCurrent
		}
		return types.User{}, fmt.Errorf("check user: %w", err)
	}
	if !user.IsActive {
		return types.User{}, ErrUserNotCurrent
	}
	return user, nil
}
