package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/domainkv/apiserver/internal/store"
	"github.com/domainkv/apiserver/types"
)

const membershipMaxRetries = 3

// MembershipService mutates a user's domain-access set. Each edit is a
// read-modify-write of a single user row, guarded by the row version:
// a concurrent edit bumps the version, the stale write matches nothing,
// and the loop re-reads and retries.
type MembershipService struct {
	users UserRepository
}

func NewMembershipService(users UserRepository) *MembershipService {
	return &MembershipService{users: users}
}

// AddDomain grants a user access to a domain. Adding an existing
// member is a no-op success. Domain existence is the caller's check.
func (s *MembershipService) AddDomain(ctx context.Context, userID int, domain string) error {
	return s.update(ctx, userID, func(domains []string) ([]string, bool) {
		for _, name := range domains {
			if name == domain {
				return nil, false
			}
		}
		return append(domains, domain), true
	})
}

// RemoveDomain revokes a user's access to a domain. Removing a
// non-member is a no-op success; removing the last domain persists an
// empty set.
func (s *MembershipService) RemoveDomain(ctx context.Context, userID int, domain string) error {
	return s.update(ctx, userID, func(domains []string) ([]string, bool) {
		remaining := make([]string, 0, len(domains))
		for _, name := range domains {
			if name != domain {
				remaining = append(remaining, name)
			}
		}
		if len(remaining) == len(domains) {
			return nil, false
		}
		return remaining, true
	})
}

func (s *MembershipService) update(ctx context.Context, userID int, edit func([]string) ([]string, bool)) error {
	var err error
	for attempt := 0; attempt < membershipMaxRetries; attempt++ {
		var user types.User
		user, err = s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}

		updated, changed := edit(user.Domains)
		if !changed {
			return nil
		}

		err = s.users.UpdateDomains(ctx, userID, updated, user.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("membership update contention: %w", err)
}
