package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/domainkv/apiserver/internal/auth"
	"github.com/domainkv/apiserver/internal/store"
	"github.com/domainkv/apiserver/types"
)

// ErrInvalidCredentials covers a wrong password as well as a missing or
// inactive account; callers must not distinguish the cases.
var ErrInvalidCredentials = errors.New("incorrect username or password")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	ListByDomain(ctx context.Context, domain string) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateStatus(ctx context.Context, id int, isActive bool, isDeleted *bool) (bool, error)
	SoftDelete(ctx context.Context, id int) (bool, error)
	UpdateDomains(ctx context.Context, id int, domains []string, expectedVersion int) error
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo       UserRepository
	bcryptCost int
}

func NewUserService(repo UserRepository, bcryptCost int) *UserService {
	return &UserService{repo: repo, bcryptCost: bcryptCost}
}

// Register creates a self-service account. New users start inactive,
// non-admin, and domainless until an admin enables them.
func (s *UserService) Register(ctx context.Context, username, password string) (types.User, error) {
	hashed, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return types.User{}, err
	}
	return s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: hashed,
	})
}

// CreateUser creates an account through the admin endpoints, with the
// flags and optional initial domain membership the admin chose.
func (s *UserService) CreateUser(ctx context.Context, username, password string, domains []string, isActive, isAdmin bool) (types.User, error) {
	hashed, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return types.User{}, err
	}
	return s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: hashed,
		IsActive:     isActive,
		IsAdmin:      isAdmin,
		Domains:      types.SplitDomainList(types.JoinDomainList(domains)),
	})
}

// Authenticate verifies a username/password pair against a live,
// active account.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("look up user: %w", err)
	}
	if !user.IsActive {
		return types.User{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) ListByDomain(ctx context.Context, domain string) ([]types.User, error) {
	return s.repo.ListByDomain(ctx, domain)
}

func (s *UserService) UpdateStatus(ctx context.Context, id int, isActive bool, isDeleted *bool) (bool, error) {
	return s.repo.UpdateStatus(ctx, id, isActive, isDeleted)
}

func (s *UserService) Delete(ctx context.Context, id int) (bool, error) {
	return s.repo.SoftDelete(ctx, id)
}

// EnsureAdmin creates the bootstrap admin account on first start. If a
// live user with the username already exists this is a no-op.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string, domains []string) error {
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check admin account: %w", err)
	}

	hashed, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: hashed,
		IsActive:     true,
		IsAdmin:      true,
		Domains:      domains,
	})
	if errors.Is(err, store.ErrConflict) {
		// Lost a create race with another instance; the account exists.
		return nil
	}
	return err
}
