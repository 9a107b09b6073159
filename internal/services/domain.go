package services

import (
	"context"
	"errors"
	"strings"

	"github.com/domainkv/apiserver/types"
)

// ErrInvalidDomainName is returned when a domain name is empty after
// normalization.
var ErrInvalidDomainName = errors.New("domain name is required")

// DomainRepository defines persistence operations for domains.
type DomainRepository interface {
	Get(ctx context.Context, name string) (types.Domain, error)
	List(ctx context.Context) ([]types.Domain, error)
	Create(ctx context.Context, name string) (types.Domain, error)
	SoftDelete(ctx context.Context, name string) (bool, error)
}

// DomainService encapsulates tenant-domain use-cases.
type DomainService struct {
	repo DomainRepository
}

func NewDomainService(repo DomainRepository) *DomainService {
	return &DomainService{repo: repo}
}

// NormalizeDomainName applies the canonical form used everywhere a
// domain name enters the system: trimmed and lowercased.
func NormalizeDomainName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *DomainService) Get(ctx context.Context, name string) (types.Domain, error) {
	return s.repo.Get(ctx, name)
}

func (s *DomainService) List(ctx context.Context) ([]types.Domain, error) {
	return s.repo.List(ctx)
}

// Create normalizes and persists a new domain; "Editor" and "editor"
// name the same tenant and the second one conflicts.
func (s *DomainService) Create(ctx context.Context, name string) (types.Domain, error) {
	name = NormalizeDomainName(name)
	if name == "" {
		return types.Domain{}, ErrInvalidDomainName
	}
	return s.repo.Create(ctx, name)
}

func (s *DomainService) Delete(ctx context.Context, name string) (bool, error) {
	return s.repo.SoftDelete(ctx, name)
}
