package types

import (
	"sort"
	"strings"
	"time"
)

// User represents an account in the system.
// It contains identity, access flags, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	// Uniqueness is enforced among non-deleted users only.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsActive gates authentication: inactive users cannot log in and
	// fail every authorization gate even with a valid token.
	IsActive bool `json:"isActive" db:"is_active"`

	// IsAdmin grants universal domain access and the ability to call
	// the admin endpoints. Authorization always re-reads this from the
	// store; the copy inside a token is a stale snapshot.
	IsAdmin bool `json:"isAdmin" db:"is_admin"`

	// Domains is the set of domain names the user may access when not
	// an admin. Stored comma-joined, treated as an unordered set.
	Domains []string `json:"domains" db:"domains"`

	// Version increments on every domain-list rewrite and guards the
	// read-modify-write membership update against concurrent edits.
	Version int `json:"-" db:"version"`

	// IsDeleted marks the row as logically removed.
	IsDeleted bool `json:"isDeleted" db:"is_deleted"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// ModifiedAt is the timestamp of the most recent update to the user account.
	ModifiedAt time.Time `json:"modifiedAt" db:"modified_at"`
}

// HasDomain reports whether the user's domain set contains name.
func (u User) HasDomain(name string) bool {
	for _, domain := range u.Domains {
		if domain == name {
			return true
		}
	}
	return false
}

// SplitDomainList parses the stored comma-joined encoding into a
// deduplicated slice of trimmed names. The result is sorted so the
// encoding round-trips deterministically.
func SplitDomainList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seen := make(map[string]struct{})
	domains := make([]string, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		domains = append(domains, name)
	}
	sort.Strings(domains)
	if len(domains) == 0 {
		return nil
	}
	return domains
}

// JoinDomainList renders a domain set into the stored comma-joined
// encoding. An empty set renders as the empty string, which the store
// persists as NULL.
func JoinDomainList(domains []string) string {
	return strings.Join(SplitDomainList(strings.Join(domains, ",")), ",")
}
