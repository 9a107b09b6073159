package types

import "time"

// Domain is a tenant namespace. Users and records are scoped to one or
// more domains. Names are lowercased and trimmed at creation.
type Domain struct {
	Name       string    `json:"name" db:"name"`
	IsDeleted  bool      `json:"-" db:"is_deleted"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	ModifiedAt time.Time `json:"modifiedAt" db:"modified_at"`
}
