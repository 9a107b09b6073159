package types

import "time"

// Record is a key-value entry scoped to one user and one domain.
// The composite identity (UserID, Domain, Key) is unique; deleting a
// record flips IsDeleted and re-creating the same key upserts onto the
// same physical row.
type Record struct {
	UserID     int       `json:"-" db:"user_id"`
	Domain     string    `json:"-" db:"domain"`
	Key        string    `json:"key" db:"key"`
	Value      *string   `json:"value" db:"value"`
	IsDeleted  bool      `json:"isDeleted" db:"is_deleted"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	ModifiedAt time.Time `json:"modifiedAt" db:"modified_at"`
}
