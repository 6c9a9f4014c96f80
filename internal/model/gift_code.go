package model

import (
	"time"
)

// GiftCode represents a single-use gift code in the database
type GiftCode struct {
	Code       string     `db:"code" json:"code"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UsedAt     *time.Time `db:"used_at" json:"used_at,omitempty"`       // nil while unused
	CreatedFor *string    `db:"created_for" json:"created_for,omitempty"` // set by reputation issuance
}

// IsValid reports whether the code can still be redeemed
func (g *GiftCode) IsValid() bool {
	return g.UsedAt == nil
}

// Owner returns the user the code was issued for, or ""
func (g *GiftCode) Owner() string {
	if g.CreatedFor == nil {
		return ""
	}
	return *g.CreatedFor
}
