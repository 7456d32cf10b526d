package models

import "time"

// SearchRecord is the immutable history entry written for every successful
// authenticated lookup.
type SearchRecord struct {
	ID           string    `json:"id" bson:"_id"`
	AccountID    string    `json:"accountId" bson:"account_id"`
	Registration string    `json:"registration" bson:"registration"`
	Product      Product   `json:"product" bson:"product"`
	Report       Report    `json:"report" bson:"report"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// Page bounds list queries. Zero Limit means DefaultPageLimit.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
