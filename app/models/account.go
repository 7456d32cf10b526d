package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Credits holds the paid balance per product. Balances never go below zero.
type Credits struct {
	MOT       int `json:"mot" bson:"mot"`
	VDI       int `json:"vdi" bson:"vdi"`
	Valuation int `json:"valuation" bson:"valuation"`
}

// Get returns the balance for p, zero for an unknown product.
func (c Credits) Get(p Product) int {
	switch p {
	case ProductMOT:
		return c.MOT
	case ProductVDI:
		return c.VDI
	case ProductValuation:
		return c.Valuation
	}
	return 0
}

// Add adjusts the balance for p by n. Callers guard against negative results.
func (c *Credits) Add(p Product, n int) {
	switch p {
	case ProductMOT:
		c.MOT += n
	case ProductVDI:
		c.VDI += n
	case ProductValuation:
		c.Valuation += n
	}
}

type Account struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Role         Role      `json:"role" bson:"role"`
	FreeTierUsed int       `json:"freeTierUsed" bson:"free_tier_used"`
	Credits      Credits   `json:"credits" bson:"credits"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// Balances is the read model of what an account may still consume.
type Balances struct {
	FreeTierUsed      int     `json:"freeTierUsed"`
	FreeTierRemaining int     `json:"freeTierRemaining"`
	Credits           Credits `json:"credits"`
}

func (a Account) Balances() Balances {
	remaining := FreeMOTLookups - a.FreeTierUsed
	if remaining < 0 {
		remaining = 0
	}
	return Balances{
		FreeTierUsed:      a.FreeTierUsed,
		FreeTierRemaining: remaining,
		Credits:           a.Credits,
	}
}
