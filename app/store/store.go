// Package store declares the persistence contract for accounts, search records,
// transactions and support tickets. Backends live in the memory, postgres and mongo
// subpackages.
//
// Every method that changes a balance is a single atomic step at the storage layer:
// balances are never read, adjusted in Go, and written back.
package store

import (
	"context"
	"fmt"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/models"
)

// DebitSource selects which balance a debit draws from.
type DebitSource string

const (
	SourceFreeTier DebitSource = "FREE_TIER"
	SourceCredits  DebitSource = "CREDITS"
)

// Debit describes one guarded decrement. For SourceFreeTier the free-tier counter is
// incremented while it is below models.FreeMOTLookups; for SourceCredits the product's
// paid balance is decremented while it is at least Amount.
type Debit struct {
	AccountID string
	Product   models.Product
	Source    DebitSource
	Amount    int
}

// Validate rejects debits no backend should attempt.
func (d Debit) Validate() error {
	if d.AccountID == "" {
		return apperr.Invalid("debit: missing account id")
	}
	if !d.Product.Valid() {
		return apperr.Invalid(fmt.Sprintf("debit: unknown product %q", d.Product))
	}
	if d.Amount <= 0 {
		return apperr.Invalid("debit: amount must be positive")
	}
	switch d.Source {
	case SourceCredits:
	case SourceFreeTier:
		if !d.Product.HasFreeTier() {
			return apperr.Invalid(fmt.Sprintf("debit: %s has no free tier", d.Product))
		}
	default:
		return apperr.Invalid(fmt.Sprintf("debit: unknown source %q", d.Source))
	}
	return nil
}

type Accounts interface {
	// CreateAccount fails with apperr.ErrEmailTaken when the email already exists.
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	ListAccounts(ctx context.Context, page models.Page) ([]models.Account, error)
	// SetRole fails with apperr.ErrNotFound when the account is missing.
	SetRole(ctx context.Context, accountID string, role models.Role) error
	// ApplyDebit fails with apperr.ErrInsufficientBalance when the guard does not hold
	// and apperr.ErrNotFound when the account is missing.
	ApplyDebit(ctx context.Context, debit Debit) error
	AddCredits(ctx context.Context, accountID string, product models.Product, amount int) error
}

type Searches interface {
	// CommitSearch inserts the record and applies the debit in one transaction.
	// Neither is visible unless both succeed.
	CommitSearch(ctx context.Context, record *models.SearchRecord, debit Debit) error
	// ListSearches returns newest first. An empty accountID lists every account.
	ListSearches(ctx context.Context, accountID string, page models.Page) ([]models.SearchRecord, error)
}

type Transactions interface {
	// ApplyPayment inserts the transaction and credits the account atomically.
	// It reports false, without error, when a transaction with the same non-sentinel
	// PaymentRef already exists.
	ApplyPayment(ctx context.Context, tx *models.Transaction) (bool, error)
	ListTransactions(ctx context.Context, accountID string, page models.Page) ([]models.Transaction, error)
}

type Tickets interface {
	// CreateTicket fails with apperr.ErrConflict when the reference is taken.
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicket(ctx context.Context, reference string) (models.Ticket, error)
	// UpdateTicket replaces the ticket if its stored version still equals
	// ticket.Version, then bumps the version. A stale version is apperr.ErrConflict.
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
	ListTickets(ctx context.Context, filter models.TicketFilter, page models.Page) ([]models.Ticket, error)
}

type Store interface {
	Accounts
	Searches
	Transactions
	Tickets
	Close(ctx context.Context) error
}
