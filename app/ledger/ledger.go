// Package ledger owns account balances: the free MOT allowance and paid credits per product.
package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/metrics"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
)

// Ledger reads balances straight from the store on every call; nothing is cached.
// There is no standalone debit: every debit is committed together with the search record
// that paid for it (CommitLookup).
type Ledger struct {
	accounts     store.Accounts
	searches     store.Searches
	transactions store.Transactions
}

func New(accounts store.Accounts, searches store.Searches, transactions store.Transactions) *Ledger {
	return &Ledger{accounts: accounts, searches: searches, transactions: transactions}
}

func (l *Ledger) GetBalances(ctx context.Context, accountID string) (models.Balances, error) {
	a, err := l.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return models.Balances{}, fmt.Errorf("get balances: %w", err)
	}
	return a.Balances(), nil
}

// Credit records tx and adds its credits to the account in one storage step. Confirmed
// payments and administrative grants both come through here. It reports false, without
// error, when a transaction with the same payment reference was already applied.
func (l *Ledger) Credit(ctx context.Context, tx *models.Transaction) (bool, error) {
	if tx.Credits <= 0 {
		return false, apperr.Invalid("credit amount must be positive")
	}
	if !tx.Product.Valid() {
		return false, apperr.Invalid(fmt.Sprintf("unknown product %q", tx.Product))
	}
	applied, err := l.transactions.ApplyPayment(ctx, tx)
	if err != nil {
		return false, fmt.Errorf("credit %s: %w", tx.Product, err)
	}
	if applied {
		kind := "purchase"
		if tx.IsFreeGrant() {
			kind = "grant"
		}
		metrics.RecordCreditGrant(string(tx.Product), kind, tx.Credits)
	}
	return applied, nil
}

// CommitLookup persists the search record and applies the debit together. If the debit
// guard fails nothing is written.
func (l *Ledger) CommitLookup(ctx context.Context, record *models.SearchRecord, debit store.Debit) error {
	if record.AccountID != debit.AccountID {
		return apperr.Invalid("search record and debit belong to different accounts")
	}
	if err := l.searches.CommitSearch(ctx, record, debit); err != nil {
		return fmt.Errorf("commit lookup: %w", err)
	}
	metrics.RecordDebit(string(debit.Product), string(debit.Source), debit.Amount)
	log.Debug().
		Str("account_id", debit.AccountID).
		Str("product", string(debit.Product)).
		Str("source", string(debit.Source)).
		Str("registration", record.Registration).
		Msg("Lookup committed")
	return nil
}
