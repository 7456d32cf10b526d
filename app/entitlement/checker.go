// Package entitlement decides whether a requester may run a lookup and which balance pays.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
)

// Requester identifies who is asking. An empty AccountID is an anonymous client keyed
// by ClientAddr.
type Requester struct {
	AccountID  string
	ClientAddr string
}

func (r Requester) Anonymous() bool {
	return r.AccountID == ""
}

// Grant is the permission returned by Check. It must be followed by exactly one of
// Commit or Release.
type Grant struct {
	Requester Requester
	Product   models.Product
	Source    store.DebitSource // empty for anonymous grants
}

type Ledger interface {
	GetBalances(ctx context.Context, accountID string) (models.Balances, error)
	CommitLookup(ctx context.Context, record *models.SearchRecord, debit store.Debit) error
}

type Checker struct {
	ledger    Ledger
	anonymous *AnonymousCounter
}

func NewChecker(ledger Ledger, anonymous *AnonymousCounter) *Checker {
	return &Checker{ledger: ledger, anonymous: anonymous}
}

func (c *Checker) Check(ctx context.Context, r Requester, product models.Product) (Grant, error) {
	if !product.Valid() {
		return Grant{}, apperr.Invalid(fmt.Sprintf("unknown product %q", product))
	}
	g := Grant{Requester: r, Product: product}

	if r.Anonymous() {
		if !product.HasFreeTier() {
			return Grant{}, apperr.ErrNotAuthenticated
		}
		if !c.anonymous.Reserve(r.ClientAddr) {
			return Grant{}, apperr.ErrNoEntitlement
		}
		return g, nil
	}

	b, err := c.ledger.GetBalances(ctx, r.AccountID)
	if err != nil {
		return Grant{}, err
	}
	switch {
	case product.HasFreeTier() && b.FreeTierUsed < models.FreeMOTLookups:
		g.Source = store.SourceFreeTier
	case b.Credits.Get(product) >= 1:
		g.Source = store.SourceCredits
	default:
		return Grant{}, apperr.ErrNoEntitlement
	}
	return g, nil
}

// Release gives back an anonymous reservation after a failed lookup. Authenticated
// grants hold nothing until Commit, so releasing them is a no-op.
func (c *Checker) Release(g Grant) {
	if g.Requester.Anonymous() {
		c.anonymous.Release(g.Requester.ClientAddr)
	}
}

// Commit charges the grant and stores record with it. Anonymous lookups are neither
// charged nor recorded.
func (c *Checker) Commit(ctx context.Context, g Grant, record *models.SearchRecord) error {
	if g.Requester.Anonymous() {
		return nil
	}

	debit := store.Debit{AccountID: g.Requester.AccountID, Product: g.Product, Source: g.Source, Amount: 1}
	err := c.ledger.CommitLookup(ctx, record, debit)
	if errors.Is(err, apperr.ErrInsufficientBalance) && g.Source == store.SourceFreeTier {
		// the free allowance ran out between Check and Commit; paid credits may still cover it
		log.Debug().Str("account_id", debit.AccountID).Msg("Free tier exhausted during lookup, retrying against credits")
		debit.Source = store.SourceCredits
		err = c.ledger.CommitLookup(ctx, record, debit)
	}
	if errors.Is(err, apperr.ErrInsufficientBalance) {
		return fmt.Errorf("%w: balance spent by a concurrent lookup", apperr.ErrNoEntitlement)
	}
	return err
}
