package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
	"example/regcheck-api/app/store/memory"
)

func newLedger(t *testing.T, acct models.Account) (*Ledger, *memory.Store) {
	t.Helper()
	st := memory.New()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now()
	}
	require.NoError(t, st.CreateAccount(context.Background(), &acct))
	return New(st, st, st), st
}

func TestGetBalances(t *testing.T) {
	l, _ := newLedger(t, models.Account{ID: "a1", Email: "a@x.test", FreeTierUsed: 1, Credits: models.Credits{VDI: 2}})

	b, err := l.GetBalances(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.FreeTierRemaining)
	assert.Equal(t, 2, b.Credits.VDI)

	_, err = l.GetBalances(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func lookupRecord(id string, p models.Product) *models.SearchRecord {
	r := models.Report{Product: p, Registration: "AB12CDE"}
	switch p {
	case models.ProductMOT:
		r.MOT = &models.MOTReport{}
	case models.ProductVDI:
		r.VDI = &models.VDIReport{}
	default:
		r.Valuation = &models.ValuationReport{}
	}
	return &models.SearchRecord{ID: id, AccountID: "a1", Registration: "AB12CDE", Product: p, Report: r}
}

func TestDebitNeverClamps(t *testing.T) {
	l, st := newLedger(t, models.Account{ID: "a1", Email: "a@x.test", Credits: models.Credits{Valuation: 1}})
	ctx := context.Background()

	err := l.CommitLookup(ctx, lookupRecord("s1", models.ProductValuation),
		store.Debit{AccountID: "a1", Product: models.ProductValuation, Source: store.SourceCredits, Amount: 2})
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	a, _ := st.GetAccount(ctx, "a1")
	assert.Equal(t, 1, a.Credits.Valuation)

	require.NoError(t, l.CommitLookup(ctx, lookupRecord("s2", models.ProductValuation),
		store.Debit{AccountID: "a1", Product: models.ProductValuation, Source: store.SourceCredits, Amount: 1}))
	a, _ = st.GetAccount(ctx, "a1")
	assert.Equal(t, 0, a.Credits.Valuation)
}

func TestDebitFreeTierOnlyForMOT(t *testing.T) {
	l, _ := newLedger(t, models.Account{ID: "a1", Email: "a@x.test"})
	err := l.CommitLookup(context.Background(), lookupRecord("s1", models.ProductVDI),
		store.Debit{AccountID: "a1", Product: models.ProductVDI, Source: store.SourceFreeTier, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	l, st := newLedger(t, models.Account{ID: "a1", Email: "a@x.test", Credits: models.Credits{MOT: 5}})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := lookupRecord(fmt.Sprintf("s%d", i), models.ProductMOT)
			if l.CommitLookup(ctx, rec, store.Debit{AccountID: "a1", Product: models.ProductMOT, Source: store.SourceCredits, Amount: 1}) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	a, _ := st.GetAccount(ctx, "a1")
	assert.Equal(t, 5, ok)
	assert.Equal(t, 0, a.Credits.MOT)
	history, _ := st.ListSearches(ctx, "a1", models.Page{})
	assert.Len(t, history, 5)
}

func creditTx(ref string, p models.Product, n int) *models.Transaction {
	return &models.Transaction{ID: "t-" + ref, AccountID: "a1", PaymentRef: ref, Product: p, Credits: n, Currency: "gbp", CreatedAt: time.Now()}
}

func TestCredit(t *testing.T) {
	l, st := newLedger(t, models.Account{ID: "a1", Email: "a@x.test"})
	ctx := context.Background()

	applied, err := l.Credit(ctx, creditTx("pi_1", models.ProductMOT, 25))
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = l.Credit(ctx, creditTx(models.FreeGrantRef, models.ProductMOT, 1000))
	require.NoError(t, err)
	assert.True(t, applied)
	a, _ := st.GetAccount(ctx, "a1")
	assert.Equal(t, 1025, a.Credits.MOT)

	txs, err := st.ListTransactions(ctx, "a1", models.Page{})
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	_, err = l.Credit(ctx, creditTx("pi_2", models.ProductMOT, 0))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = l.Credit(ctx, creditTx("pi_3", "BOGUS", 1))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	missing := creditTx("pi_4", models.ProductMOT, 1)
	missing.AccountID = "nobody"
	_, err = l.Credit(ctx, missing)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreditSamePaymentRefOnce(t *testing.T) {
	l, st := newLedger(t, models.Account{ID: "a1", Email: "a@x.test"})
	ctx := context.Background()

	applied, err := l.Credit(ctx, creditTx("pi_1", models.ProductVDI, 3))
	require.NoError(t, err)
	assert.True(t, applied)

	dup := creditTx("pi_1", models.ProductVDI, 3)
	dup.ID = "t-other"
	applied, err = l.Credit(ctx, dup)
	require.NoError(t, err)
	assert.False(t, applied)

	a, _ := st.GetAccount(ctx, "a1")
	assert.Equal(t, 3, a.Credits.VDI)
}

func TestCommitLookupIsAllOrNothing(t *testing.T) {
	l, st := newLedger(t, models.Account{ID: "a1", Email: "a@x.test"})
	ctx := context.Background()

	rec := &models.SearchRecord{
		ID: "s1", AccountID: "a1", Registration: "AB12CDE", Product: models.ProductVDI,
		Report: models.Report{Product: models.ProductVDI, Registration: "AB12CDE", VDI: &models.VDIReport{}},
	}
	err := l.CommitLookup(ctx, rec, store.Debit{AccountID: "a1", Product: models.ProductVDI, Source: store.SourceCredits, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	history, err := st.ListSearches(ctx, "a1", models.Page{})
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = l.Credit(ctx, creditTx("pi_1", models.ProductVDI, 1))
	require.NoError(t, err)
	require.NoError(t, l.CommitLookup(ctx, rec, store.Debit{AccountID: "a1", Product: models.ProductVDI, Source: store.SourceCredits, Amount: 1}))

	history, _ = st.ListSearches(ctx, "a1", models.Page{})
	assert.Len(t, history, 1)
	b, _ := l.GetBalances(ctx, "a1")
	assert.Equal(t, 0, b.Credits.VDI)
}

func TestCommitLookupRejectsMismatchedAccount(t *testing.T) {
	l, _ := newLedger(t, models.Account{ID: "a1", Email: "a@x.test", Credits: models.Credits{MOT: 1}})
	err := l.CommitLookup(context.Background(),
		&models.SearchRecord{ID: "s1", AccountID: "a2"},
		store.Debit{AccountID: "a1", Product: models.ProductMOT, Source: store.SourceCredits, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
