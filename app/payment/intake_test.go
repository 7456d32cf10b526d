package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/ledger"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store/memory"
)

type fakeSessions struct {
	got SessionRequest
	err error
}

func (f *fakeSessions) CreateSession(_ context.Context, req SessionRequest) (string, error) {
	f.got = req
	if f.err != nil {
		return "", f.err
	}
	return "https://checkout.test/" + req.AccountID, nil
}

func newIntake(t *testing.T) (*Intake, *memory.Store, *fakeSessions) {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &models.Account{ID: "a1", Email: "a@x.test", CreatedAt: time.Now()}))
	sessions := &fakeSessions{}
	gw := NewStripeGateway("sk_test", testWebhookSecret, nil)
	in := NewIntake(sessions, gw, st, ledger.New(st, st, st), Options{FrontendURL: "https://app.test", Currency: "gbp"})
	return in, st, sessions
}

func purchaseMeta(accountID string) map[string]string {
	return map[string]string{"account_id": accountID, "product": "MOT", "quantity": "10"}
}

func TestFindTier(t *testing.T) {
	tier, err := FindTier(models.ProductVDI, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2499), tier.Amount)

	_, err = FindTier(models.ProductMOT, 7)
	assert.ErrorIs(t, err, apperr.ErrInvalidPackage)
}

func TestCreateCheckoutSession(t *testing.T) {
	in, _, sessions := newIntake(t)

	url, err := in.CreateCheckoutSession(context.Background(), "a1", models.ProductValuation, 3)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.test/a1", url)
	assert.Equal(t, int64(1199), sessions.got.Tier.Amount)
	assert.Equal(t, map[string]string{"account_id": "a1", "product": "VALUATION", "quantity": "3"}, sessions.got.Metadata)
	assert.Contains(t, sessions.got.SuccessURL, "https://app.test/billing/success")
}

func TestCreateCheckoutSessionErrors(t *testing.T) {
	in, _, sessions := newIntake(t)
	ctx := context.Background()

	_, err := in.CreateCheckoutSession(ctx, "a1", models.ProductMOT, 11)
	assert.ErrorIs(t, err, apperr.ErrInvalidPackage)

	_, err = in.CreateCheckoutSession(ctx, "ghost", models.ProductMOT, 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	sessions.err = errors.New("stripe down")
	_, err = in.CreateCheckoutSession(ctx, "a1", models.ProductMOT, 10)
	assert.Error(t, err)
}

func TestDuplicateDeliveryCreditsOnce(t *testing.T) {
	in, st, _ := newIntake(t)
	ctx := context.Background()
	payload, header := signedEvent(t, "checkout.session.completed", paidSession("pi_123", purchaseMeta("a1")))

	require.NoError(t, in.HandlePaymentConfirmed(ctx, payload, header))
	require.NoError(t, in.HandlePaymentConfirmed(ctx, payload, header))

	a, _ := st.GetAccount(ctx, "a1")
	assert.Equal(t, 10, a.Credits.MOT)
	txs, _ := st.ListTransactions(ctx, "a1", models.Page{})
	require.Len(t, txs, 1)
	assert.Equal(t, "pi_123", txs[0].PaymentRef)
	assert.Equal(t, int64(499), txs[0].AmountPaid)
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	in, st, _ := newIntake(t)
	ctx := context.Background()
	payload, header := signedEvent(t, "checkout.session.completed", paidSession("pi_concurrent", purchaseMeta("a1")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, in.HandlePaymentConfirmed(ctx, payload, header))
		}()
	}
	wg.Wait()

	a, _ := st.GetAccount(ctx, "a1")
	assert.Equal(t, 10, a.Credits.MOT)
	txs, _ := st.ListTransactions(ctx, "a1", models.Page{})
	assert.Len(t, txs, 1)
}

func TestBadSignatureIsRejected(t *testing.T) {
	in, st, _ := newIntake(t)
	payload, _ := signedEvent(t, "checkout.session.completed", paidSession("pi_9", purchaseMeta("a1")))

	err := in.HandlePaymentConfirmed(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, apperr.ErrInvalidSignature)

	a, _ := st.GetAccount(context.Background(), "a1")
	assert.Equal(t, 0, a.Credits.MOT)
}

func TestUnknownAccountIsAcknowledged(t *testing.T) {
	in, st, _ := newIntake(t)
	payload, header := signedEvent(t, "checkout.session.completed", paidSession("pi_ghost", purchaseMeta("deleted")))

	assert.NoError(t, in.HandlePaymentConfirmed(context.Background(), payload, header))
	txs, _ := st.ListTransactions(context.Background(), "", models.Page{})
	assert.Empty(t, txs)
}

func TestBadMetadataIsAcknowledged(t *testing.T) {
	in, st, _ := newIntake(t)
	meta := purchaseMeta("a1")
	meta["quantity"] = "lots"
	payload, header := signedEvent(t, "checkout.session.completed", paidSession("pi_bad", meta))

	assert.NoError(t, in.HandlePaymentConfirmed(context.Background(), payload, header))
	a, _ := st.GetAccount(context.Background(), "a1")
	assert.Equal(t, 0, a.Credits.MOT)
}

func TestGrantFreeCredits(t *testing.T) {
	in, st, _ := newIntake(t)
	ctx := context.Background()

	_, err := in.GrantFreeCredits(ctx, "a1", models.ProductVDI, 2)
	require.NoError(t, err)
	_, err = in.GrantFreeCredits(ctx, "a1", models.ProductVDI, 1)
	require.NoError(t, err)

	a, _ := st.GetAccount(ctx, "a1")
	assert.Equal(t, 3, a.Credits.VDI)
	txs, _ := st.ListTransactions(ctx, "a1", models.Page{})
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.True(t, tx.IsFreeGrant())
		assert.Equal(t, int64(0), tx.AmountPaid)
	}

	_, err = in.GrantFreeCredits(ctx, "ghost", models.ProductVDI, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = in.GrantFreeCredits(ctx, "a1", models.ProductVDI, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

type recordingLedger struct {
	credited []models.Transaction
	err      error
}

func (l *recordingLedger) Credit(_ context.Context, tx *models.Transaction) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.credited = append(l.credited, *tx)
	return true, nil
}

func TestPaymentsAndGrantsCreditThroughLedger(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &models.Account{ID: "a1", Email: "a@x.test", CreatedAt: time.Now()}))
	led := &recordingLedger{}
	in := NewIntake(&fakeSessions{}, NewStripeGateway("sk_test", testWebhookSecret, nil), st, led, Options{FrontendURL: "https://app.test"})

	payload, header := signedEvent(t, "checkout.session.completed", paidSession("pi_77", purchaseMeta("a1")))
	require.NoError(t, in.HandlePaymentConfirmed(context.Background(), payload, header))
	_, err := in.GrantFreeCredits(context.Background(), "a1", models.ProductValuation, 4)
	require.NoError(t, err)

	require.Len(t, led.credited, 2)
	assert.Equal(t, "pi_77", led.credited[0].PaymentRef)
	assert.Equal(t, 10, led.credited[0].Credits)
	assert.True(t, led.credited[1].IsFreeGrant())
	assert.Equal(t, 4, led.credited[1].Credits)
}

func TestLedgerFailureAsksForRedelivery(t *testing.T) {
	st := memory.New()
	led := &recordingLedger{err: errors.New("connection reset")}
	in := NewIntake(&fakeSessions{}, NewStripeGateway("sk_test", testWebhookSecret, nil), st, led, Options{})

	payload, header := signedEvent(t, "checkout.session.completed", paidSession("pi_78", purchaseMeta("a1")))
	assert.Error(t, in.HandlePaymentConfirmed(context.Background(), payload, header))
}
