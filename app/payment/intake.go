// Package payment turns checkout purchases and admin grants into account credits,
// exactly once per payment reference.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/metrics"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
)

const (
	metaAccountID = "account_id"
	metaProduct   = "product"
	metaQuantity  = "quantity"

	maxGrantQuantity = 10000
)

// Ledger credits an account and records the transaction that paid for it. A repeated
// payment reference reports false.
type Ledger interface {
	Credit(ctx context.Context, tx *models.Transaction) (bool, error)
}

type Intake struct {
	sessions    SessionCreator
	events      EventVerifier
	accounts    store.Accounts
	ledger      Ledger
	frontendURL string
	currency    string
	now         func() time.Time
}

type Options struct {
	FrontendURL string
	Currency    string
}

func NewIntake(sessions SessionCreator, events EventVerifier, accounts store.Accounts, ledger Ledger, opts Options) *Intake {
	if opts.Currency == "" {
		opts.Currency = "gbp"
	}
	return &Intake{
		sessions:    sessions,
		events:      events,
		accounts:    accounts,
		ledger:      ledger,
		frontendURL: opts.FrontendURL,
		currency:    opts.Currency,
		now:         time.Now,
	}
}

// CreateCheckoutSession returns the hosted checkout URL for a recognised bundle. The
// account, product and quantity ride along as metadata; the webhook credits from that
// metadata alone.
func (in *Intake) CreateCheckoutSession(ctx context.Context, accountID string, product models.Product, quantity int) (string, error) {
	tier, err := FindTier(product, quantity)
	if err != nil {
		return "", err
	}
	if _, err := in.accounts.GetAccount(ctx, accountID); err != nil {
		return "", fmt.Errorf("checkout account: %w", err)
	}
	if in.frontendURL == "" {
		return "", errors.New("billing not configured: missing frontend url")
	}

	url, err := in.sessions.CreateSession(ctx, SessionRequest{
		Tier:       tier,
		AccountID:  accountID,
		Currency:   in.currency,
		SuccessURL: in.frontendURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  in.frontendURL + "/billing/cancel",
		Metadata: map[string]string{
			metaAccountID: accountID,
			metaProduct:   string(tier.Product),
			metaQuantity:  strconv.Itoa(tier.Quantity),
		},
	})
	if err != nil {
		return "", err
	}
	log.Info().Str("account_id", accountID).Str("product", string(product)).Int("quantity", quantity).Msg("Checkout session created")
	return url, nil
}

// HandlePaymentConfirmed processes one webhook delivery. Only a signature failure or a
// transient storage error is returned: those are worth a redelivery. Events that can
// never succeed are logged and acknowledged.
func (in *Intake) HandlePaymentConfirmed(ctx context.Context, payload []byte, signatureHeader string) error {
	conf, err := in.events.Verify(payload, signatureHeader)
	switch {
	case errors.Is(err, apperr.ErrInvalidSignature):
		metrics.RecordPaymentEvent("bad_signature")
		log.Warn().Err(err).Msg("Payment webhook rejected")
		return err
	case err != nil:
		metrics.RecordPaymentEvent("malformed")
		log.Error().Err(err).Msg("Payment webhook unreadable, acknowledging")
		return nil
	case conf == nil:
		metrics.RecordPaymentEvent("ignored")
		return nil
	}

	tx, err := in.transactionFrom(conf)
	if err != nil {
		metrics.RecordPaymentEvent("bad_metadata")
		log.Error().Err(err).Str("event_id", conf.EventID).Str("payment_ref", conf.PaymentRef).Msg("Payment metadata invalid, acknowledging")
		return nil
	}

	applied, err := in.ledger.Credit(ctx, tx)
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		metrics.RecordPaymentEvent("bad_metadata")
		log.Error().Err(err).Str("payment_ref", tx.PaymentRef).Msg("Payment rejected by ledger, acknowledging")
		return nil
	case errors.Is(err, apperr.ErrNotFound):
		metrics.RecordPaymentEvent("unknown_account")
		log.Error().Str("account_id", tx.AccountID).Str("payment_ref", tx.PaymentRef).Msg("Payment for unknown account, acknowledging")
		return nil
	case err != nil:
		metrics.RecordPaymentEvent("error")
		return fmt.Errorf("apply payment %s: %w", tx.PaymentRef, err)
	case !applied:
		metrics.RecordPaymentEvent("duplicate")
		log.Info().Str("payment_ref", tx.PaymentRef).Msg("Duplicate payment delivery ignored")
		return nil
	}

	metrics.RecordPaymentEvent("applied")
	log.Info().
		Str("account_id", tx.AccountID).
		Str("product", string(tx.Product)).
		Int("credits", tx.Credits).
		Str("payment_ref", tx.PaymentRef).
		Msg("Payment applied")
	return nil
}

func (in *Intake) transactionFrom(conf *Confirmation) (*models.Transaction, error) {
	if conf.PaymentRef == "" {
		return nil, errors.New("missing payment reference")
	}
	accountID := conf.Metadata[metaAccountID]
	if accountID == "" {
		return nil, errors.New("missing account_id metadata")
	}
	product, err := models.ParseProduct(conf.Metadata[metaProduct])
	if err != nil {
		return nil, err
	}
	quantity, err := strconv.Atoi(conf.Metadata[metaQuantity])
	if err != nil || quantity <= 0 {
		return nil, fmt.Errorf("bad quantity metadata %q", conf.Metadata[metaQuantity])
	}
	currency := conf.Currency
	if currency == "" {
		currency = in.currency
	}
	return &models.Transaction{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		PaymentRef: conf.PaymentRef,
		Credits:    quantity,
		Product:    product,
		AmountPaid: conf.AmountPaid,
		Currency:   currency,
		CreatedAt:  in.now().UTC(),
	}, nil
}

// GrantFreeCredits credits an account without a checkout and records a zero-amount
// transaction under models.FreeGrantRef.
func (in *Intake) GrantFreeCredits(ctx context.Context, accountID string, product models.Product, quantity int) (models.Transaction, error) {
	if !product.Valid() {
		return models.Transaction{}, apperr.Invalid(fmt.Sprintf("unknown product %q", product))
	}
	if quantity <= 0 || quantity > maxGrantQuantity {
		return models.Transaction{}, apperr.Invalid("quantity out of range")
	}
	tx := models.Transaction{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		PaymentRef: models.FreeGrantRef,
		Credits:    quantity,
		Product:    product,
		AmountPaid: 0,
		Currency:   in.currency,
		CreatedAt:  in.now().UTC(),
	}
	if _, err := in.ledger.Credit(ctx, &tx); err != nil {
		return models.Transaction{}, fmt.Errorf("grant credits: %w", err)
	}
	log.Info().Str("account_id", accountID).Str("product", string(product)).Int("credits", quantity).Msg("Free credits granted")
	return tx, nil
}

// Packages lists the purchasable bundles.
func (in *Intake) Packages() []Tier {
	return append([]Tier(nil), Tiers...)
}
