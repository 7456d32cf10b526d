package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"example/regcheck-api/app/apperr"
)

// SessionRequest is what the processor needs to host one checkout.
type SessionRequest struct {
	Tier       Tier
	AccountID  string
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Confirmation is a verified, paid checkout as echoed back by the processor.
type Confirmation struct {
	EventID    string
	PaymentRef string
	AmountPaid int64
	Currency   string
	Metadata   map[string]string
}

type SessionCreator interface {
	CreateSession(ctx context.Context, req SessionRequest) (string, error)
}

// EventVerifier authenticates a webhook payload. It returns a nil Confirmation for events
// that do not confirm a payment, apperr.ErrInvalidSignature when authentication fails,
// and apperr.ErrInvalidInput for authentic but unreadable events.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (*Confirmation, error)
}

const (
	eventCheckoutCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// StripeGateway talks to Stripe Checkout.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

var (
	_ SessionCreator = (*StripeGateway)(nil)
	_ EventVerifier  = (*StripeGateway)(nil)
)

// NewStripeGateway builds a gateway. backends may be nil to use Stripe's defaults.
func NewStripeGateway(secretKey, webhookSecret string, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.AccountID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.Tier.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Tier.Name()),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout session: %w", err)
	}
	return sess.URL, nil
}

func (g *StripeGateway) Verify(payload []byte, signatureHeader string) (*Confirmation, error) {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signatureHeader,
		g.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidSignature, err)
	}

	switch event.Type {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded:
	default:
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apperr.Invalid(fmt.Sprintf("stripe session payload: %v", err))
	}
	// delayed payment methods complete unpaid and confirm later via async_payment_succeeded
	if event.Type == eventCheckoutCompleted && !settled(sess.PaymentStatus) {
		return nil, nil
	}

	ref := sess.ID
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		ref = sess.PaymentIntent.ID
	}
	return &Confirmation{
		EventID:    event.ID,
		PaymentRef: ref,
		AmountPaid: sess.AmountTotal,
		Currency:   string(sess.Currency),
		Metadata:   sess.Metadata,
	}, nil
}

// settled reports whether a completed session owes nothing more. A fully discounted
// checkout completes as no_payment_required with a zero total.
func settled(status stripe.CheckoutSessionPaymentStatus) bool {
	return status == stripe.CheckoutSessionPaymentStatusPaid ||
		status == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}
