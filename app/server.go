// Package app wires the HTTP API shared by the local server and the Lambda entrypoint.
package app

import (
	"context"

	"example/regcheck-api/app/accounts"
	"example/regcheck-api/app/config"
	"example/regcheck-api/app/entitlement"
	"example/regcheck-api/app/ledger"
	"example/regcheck-api/app/lookup"
	"example/regcheck-api/app/mailer"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/payment"
	"example/regcheck-api/app/provider"
	"example/regcheck-api/app/store"
	"example/regcheck-api/app/support"
	"example/regcheck-api/auth"
)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Provider provider.Provider
	Sessions payment.SessionCreator
	Events   payment.EventVerifier
	Mailer   mailer.Mailer
	Tokens   *auth.TokenIssuer
}

type Server struct {
	cfg      *config.Config
	store    store.Store
	tokens   *auth.TokenIssuer
	accounts *accounts.Service
	lookups  *lookup.Orchestrator
	payments *payment.Intake
	tickets  *support.Service
}

func NewServer(d Deps) *Server {
	l := ledger.New(d.Store, d.Store, d.Store)
	anon := entitlement.NewAnonymousCounter(models.FreeMOTLookups, d.Config.Anonymous.CounterSize, d.Config.Anonymous.CounterTTL)
	checker := entitlement.NewChecker(l, anon)

	return &Server{
		cfg:      d.Config,
		store:    d.Store,
		tokens:   d.Tokens,
		accounts: accounts.NewService(d.Store, d.Tokens),
		lookups:  lookup.NewOrchestrator(checker, d.Provider, d.Store),
		payments: payment.NewIntake(d.Sessions, d.Events, d.Store, l, payment.Options{
			FrontendURL: d.Config.Stripe.FrontendURL,
			Currency:    d.Config.Stripe.Currency,
		}),
		tickets: support.NewService(d.Store, d.Store, d.Mailer, d.Config.Mail.StaffAddress),
	}
}

// Accounts exposes the account service for the CLI.
func (s *Server) Accounts() *accounts.Service {
	return s.accounts
}

// Payments exposes the payment intake for the CLI.
func (s *Server) Payments() *payment.Intake {
	return s.payments
}

func (s *Server) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}
