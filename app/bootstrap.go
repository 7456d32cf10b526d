package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/config"
	"example/regcheck-api/app/mailer"
	"example/regcheck-api/app/payment"
	"example/regcheck-api/app/provider"
	"example/regcheck-api/auth"
)

// Bootstrap connects every external collaborator described by cfg.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := OpenStore(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	m, err := mailer.New(ctx, cfg.Mail)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
		log.Warn().Msg("Stripe keys missing; checkout and webhooks will fail")
	}
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, nil)

	return NewServer(Deps{
		Config:   cfg,
		Store:    st,
		Provider: provider.NewClient(cfg.Provider),
		Sessions: gateway,
		Events:   gateway,
		Mailer:   m,
		Tokens:   tokens,
	}), nil
}
