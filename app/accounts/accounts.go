// Package accounts handles registration, login and the profile view.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
	"example/regcheck-api/auth"
)

type TokenIssuer interface {
	Issue(accountID, email string, role models.Role) (string, time.Time, error)
}

type Service struct {
	accounts store.Accounts
	tokens   TokenIssuer
	now      func() time.Time
}

func NewService(accounts store.Accounts, tokens TokenIssuer) *Service {
	return &Service{accounts: accounts, tokens: tokens, now: time.Now}
}

// Session is returned by a successful login or registration.
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Account   models.Account `json:"account"`
}

type Profile struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Role      models.Role     `json:"role"`
	Balances  models.Balances `json:"balances"`
	CreatedAt time.Time       `json:"createdAt"`
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", apperr.Invalid("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

// Register creates a user account with every balance at zero and signs it in. Staff roles
// are only ever granted by an operator through SetRole.
func (s *Service) Register(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, apperr.Invalid(err.Error())
	}

	a := models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.accounts.CreateAccount(ctx, &a); err != nil {
		return Session{}, fmt.Errorf("register: %w", err)
	}
	log.Info().Str("account_id", a.ID).Msg("Account registered")
	return s.session(a)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, apperr.ErrInvalidCredentials
	}
	a, err := s.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return Session{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if !auth.CheckPasswordHash(password, a.PasswordHash) {
		return Session{}, apperr.ErrInvalidCredentials
	}
	return s.session(a)
}

func (s *Service) Profile(ctx context.Context, accountID string) (Profile, error) {
	a, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: %w", err)
	}
	return Profile{ID: a.ID, Email: a.Email, Role: a.Role, Balances: a.Balances(), CreatedAt: a.CreatedAt}, nil
}

// SetRole changes the role of the account registered under email. It backs the operator
// CLI; there is no HTTP route for it.
func (s *Service) SetRole(ctx context.Context, email string, role models.Role) (models.Account, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return models.Account{}, apperr.Invalid(fmt.Sprintf("unknown role %q", role))
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return models.Account{}, err
	}
	a, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return models.Account{}, fmt.Errorf("set role: %w", err)
	}
	if err := s.accounts.SetRole(ctx, a.ID, role); err != nil {
		return models.Account{}, fmt.Errorf("set role: %w", err)
	}
	a.Role = role
	log.Info().Str("account_id", a.ID).Str("role", string(role)).Msg("Account role changed")
	return a, nil
}

// Role reads the current role from the store, so role changes apply to tokens already
// issued.
func (s *Service) Role(ctx context.Context, accountID string) (models.Role, error) {
	a, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	return a.Role, nil
}

func (s *Service) List(ctx context.Context, page models.Page) ([]models.Account, error) {
	return s.accounts.ListAccounts(ctx, page)
}

func (s *Service) session(a models.Account) (Session, error) {
	token, exp, err := s.tokens.Issue(a.ID, a.Email, a.Role)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, ExpiresAt: exp, Account: a}, nil
}
