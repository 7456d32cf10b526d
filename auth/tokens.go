package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example/regcheck-api/app/models"
)

const defaultLeeway = 30 * time.Second

type tokenClaims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must be set")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithLeeway(defaultLeeway),
			jwt.WithExpirationRequired(),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		),
		now: time.Now,
	}, nil
}

// Issue signs a token for the account and returns it with its expiry.
func (i *TokenIssuer) Issue(accountID, email string, role models.Role) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := tokenClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses and validates a token, returning extracted claims.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	var tc tokenClaims
	token, err := i.parser.ParseWithClaims(tokenString, &tc, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if tc.Subject == "" {
		return nil, errors.New("token missing sub")
	}

	claims := &Claims{
		Subject: tc.Subject,
		Email:   tc.Email,
		Role:    tc.Role,
		Issuer:  tc.Issuer,
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, nil
}
