// Package auth provides Gin middleware for bearer-token sessions and role checks.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/models"
)

type Verifier interface {
	Verify(token string) (*Claims, error)
}

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	// Optional lets requests without an Authorization header through anonymously.
	// A header that is present must still be valid.
	Optional bool
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if cfg.Optional {
				c.Next()
				return
			}
			log.Debug().Str("path", c.Request.URL.Path).Msg("auth failure: missing Authorization header")
			respondUnauthorized(c, "missing authorization header")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			log.Debug().Str("path", c.Request.URL.Path).Msg("auth failure: malformed Authorization header")
			respondUnauthorized(c, "invalid authorization header")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Info().Err(err).Str("path", c.Request.URL.Path).Msg("auth failure: token invalid")
			respondUnauthorized(c, "invalid token")
			return
		}

		ctx := WithClaims(c.Request.Context(), claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RoleSource returns an account's current role. apperr.ErrNotFound means the account no
// longer exists.
type RoleSource interface {
	Role(ctx context.Context, accountID string) (models.Role, error)
}

// RequireRole rejects requests whose account does not currently hold role. It must run
// after Middleware. The role baked into the token is not trusted: it is re-read from
// roles, so a demotion takes effect on the next request.
func RequireRole(roles RoleSource, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c.Request.Context())
		if !ok || claims.Subject == "" {
			respondUnauthorized(c, "missing auth context")
			return
		}
		current, err := roles.Role(c.Request.Context(), claims.Subject)
		if errors.Is(err, apperr.ErrNotFound) {
			respondUnauthorized(c, "account not found")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("account_id", claims.Subject).Msg("role lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if current != role {
			log.Warn().Str("account_id", claims.Subject).Str("path", c.Request.URL.Path).Msg("auth failure: role required")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
