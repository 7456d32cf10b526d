// Package auth tests JWT middleware behavior against locally issued tokens.
package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/models"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer("test-secret", "regcheck-test", time.Hour)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	return issuer
}

func newTestRouter(verifier Verifier, cfg MiddlewareConfig, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(Middleware(verifier, cfg))
	handlers := append(extra, func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c.Request.Context())
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, claims.Subject)
	})
	router.GET("/protected", handlers...)
	return router
}

func serve(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestMiddlewareMissingToken(t *testing.T) {
	router := newTestRouter(newTestIssuer(t), MiddlewareConfig{})
	if resp := serve(router, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	router := newTestRouter(newTestIssuer(t), MiddlewareConfig{})
	if resp := serve(router, "Token abc"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareInvalidToken(t *testing.T) {
	other, err := NewTokenIssuer("other-secret", "regcheck-test", time.Hour)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	token, _, err := other.Issue("acct-1", "a@x.test", models.RoleUser)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	router := newTestRouter(newTestIssuer(t), MiddlewareConfig{})
	if resp := serve(router, "Bearer "+token); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareValidToken(t *testing.T) {
	issuer := newTestIssuer(t)
	token, _, err := issuer.Issue("acct-1", "a@x.test", models.RoleUser)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	resp := serve(newTestRouter(issuer, MiddlewareConfig{}), "Bearer "+token)
	if resp.Code != http.StatusOK || resp.Body.String() != "acct-1" {
		t.Fatalf("expected 200 acct-1, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestMiddlewareOptional(t *testing.T) {
	issuer := newTestIssuer(t)
	router := newTestRouter(issuer, MiddlewareConfig{Optional: true})

	resp := serve(router, "")
	if resp.Code != http.StatusOK || resp.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous pass-through, got %d %q", resp.Code, resp.Body.String())
	}
	if resp := serve(router, "Bearer garbage"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token in optional mode, got %d", resp.Code)
	}
}

type roleTable map[string]models.Role

func (r roleTable) Role(_ context.Context, accountID string) (models.Role, error) {
	role, ok := r[accountID]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return role, nil
}

func TestRequireRole(t *testing.T) {
	issuer := newTestIssuer(t)
	roles := roleTable{"acct-1": models.RoleUser, "acct-2": models.RoleAdmin}
	router := newTestRouter(issuer, MiddlewareConfig{}, RequireRole(roles, models.RoleAdmin))

	userToken, _, _ := issuer.Issue("acct-1", "a@x.test", models.RoleUser)
	if resp := serve(router, "Bearer "+userToken); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}

	adminToken, _, _ := issuer.Issue("acct-2", "ops@x.test", models.RoleAdmin)
	if resp := serve(router, "Bearer "+adminToken); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRequireRoleIgnoresTokenRole(t *testing.T) {
	issuer := newTestIssuer(t)
	roles := roleTable{"acct-1": models.RoleUser}
	router := newTestRouter(issuer, MiddlewareConfig{}, RequireRole(roles, models.RoleAdmin))

	// token minted while the account was admin, since demoted
	staleToken, _, _ := issuer.Issue("acct-1", "a@x.test", models.RoleAdmin)
	if resp := serve(router, "Bearer "+staleToken); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for demoted account, got %d", resp.Code)
	}

	goneToken, _, _ := issuer.Issue("acct-9", "gone@x.test", models.RoleAdmin)
	if resp := serve(router, "Bearer "+goneToken); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted account, got %d", resp.Code)
	}
}

func TestRequireRoleWithoutClaims(t *testing.T) {
	router := gin.New()
	router.GET("/admin", RequireRole(roleTable{}, models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer := newTestIssuer(t)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := issuer.Issue("acct-1", "a@x.test", models.RoleUser)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestVerifyClaims(t *testing.T) {
	issuer := newTestIssuer(t)
	token, exp, err := issuer.Issue("acct-9", "ops@x.test", models.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "acct-9" || claims.Email != "ops@x.test" || !claims.IsAdmin() {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ExpiresAt.Unix() != exp.Unix() {
		t.Fatalf("expected expiry %v, got %v", exp, claims.ExpiresAt)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("", "x", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPasswordHash("correct horse", hash) {
		t.Fatalf("expected password to match")
	}
	if CheckPasswordHash("wrong horse", hash) {
		t.Fatalf("expected mismatch")
	}
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := extractBearerToken("Bearer abc")
	if !ok || token != "abc" {
		t.Fatalf("expected token")
	}
	if _, ok := extractBearerToken("Bearer"); ok {
		t.Fatalf("expected invalid header")
	}
	if _, ok := extractBearerToken("Token abc"); ok {
		t.Fatalf("expected invalid scheme")
	}
	if _, ok := extractBearerToken(""); ok {
		t.Fatalf("expected empty header to be invalid")
	}
}

func TestClaimsFromContext(t *testing.T) {
	claims := &Claims{Subject: "user-1"}
	ctx := WithClaims(context.Background(), claims)
	got, ok := ClaimsFromContext(ctx)
	if !ok || got.Subject != "user-1" {
		t.Fatalf("expected claims from context")
	}
}
