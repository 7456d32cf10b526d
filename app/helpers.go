package app

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/entitlement"
	"example/regcheck-api/app/logging"
	"example/regcheck-api/app/models"
	"example/regcheck-api/auth"
)

// respondError writes {"error": message} with the status mapped from err.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= 500 {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

func claimsFrom(c *gin.Context) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

// mustClaims writes 401 and returns false when the request has no session.
func mustClaims(c *gin.Context) (*auth.Claims, bool) {
	claims, ok := claimsFrom(c)
	if !ok {
		respondError(c, apperr.ErrNotAuthenticated)
	}
	return claims, ok
}

func requesterFrom(c *gin.Context) entitlement.Requester {
	r := entitlement.Requester{ClientAddr: c.ClientIP()}
	if claims, ok := claimsFrom(c); ok {
		r.AccountID = claims.Subject
	}
	return r
}

// pageFromQuery reads ?limit=&offset=. Missing or unparsable values fall back to defaults.
func pageFromQuery(c *gin.Context) models.Page {
	var p models.Page
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		p.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil {
		p.Offset = v
	}
	return p.Normalize()
}

// bindJSON decodes the body, answering 400 when it does not fit.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, apperr.Invalid("invalid request: "+err.Error()))
		return false
	}
	return true
}
