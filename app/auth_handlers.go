package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example/regcheck-api/app/models"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (s *Server) Register(c *gin.Context) {
	var req models.CredentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := s.accounts.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) Login(c *gin.Context) {
	var req models.CredentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := s.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Me returns the profile and balances of the authenticated account.
func (s *Server) Me(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	p, err := s.accounts.Profile(c.Request.Context(), claims.Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
