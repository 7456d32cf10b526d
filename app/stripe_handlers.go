package app

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/logging"
	"example/regcheck-api/app/models"
)

const maxWebhookBodyBytes = int64(65536)

// CreateCheckoutSession starts a Stripe Checkout Session for a credit bundle.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req models.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := models.ParseProduct(req.Product)
	if err != nil {
		respondError(c, apperr.ErrInvalidPackage)
		return
	}

	url, err := s.payments.CreateCheckoutSession(c.Request.Context(), claims.Subject, product, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) Packages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": s.payments.Packages(), "currency": s.cfg.Stripe.Currency})
}

// StripeWebhook acknowledges every event it can authenticate. Only a bad signature or a
// transient storage failure gets a non-2xx answer, which makes Stripe redeliver.
func (s *Server) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("stripe webhook read failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := s.payments.HandlePaymentConfirmed(c.Request.Context(), body, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) AdminGrantCredits(c *gin.Context) {
	var req models.GrantRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := models.ParseProduct(req.Product)
	if err != nil {
		respondError(c, apperr.Invalid(err.Error()))
		return
	}
	tx, err := s.payments.GrantFreeCredits(c.Request.Context(), req.AccountID, product, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}
