package app

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/logging"
	"example/regcheck-api/app/models"
	"example/regcheck-api/auth"
)

// SourceIPHeader carries the client address stamped by the Lambda entrypoint from the
// API Gateway request context.
const SourceIPHeader = "X-Regcheck-Source-Ip"

// Router builds the shared HTTP router for both local and Lambda execution.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	// The anonymous allowance is keyed on ClientIP, so forwarded headers are only believed
	// from configured proxies or the hosting platform.
	if err := router.SetTrustedProxies(s.cfg.HTTP.TrustedProxies); err != nil {
		log.Error().Err(err).Msg("Invalid trusted proxies; ignoring forwarded headers")
		_ = router.SetTrustedProxies(nil)
	}
	router.TrustedPlatform = s.cfg.HTTP.TrustedPlatform
	router.Use(gin.Recovery(), logging.Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.HTTP.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", logging.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/auth/register", s.Register)
	api.POST("/auth/login", s.Login)
	api.GET("/billing/packages", s.Packages)
	api.POST("/stripe/webhook", s.StripeWebhook)

	// Lookups accept anonymous callers; the entitlement rules decide per product.
	checks := api.Group("/checks")
	checks.Use(auth.Middleware(s.tokens, auth.MiddlewareConfig{Optional: true}))
	checks.POST("/mot", s.MOTCheck)
	checks.POST("/vdi", s.VDICheck)
	checks.POST("/valuation", s.ValuationCheck)

	protected := api.Group("")
	protected.Use(auth.Middleware(s.tokens, auth.MiddlewareConfig{}))
	protected.GET("/me", s.Me)
	protected.GET("/searches", s.SearchHistory)
	protected.POST("/billing/checkout", s.CreateCheckoutSession)
	protected.POST("/tickets", s.OpenTicket)
	protected.GET("/tickets", s.ListMyTickets)
	protected.GET("/tickets/:ref", s.GetTicket)
	protected.POST("/tickets/:ref/replies", s.ReplyToTicket)

	admin := api.Group("/admin")
	admin.Use(auth.Middleware(s.tokens, auth.MiddlewareConfig{}), auth.RequireRole(s.accounts, models.RoleAdmin))
	admin.GET("/accounts", s.AdminListAccounts)
	admin.GET("/searches", s.AdminListSearches)
	admin.GET("/transactions", s.AdminListTransactions)
	admin.GET("/tickets", s.AdminListTickets)
	admin.GET("/tickets/:ref", s.AdminGetTicket)
	admin.POST("/tickets/:ref/replies", s.AdminReplyToTicket)
	admin.POST("/tickets/:ref/status", s.AdminSetTicketStatus)
	admin.POST("/credits", s.AdminGrantCredits)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return router
}
