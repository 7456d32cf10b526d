package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example/regcheck-api/app/models"
)

func (s *Server) MOTCheck(c *gin.Context) {
	var req models.LookupRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := s.lookups.MOTCheck(c.Request.Context(), requesterFrom(c), req.Registration)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) VDICheck(c *gin.Context) {
	var req models.LookupRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := s.lookups.VDICheck(c.Request.Context(), requesterFrom(c), req.Registration)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) ValuationCheck(c *gin.Context) {
	var req models.LookupRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := s.lookups.ValuationCheck(c.Request.Context(), requesterFrom(c), req.Registration, req.Mileage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) SearchHistory(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	records, err := s.lookups.SearchHistory(c.Request.Context(), claims.Subject, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"searches": records})
}

func (s *Server) OpenTicket(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req models.NewTicketRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := s.tickets.Open(c.Request.Context(), claims.Subject, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) ListMyTickets(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	tickets, err := s.tickets.ListForAccount(c.Request.Context(), claims.Subject, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

func (s *Server) GetTicket(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	t, err := s.tickets.Get(c.Request.Context(), claims.Subject, false, c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) ReplyToTicket(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req models.ReplyRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := s.tickets.ReplyAsRequester(c.Request.Context(), claims.Subject, c.Param("ref"), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Admin handlers sit behind auth.RequireRole, which re-reads the account role on every request.

func (s *Server) AdminListAccounts(c *gin.Context) {
	accts, err := s.accounts.List(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accts})
}

func (s *Server) AdminListSearches(c *gin.Context) {
	records, err := s.store.ListSearches(c.Request.Context(), c.Query("accountId"), pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"searches": records})
}

func (s *Server) AdminListTransactions(c *gin.Context) {
	txs, err := s.store.ListTransactions(c.Request.Context(), c.Query("accountId"), pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (s *Server) AdminListTickets(c *gin.Context) {
	tickets, err := s.tickets.List(c.Request.Context(), models.TicketStatus(c.Query("status")), pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

func (s *Server) AdminGetTicket(c *gin.Context) {
	t, err := s.tickets.Get(c.Request.Context(), "", true, c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) AdminReplyToTicket(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req models.ReplyRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := s.tickets.ReplyAsStaff(c.Request.Context(), claims.Email, c.Param("ref"), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) AdminSetTicketStatus(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req models.StatusRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := s.tickets.SetStatus(c.Request.Context(), claims.Email, c.Param("ref"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
