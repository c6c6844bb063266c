package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
)

func (s *Server) registerSettlementRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/ledger/entries", s.CreateLedgerEntry)
	v1.GET("/ledger/entries/:id", s.GetLedgerEntry)
	v1.GET("/owners/:owner_id/ledger/pending", s.ListPendingLedgerEntries)
	v1.GET("/owners/:owner_id/fraud-stats", s.GetOwnerFraudStats)
}

type createLedgerEntryRequest struct {
	OwnerID   string `json:"owner_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	SourceRef string `json:"source_ref"`
}

func (s *Server) CreateLedgerEntry(c *gin.Context) {
	var req createLedgerEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ownerID, err := parseID("owner_id", req.OwnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = s.cfg.Settlement.Currency
	}

	resp, err := s.ledgerSvc.CreateEntry(c.Request.Context(), nil, ledgerdomain.CreateEntryRequest{
		OwnerID:   ownerID,
		Amount:    req.Amount,
		Currency:  currency,
		SourceRef: strings.TrimSpace(req.SourceRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetLedgerEntry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.ledgerSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOwnerFraudStats(c *gin.Context) {
	ownerID, ok := pathID(c, "owner_id")
	if !ok {
		return
	}

	resp, err := s.fraudSvc.Stats(c.Request.Context(), nil, ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPendingLedgerEntries(c *gin.Context) {
	ownerID, ok := pathID(c, "owner_id")
	if !ok {
		return
	}

	resp, err := s.ledgerSvc.ListPendingByOwner(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
