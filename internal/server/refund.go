package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	refunddomain "github.com/clipverse/payrail/internal/refund/domain"
)

func (s *Server) registerRefundRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/refunds", s.CreateRefund)
	v1.GET("/refunds", s.ListRefunds)
	v1.GET("/refunds/:id", s.GetRefund)
	v1.POST("/refunds/:id/decision", s.DecideRefund)
	v1.POST("/refunds/:id/processed", s.MarkRefundProcessed)
}

type createRefundRequest struct {
	RequesterID     string `json:"requester_id"`
	PurchaseID      string `json:"purchase_id"`
	SessionID       string `json:"session_id"`
	AmountRequested int64  `json:"amount_requested"`
}

func (s *Server) CreateRefund(c *gin.Context) {
	var req createRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	requesterID, err := parseID("requester_id", req.RequesterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	purchaseID, err := parseOptionalID("purchase_id", req.PurchaseID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sessionID, err := parseOptionalID("session_id", req.SessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.refundSvc.Create(c.Request.Context(), refunddomain.CreateRefundRequest{
		RequesterID:     requesterID,
		PurchaseID:      purchaseID,
		SessionID:       sessionID,
		AmountRequested: req.AmountRequested,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type decideRefundRequest struct {
	Approve        bool   `json:"approve"`
	AmountApproved int64  `json:"amount_approved"`
	DecidedBy      string `json:"decided_by"`
}

func (s *Server) DecideRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req decideRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.refundSvc.Decide(c.Request.Context(), id, refunddomain.Decision{
		Approve:        req.Approve,
		AmountApproved: req.AmountApproved,
		DecidedBy:      reviewerFrom(c, req.DecidedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkRefundProcessed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.refundSvc.MarkProcessed(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.refundSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRefunds(c *gin.Context) {
	var query struct {
		RequesterID string `form:"requester_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	requesterID, err := parseID("requester_id", strings.TrimSpace(query.RequesterID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.refundSvc.ListByRequester(c.Request.Context(), requesterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
