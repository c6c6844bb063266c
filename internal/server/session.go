package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	sessiondomain "github.com/clipverse/payrail/internal/session/domain"
)

func (s *Server) registerSessionRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/sessions", s.CreateSession)
	v1.GET("/sessions", s.ListSessions)
	v1.GET("/sessions/:id", s.GetSession)
	v1.POST("/sessions/:id/transition", s.TransitionSession)
}

type createSessionRequest struct {
	BuyerID      string `json:"buyer_id"`
	SellerID     string `json:"seller_id"`
	CommunityID  string `json:"community_id"`
	Units        int64  `json:"units"`
	PricePerUnit int64  `json:"price_per_unit"`
	BuyerFunded  bool   `json:"buyer_funded"`
}

func (s *Server) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	buyerID, err := parseID("buyer_id", req.BuyerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sellerID, err := parseID("seller_id", req.SellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	communityID, err := parseOptionalID("community_id", req.CommunityID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.sessionSvc.Create(c.Request.Context(), sessiondomain.CreateSessionRequest{
		BuyerID:      buyerID,
		SellerID:     sellerID,
		CommunityID:  communityID,
		Units:        req.Units,
		PricePerUnit: req.PricePerUnit,
		BuyerFunded:  req.BuyerFunded,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type transitionSessionRequest struct {
	To string `json:"to"`
}

func (s *Server) TransitionSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transitionSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	to := sessiondomain.SessionStatus(strings.TrimSpace(req.To))
	if to == "" {
		AbortWithError(c, newValidationError("to", "invalid_to", "missing target status"))
		return
	}

	resp, err := s.sessionSvc.Transition(c.Request.Context(), id, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.sessionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSessions(c *gin.Context) {
	var query struct {
		SellerID string `form:"seller_id"`
		Status   string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sellerID, err := parseID("seller_id", query.SellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.sessionSvc.ListBySeller(c.Request.Context(), sellerID, sessiondomain.SessionStatus(strings.TrimSpace(query.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
