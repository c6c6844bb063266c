package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	commissiondomain "github.com/clipverse/payrail/internal/commission/domain"
)

func (s *Server) registerCommissionRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/commission/rates", s.ResolveCommissionRates)
	v1.PUT("/commission/rates", s.SetCommissionRate)
	v1.GET("/commission/split", s.ComputeCommissionSplit)
	v1.GET("/commission/changes", s.ListCommissionChanges)
}

func (s *Server) ResolveCommissionRates(c *gin.Context) {
	var query struct {
		SellerID    string `form:"seller_id"`
		CommunityID string `form:"community_id"`
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

	communityID, err := parseOptionalID("community_id", query.CommunityID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var community snowflake.ID
	if communityID != nil {
		community = *communityID
	}

	resp, err := s.commissionSvc.Resolve(c.Request.Context(), sellerID, community)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setCommissionRateRequest struct {
	ScopeType string `json:"scope_type"`
	ScopeID   string `json:"scope_id"`
	FeeType   string `json:"fee_type"`
	BpsValue  int64  `json:"bps_value"`
	ChangedBy string `json:"changed_by"`
}

func (s *Server) SetCommissionRate(c *gin.Context) {
	var req setCommissionRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scopeID, err := parseOptionalID("scope_id", req.ScopeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	set := commissiondomain.SetRateRequest{
		ScopeType: commissiondomain.ScopeType(strings.TrimSpace(req.ScopeType)),
		FeeType:   commissiondomain.FeeType(strings.TrimSpace(req.FeeType)),
		BpsValue:  req.BpsValue,
		ChangedBy: strings.TrimSpace(req.ChangedBy),
	}
	if scopeID != nil {
		set.ScopeID = *scopeID
	}

	resp, err := s.commissionSvc.SetRate(c.Request.Context(), set)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ComputeCommissionSplit(c *gin.Context) {
	var query struct {
		TotalAmount int64  `form:"total_amount"`
		SellerID    string `form:"seller_id"`
		CommunityID string `form:"community_id"`
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

	communityID, err := parseOptionalID("community_id", query.CommunityID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var community snowflake.ID
	if communityID != nil {
		community = *communityID
	}

	resp, err := s.commissionSvc.ComputeSplit(c.Request.Context(), query.TotalAmount, sellerID, community)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCommissionChanges(c *gin.Context) {
	var query struct {
		ScopeType string `form:"scope_type"`
		ScopeID   string `form:"scope_id"`
		FeeType   string `form:"fee_type"`
		Limit     int    `form:"limit,default=50"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scopeID, err := parseOptionalID("scope_id", query.ScopeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := commissiondomain.ListChangesRequest{
		ScopeType: commissiondomain.ScopeType(strings.TrimSpace(query.ScopeType)),
		FeeType:   commissiondomain.FeeType(strings.TrimSpace(query.FeeType)),
		Limit:     query.Limit,
	}
	if scopeID != nil {
		req.ScopeID = *scopeID
	}

	resp, err := s.commissionSvc.ListChanges(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
