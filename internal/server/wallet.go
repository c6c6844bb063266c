package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) registerWalletRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/wallets/purchase", s.PurchaseUnits)
	v1.POST("/wallets/reserve", s.ReserveUnits)
	v1.POST("/wallets/release", s.ReleaseUnits)
	v1.POST("/wallets/consume", s.ConsumeUnits)
	v1.GET("/wallets/:holder_id", s.ListWallets)
	v1.GET("/wallets/:holder_id/sellers/:seller_id", s.GetWallet)
}

type walletMutationRequest struct {
	HolderID     string `json:"holder_id"`
	SellerID     string `json:"seller_id"`
	Units        int64  `json:"units"`
	PricePerUnit int64  `json:"price_per_unit"`
}

func (s *Server) walletMutationIDs(c *gin.Context) (*walletMutationRequest, bool) {
	var req walletMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return nil, false
	}
	return &req, true
}

func (s *Server) PurchaseUnits(c *gin.Context) {
	req, ok := s.walletMutationIDs(c)
	if !ok {
		return
	}

	holderID, err := parseID("holder_id", req.HolderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sellerID, err := parseID("seller_id", req.SellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.walletSvc.Purchase(c.Request.Context(), holderID, sellerID, req.Units, req.PricePerUnit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReserveUnits(c *gin.Context) {
	s.mutateWallet(c, s.walletSvc.Reserve)
}

func (s *Server) ReleaseUnits(c *gin.Context) {
	s.mutateWallet(c, func(ctx context.Context, holderID, sellerID snowflake.ID, units int64) error {
		return s.walletSvc.Release(ctx, nil, holderID, sellerID, units)
	})
}

func (s *Server) ConsumeUnits(c *gin.Context) {
	req, ok := s.walletMutationIDs(c)
	if !ok {
		return
	}

	holderID, err := parseID("holder_id", req.HolderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sellerID, err := parseID("seller_id", req.SellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.walletSvc.Consume(c.Request.Context(), nil, holderID, sellerID, req.Units); err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.walletSvc.Get(c.Request.Context(), holderID, sellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) mutateWallet(c *gin.Context, op func(ctx context.Context, holderID, sellerID snowflake.ID, units int64) error) {
	req, ok := s.walletMutationIDs(c)
	if !ok {
		return
	}

	holderID, err := parseID("holder_id", req.HolderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sellerID, err := parseID("seller_id", req.SellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := op(c.Request.Context(), holderID, sellerID, req.Units); err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.walletSvc.Get(c.Request.Context(), holderID, sellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) GetWallet(c *gin.Context) {
	holderID, ok := pathID(c, "holder_id")
	if !ok {
		return
	}

	sellerID, ok := pathID(c, "seller_id")
	if !ok {
		return
	}

	resp, err := s.walletSvc.Get(c.Request.Context(), holderID, sellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListWallets(c *gin.Context) {
	holderID, ok := pathID(c, "holder_id")
	if !ok {
		return
	}

	resp, err := s.walletSvc.ListByHolder(c.Request.Context(), holderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
