package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clipverse/payrail/internal/evidence"
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
	"github.com/clipverse/payrail/internal/ratelimit"
	"github.com/clipverse/payrail/pkg/db/pagination"
)

func (s *Server) registerPayoutRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/payout-requests", s.RequestPayout)
	v1.GET("/payout-requests", s.ListPayoutRequests)
	v1.GET("/payout-requests/:id", s.GetPayoutRequest)
	v1.POST("/payout-requests/:id/cancel", s.CancelPayoutRequest)

	v1.POST("/payout-requests/:id/evidence", s.SubmitEvidence)
	v1.GET("/payout-requests/:id/evidence", s.ListEvidence)

	v1.POST("/payout-requests/:id/approve", s.ApprovePayoutRequest)
	v1.POST("/payout-requests/:id/reject", s.RejectPayoutRequest)

	v1.POST("/clearing/sweep", s.RunClearingSweep)
}

type requestPayoutRequest struct {
	OwnerID  string   `json:"owner_id"`
	EntryIDs []string `json:"entry_ids"`
}

func (s *Server) RequestPayout(c *gin.Context) {
	var req requestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ownerID, err := parseID("owner_id", req.OwnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entryIDs, err := parseIDList("entry_ids", req.EntryIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if s.limiter != nil && s.limiter.Enabled() {
		res, err := s.limiter.AllowPayout(ctx, ownerID.String())
		if err != nil {
			s.log.Warn("payout rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			denyRateLimited(c, res)
			return
		}

		// One in-flight payout request per owner. The lock is released when
		// the handler returns, not when the request reaches a terminal state.
		token, locked, err := s.limiter.TryLockOwner(ctx, ownerID.String())
		if err != nil {
			s.log.Warn("payout owner lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !locked {
			denyRateLimited(c, nil)
			return
		}
		defer func() {
			if err := s.limiter.ReleaseOwner(ctx, ownerID.String(), token); err != nil {
				s.log.Warn("payout owner unlock failed", zap.Error(err))
			}
		}()
	}

	resp, err := s.payoutSvc.RequestPayout(ctx, ownerID, entryIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayoutRequests(c *gin.Context) {
	var query struct {
		pagination.Pagination
		OwnerID string `form:"owner_id"`
		Status  string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ownerID, err := parseOptionalID("owner_id", query.OwnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := payoutdomain.ListRequest{
		Status:     payoutdomain.PayoutStatus(strings.TrimSpace(query.Status)),
		Pagination: query.Pagination,
	}
	if ownerID != nil {
		req.OwnerID = *ownerID
	}

	resp, err := s.payoutSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayoutRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.payoutSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelPayoutRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.payoutSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type submitEvidenceRequest struct {
	Kind    string `json:"kind"`
	Locator string `json:"locator"`
}

func (s *Server) SubmitEvidence(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req submitEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if s.limiter != nil && s.limiter.Enabled() {
		detail, err := s.payoutSvc.Get(ctx, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		res, err := s.limiter.AllowEvidence(ctx, detail.Request.OwnerID.String())
		if err != nil {
			s.log.Warn("evidence rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			denyRateLimited(c, res)
			return
		}
	}

	resp, err := s.evidenceSvc.Submit(ctx, id, evidence.Kind(strings.TrimSpace(req.Kind)), strings.TrimSpace(req.Locator))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListEvidence(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.evidenceSvc.ListByRequest(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type adjudicateRequest struct {
	ReviewedBy string `json:"reviewed_by"`
	Reason     string `json:"reason"`
}

func (s *Server) ApprovePayoutRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req adjudicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.adjudicator.Approve(c.Request.Context(), id, reviewerFrom(c, req.ReviewedBy))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectPayoutRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req adjudicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.adjudicator.Reject(c.Request.Context(), id, reviewerFrom(c, req.ReviewedBy), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RunClearingSweep triggers one sweep pass outside the background schedule.
// Useful for operational runbooks and tests against a live deployment.
func (s *Server) RunClearingSweep(c *gin.Context) {
	paid, err := s.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"paid": paid}})
}

func denyRateLimited(c *gin.Context, res *ratelimit.Result) {
	if res != nil && res.RetryAfter > 0 {
		seconds := int(math.Ceil(res.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	AbortWithError(c, ErrTooManyRequests)
}
