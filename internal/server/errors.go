package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	commissiondomain "github.com/clipverse/payrail/internal/commission/domain"
	"github.com/clipverse/payrail/internal/evidence"
	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
	refunddomain "github.com/clipverse/payrail/internal/refund/domain"
	"github.com/clipverse/payrail/internal/review"
	sessiondomain "github.com/clipverse/payrail/internal/session/domain"
	walletdomain "github.com/clipverse/payrail/internal/wallet/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrNotFound           = errors.New("not_found")
	ErrTooManyRequests    = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ledgerdomain.ErrLockConflict),
		errors.Is(err, sessiondomain.ErrTransitionConflict):
		// Retryable: the caller lost a race and should refresh and retry.
		return http.StatusConflict, errorPayload{
			Type:    "concurrency_conflict",
			Message: "conflicting concurrent update, retry with fresh state",
		}
	case isStateError(err):
		return http.StatusConflict, errorPayload{
			Type:    "state_error",
			Message: "operation not allowed in the current state",
		}
	case errors.Is(err, walletdomain.ErrInsufficientBalance):
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient available balance",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service temporarily unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ledgerdomain.ErrInvalidOwner),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidCurrency),
		errors.Is(err, ledgerdomain.ErrInvalidSourceRef),
		errors.Is(err, ledgerdomain.ErrInvalidEntrySet),
		errors.Is(err, commissiondomain.ErrInvalidAmount),
		errors.Is(err, commissiondomain.ErrInvalidBps),
		errors.Is(err, commissiondomain.ErrInvalidScope),
		errors.Is(err, commissiondomain.ErrInvalidActor),
		errors.Is(err, walletdomain.ErrInvalidHolder),
		errors.Is(err, walletdomain.ErrInvalidSeller),
		errors.Is(err, walletdomain.ErrInvalidUnits),
		errors.Is(err, walletdomain.ErrInvalidPrice),
		errors.Is(err, sessiondomain.ErrInvalidParticipants),
		errors.Is(err, sessiondomain.ErrInvalidUnits),
		errors.Is(err, sessiondomain.ErrInvalidPrice),
		errors.Is(err, frauddomain.ErrInvalidOwner),
		errors.Is(err, evidence.ErrInvalidKind),
		errors.Is(err, evidence.ErrInvalidLocator),
		errors.Is(err, evidence.ErrLimitReached),
		errors.Is(err, payoutdomain.ErrInvalidOwner),
		errors.Is(err, payoutdomain.ErrInvalidEntrySet),
		errors.Is(err, review.ErrInvalidReviewer),
		errors.Is(err, review.ErrMissingReason),
		errors.Is(err, refunddomain.ErrInvalidRequester),
		errors.Is(err, refunddomain.ErrInvalidAmount),
		errors.Is(err, refunddomain.ErrInvalidTarget),
		errors.Is(err, refunddomain.ErrInvalidDecider):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledgerdomain.ErrEntryNotFound),
		errors.Is(err, walletdomain.ErrNotFound),
		errors.Is(err, sessiondomain.ErrSessionNotFound),
		errors.Is(err, frauddomain.ErrFlagNotFound),
		errors.Is(err, evidence.ErrRequestNotFound),
		errors.Is(err, payoutdomain.ErrNotFound),
		errors.Is(err, review.ErrNotFound),
		errors.Is(err, refunddomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isStateError(err error) bool {
	switch {
	case errors.Is(err, ledgerdomain.ErrInvalidTransition),
		errors.Is(err, sessiondomain.ErrInvalidTransition),
		errors.Is(err, walletdomain.ErrReservationMismatch),
		errors.Is(err, frauddomain.ErrFlagsResolved),
		errors.Is(err, evidence.ErrWindowClosed),
		errors.Is(err, evidence.ErrNotCollecting),
		errors.Is(err, payoutdomain.ErrTerminalState),
		errors.Is(err, review.ErrNotAdjudicable),
		errors.Is(err, refunddomain.ErrInvalidState):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
