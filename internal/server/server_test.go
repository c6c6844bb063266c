package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
	fraudservice "github.com/clipverse/payrail/internal/fraud/service"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	ledgerservice "github.com/clipverse/payrail/internal/ledger/service"
	sessiondomain "github.com/clipverse/payrail/internal/session/domain"
	walletdomain "github.com/clipverse/payrail/internal/wallet/domain"
)

func TestErrorMappingStatuses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{"validation sentinel", ledgerdomain.ErrInvalidAmount, http.StatusBadRequest, "validation_error"},
		{"field validation", newValidationError("owner_id", "invalid_owner_id", "invalid owner_id"), http.StatusBadRequest, "validation_error"},
		{"not found", ledgerdomain.ErrEntryNotFound, http.StatusNotFound, "not_found"},
		{"lock conflict", ledgerdomain.ErrLockConflict, http.StatusConflict, "concurrency_conflict"},
		{"session transition race", sessiondomain.ErrTransitionConflict, http.StatusConflict, "concurrency_conflict"},
		{"state error", sessiondomain.ErrInvalidTransition, http.StatusConflict, "state_error"},
		{"insufficient balance", walletdomain.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
		{"rate limited", ErrTooManyRequests, http.StatusTooManyRequests, "rate_limited"},
		{"service unavailable", ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"unknown error", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(ErrorHandlingMiddleware())
			router.GET("/fail", func(c *gin.Context) {
				AbortWithError(c, tc.err)
			})

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/fail", nil))

			require.Equal(t, tc.status, resp.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.Equal(t, tc.errType, body.Error.Type)
		})
	}
}

func TestValidationErrorPayloadCarriesField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/fail", func(c *gin.Context) {
		AbortWithError(c, ledgerdomain.ErrInvalidAmount)
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/fail", nil))

	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Error.Errors, 1)
	assert.Equal(t, "amount", body.Error.Errors[0].Field)
	assert.Equal(t, "invalid_amount", body.Error.Errors[0].Code)
}

func newSettlementTestServer(t *testing.T) (*Server, *gin.Engine, *snowflake.Node) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LedgerEntry{},
		&frauddomain.FraudFlag{},
		&frauddomain.OwnerFraudStats{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	cfg := config.Config{
		Settlement: config.SettlementConfig{Currency: "USD"},
		Fraud: config.FraudConfig{
			MinEngagementRatio:   0.02,
			VelocityMultiplier:   5.0,
			NewAccountMinAgeDays: 30,
			NewAccountAmountCap:  50000,
		},
	}

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
	})
	fraudSvc := fraudservice.NewService(fraudservice.Params{
		DB:     db,
		Log:    log,
		Config: cfg,
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	})

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:    router,
		cfg:       cfg,
		log:       log.Named("http.server"),
		ledgerSvc: ledgerSvc,
		fraudSvc:  fraudSvc,
	}
	srv.registerSettlementRoutes()

	return srv, router, node
}

func TestCreateLedgerEntryHandler(t *testing.T) {
	_, router, node := newSettlementTestServer(t)
	owner := node.Generate()

	payload := fmt.Sprintf(`{"owner_id":%q,"amount":2500,"source_ref":"purchase:abc"}`, owner.String())
	req := httptest.NewRequest(http.MethodPost, "/v1/ledger/entries", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Data ledgerdomain.LedgerEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, owner, body.Data.OwnerID)
	assert.Equal(t, int64(2500), body.Data.Amount)
	assert.Equal(t, ledgerdomain.StatusPending, body.Data.Status)
	assert.Equal(t, "USD", body.Data.Currency, "omitted currency falls back to the configured default")

	getReq := httptest.NewRequest(http.MethodGet, "/v1/ledger/entries/"+body.Data.ID.String(), nil)
	getResp := httptest.NewRecorder()
	router.ServeHTTP(getResp, getReq)
	require.Equal(t, http.StatusOK, getResp.Code)
}

func TestCreateLedgerEntryHandlerRejectsBadInput(t *testing.T) {
	_, router, _ := newSettlementTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/ledger/entries", bytes.NewBufferString(`{"owner_id":"not-a-snowflake","amount":100}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body.Error.Type)
}

func TestGetLedgerEntryHandlerUnknownReturns404(t *testing.T) {
	_, router, node := newSettlementTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger/entries/"+node.Generate().String(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusNotFound, resp.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Error.Type)
}

func TestGetOwnerFraudStatsHandler(t *testing.T) {
	_, router, node := newSettlementTestServer(t)
	owner := node.Generate()

	req := httptest.NewRequest(http.MethodGet, "/v1/owners/"+owner.String()+"/fraud-stats", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Data frauddomain.OwnerFraudStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, owner, body.Data.OwnerID)
	assert.Equal(t, int64(0), body.Data.ConfirmedCount)
	assert.False(t, body.Data.PermanentFraud)
}
