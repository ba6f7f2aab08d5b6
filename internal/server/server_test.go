package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	billingrepository "github.com/smallbiznis/premia/internal/billing/repository"
	billingservice "github.com/smallbiznis/premia/internal/billing/service"
	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/config"
	"github.com/smallbiznis/premia/internal/events"
	gracerepository "github.com/smallbiznis/premia/internal/graceperiod/repository"
	graceservice "github.com/smallbiznis/premia/internal/graceperiod/service"
	"github.com/smallbiznis/premia/internal/migration"
	"github.com/smallbiznis/premia/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/premia/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/premia/internal/payment/repository"
	paymentservice "github.com/smallbiznis/premia/internal/payment/service"
	"github.com/smallbiznis/premia/internal/policy"
)

type scriptedGateway struct {
	outcome paymentdomain.Outcome
	reason  string
}

func (g *scriptedGateway) Charge(_ context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	return &paymentdomain.ChargeResult{
		TransactionID: req.TransactionID,
		Outcome:       g.outcome,
		Reason:        g.reason,
	}, nil
}

type httpHarness struct {
	engine *gin.Engine
	clk    *clock.FakeClock
	node   *snowflake.Node
	gw     *scriptedGateway
	ledger billingdomain.Service
}

func newHTTPHarness(t *testing.T) *httpHarness {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "premia.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(gdb))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	outbox := events.NewOutbox(gdb, node, clk)
	cfg := config.Config{
		Scheduler: config.SchedulerConfig{AbandonedCutoff: 15 * time.Minute},
	}

	graceSvc := graceservice.New(gracerepository.New(gdb, node, clk), log)
	billingRepo := billingrepository.New(gdb)
	ledger := billingservice.New(billingservice.Params{
		DB:       gdb,
		Repo:     billingRepo,
		Grace:    graceSvc,
		Registry: policy.NewPermissiveRegistry(),
		Sink:     outbox,
		Clock:    clk,
		Node:     node,
		Logger:   log,
		Metrics:  m,
	})

	gw := &scriptedGateway{outcome: paymentdomain.OutcomeSuccess}
	engine := paymentservice.New(paymentservice.Params{
		DB:          gdb,
		Repo:        paymentrepository.New(gdb, clk),
		BillingRepo: billingRepo,
		Ledger:      ledger,
		Gateway:     gw,
		Sink:        outbox,
		Clock:       clk,
		Node:        node,
		Logger:      log,
		Metrics:     m,
		Config:      cfg,
	})

	gin.SetMode(gin.TestMode)
	srv := NewServer(Params{
		Gin:      NewEngine(cfg),
		Cfg:      cfg,
		Ledger:   ledger,
		Payments: engine,
		GraceSvc: graceSvc,
		Logger:   log,
	})

	return &httpHarness{
		engine: srv.Engine(),
		clk:    clk,
		node:   node,
		gw:     gw,
		ledger: ledger,
	}
}

func (h *httpHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func (h *httpHarness) createBilling(t *testing.T, policyID string) *billingdomain.Billing {
	t.Helper()
	due := h.clk.Now().AddDate(0, 0, 10)
	b, err := h.ledger.Create(context.Background(), billingdomain.CreateInput{
		PolicyID:           policyID,
		CustomerID:         "CUST-1",
		PremiumAmount:      decimal.RequireFromString("100.00"),
		DueDate:            due,
		BillingPeriodStart: due.AddDate(0, -1, 0),
		BillingPeriodEnd:   due,
		Frequency:          billingdomain.FrequencyMonthly,
	})
	require.NoError(t, err)
	return b
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateBillingEndpoint(t *testing.T) {
	h := newHTTPHarness(t)

	body := `{
		"policy_id": "POL-1",
		"customer_id": "CUST-1",
		"premium_amount": "150.00",
		"due_date": "2026-06-01T00:00:00Z",
		"billing_period_start": "2026-05-01T00:00:00Z",
		"billing_period_end": "2026-06-01T00:00:00Z",
		"frequency": "MONTHLY"
	}`
	w := h.do(t, http.MethodPost, "/api/billing", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := decode(t, w)
	assert.Equal(t, "PENDING", got["status"])
	assert.Equal(t, "150", got["premium_amount"])
	assert.NotEmpty(t, got["id"])
}

func TestCreateBillingRejectsBadInput(t *testing.T) {
	h := newHTTPHarness(t)

	// Missing required fields.
	w := h.do(t, http.MethodPost, "/api/billing", `{"policy_id": "POL-1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	got := decode(t, w)
	assert.Equal(t, "validation_error", got["error"].(map[string]any)["type"])

	// Negative amount passes binding and fails domain validation.
	body := `{
		"policy_id": "POL-1",
		"customer_id": "CUST-1",
		"premium_amount": "-5",
		"due_date": "2026-06-01T00:00:00Z",
		"billing_period_start": "2026-05-01T00:00:00Z",
		"billing_period_end": "2026-06-01T00:00:00Z",
		"frequency": "MONTHLY"
	}`
	w = h.do(t, http.MethodPost, "/api/billing", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessPaymentEndpoint(t *testing.T) {
	h := newHTTPHarness(t)
	b := h.createBilling(t, "POL-PAY")

	body := fmt.Sprintf(`{"billing_id": %q, "amount": "100.00", "payment_method": "CREDIT_CARD"}`, b.ID.String())
	w := h.do(t, http.MethodPost, "/api/payments/process", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode(t, w)
	assert.Equal(t, "SUCCESS", got["status"])
	txnID := got["transaction_id"].(string)
	require.NotEmpty(t, txnID)

	// Paying a settled billing replays the committed payment.
	w = h.do(t, http.MethodPost, "/api/payments/process", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, txnID, decode(t, w)["transaction_id"])

	w = h.do(t, http.MethodGet, "/api/payments/"+txnID+"/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SUCCESS", decode(t, w)["status"])
}

func TestProcessPaymentByPolicyID(t *testing.T) {
	h := newHTTPHarness(t)
	h.createBilling(t, "POL-OPEN")

	body := `{"policy_id": "POL-OPEN", "amount": "100.00", "payment_method": "DEBIT_CARD"}`
	w := h.do(t, http.MethodPost, "/api/payments/process", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "SUCCESS", decode(t, w)["status"])
}

func TestProcessPaymentFailureIncludesNextRetry(t *testing.T) {
	h := newHTTPHarness(t)
	b := h.createBilling(t, "POL-FAIL")
	h.gw.outcome = paymentdomain.OutcomeFailed
	h.gw.reason = "Insufficient funds"

	body := fmt.Sprintf(`{"billing_id": %q, "amount": "100.00", "payment_method": "CREDIT_CARD"}`, b.ID.String())
	w := h.do(t, http.MethodPost, "/api/payments/process", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode(t, w)
	assert.Equal(t, "FAILED", got["status"])
	assert.Equal(t, "Insufficient funds", got["failure_reason"])
	assert.NotEmpty(t, got["next_retry_at"])
}

func TestRefundEndpoint(t *testing.T) {
	h := newHTTPHarness(t)
	b := h.createBilling(t, "POL-REFUND")

	body := fmt.Sprintf(`{"billing_id": %q, "amount": "100.00", "payment_method": "CREDIT_CARD"}`, b.ID.String())
	w := h.do(t, http.MethodPost, "/api/payments/process", body)
	require.Equal(t, http.StatusOK, w.Code)
	txnID := decode(t, w)["transaction_id"].(string)

	w = h.do(t, http.MethodPost, "/api/payments/"+txnID+"/refund", `{"amount": "40.00"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode(t, w)
	assert.Equal(t, "REFUNDED", got["status"])
	assert.Equal(t, "40", got["amount"])

	w = h.do(t, http.MethodPost, "/api/payments/txn-missing/refund", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateBillingStatusEndpoint(t *testing.T) {
	h := newHTTPHarness(t)
	h.createBilling(t, "POL-ADMIN")

	w := h.do(t, http.MethodPost, "/api/billing/POL-ADMIN/status", `{"payment_status": "GRACE_PERIOD"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", decode(t, w)["error"].(map[string]any)["type"])

	w = h.do(t, http.MethodPost, "/api/billing/POL-ADMIN/status", `{"payment_status": "PAID"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PAID", decode(t, w)["status"])
}

func TestListBillingsByPolicyEndpoint(t *testing.T) {
	h := newHTTPHarness(t)
	h.createBilling(t, "POL-LIST")

	w := h.do(t, http.MethodGet, "/api/billing/policy/POL-LIST", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode(t, w)["billings"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "POL-LIST", rows[0].(map[string]any)["policy_id"])
}

func TestGraceConfigEndpoints(t *testing.T) {
	h := newHTTPHarness(t)

	w := h.do(t, http.MethodPut, "/api/grace-periods", `{
		"policy_type": "AUTO",
		"frequency": "MONTHLY",
		"customer_tier": "GOLD",
		"grace_days": 21
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/api/grace-periods", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode(t, w)["grace_periods"].([]any)
	require.Len(t, rows, 1)

	w = h.do(t, http.MethodPut, "/api/grace-periods", `{
		"policy_type": "AUTO",
		"frequency": "MONTHLY",
		"grace_days": 0
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	h := newHTTPHarness(t)

	w := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/payments/txn-unknown/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
