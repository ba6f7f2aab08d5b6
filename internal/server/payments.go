package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	paymentdomain "github.com/smallbiznis/premia/internal/payment/domain"
)

type processPaymentRequest struct {
	BillingID     string `json:"billing_id"`
	PolicyID      string `json:"policy_id"`
	Amount        string `json:"amount" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

// ProcessPayment runs one charge attempt and returns the reconciled payment.
func (s *Server) ProcessPayment(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidAmount)
		return
	}

	in := paymentdomain.ProcessInput{
		PolicyID:      req.PolicyID,
		Amount:        amount,
		PaymentMethod: paymentdomain.Method(req.PaymentMethod),
	}
	if req.BillingID != "" {
		id, err := snowflake.ParseString(req.BillingID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		in.BillingID = id
	}

	p, err := s.payments.Process(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPaymentView(p, s.nextRetryAt(c, p.BillingID)))
}

// RetryPayment forces an immediate retry of the billing behind a transaction.
func (s *Server) RetryPayment(c *gin.Context) {
	p, err := s.payments.GetByTransactionID(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	attempt, err := s.payments.RetryBilling(c.Request.Context(), p.BillingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPaymentView(attempt, s.nextRetryAt(c, attempt.BillingID)))
}

// GetPaymentStatus returns the payment behind a transaction id.
func (s *Server) GetPaymentStatus(c *gin.Context) {
	p, err := s.payments.GetByTransactionID(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentView(p, nil))
}

// ListPaymentHistory lists payments filtered by policy and status.
func (s *Server) ListPaymentHistory(c *gin.Context) {
	q := paymentdomain.HistoryQuery{
		PolicyID: c.Query("policy_id"),
		Status:   paymentdomain.PaymentStatus(c.Query("status")),
		Limit:    intQuery(c, "limit", 50),
		Offset:   intQuery(c, "offset", 0),
	}
	if billingID := c.Query("billing_id"); billingID != "" {
		id, err := snowflake.ParseString(billingID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		q.BillingID = id
	}

	rows, err := s.payments.History(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]paymentView, 0, len(rows))
	for i := range rows {
		views = append(views, toPaymentView(&rows[i], nil))
	}
	c.JSON(http.StatusOK, gin.H{"payments": views})
}

// GetPaymentStatistics aggregates payment outcomes over a window.
func (s *Server) GetPaymentStatistics(c *gin.Context) {
	var q paymentdomain.StatsQuery
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		q.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		q.To = t
	}

	stats, err := s.payments.Stats(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	successRate := "0"
	if stats.TotalAttempts > 0 {
		rate := decimal.NewFromInt(stats.Succeeded).
			Div(decimal.NewFromInt(stats.TotalAttempts)).
			Round(4)
		successRate = rate.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"total_attempts":  stats.TotalAttempts,
		"succeeded":       stats.Succeeded,
		"failed":          stats.Failed,
		"refunded":        stats.Refunded,
		"success_rate":    successRate,
		"amount_captured": stats.AmountCaptured.String(),
		"amount_refunded": stats.AmountRefunded.String(),
	})
}

type refundRequest struct {
	Amount string `json:"amount"`
}

// RefundPayment records a refund against a successful transaction.
func (s *Server) RefundPayment(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			AbortWithError(c, paymentdomain.ErrInvalidAmount)
			return
		}
		amount = &parsed
	}

	refund, err := s.payments.Refund(c.Request.Context(), c.Param("transaction_id"), amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentView(refund, nil))
}

// nextRetryAt looks up the billing's scheduled retry for the payment view.
// Lookup failures degrade to an absent field.
func (s *Server) nextRetryAt(c *gin.Context, billingID snowflake.ID) *time.Time {
	b, err := s.ledger.Get(c.Request.Context(), billingID)
	if err != nil {
		return nil
	}
	return b.NextRetryDate
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
