package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	gracedomain "github.com/smallbiznis/premia/internal/graceperiod/domain"
)

type createBillingRequest struct {
	PolicyID           string    `json:"policy_id" binding:"required"`
	CustomerID         string    `json:"customer_id" binding:"required"`
	PremiumAmount      string    `json:"premium_amount" binding:"required"`
	DueDate            time.Time `json:"due_date" binding:"required"`
	BillingPeriodStart time.Time `json:"billing_period_start" binding:"required"`
	BillingPeriodEnd   time.Time `json:"billing_period_end" binding:"required"`
	Frequency          string    `json:"frequency" binding:"required"`
}

// CreateBilling opens a scheduled premium charge.
func (s *Server) CreateBilling(c *gin.Context) {
	var req createBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	amount, err := decimal.NewFromString(req.PremiumAmount)
	if err != nil {
		AbortWithError(c, billingdomain.ErrInvalidAmount)
		return
	}

	b, err := s.ledger.Create(c.Request.Context(), billingdomain.CreateInput{
		PolicyID:           req.PolicyID,
		CustomerID:         req.CustomerID,
		PremiumAmount:      amount,
		DueDate:            req.DueDate,
		BillingPeriodStart: req.BillingPeriodStart,
		BillingPeriodEnd:   req.BillingPeriodEnd,
		Frequency:          billingdomain.PaymentFrequency(req.Frequency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBillingView(b))
}

type updateBillingStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

// UpdateBillingStatus is the admin transition on the newest open billing of
// a policy. The transition table decides what is allowed.
func (s *Server) UpdateBillingStatus(c *gin.Context) {
	var req updateBillingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	b, err := s.ledger.ApplyStatus(c.Request.Context(), c.Param("policy_id"), billingdomain.BillingStatus(req.PaymentStatus))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBillingView(b))
}

// ListDelinquentBillings reports delinquent billings with their overdue age.
func (s *Server) ListDelinquentBillings(c *gin.Context) {
	rows, err := s.ledger.ListDelinquent(c.Request.Context(), billingdomain.DelinquentQuery{
		MinDaysOverdue: intQuery(c, "min_days_overdue", 0),
		CustomerID:     c.Query("customer_id"),
		Limit:          intQuery(c, "limit", 100),
		Offset:         intQuery(c, "offset", 0),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]billingView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toDelinquentView(row))
	}
	c.JSON(http.StatusOK, gin.H{"billings": views})
}

func (s *Server) ListBillingsByPolicy(c *gin.Context) {
	rows, err := s.ledger.ListByPolicy(c.Request.Context(), c.Param("policy_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]billingView, 0, len(rows))
	for i := range rows {
		views = append(views, toBillingView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"billings": views})
}

func (s *Server) ListBillingsByCustomer(c *gin.Context) {
	rows, err := s.ledger.ListByCustomer(c.Request.Context(), c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]billingView, 0, len(rows))
	for i := range rows {
		views = append(views, toBillingView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"billings": views})
}

// ListGraceConfigs lists the configured grace period rules.
func (s *Server) ListGraceConfigs(c *gin.Context) {
	rows, err := s.graceSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grace_periods": rows})
}

type upsertGraceConfigRequest struct {
	PolicyType   string  `json:"policy_type" binding:"required"`
	Frequency    string  `json:"frequency" binding:"required"`
	CustomerTier *string `json:"customer_tier"`
	GraceDays    int     `json:"grace_days" binding:"required"`
}

// UpsertGraceConfig creates or replaces one grace period rule.
func (s *Server) UpsertGraceConfig(c *gin.Context) {
	var req upsertGraceConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	cfg, err := s.graceSvc.Upsert(c.Request.Context(), &gracedomain.Config{
		PolicyType:   req.PolicyType,
		Frequency:    billingdomain.PaymentFrequency(req.Frequency),
		CustomerTier: req.CustomerTier,
		GraceDays:    req.GraceDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
