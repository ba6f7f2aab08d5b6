package server

import (
	"time"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	paymentdomain "github.com/smallbiznis/premia/internal/payment/domain"
)

// paymentView is the wire shape of a payment. IDs render as strings and
// amounts as decimal strings, never floats.
type paymentView struct {
	ID            string     `json:"id"`
	BillingID     string     `json:"billing_id"`
	TransactionID string     `json:"transaction_id"`
	Amount        string     `json:"amount"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	RetryAttempt  int        `json:"retry_attempt"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	RefundOf      *string    `json:"refund_of,omitempty"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toPaymentView(p *paymentdomain.Payment, nextRetryAt *time.Time) paymentView {
	return paymentView{
		ID:            p.ID.String(),
		BillingID:     p.BillingID.String(),
		TransactionID: p.TransactionID,
		Amount:        p.Amount.String(),
		PaymentMethod: string(p.PaymentMethod),
		Status:        string(p.Status),
		RetryAttempt:  p.AttemptNumber - 1,
		FailureReason: p.FailureReason,
		RefundOf:      p.RefundOf,
		PaymentDate:   p.PaymentDate,
		NextRetryAt:   nextRetryAt,
		CreatedAt:     p.CreatedAt,
	}
}

type billingView struct {
	ID                 string     `json:"id"`
	PolicyID           string     `json:"policy_id"`
	CustomerID         string     `json:"customer_id"`
	PremiumAmount      string     `json:"premium_amount"`
	DueDate            time.Time  `json:"due_date"`
	BillingPeriodStart time.Time  `json:"billing_period_start"`
	BillingPeriodEnd   time.Time  `json:"billing_period_end"`
	Status             string     `json:"status"`
	Frequency          string     `json:"frequency"`
	GracePeriodEnd     *time.Time `json:"grace_period_end,omitempty"`
	RetryCount         int        `json:"retry_count"`
	NextRetryDate      *time.Time `json:"next_retry_date,omitempty"`
	DaysOverdue        *int       `json:"days_overdue,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toBillingView(b *billingdomain.Billing) billingView {
	return billingView{
		ID:                 b.ID.String(),
		PolicyID:           b.PolicyID,
		CustomerID:         b.CustomerID,
		PremiumAmount:      b.PremiumAmount.String(),
		DueDate:            b.DueDate,
		BillingPeriodStart: b.BillingPeriodStart,
		BillingPeriodEnd:   b.BillingPeriodEnd,
		Status:             string(b.Status),
		Frequency:          string(b.Frequency),
		GracePeriodEnd:     b.GracePeriodEnd,
		RetryCount:         b.RetryCount,
		NextRetryDate:      b.NextRetryDate,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func toDelinquentView(row billingdomain.DelinquentRow) billingView {
	v := toBillingView(&row.Billing)
	days := row.DaysOverdue
	v.DaysOverdue = &days
	return v
}
