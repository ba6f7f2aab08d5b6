package domain

import "errors"

var (
	ErrNotFound           = errors.New("payment_not_found")
	ErrInvalidAmount      = errors.New("invalid_payment_amount")
	ErrAmountMismatch     = errors.New("payment_amount_mismatch")
	ErrInvalidMethod      = errors.New("invalid_payment_method")
	ErrBillingNotPayable  = errors.New("billing_not_payable")
	ErrAttemptInFlight    = errors.New("payment_attempt_in_flight")
	ErrNotRefundable      = errors.New("payment_not_refundable")
	ErrRetriesExhausted   = errors.New("payment_retries_exhausted")
	ErrGatewayUnavailable = errors.New("payment_gateway_unavailable")
	ErrStorage            = errors.New("payment_storage_error")
)
