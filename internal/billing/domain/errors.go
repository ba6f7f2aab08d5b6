package domain

import "errors"

var (
	ErrNotFound          = errors.New("billing_not_found")
	ErrInvalidTransition = errors.New("invalid_billing_transition")
	ErrInvalidAmount     = errors.New("invalid_premium_amount")
	ErrInvalidFrequency  = errors.New("invalid_payment_frequency")
	ErrInvalidPeriod     = errors.New("invalid_billing_period")
	ErrMissingGraceEnd   = errors.New("grace_period_end_not_set")
	ErrCancelled         = errors.New("billing_cancelled")
	ErrStorage           = errors.New("billing_storage_error")
)
