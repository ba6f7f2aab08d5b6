// Package gateway implements the HTTP client for the external payment
// processor.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/config"
	"github.com/smallbiznis/premia/internal/observability/metrics"
	"github.com/smallbiznis/premia/internal/payment/domain"
)

// Client charges through the gateway's REST API. A deadline overrun is an
// unknown outcome, reported as OutcomeTimeout rather than an error, so the
// engine records the attempt and schedules a retry.
type Client struct {
	baseURL string
	http    *http.Client
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg config.Config, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.Gateway.BaseURL,
		http:    &http.Client{Timeout: timeout},
		clock:   clk,
		log:     log.Named("gateway.client"),
		metrics: m,
	}
}

type chargeRequest struct {
	TransactionID string `json:"transaction_id"`
	PolicyID      string `json:"policy_id"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

func (c *Client) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	body, err := json.Marshal(chargeRequest{
		TransactionID: req.TransactionID,
		PolicyID:      req.PolicyID,
		Amount:        req.Amount.String(),
		PaymentMethod: string(req.Method),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charge", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := c.clock.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := c.clock.Now().Sub(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			c.metrics.ObserveGatewayLatency(string(domain.OutcomeTimeout), elapsed)
			c.log.Warn("gateway charge timed out",
				zap.String("transaction_id", req.TransactionID),
				zap.Duration("elapsed", elapsed),
			)
			return &domain.ChargeResult{
				TransactionID: req.TransactionID,
				Outcome:       domain.OutcomeTimeout,
				Reason:        domain.ReasonTimeout,
			}, nil
		}
		c.metrics.ObserveGatewayLatency("error", elapsed)
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.metrics.ObserveGatewayLatency("error", elapsed)
		return nil, fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.metrics.ObserveGatewayLatency("error", elapsed)
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}

	result := &domain.ChargeResult{TransactionID: req.TransactionID}
	if out.TransactionID != "" {
		result.TransactionID = out.TransactionID
	}

	switch {
	case resp.StatusCode == http.StatusOK && out.Status == "SUCCESS":
		result.Outcome = domain.OutcomeSuccess
	default:
		result.Outcome = domain.OutcomeFailed
		result.Reason = out.Message
		if result.Reason == "" {
			result.Reason = fmt.Sprintf("gateway declined with status %d", resp.StatusCode)
		}
	}

	c.metrics.ObserveGatewayLatency(string(result.Outcome), elapsed)
	return result, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
