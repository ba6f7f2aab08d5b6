// Package mock is a standalone payment gateway stand-in for local
// development. Charges succeed or fail at a configurable rate.
package mock

import (
	"math/rand"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultFailureRate is the share of charges declined when none is configured.
const DefaultFailureRate = 0.3

type chargeRequest struct {
	TransactionID string `json:"transaction_id"`
	PolicyID      string `json:"policy_id"`
	Amount        string `json:"amount" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

// Handler serves the mock gateway endpoints. Seen transactions are kept in
// memory so status lookups reflect the charge outcome.
type Handler struct {
	failureRate float64
	rng         *rand.Rand
	log         *zap.Logger

	mu       sync.RWMutex
	outcomes map[string]string
}

func New(failureRate float64, log *zap.Logger) *Handler {
	if failureRate < 0 || failureRate > 1 {
		failureRate = DefaultFailureRate
	}
	return &Handler{
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(rand.Int63())),
		log:         log.Named("gateway.mock"),
		outcomes:    make(map[string]string),
	}
}

// Register mounts the gateway routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	g := r.Group("/api/gateway")
	g.GET("/hello", h.Hello)
	g.POST("/charge", h.Charge)
	g.GET("/status/:transaction_id", h.Status)
}

func (h *Handler) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "payment gateway is running"})
}

func (h *Handler) Charge(c *gin.Context) {
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, chargeResponse{
			Status:  "FAILED",
			Message: "invalid charge request",
		})
		return
	}

	txnID := req.TransactionID
	if txnID == "" {
		txnID = uuid.NewString()
	}

	if h.rng.Float64() < h.failureRate {
		h.record(txnID, "FAILED")
		h.log.Info("charge declined",
			zap.String("transaction_id", txnID),
			zap.String("policy_id", req.PolicyID),
		)
		c.JSON(http.StatusBadRequest, chargeResponse{
			TransactionID: txnID,
			Status:        "FAILED",
			Message:       "Insufficient funds",
		})
		return
	}

	h.record(txnID, "SUCCESS")
	h.log.Info("charge approved",
		zap.String("transaction_id", txnID),
		zap.String("policy_id", req.PolicyID),
		zap.String("amount", req.Amount),
	)
	c.JSON(http.StatusOK, chargeResponse{
		TransactionID: txnID,
		Status:        "SUCCESS",
		Message:       "Payment processed successfully",
	})
}

func (h *Handler) Status(c *gin.Context) {
	txnID := c.Param("transaction_id")

	h.mu.RLock()
	status, ok := h.outcomes[txnID]
	h.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}

	c.JSON(http.StatusOK, chargeResponse{
		TransactionID: txnID,
		Status:        status,
	})
}

func (h *Handler) record(txnID, status string) {
	h.mu.Lock()
	h.outcomes[txnID] = status
	h.mu.Unlock()
}
