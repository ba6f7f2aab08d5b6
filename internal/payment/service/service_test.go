package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
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
	"github.com/smallbiznis/premia/internal/payment/domain"
	"github.com/smallbiznis/premia/internal/payment/repository"
	"github.com/smallbiznis/premia/internal/policy"
	"github.com/smallbiznis/premia/pkg/db"
)

type stubGateway struct {
	mu      sync.Mutex
	results []*domain.ChargeResult
	err     error
	calls   int
}

func (g *stubGateway) queue(r *domain.ChargeResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results = append(g.results, r)
}

func (g *stubGateway) Charge(_ context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if len(g.results) == 0 {
		return &domain.ChargeResult{TransactionID: req.TransactionID, Outcome: domain.OutcomeSuccess}, nil
	}
	r := g.results[0]
	g.results = g.results[1:]
	if r.TransactionID == "" {
		r.TransactionID = req.TransactionID
	}
	return r, nil
}

type harness struct {
	db          *gorm.DB
	clk         *clock.FakeClock
	node        *snowflake.Node
	gw          *stubGateway
	registry    *policy.StaticRegistry
	ledger      billingdomain.Service
	billingRepo billingdomain.Repository
	repo        domain.Repository
	engine      domain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "premia.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(gdb))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	outbox := events.NewOutbox(gdb, node, clk)
	registry := policy.NewStaticRegistry()

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

	payRepo := repository.New(gdb, clk)
	gw := &stubGateway{}
	engine := New(Params{
		DB:          gdb,
		Repo:        payRepo,
		BillingRepo: billingRepo,
		Ledger:      ledger,
		Gateway:     gw,
		Sink:        outbox,
		Clock:       clk,
		Node:        node,
		Logger:      log,
		Metrics:     m,
		Config: config.Config{
			Scheduler: config.SchedulerConfig{AbandonedCutoff: 15 * time.Minute},
		},
	})

	return &harness{
		db:          gdb,
		clk:         clk,
		node:        node,
		gw:          gw,
		registry:    registry,
		ledger:      ledger,
		billingRepo: billingRepo,
		repo:        payRepo,
		engine:      engine,
	}
}

func (h *harness) createBilling(t *testing.T, due time.Time) *billingdomain.Billing {
	t.Helper()
	b, err := h.ledger.Create(context.Background(), billingdomain.CreateInput{
		PolicyID:           "POL-" + h.node.Generate().String(),
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

func (h *harness) getBilling(t *testing.T, id snowflake.ID) *billingdomain.Billing {
	t.Helper()
	b, err := h.billingRepo.Get(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (h *harness) eventTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	err := h.db.Raw(`SELECT event_type FROM billing_events ORDER BY id ASC`).Scan(&types).Error
	require.NoError(t, err)
	return types
}

func (h *harness) retries(t *testing.T, billingID snowflake.ID) []domain.Retry {
	t.Helper()
	rows, err := h.repo.ListRetriesByBilling(context.Background(), billingID)
	require.NoError(t, err)
	return rows
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProcessSuccessMarksBillingPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	p, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID:     b.ID,
		Amount:        amount("100.00"),
		PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	assert.Equal(t, 1, p.AttemptNumber)
	require.NotNil(t, p.PaymentDate)
	assert.Equal(t, h.clk.Now(), p.PaymentDate.UTC())
	assert.Equal(t, 1, h.gw.calls)

	got := h.getBilling(t, b.ID)
	assert.Equal(t, billingdomain.BillingStatusPaid, got.Status)
	assert.Nil(t, got.NextRetryDate)
	assert.Equal(t, 0, got.RetryCount)

	assert.Equal(t, []string{
		events.TypeBillingCreated,
		events.TypePaymentAttempted,
		events.TypePaymentSuccess,
	}, h.eventTypes(t))
}

func TestProcessFailureSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))
	h.gw.queue(&domain.ChargeResult{Outcome: domain.OutcomeFailed, Reason: "Insufficient funds"})

	p, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID:     b.ID,
		Amount:        amount("100.00"),
		PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, "Insufficient funds", *p.FailureReason)

	got := h.getBilling(t, b.ID)
	// Not yet due, so the failure does not move the billing off PENDING.
	assert.Equal(t, billingdomain.BillingStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.NextRetryDate)
	assert.Equal(t, h.clk.Now().Add(2*time.Minute), got.NextRetryDate.UTC())

	rows := h.retries(t, b.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RetryStatusScheduled, rows[0].Status)
	assert.Equal(t, 2, rows[0].AttemptNumber)
	assert.Equal(t, h.clk.Now().Add(2*time.Minute), rows[0].ScheduledAt.UTC())

	assert.Contains(t, h.eventTypes(t), events.TypePaymentFailed)
	assert.Contains(t, h.eventTypes(t), events.TypeRetryScheduled)
}

func TestSuccessAfterFailureCancelsScheduledRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))
	h.gw.queue(&domain.ChargeResult{Outcome: domain.OutcomeFailed, Reason: "Insufficient funds"})

	_, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	h.clk.Advance(time.Minute)
	p, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	assert.Equal(t, 2, p.AttemptNumber)

	got := h.getBilling(t, b.ID)
	assert.Equal(t, billingdomain.BillingStatusPaid, got.Status)
	assert.Nil(t, got.NextRetryDate)

	rows := h.retries(t, b.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RetryStatusSkipped, rows[0].Status)
}

func TestPastDueFailureEntersOverdueWithGraceDeadline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	due := h.clk.Now().AddDate(0, 0, -3)
	b := h.createBilling(t, due)
	h.gw.queue(&domain.ChargeResult{Outcome: domain.OutcomeFailed, Reason: "Insufficient funds"})

	_, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	got := h.getBilling(t, b.ID)
	assert.Equal(t, billingdomain.BillingStatusOverdue, got.Status)
	require.NotNil(t, got.GracePeriodEnd)
	assert.Equal(t, due.AddDate(0, 0, 10), got.GracePeriodEnd.UTC())
	assert.Contains(t, h.eventTypes(t), events.TypePaymentDue)
}

func TestOverdueFailureEntersGracePeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	due := h.clk.Now().AddDate(0, 0, -2)
	b := h.createBilling(t, due)

	_, err := h.ledger.MarkOverdue(ctx, b.ID)
	require.NoError(t, err)

	h.gw.queue(&domain.ChargeResult{Outcome: domain.OutcomeFailed, Reason: "Insufficient funds"})
	_, err = h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	got := h.getBilling(t, b.ID)
	assert.Equal(t, billingdomain.BillingStatusGracePeriod, got.Status)
	assert.Contains(t, h.eventTypes(t), events.TypeGracePeriodStarted)
}

func TestRetryBillingExhaustionMarksDelinquent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	due := h.clk.Now().AddDate(0, 0, -20)
	b := h.createBilling(t, due)

	graceEnd := due.AddDate(0, 0, 10)
	b.Status = billingdomain.BillingStatusOverdue
	b.GracePeriodEnd = &graceEnd
	b.RetryCount = 5
	require.NoError(t, h.billingRepo.Update(ctx, nil, b))

	p, err := h.engine.RetryBilling(ctx, b.ID)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 0, h.gw.calls)

	got := h.getBilling(t, b.ID)
	assert.Equal(t, billingdomain.BillingStatusDelinquent, got.Status)
	assert.Nil(t, got.NextRetryDate)
	assert.Contains(t, h.eventTypes(t), events.TypeRetriesExhausted)
	assert.Contains(t, h.eventTypes(t), events.TypeDelinquent)
}

func TestProcessRejectsAmountMismatch(t *testing.T) {
	h := newHarness(t)
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	_, err := h.engine.Process(context.Background(), domain.ProcessInput{
		BillingID: b.ID, Amount: amount("99.99"), PaymentMethod: domain.MethodCreditCard,
	})
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Equal(t, 0, h.gw.calls)
}

func TestProcessRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	_, err := h.engine.Process(context.Background(), domain.ProcessInput{
		BillingID: b.ID, Amount: amount("0"), PaymentMethod: domain.MethodCreditCard,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.engine.Process(context.Background(), domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.Method("CASH"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMethod)
}

func TestProcessConflictsWithInFlightAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	now := h.clk.Now()
	pending := &domain.Payment{
		ID:            h.node.Generate(),
		BillingID:     b.ID,
		TransactionID: "txn-inflight",
		Amount:        amount("100.00"),
		PaymentMethod: domain.MethodCreditCard,
		Status:        domain.PaymentStatusPending,
		AttemptNumber: 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, h.repo.InsertPayment(ctx, nil, pending))

	_, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	assert.ErrorIs(t, err, domain.ErrAttemptInFlight)
	assert.Equal(t, 0, h.gw.calls)
}

func TestProcessResolvesStaleInFlightAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	stale := h.clk.Now().Add(-20 * time.Minute)
	pending := &domain.Payment{
		ID:            h.node.Generate(),
		BillingID:     b.ID,
		TransactionID: "txn-stale",
		Amount:        amount("100.00"),
		PaymentMethod: domain.MethodCreditCard,
		Status:        domain.PaymentStatusPending,
		AttemptNumber: 1,
		CreatedAt:     stale,
		UpdatedAt:     stale,
	}
	require.NoError(t, h.repo.InsertPayment(ctx, nil, pending))

	p, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)

	old, err := h.repo.GetPayment(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, old.Status)
	require.NotNil(t, old.FailureReason)
	assert.Equal(t, domain.ReasonAbandoned, *old.FailureReason)
}

func TestProcessOnPaidBillingReturnsCommittedPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	first, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	second, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, 1, h.gw.calls)
}

func TestTimeoutRecordedAsRetriableFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))
	h.gw.queue(&domain.ChargeResult{Outcome: domain.OutcomeTimeout})

	p, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, domain.ReasonTimeout, *p.FailureReason)

	rows := h.retries(t, b.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RetryStatusScheduled, rows[0].Status)
}

func TestRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	p, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	partial := amount("40.00")
	refund, err := h.engine.Refund(ctx, p.TransactionID, &partial)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, refund.Status)
	require.NotNil(t, refund.RefundOf)
	assert.Equal(t, p.TransactionID, *refund.RefundOf)
	assert.True(t, refund.Amount.Equal(partial))
	require.NotNil(t, refund.RefundedAt)

	// The billing stays PAID; refunds never rewind the ledger.
	assert.Equal(t, billingdomain.BillingStatusPaid, h.getBilling(t, b.ID).Status)

	over := amount("1000.00")
	_, err = h.engine.Refund(ctx, p.TransactionID, &over)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.engine.Refund(ctx, "no-such-txn", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefundRejectsFailedPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))
	h.gw.queue(&domain.ChargeResult{Outcome: domain.OutcomeFailed, Reason: "Insufficient funds"})

	p, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	_, err = h.engine.Refund(ctx, p.TransactionID, nil)
	assert.ErrorIs(t, err, domain.ErrNotRefundable)
}

func TestResolveAbandonedRunsFailureReconciliation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	stale := h.clk.Now().Add(-30 * time.Minute)
	pending := &domain.Payment{
		ID:            h.node.Generate(),
		BillingID:     b.ID,
		TransactionID: "txn-abandoned",
		Amount:        amount("100.00"),
		PaymentMethod: domain.MethodCreditCard,
		Status:        domain.PaymentStatusPending,
		AttemptNumber: 1,
		CreatedAt:     stale,
		UpdatedAt:     stale,
	}
	require.NoError(t, h.repo.InsertPayment(ctx, nil, pending))

	n, err := h.engine.ResolveAbandoned(ctx, h.clk.Now().Add(-15*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resolved, err := h.repo.GetPayment(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, resolved.Status)
	require.NotNil(t, resolved.FailureReason)
	assert.Equal(t, domain.ReasonAbandoned, *resolved.FailureReason)

	got := h.getBilling(t, b.ID)
	assert.Equal(t, 1, got.RetryCount)
	require.Len(t, h.retries(t, b.ID), 1)
}

func TestRunRetryRecordsOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))
	h.gw.queue(&domain.ChargeResult{Outcome: domain.OutcomeFailed, Reason: "Insufficient funds"})

	_, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodBankTransfer,
	})
	require.NoError(t, err)

	h.clk.Advance(5 * time.Minute)
	claimed, err := h.repo.ClaimDueRetries(ctx, h.clk.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	p, err := h.engine.RunRetry(ctx, &claimed[0])
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	// The retry reuses the instrument from the last attempt.
	assert.Equal(t, domain.MethodBankTransfer, p.PaymentMethod)

	rows := h.retries(t, b.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RetryStatusSuccess, rows[0].Status)
	assert.Equal(t, billingdomain.BillingStatusPaid, h.getBilling(t, b.ID).Status)
}

func TestRunRetrySkipsClosedBilling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))
	h.gw.queue(&domain.ChargeResult{Outcome: domain.OutcomeFailed, Reason: "Insufficient funds"})

	_, err := h.engine.Process(ctx, domain.ProcessInput{
		BillingID: b.ID, Amount: amount("100.00"), PaymentMethod: domain.MethodCreditCard,
	})
	require.NoError(t, err)

	_, err = h.ledger.Cancel(ctx, b.ID)
	require.NoError(t, err)

	h.clk.Advance(5 * time.Minute)
	claimed, err := h.repo.ClaimDueRetries(ctx, h.clk.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	p, err := h.engine.RunRetry(ctx, &claimed[0])
	assert.Nil(t, p)
	assert.ErrorIs(t, err, domain.ErrBillingNotPayable)

	rows := h.retries(t, b.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RetryStatusSkipped, rows[0].Status)
}

func TestClaimDueRetriesClaimsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	now := h.clk.Now()
	r := &domain.Retry{
		ID:            h.node.Generate(),
		BillingID:     b.ID,
		AttemptNumber: 2,
		PaymentMethod: domain.MethodCreditCard,
		ScheduledAt:   now.Add(-time.Minute),
		Status:        domain.RetryStatusScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, h.repo.InsertRetry(ctx, nil, r))

	first, err := h.repo.ClaimDueRetries(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := h.repo.ClaimDueRetries(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRetryRowsUniquePerAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.createBilling(t, h.clk.Now().AddDate(0, 0, 5))

	now := h.clk.Now()
	mk := func() *domain.Retry {
		return &domain.Retry{
			ID:            h.node.Generate(),
			BillingID:     b.ID,
			AttemptNumber: 2,
			PaymentMethod: domain.MethodCreditCard,
			ScheduledAt:   now.Add(2 * time.Minute),
			Status:        domain.RetryStatusScheduled,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	require.NoError(t, h.repo.InsertRetry(ctx, nil, mk()))

	err := h.repo.InsertRetry(ctx, nil, mk())
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))
}
