// Package worker scores transactions published on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
	"github.com/opensource-finance/osprey-riskscore/internal/metrics"
	"github.com/opensource-finance/osprey-riskscore/internal/scoring"
)

// GlobalTenant is subscribed when no tenants are configured. Ingested
// records of every tenant then share it and carry their owner in the
// envelope.
const GlobalTenant = "_global"

// Worker consumes ingested transactions and publishes their scores.
type Worker struct {
	bus     domain.EventBus
	scorer  *scoring.Scorer
	metrics *metrics.Metrics

	scored   atomic.Int64
	rejected atomic.Int64

	mu            sync.Mutex
	subscriptions map[string]domain.Subscription // by bus tenant
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs lists the tenants to consume. Empty subscribes GlobalTenant.
	TenantIDs []string
}

// ScoredEvent is published on TopicTransactionScored, and on TopicHighRisk
// for HIGH records.
type ScoredEvent struct {
	domain.ScoredTransaction
	Contributions domain.Contributions `json:"contributions"`
	TenantID      string               `json:"tenantId"`
	MessageID     string               `json:"messageId"`
	ScoredAt      time.Time            `json:"scoredAt"`
}

// NewWorker creates a new async worker. m may be nil.
func NewWorker(bus domain.EventBus, scorer *scoring.Scorer, m *metrics.Metrics) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:           bus,
		scorer:        scorer,
		metrics:       m,
		subscriptions: make(map[string]domain.Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start subscribes to the ingested topic for each configured tenant.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenant}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, tenantID := range tenants {
		if _, ok := w.subscriptions[tenantID]; ok {
			continue
		}
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, w.handleMessage)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.subscriptions[tenantID] = sub
	}

	if len(w.subscriptions) == 0 {
		return fmt.Errorf("no worker subscriptions started")
	}

	slog.Info("workers started",
		"tenant_count", len(w.subscriptions),
		"topic", domain.TopicTransactionIngested,
	)
	return nil
}

// Route returns the bus tenant that ingested records owned by tenantID
// must be published on. It reports false when no subscription would
// consume them.
func (w *Worker) Route(tenantID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.subscriptions[tenantID]; ok {
		return tenantID, true
	}
	if _, ok := w.subscriptions[GlobalTenant]; ok {
		return GlobalTenant, true
	}
	return "", false
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var in domain.IngestedTransaction
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	tenantID := in.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	rec := in.Transaction

	st, contrib, err := w.scorer.Assess(rec)
	if err != nil {
		w.rejected.Add(1)
		if w.metrics != nil {
			w.metrics.RecordRejected(1)
		}
		slog.Warn("transaction rejected",
			"tx_id", rec.TransactionID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}
	w.scored.Add(1)
	if w.metrics != nil {
		w.metrics.RecordScored(st)
	}

	payload, err := json.Marshal(ScoredEvent{
		ScoredTransaction: st,
		Contributions:     contrib,
		TenantID:          tenantID,
		MessageID:         msg.ID,
		ScoredAt:          time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode scored event: %w", err)
	}

	if err := w.bus.Publish(ctx, tenantID, domain.TopicTransactionScored, payload); err != nil {
		slog.Error("failed to publish score",
			"tx_id", rec.TransactionID,
			"error", err,
		)
	}

	if st.RiskCategory == domain.RiskHigh {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicHighRisk, payload); err != nil {
			slog.Error("failed to publish alert",
				"tx_id", rec.TransactionID,
				"error", err,
			)
		}
	}

	slog.Info("transaction scored",
		"tx_id", rec.TransactionID,
		"tenant_id", tenantID,
		"score", st.RiskScore,
		"category", st.RiskCategory,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop cancels in-flight handlers and unsubscribes everything.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for tenantID, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"tenant_id", tenantID,
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	clear(w.subscriptions)

	slog.Info("workers stopped")
	return nil
}

// Stats describes the worker for health reporting.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Tenants           []string `json:"tenants"`
	Scored            int64    `json:"scored"`
	Rejected          int64    `json:"rejected"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	tenants := make([]string, 0, len(w.subscriptions))
	for tenantID := range w.subscriptions {
		tenants = append(tenants, tenantID)
	}
	w.mu.Unlock()
	slices.Sort(tenants)

	return Stats{
		SubscriptionCount: len(tenants),
		Tenants:           tenants,
		Scored:            w.scored.Load(),
		Rejected:          w.rejected.Load(),
	}
}
