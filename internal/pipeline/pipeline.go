// Package pipeline runs a batch through filtering, scoring, evaluation and
// persistence. The CLI and the HTTP API share it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
	"github.com/opensource-finance/osprey-riskscore/internal/evaluator"
	"github.com/opensource-finance/osprey-riskscore/internal/filter"
	"github.com/opensource-finance/osprey-riskscore/internal/metrics"
	"github.com/opensource-finance/osprey-riskscore/internal/scoring"
)

// ErrInvalidFilter wraps filter compile and evaluation failures.
var ErrInvalidFilter = errors.New("invalid filter")

// Pipeline wires the scorer to its optional sinks. Nil sinks are skipped.
type Pipeline struct {
	Scorer  *scoring.Scorer
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Metrics *metrics.Metrics

	Workers    int
	TopN       int
	SummaryTTL time.Duration
}

// Request describes one batch. Source is free text stored with the run;
// Origin is one of the metrics.Origin* values.
type Request struct {
	Source  string
	Origin  string
	Records []domain.TransactionRecord
	Filter  string
	TopN    int
}

// Result is the outcome of a batch.
type Result struct {
	Run        *domain.Run
	Scored     []domain.ScoredTransaction
	Rejections []scoring.Rejection
	Filtered   int
}

// Run filters, scores and summarizes req, then saves, caches and announces
// the run. Only a repository failure fails the run once scoring succeeded.
func (p *Pipeline) Run(ctx context.Context, tenantID string, req Request) (*Result, error) {
	start := time.Now()

	records := req.Records
	if req.Filter != "" {
		f, err := filter.Compile(req.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		if records, err = f.Apply(records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
	}

	batch, err := p.Scorer.ScoreAll(ctx, records, p.Workers)
	if err != nil {
		return nil, err
	}

	topN := req.TopN
	if topN <= 0 {
		topN = p.TopN
	}
	summary := evaluator.Summarize(batch.Scored, evaluator.Options{TopN: topN})

	run := &domain.Run{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Source:    req.Source,
		Filter:    req.Filter,
		Total:     len(batch.Scored),
		Rejected:  len(batch.Rejected),
		CreatedAt: time.Now().UTC(),
		Summary:   &summary,
	}

	if p.Metrics != nil {
		p.Metrics.RecordBatch(batch.Scored, len(batch.Rejected))
	}

	if p.Repo != nil {
		if err := p.Repo.SaveRun(ctx, tenantID, run, batch.Scored); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}

	if p.Cache != nil {
		if err := p.Cache.SetRun(ctx, tenantID, run, p.summaryTTL()); err != nil {
			slog.Warn("failed to cache run", "run_id", run.ID, "error", err)
		}
	}

	if p.Bus != nil {
		payload, _ := json.Marshal(run)
		if err := p.Bus.Publish(ctx, tenantID, domain.TopicRunCompleted, payload); err != nil {
			slog.Warn("failed to publish run completion", "run_id", run.ID, "error", err)
		}
	}

	if p.Metrics != nil {
		p.Metrics.RecordRunDuration(req.Origin, time.Since(start))
	}

	slog.Info("run completed",
		"run_id", run.ID,
		"tenant_id", tenantID,
		"source", req.Source,
		"input", len(req.Records),
		"filtered", len(req.Records)-len(records),
		"scored", run.Total,
		"rejected", run.Rejected,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		Run:        run,
		Scored:     batch.Scored,
		Rejections: batch.Rejected,
		Filtered:   len(req.Records) - len(records),
	}, nil
}

// GetRun reads through the cache to the repository and refills the cache
// on a repository hit.
func (p *Pipeline) GetRun(ctx context.Context, tenantID, runID string) (*domain.Run, error) {
	if p.Cache != nil {
		run, err := p.Cache.GetRun(ctx, tenantID, runID)
		if err != nil {
			slog.Warn("run cache lookup failed", "run_id", runID, "error", err)
		}
		if p.Metrics != nil {
			p.Metrics.RecordCacheLookup(run != nil)
		}
		if run != nil {
			return run, nil
		}
	}

	if p.Repo == nil {
		return nil, domain.ErrNotFound
	}
	run, err := p.Repo.GetRun(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	if p.Cache != nil {
		if err := p.Cache.SetRun(ctx, tenantID, run, p.summaryTTL()); err != nil {
			slog.Warn("failed to cache run", "run_id", runID, "error", err)
		}
	}
	return run, nil
}

func (p *Pipeline) summaryTTL() time.Duration {
	if p.SummaryTTL <= 0 {
		return time.Hour
	}
	return p.SummaryTTL
}
