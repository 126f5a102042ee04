package scoring

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

var tracer = otel.Tracer("riskscore-scoring")

// Rejection describes a record that could not be scored.
type Rejection struct {
	Index         int    `json:"index"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
	Err           error  `json:"-"`
}

// BatchResult holds the outcome of scoring a batch.
// Scored keeps the relative input order of the accepted records.
type BatchResult struct {
	Scored   []domain.ScoredTransaction
	Rejected []Rejection
}

// ScoreAll scores every record using up to workers goroutines.
// Out-of-domain records are skipped and reported in Rejected; the batch
// only fails when ctx is cancelled.
func (s *Scorer) ScoreAll(ctx context.Context, records []domain.TransactionRecord, workers int) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "scoring.ScoreAll")
	defer span.End()
	start := time.Now()

	if workers <= 0 {
		workers = domain.DefaultWorkers
	}
	workers = max(1, min(workers, len(records)))

	scored := make([]domain.ScoredTransaction, len(records))
	errs := make([]error, len(records))

	// Contiguous chunks, one per worker. Each slot is written by exactly one goroutine.
	chunk := (len(records) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(records); lo += chunk {
		hi := min(lo+chunk, len(records))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				scored[i], errs[i] = s.ScoreRecord(records[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &BatchResult{Scored: make([]domain.ScoredTransaction, 0, len(records))}
	for i, err := range errs {
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{
				Index:         i,
				TransactionID: records[i].TransactionID,
				Reason:        err.Error(),
				Err:           err,
			})
			continue
		}
		result.Scored = append(result.Scored, scored[i])
	}

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("rejected", len(result.Rejected)),
	)
	slog.Debug("batch scored",
		"records", len(records),
		"rejected", len(result.Rejected),
		"workers", workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
