package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/osprey-riskscore/internal/bus"
	"github.com/opensource-finance/osprey-riskscore/internal/cache"
	"github.com/opensource-finance/osprey-riskscore/internal/domain"
	"github.com/opensource-finance/osprey-riskscore/internal/metrics"
	"github.com/opensource-finance/osprey-riskscore/internal/repository"
	"github.com/opensource-finance/osprey-riskscore/internal/scoring"
)

func records() []domain.TransactionRecord {
	return []domain.TransactionRecord{
		{TransactionID: "tx-1", Country: "in", Channel: "email", Device: "mobile", Amount: 350, Hour: 2, NumItems: 5, CouponApplied: true, IsFraud: true},
		{TransactionID: "tx-2", Country: "ca", Channel: "app", Device: "tablet", Amount: 30, Hour: 14, NumItems: 1},
		{TransactionID: "tx-3", Country: "us", Channel: "web", Device: "desktop", Amount: 10, Hour: 30},
		{TransactionID: "tx-4", Country: "in", Channel: "web", Device: "mobile", Amount: 120, Hour: 22, NumItems: 2},
	}
}

func newPipeline(t *testing.T) (*Pipeline, *bus.ChannelBus) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "pipeline.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	b := bus.NewChannelBus(10)
	t.Cleanup(func() { b.Close() })

	return &Pipeline{
		Scorer:  scoring.NewScorer(nil),
		Repo:    repo,
		Cache:   cache.NewLRUCache(10),
		Bus:     b,
		Metrics: metrics.New(),
		Workers: 2,
		TopN:    3,
	}, b
}

func TestRun(t *testing.T) {
	p, b := newPipeline(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	completed := make(chan *domain.Message, 1)
	_, _ = b.Subscribe(ctx, tenantID, domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		completed <- msg
		return nil
	})

	res, err := p.Run(ctx, tenantID, Request{Source: "unit", Records: records()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	t.Run("SkipAndReport", func(t *testing.T) {
		if res.Run.Total != 3 || res.Run.Rejected != 1 {
			t.Errorf("expected 3 scored 1 rejected, got %d/%d", res.Run.Total, res.Run.Rejected)
		}
		if len(res.Rejections) != 1 || res.Rejections[0].TransactionID != "tx-3" {
			t.Errorf("unexpected rejections: %+v", res.Rejections)
		}
		if !errors.Is(res.Rejections[0].Err, domain.ErrOutOfDomain) {
			t.Errorf("expected ErrOutOfDomain, got %v", res.Rejections[0].Err)
		}
	})

	t.Run("Summary", func(t *testing.T) {
		s := res.Run.Summary
		if s == nil || s.Total != 3 || len(s.Top) != 3 {
			t.Fatalf("unexpected summary: %+v", s)
		}
		if s.Top[0].TransactionID != "tx-1" {
			t.Errorf("expected tx-1 on top, got %s", s.Top[0].TransactionID)
		}
	})

	t.Run("Persisted", func(t *testing.T) {
		rows, err := p.Repo.ListScoredTransactions(ctx, tenantID, res.Run.ID)
		if err != nil {
			t.Fatalf("ListScoredTransactions failed: %v", err)
		}
		if len(rows) != 3 {
			t.Errorf("expected 3 persisted rows, got %d", len(rows))
		}
	})

	t.Run("Announced", func(t *testing.T) {
		select {
		case msg := <-completed:
			var run domain.Run
			if err := json.Unmarshal(msg.Payload, &run); err != nil {
				t.Fatalf("bad payload: %v", err)
			}
			if run.ID != res.Run.ID {
				t.Errorf("expected run %s, got %s", res.Run.ID, run.ID)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for run completion event")
		}
	})

	t.Run("GetRunFromCache", func(t *testing.T) {
		run, err := p.GetRun(ctx, tenantID, res.Run.ID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if run.Summary == nil || run.Summary.Total != 3 {
			t.Errorf("unexpected cached run: %+v", run)
		}
	})

	t.Run("GetRunFallsBackToRepository", func(t *testing.T) {
		_ = p.Cache.Delete(ctx, tenantID, "run:"+res.Run.ID)

		run, err := p.GetRun(ctx, tenantID, res.Run.ID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if run.ID != res.Run.ID {
			t.Errorf("expected %s, got %s", res.Run.ID, run.ID)
		}

		cached, _ := p.Cache.GetRun(ctx, tenantID, res.Run.ID)
		if cached == nil {
			t.Error("repository hit should refill the cache")
		}
	})

	t.Run("GetRunMissing", func(t *testing.T) {
		if _, err := p.GetRun(ctx, tenantID, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRunWithFilter(t *testing.T) {
	p, _ := newPipeline(t)

	res, err := p.Run(context.Background(), "tenant-001", Request{
		Source:  "unit",
		Records: records(),
		Filter:  `country == "in"`,
		TopN:    1,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Filtered != 2 || res.Run.Total != 2 {
		t.Errorf("expected 2 filtered out and 2 scored, got %d/%d", res.Filtered, res.Run.Total)
	}
	if len(res.Run.Summary.Top) != 1 {
		t.Errorf("request TopN should override default, got %d", len(res.Run.Summary.Top))
	}
}

func TestRunInvalidFilter(t *testing.T) {
	p, _ := newPipeline(t)

	_, err := p.Run(context.Background(), "tenant-001", Request{Records: records(), Filter: "amount +"})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestRunWithoutSinks(t *testing.T) {
	p := &Pipeline{Scorer: scoring.NewScorer(nil)}

	res, err := p.Run(context.Background(), "cli", Request{Records: records()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Run.Total != 3 {
		t.Errorf("expected 3 scored, got %d", res.Run.Total)
	}
	if _, err := p.GetRun(context.Background(), "cli", res.Run.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound without a repository, got %v", err)
	}
}

func TestRunDurationLabelIgnoresSource(t *testing.T) {
	p, _ := newPipeline(t)
	ctx := context.Background()

	for i := range 20 {
		_, err := p.Run(ctx, "tenant-001", Request{
			Source:  fmt.Sprintf("upload-%d.csv", i),
			Origin:  metrics.OriginAPI,
			Records: records(),
		})
		if err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
	}

	got, err := testutil.GatherAndCount(p.Metrics.Registry, "riskscore_run_duration_seconds")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected a single run duration series, got %d", got)
	}
}
