package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

func st(score int, cat domain.RiskCategory) domain.ScoredTransaction {
	return domain.ScoredTransaction{RiskScore: score, RiskCategory: cat}
}

func TestRecordBatch(t *testing.T) {
	m := New()

	m.RecordBatch([]domain.ScoredTransaction{
		st(94, domain.RiskHigh),
		st(72, domain.RiskHigh),
		st(55, domain.RiskMedium),
		st(41, domain.RiskLow),
	}, 2)

	tests := []struct {
		category domain.RiskCategory
		want     float64
	}{
		{domain.RiskHigh, 2},
		{domain.RiskMedium, 1},
		{domain.RiskLow, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got := testutil.ToFloat64(m.scored.WithLabelValues(string(tt.category)))
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if got := testutil.ToFloat64(m.rejected); got != 2 {
		t.Errorf("expected 2 rejected, got %v", got)
	}
	if got := testutil.CollectAndCount(m.scores); got != 1 {
		t.Errorf("expected one histogram series, got %d", got)
	}
}

func TestRecordRejectedIgnoresZero(t *testing.T) {
	m := New()
	m.RecordRejected(0)
	m.RecordRejected(-1)
	if got := testutil.ToFloat64(m.rejected); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestCacheLookups(t *testing.T) {
	m := New()
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	if got := testutil.ToFloat64(m.cacheLookup.WithLabelValues("hit")); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheLookup.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordScored(st(80, domain.RiskHigh))
	m.RecordRunDuration(OriginAPI, 150*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		`riskscore_records_scored_total{category="HIGH"} 1`,
		"riskscore_score_bucket",
		"riskscore_run_duration_seconds_count",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected exposition to contain %q", name)
		}
	}
}

func TestRunDurationOriginIsBounded(t *testing.T) {
	m := New()
	for i := range 50 {
		m.RecordRunDuration(fmt.Sprintf("/data/batch-%d.csv", i), time.Millisecond)
	}
	m.RecordRunDuration(OriginAPI, time.Millisecond)
	m.RecordRunDuration(OriginCLI, time.Millisecond)

	if got := testutil.CollectAndCount(m.runDuration); got != 3 {
		t.Errorf("expected 3 series (api, cli, other), got %d", got)
	}
}
