// Package evaluator aggregates scored transactions into summary statistics.
//
// Every function is a pure reduction over its input; none of them mutate
// the scored slice.
package evaluator

import (
	"sort"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// Options controls Summarize.
type Options struct {
	// TopN is the number of highest-risk records to include. <= 0 selects domain.DefaultTopN.
	TopN int
}

// Summarize computes every statistic over scored.
func Summarize(scored []domain.ScoredTransaction, opts Options) domain.EvaluationSummary {
	return domain.EvaluationSummary{
		Total:        len(scored),
		Distribution: Distribution(scored),
		Scores:       ScoreStats(scored),
		Detection:    Detection(scored),
		Top:          TopN(scored, opts.TopN),
		CrossTab:     CrossTab(scored),
	}
}

// Distribution returns count and percentage per category in HIGH, MEDIUM, LOW order.
func Distribution(scored []domain.ScoredTransaction) []domain.CategoryCount {
	counts := countByCategory(scored)

	out := make([]domain.CategoryCount, 0, len(domain.RiskCategories))
	for _, cat := range domain.RiskCategories {
		out = append(out, domain.CategoryCount{
			Category: cat,
			Count:    counts[cat],
			Percent:  percent(counts[cat], len(scored)),
		})
	}
	return out
}

// ScoreStats returns mean, median, min and max of risk_score.
// An empty collection yields the zero value.
func ScoreStats(scored []domain.ScoredTransaction) domain.ScoreStats {
	n := len(scored)
	if n == 0 {
		return domain.ScoreStats{}
	}

	scores := make([]int, n)
	sum := 0
	for i, st := range scored {
		scores[i] = st.RiskScore
		sum += st.RiskScore
	}
	sort.Ints(scores)

	median := float64(scores[n/2])
	if n%2 == 0 {
		median = float64(scores[n/2-1]+scores[n/2]) / 2
	}

	return domain.ScoreStats{
		Count:  n,
		Mean:   float64(sum) / float64(n),
		Median: median,
		Min:    scores[0],
		Max:    scores[n-1],
	}
}

// Detection measures the HIGH category against the fraud label.
// Precision is only set when at least one record is HIGH; recall additionally
// requires at least one fraudulent record.
func Detection(scored []domain.ScoredTransaction) domain.DetectionStats {
	var d domain.DetectionStats
	for _, st := range scored {
		high := st.RiskCategory == domain.RiskHigh
		if high {
			d.TotalHigh++
		}
		if st.IsFraud {
			d.TotalFraud++
			if high {
				d.FraudInHigh++
			}
		}
	}

	if d.TotalHigh == 0 {
		return d
	}

	precision := float64(d.FraudInHigh) / float64(d.TotalHigh)
	d.Precision = &precision

	if d.TotalFraud > 0 {
		recall := float64(d.FraudInHigh) / float64(d.TotalFraud)
		d.Recall = &recall
	}
	return d
}

// CrossTab counts categories per fraud flag, with row-normalized percentages.
func CrossTab(scored []domain.ScoredTransaction) domain.CrossTab {
	fraud := newRow(true)
	notFraud := newRow(false)

	for _, st := range scored {
		row := &notFraud
		if st.IsFraud {
			row = &fraud
		}
		row.Total++
		row.Counts[st.RiskCategory]++
	}

	for _, row := range []*domain.CrossTabRow{&fraud, &notFraud} {
		for _, cat := range domain.RiskCategories {
			row.Percents[cat] = percent(row.Counts[cat], row.Total)
		}
	}

	return domain.CrossTab{Fraud: fraud, NotFraud: notFraud}
}

func newRow(isFraud bool) domain.CrossTabRow {
	row := domain.CrossTabRow{
		IsFraud:  isFraud,
		Counts:   make(map[domain.RiskCategory]int, len(domain.RiskCategories)),
		Percents: make(map[domain.RiskCategory]float64, len(domain.RiskCategories)),
	}
	for _, cat := range domain.RiskCategories {
		row.Counts[cat] = 0
	}
	return row
}

func countByCategory(scored []domain.ScoredTransaction) map[domain.RiskCategory]int {
	counts := make(map[domain.RiskCategory]int, len(domain.RiskCategories))
	for _, st := range scored {
		counts[st.RiskCategory]++
	}
	return counts
}

// percent returns count/total*100, or 0 when total is 0.
func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
