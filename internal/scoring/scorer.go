// Package scoring computes heuristic risk scores for transaction records.
package scoring

import (
	"fmt"
	"math"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// Scorer maps a transaction record to a risk score using a fixed weight table.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	weights *domain.WeightTable
}

// NewScorer creates a scorer for the given weight table.
// A nil table selects domain.DefaultWeights.
func NewScorer(weights *domain.WeightTable) *Scorer {
	if weights == nil {
		weights = domain.DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Weights returns the table the scorer was built with.
func (s *Scorer) Weights() *domain.WeightTable {
	return s.weights
}

// Explain returns the per-factor contributions for a record.
func (s *Scorer) Explain(rec domain.TransactionRecord) (domain.Contributions, error) {
	if err := Validate(rec); err != nil {
		return domain.Contributions{}, err
	}

	// Validate guarantees the hour is covered.
	hour, _ := s.weights.HourPoints(rec.Hour)

	c := domain.Contributions{
		Country: s.weights.CountryPoints(rec.Country),
		Channel: s.weights.ChannelPoints(rec.Channel),
		Device:  s.weights.DevicePoints(rec.Device),
		Amount:  s.weights.AmountPoints(rec.Amount),
		Hour:    hour,
		Items:   s.weights.ItemPoints(rec.NumItems),
	}
	if rec.CouponApplied {
		c.Coupon = s.weights.CouponAdjustment()
	}
	return c, nil
}

// Score returns the risk score for a record, clamped to [0, MaxScore].
func (s *Scorer) Score(rec domain.TransactionRecord) (int, error) {
	c, err := s.Explain(rec)
	if err != nil {
		return 0, err
	}
	return s.clamp(c.Total()), nil
}

// ScoreRecord scores and categorizes a single record.
func (s *Scorer) ScoreRecord(rec domain.TransactionRecord) (domain.ScoredTransaction, error) {
	st, _, err := s.Assess(rec)
	return st, err
}

// Assess scores and categorizes rec and returns the contributions the
// score was built from.
func (s *Scorer) Assess(rec domain.TransactionRecord) (domain.ScoredTransaction, domain.Contributions, error) {
	c, err := s.Explain(rec)
	if err != nil {
		return domain.ScoredTransaction{}, domain.Contributions{}, err
	}
	score := s.clamp(c.Total())
	return domain.ScoredTransaction{
		TransactionRecord: rec,
		RiskScore:         score,
		RiskCategory:      Categorize(score),
	}, c, nil
}

// clamp caps the total at MaxScore and floors it at 0.
func (s *Scorer) clamp(total int) int {
	return max(0, min(total, s.weights.MaxScore()))
}

// Validate rejects records whose numeric fields fall outside the domain the
// weight table is defined for. Categorical fields are never rejected.
func Validate(rec domain.TransactionRecord) error {
	switch {
	case rec.Hour < 0 || rec.Hour > 23:
		return fmt.Errorf("%w: hour %d not in [0,23]", domain.ErrOutOfDomain, rec.Hour)
	case math.IsNaN(rec.Amount) || math.IsInf(rec.Amount, 0):
		return fmt.Errorf("%w: amount %v is not finite", domain.ErrOutOfDomain, rec.Amount)
	case rec.Amount < 0:
		return fmt.Errorf("%w: amount %.2f is negative", domain.ErrOutOfDomain, rec.Amount)
	case rec.NumItems < 0:
		return fmt.Errorf("%w: num_items %d is negative", domain.ErrOutOfDomain, rec.NumItems)
	}
	return nil
}
