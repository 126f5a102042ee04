package scoring

import (
	"errors"
	"testing"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// baseRecord has known contributions: us 15 + web 16 + desktop 13 + amount 2 + hour 2 + items 1 = 49.
func baseRecord() domain.TransactionRecord {
	return domain.TransactionRecord{
		TransactionID: "tx-base",
		Country:       "us",
		Channel:       "web",
		Device:        "desktop",
		Amount:        10,
		Hour:          14,
		NumItems:      1,
	}
}

func TestScoreEndToEndExamples(t *testing.T) {
	scorer := NewScorer(nil)

	tests := []struct {
		name     string
		rec      domain.TransactionRecord
		want     int
		category domain.RiskCategory
	}{
		{
			name: "LowRiskCanadianTablet",
			rec: domain.TransactionRecord{
				Country: "ca", Channel: "app", Device: "tablet",
				Amount: 30, Hour: 14, NumItems: 1,
			},
			want:     41,
			category: domain.RiskLow,
		},
		{
			name: "HighRiskIndianEmailNight",
			rec: domain.TransactionRecord{
				Country: "in", Channel: "email", Device: "mobile",
				Amount: 350, Hour: 2, NumItems: 5, CouponApplied: true,
			},
			want:     94,
			category: domain.RiskHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scorer.ScoreRecord(tt.rec)
			if err != nil {
				t.Fatalf("ScoreRecord failed: %v", err)
			}
			if got.RiskScore != tt.want {
				t.Errorf("expected score %d, got %d", tt.want, got.RiskScore)
			}
			if got.RiskCategory != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, got.RiskCategory)
			}
		})
	}
}

func TestExplainContributions(t *testing.T) {
	scorer := NewScorer(nil)

	rec := domain.TransactionRecord{
		Country: "ca", Channel: "app", Device: "tablet",
		Amount: 30, Hour: 14, NumItems: 1,
	}
	c, err := scorer.Explain(rec)
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}

	want := domain.Contributions{Country: 11, Channel: 15, Device: 10, Amount: 2, Hour: 2, Items: 1}
	if c != want {
		t.Errorf("expected %+v, got %+v", want, c)
	}
	if c.Total() != 41 {
		t.Errorf("expected total 41, got %d", c.Total())
	}
}

func TestAmountBandBoundaries(t *testing.T) {
	scorer := NewScorer(nil)

	tests := []struct {
		amount float64
		points int
	}{
		{0, 2},
		{50, 2},
		{50.01, 4},
		{100, 4},
		{101, 8},
		{150, 8},
		{151, 12},
		{200, 12},
		{201, 16},
		{300, 16},
		{301, 20},
		{10000, 20},
	}

	for _, tt := range tests {
		rec := baseRecord()
		rec.Amount = tt.amount
		c, err := scorer.Explain(rec)
		if err != nil {
			t.Fatalf("Explain(amount=%v) failed: %v", tt.amount, err)
		}
		if c.Amount != tt.points {
			t.Errorf("amount %v: expected %d points, got %d", tt.amount, tt.points, c.Amount)
		}
	}
}

func TestHourBandBoundaries(t *testing.T) {
	scorer := NewScorer(nil)

	want := map[int]int{0: 10, 5: 10, 6: 3, 11: 3, 12: 2, 17: 2, 18: 5, 23: 5}
	for hour, points := range want {
		rec := baseRecord()
		rec.Hour = hour
		c, err := scorer.Explain(rec)
		if err != nil {
			t.Fatalf("Explain(hour=%d) failed: %v", hour, err)
		}
		if c.Hour != points {
			t.Errorf("hour %d: expected %d points, got %d", hour, points, c.Hour)
		}
	}
}

func TestItemBands(t *testing.T) {
	scorer := NewScorer(nil)

	want := map[int]int{0: 1, 2: 1, 3: 3, 4: 3, 5: 6, 40: 6}
	for items, points := range want {
		rec := baseRecord()
		rec.NumItems = items
		c, _ := scorer.Explain(rec)
		if c.Items != points {
			t.Errorf("num_items %d: expected %d points, got %d", items, points, c.Items)
		}
	}
}

func TestUnknownCategoricalValuesUseDefaults(t *testing.T) {
	scorer := NewScorer(nil)

	for _, hour := range []int{0, 9, 23} {
		rec := baseRecord()
		rec.Country = "zz"
		rec.Channel = "fax"
		rec.Device = "watch"
		rec.Hour = hour

		c, err := scorer.Explain(rec)
		if err != nil {
			t.Fatalf("unknown values must not fail: %v", err)
		}
		if c.Country != 12 {
			t.Errorf("expected default country points 12, got %d", c.Country)
		}
		if c.Channel != 16 {
			t.Errorf("expected default channel points 16, got %d", c.Channel)
		}
		if c.Device != 13 {
			t.Errorf("expected default device points 13, got %d", c.Device)
		}
	}

	// Lookups are exact: upper-case codes are unknown.
	rec := baseRecord()
	rec.Country = "IN"
	c, _ := scorer.Explain(rec)
	if c.Country != 12 {
		t.Errorf("expected exact-match lookup to miss for IN, got %d", c.Country)
	}
}

func TestCouponSubtractsTwo(t *testing.T) {
	scorer := NewScorer(nil)

	rec := baseRecord()
	without, _ := scorer.Score(rec)
	rec.CouponApplied = true
	with, _ := scorer.Score(rec)

	if without-with != 2 {
		t.Errorf("expected coupon to subtract 2, got %d -> %d", without, with)
	}
}

func TestScoreIsClamped(t *testing.T) {
	// Inflated table so the unclamped total exceeds 100 and can go below 0.
	snap := domain.DefaultWeights().Snapshot()
	snap.Country["in"] = 90
	snap.Country["xx"] = -80
	weights, err := domain.NewWeightTable(snap)
	if err != nil {
		t.Fatalf("NewWeightTable failed: %v", err)
	}
	scorer := NewScorer(weights)

	rec := baseRecord()
	rec.Country = "in"
	if got, _ := scorer.Score(rec); got != 100 {
		t.Errorf("expected score capped at 100, got %d", got)
	}

	rec.Country = "xx"
	rec.CouponApplied = true
	if got, _ := scorer.Score(rec); got != 0 {
		t.Errorf("expected score floored at 0, got %d", got)
	}
}

func TestAssess(t *testing.T) {
	scorer := NewScorer(nil)

	rec := baseRecord()
	rec.Country = "in"
	rec.Channel = "email"
	rec.CouponApplied = true

	st, contrib, err := scorer.Assess(rec)
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if st.RiskScore != contrib.Total() {
		t.Errorf("score %d does not match contributions total %d", st.RiskScore, contrib.Total())
	}
	if contrib.Coupon != -2 {
		t.Errorf("expected coupon contribution -2, got %d", contrib.Coupon)
	}
	want, _ := scorer.ScoreRecord(rec)
	if st != want {
		t.Errorf("Assess %+v differs from ScoreRecord %+v", st, want)
	}

	rec.Hour = 24
	if _, _, err := scorer.Assess(rec); !errors.Is(err, domain.ErrOutOfDomain) {
		t.Errorf("expected ErrOutOfDomain, got %v", err)
	}
}

func TestScoreRangeOverDomain(t *testing.T) {
	scorer := NewScorer(nil)

	countries := []string{"in", "ca", "zz"}
	channels := []string{"email", "app", "??"}
	devices := []string{"mobile", "tablet", ""}
	amounts := []float64{0, 75, 301}

	for _, country := range countries {
		for _, channel := range channels {
			for _, device := range devices {
				for _, amount := range amounts {
					for hour := 0; hour < 24; hour++ {
						for _, coupon := range []bool{false, true} {
							rec := domain.TransactionRecord{
								Country: country, Channel: channel, Device: device,
								Amount: amount, Hour: hour, NumItems: hour % 7, CouponApplied: coupon,
							}
							s, err := scorer.Score(rec)
							if err != nil {
								t.Fatalf("Score(%+v) failed: %v", rec, err)
							}
							if s < 0 || s > 100 {
								t.Fatalf("score %d out of [0,100] for %+v", s, rec)
							}
						}
					}
				}
			}
		}
	}
}

func TestOutOfDomainRejected(t *testing.T) {
	scorer := NewScorer(nil)

	tests := []struct {
		name   string
		mutate func(*domain.TransactionRecord)
	}{
		{"HourNegative", func(r *domain.TransactionRecord) { r.Hour = -1 }},
		{"Hour24", func(r *domain.TransactionRecord) { r.Hour = 24 }},
		{"NegativeAmount", func(r *domain.TransactionRecord) { r.Amount = -0.01 }},
		{"NegativeItems", func(r *domain.TransactionRecord) { r.NumItems = -3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := baseRecord()
			tt.mutate(&rec)
			_, err := scorer.Score(rec)
			if !errors.Is(err, domain.ErrOutOfDomain) {
				t.Errorf("expected ErrOutOfDomain, got %v", err)
			}
		})
	}
}

func TestCategorizeBoundaries(t *testing.T) {
	for s := 0; s <= 100; s++ {
		got := Categorize(s)
		var want domain.RiskCategory
		switch {
		case s >= 70:
			want = domain.RiskHigh
		case s >= 50:
			want = domain.RiskMedium
		default:
			want = domain.RiskLow
		}
		if got != want {
			t.Errorf("Categorize(%d) = %s, expected %s", s, got, want)
		}
	}

	edges := map[int]domain.RiskCategory{
		49: domain.RiskLow,
		50: domain.RiskMedium,
		69: domain.RiskMedium,
		70: domain.RiskHigh,
	}
	for s, want := range edges {
		if got := Categorize(s); got != want {
			t.Errorf("Categorize(%d) = %s, expected %s", s, got, want)
		}
	}
}
