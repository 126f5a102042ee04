package domain

import (
	"errors"
	"fmt"
)

// ErrOutOfDomain is returned when a record field lies outside the range
// the weight table is defined for (e.g. hour 24, negative amount).
var ErrOutOfDomain = errors.New("field out of domain")

// TransactionRecord is one input row to be scored.
type TransactionRecord struct {
	TransactionID string  `json:"transactionId"`
	Country       string  `json:"country"`
	Channel       string  `json:"channel"`
	Device        string  `json:"device"`
	Amount        float64 `json:"amount"`
	Hour          int     `json:"hour"`
	NumItems      int     `json:"numItems"`
	CouponApplied bool    `json:"couponApplied"`

	// Ground truth, used only for evaluation.
	IsFraud bool `json:"isFraud"`
}

// RiskCategory is the coarse bucket derived from a risk score.
type RiskCategory string

const (
	RiskHigh   RiskCategory = "HIGH"
	RiskMedium RiskCategory = "MEDIUM"
	RiskLow    RiskCategory = "LOW"
)

// RiskCategories lists every category in reporting order.
var RiskCategories = []RiskCategory{RiskHigh, RiskMedium, RiskLow}

// ParseRiskCategory reconstructs a RiskCategory from its string form.
func ParseRiskCategory(s string) (RiskCategory, error) {
	switch RiskCategory(s) {
	case RiskHigh, RiskMedium, RiskLow:
		return RiskCategory(s), nil
	default:
		return "", fmt.Errorf("invalid risk category: %q", s)
	}
}

// ScoredTransaction is a TransactionRecord with its score and category attached.
type ScoredTransaction struct {
	TransactionRecord
	RiskScore    int          `json:"riskScore"`
	RiskCategory RiskCategory `json:"riskCategory"`
}

// Contributions is the per-factor breakdown of a risk score.
type Contributions struct {
	Country int `json:"country"`
	Channel int `json:"channel"`
	Device  int `json:"device"`
	Amount  int `json:"amount"`
	Hour    int `json:"hour"`
	Items   int `json:"items"`
	Coupon  int `json:"coupon"` // 0 or negative
}

// Total returns the unclamped sum of all contributions.
func (c Contributions) Total() int {
	return c.Country + c.Channel + c.Device + c.Amount + c.Hour + c.Items + c.Coupon
}
