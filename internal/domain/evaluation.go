package domain

import (
	"time"
)

// EvaluationSummary is the aggregate view over a scored collection.
type EvaluationSummary struct {
	Total        int                 `json:"total"`
	Distribution []CategoryCount     `json:"distribution"`
	Scores       ScoreStats          `json:"scores"`
	Detection    DetectionStats      `json:"detection"`
	Top          []ScoredTransaction `json:"top"`
	CrossTab     CrossTab            `json:"crossTab"`
}

// CategoryCount is the number and share of records in one category.
type CategoryCount struct {
	Category RiskCategory `json:"category"`
	Count    int          `json:"count"`
	Percent  float64      `json:"percent"`
}

// ScoreStats summarizes risk_score over a collection.
type ScoreStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
}

// DetectionStats measures the HIGH category against the fraud label.
// Precision is nil when no record is HIGH; Recall is nil when no record is
// HIGH or no record is fraudulent.
type DetectionStats struct {
	FraudInHigh int      `json:"fraudInHigh"`
	TotalHigh   int      `json:"totalHigh"`
	TotalFraud  int      `json:"totalFraud"`
	Precision   *float64 `json:"precision,omitempty"`
	Recall      *float64 `json:"recall,omitempty"`
}

// CrossTab groups categories by the ground-truth fraud flag.
type CrossTab struct {
	Fraud    CrossTabRow `json:"fraud"`
	NotFraud CrossTabRow `json:"notFraud"`
}

// CrossTabRow holds counts and row-normalized percentages per category.
type CrossTabRow struct {
	IsFraud  bool                     `json:"isFraud"`
	Total    int                      `json:"total"`
	Counts   map[RiskCategory]int     `json:"counts"`
	Percents map[RiskCategory]float64 `json:"percents"`
}

// Run is a persisted scoring batch.
type Run struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenantId"`
	Source    string             `json:"source"`
	Filter    string             `json:"filter,omitempty"`
	Total     int                `json:"total"`
	Rejected  int                `json:"rejected"`
	CreatedAt time.Time          `json:"createdAt"`
	Summary   *EvaluationSummary `json:"summary,omitempty"`
}
