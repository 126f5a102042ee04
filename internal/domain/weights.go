package domain

import (
	"fmt"
	"maps"
)

// AmountBand awards Points when the amount is strictly greater than Above.
type AmountBand struct {
	Above  float64 `json:"above"`
	Points int     `json:"points"`
}

// HourBand awards Points for hours in the inclusive range [From, To].
type HourBand struct {
	From   int `json:"from"`
	To     int `json:"to"`
	Points int `json:"points"`
}

// ItemBand awards Points when the item count is strictly greater than Above.
type ItemBand struct {
	Above  int `json:"above"`
	Points int `json:"points"`
}

// WeightSpec is the plain, copyable description of a scoring policy.
// It is only used to build a WeightTable and to display one.
type WeightSpec struct {
	Country        map[string]int `json:"country"`
	CountryDefault int            `json:"countryDefault"`
	Channel        map[string]int `json:"channel"`
	ChannelDefault int            `json:"channelDefault"`
	Device         map[string]int `json:"device"`
	DeviceDefault  int            `json:"deviceDefault"`

	// Evaluated top-down, first match wins. AmountFloor applies when none match.
	AmountBands []AmountBand `json:"amountBands"`
	AmountFloor int          `json:"amountFloor"`

	// Must partition [0,23] with no gap or overlap.
	HourBands []HourBand `json:"hourBands"`

	ItemBands []ItemBand `json:"itemBands"`
	ItemFloor int        `json:"itemFloor"`

	// Added to the running total when a coupon was applied.
	CouponAdjustment int `json:"couponAdjustment"`

	MaxScore int `json:"maxScore"`
}

// WeightTable is the immutable scoring policy. Build it once with
// DefaultWeights or NewWeightTable and pass it to the scorer.
type WeightTable struct {
	spec WeightSpec
	// hour -> points, indexed 0..23
	hours [24]int
}

// DefaultWeights returns the production risk policy.
func DefaultWeights() *WeightTable {
	t, err := NewWeightTable(WeightSpec{
		Country: map[string]int{
			"in": 25,
			"br": 20,
			"jp": 18,
			"de": 18,
			"au": 17,
			"uk": 17,
			"us": 15,
			"es": 14,
			"fr": 13,
			"ca": 11,
		},
		CountryDefault: 12,
		Channel: map[string]int{
			"email":  20,
			"ads":    19,
			"social": 16,
			"web":    16,
			"app":    15,
		},
		ChannelDefault: 16,
		Device: map[string]int{
			"mobile":  15,
			"desktop": 13,
			"tablet":  10,
		},
		DeviceDefault: 13,
		AmountBands: []AmountBand{
			{Above: 300, Points: 20},
			{Above: 200, Points: 16},
			{Above: 150, Points: 12},
			{Above: 100, Points: 8},
			{Above: 50, Points: 4},
		},
		AmountFloor: 2,
		HourBands: []HourBand{
			{From: 0, To: 5, Points: 10},
			{From: 6, To: 11, Points: 3},
			{From: 12, To: 17, Points: 2},
			{From: 18, To: 23, Points: 5},
		},
		ItemBands: []ItemBand{
			{Above: 4, Points: 6},
			{Above: 2, Points: 3},
		},
		ItemFloor:        1,
		CouponAdjustment: -2,
		MaxScore:         100,
	})
	if err != nil {
		panic(fmt.Sprintf("default weight table is invalid: %v", err))
	}
	return t
}

// NewWeightTable validates spec and returns a table holding private copies
// of its maps and slices.
func NewWeightTable(spec WeightSpec) (*WeightTable, error) {
	if spec.MaxScore <= 0 {
		return nil, fmt.Errorf("maxScore must be positive, got %d", spec.MaxScore)
	}

	t := &WeightTable{spec: copySpec(spec)}

	for h := range t.hours {
		t.hours[h] = -1
	}
	for _, b := range spec.HourBands {
		if b.From < 0 || b.To > 23 || b.From > b.To {
			return nil, fmt.Errorf("hour band [%d,%d] outside [0,23]", b.From, b.To)
		}
		for h := b.From; h <= b.To; h++ {
			if t.hours[h] != -1 {
				return nil, fmt.Errorf("hour %d covered by more than one band", h)
			}
			t.hours[h] = b.Points
		}
	}
	for h, p := range t.hours {
		if p == -1 {
			return nil, fmt.Errorf("hour %d not covered by any band", h)
		}
	}

	return t, nil
}

// CountryPoints returns the country contribution, or the default for unknown codes.
func (t *WeightTable) CountryPoints(country string) int {
	if p, ok := t.spec.Country[country]; ok {
		return p
	}
	return t.spec.CountryDefault
}

// ChannelPoints returns the channel contribution, or the default for unknown channels.
func (t *WeightTable) ChannelPoints(channel string) int {
	if p, ok := t.spec.Channel[channel]; ok {
		return p
	}
	return t.spec.ChannelDefault
}

// DevicePoints returns the device contribution, or the default for unknown devices.
func (t *WeightTable) DevicePoints(device string) int {
	if p, ok := t.spec.Device[device]; ok {
		return p
	}
	return t.spec.DeviceDefault
}

// AmountPoints returns the amount contribution. A threshold value falls
// into the lower band.
func (t *WeightTable) AmountPoints(amount float64) int {
	for _, b := range t.spec.AmountBands {
		if amount > b.Above {
			return b.Points
		}
	}
	return t.spec.AmountFloor
}

// HourPoints returns the hour contribution and false when hour is outside [0,23].
func (t *WeightTable) HourPoints(hour int) (int, bool) {
	if hour < 0 || hour >= len(t.hours) {
		return 0, false
	}
	return t.hours[hour], true
}

// ItemPoints returns the item-count contribution.
func (t *WeightTable) ItemPoints(numItems int) int {
	for _, b := range t.spec.ItemBands {
		if numItems > b.Above {
			return b.Points
		}
	}
	return t.spec.ItemFloor
}

// CouponAdjustment returns the (non-positive) adjustment applied for coupons.
func (t *WeightTable) CouponAdjustment() int {
	return t.spec.CouponAdjustment
}

// MaxScore returns the cap applied to the final score.
func (t *WeightTable) MaxScore() int {
	return t.spec.MaxScore
}

// Snapshot returns a copy of the policy, safe to serialize or modify.
func (t *WeightTable) Snapshot() WeightSpec {
	return copySpec(t.spec)
}

func copySpec(s WeightSpec) WeightSpec {
	out := s
	out.Country = maps.Clone(s.Country)
	out.Channel = maps.Clone(s.Channel)
	out.Device = maps.Clone(s.Device)
	out.AmountBands = append([]AmountBand(nil), s.AmountBands...)
	out.HourBands = append([]HourBand(nil), s.HourBands...)
	out.ItemBands = append([]ItemBand(nil), s.ItemBands...)
	return out
}
