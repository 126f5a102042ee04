package filter

import (
	"testing"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

func records() []domain.TransactionRecord {
	return []domain.TransactionRecord{
		{TransactionID: "t1", Country: "in", Channel: "email", Amount: 350, Hour: 2, NumItems: 5},
		{TransactionID: "t2", Country: "ca", Channel: "app", Amount: 30, Hour: 14, NumItems: 1},
		{TransactionID: "t3", Country: "in", Channel: "web", Amount: 120, Hour: 20, CouponApplied: true},
		{TransactionID: "t4", Country: "us", Channel: "ads", Amount: 400, Hour: 4, IsFraud: true},
	}
}

func TestCompile(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		f, err := Compile(`country == "in" && amount > 300.0`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if f.Expression() != `country == "in" && amount > 300.0` {
			t.Errorf("unexpected expression %q", f.Expression())
		}
	})

	t.Run("Syntax", func(t *testing.T) {
		if _, err := Compile("this is not valid CEL !!!"); err == nil {
			t.Error("expected error for invalid CEL expression")
		}
	})

	t.Run("NonBool", func(t *testing.T) {
		if _, err := Compile("amount * 2.0"); err == nil {
			t.Error("expected error for non-bool expression")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		if _, err := Compile("velocity_count > 3"); err == nil {
			t.Error("expected error for undeclared variable")
		}
	})
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"CountryAndAmount", `country == "in" && amount > 300.0`, []string{"t1"}},
		{"ChannelList", `channel in ["email", "ads"]`, []string{"t1", "t4"}},
		{"NightHours", `hour <= 5`, []string{"t1", "t4"}},
		{"Coupon", `coupon_applied`, []string{"t3"}},
		{"Fraud", `is_fraud`, []string{"t4"}},
		{"Items", `num_items > 4`, []string{"t1"}},
		{"None", `false`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			got, err := f.Apply(records())
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d matches, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].TransactionID != id {
					t.Errorf("position %d: expected %s, got %s", i, id, got[i].TransactionID)
				}
			}
		})
	}
}

func TestNilFilterMatchesAll(t *testing.T) {
	var f *Filter
	got, err := f.Apply(records())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("expected all 4 records, got %d", len(got))
	}
}
