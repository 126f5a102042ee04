package table

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

func fixture() []domain.ScoredTransaction {
	return []domain.ScoredTransaction{
		{
			TransactionRecord: domain.TransactionRecord{
				TransactionID: "t1", Country: "ca", Channel: "app", Device: "tablet",
				Amount: 30, Hour: 14, NumItems: 1,
			},
			RiskScore:    41,
			RiskCategory: domain.RiskLow,
		},
		{
			TransactionRecord: domain.TransactionRecord{
				TransactionID: "t2", Country: "in", Channel: "email", Device: "mobile",
				Amount: 350.25, Hour: 2, NumItems: 5, CouponApplied: true, IsFraud: true,
			},
			RiskScore:    94,
			RiskCategory: domain.RiskHigh,
		},
		{
			TransactionRecord: domain.TransactionRecord{
				TransactionID: "t,3", Country: "zz", Channel: "web", Device: "desktop",
				Amount: 120, Hour: 20, NumItems: 3,
			},
			RiskScore:    55,
			RiskCategory: domain.RiskMedium,
		},
	}
}

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, fixture()[:1]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := "transaction_id,country,channel,device,amount,num_items,coupon_applied,is_fraud,risk_score,risk_category"
	if lines[0] != want {
		t.Errorf("unexpected header:\n got %s\nwant %s", lines[0], want)
	}
	if lines[1] != "t1,ca,app,tablet,30,1,False,False,41,LOW" {
		t.Errorf("unexpected row: %s", lines[1])
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "tables", "transaction_risk_scores.csv")

	in := fixture()
	if err := WriteFile(path, in); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	out, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d rows, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i].RiskScore != in[i].RiskScore || out[i].RiskCategory != in[i].RiskCategory {
			t.Errorf("row %d: expected %d/%s, got %d/%s", i,
				in[i].RiskScore, in[i].RiskCategory, out[i].RiskScore, out[i].RiskCategory)
		}
		if out[i].TransactionID != in[i].TransactionID || out[i].Amount != in[i].Amount {
			t.Errorf("row %d: identity fields differ: %+v", i, out[i])
		}
		if out[i].CouponApplied != in[i].CouponApplied || out[i].IsFraud != in[i].IsFraud {
			t.Errorf("row %d: flags differ: %+v", i, out[i])
		}
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the table in the directory, found %d entries", len(entries))
	}
}

func TestWriteFileFailure(t *testing.T) {
	// A regular file where a parent directory is expected.
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to create blocker: %v", err)
	}

	err := WriteFile(filepath.Join(blocker, "out.csv"), fixture())
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Op != "mkdir" {
		t.Errorf("expected mkdir op, got %s", perr.Op)
	}
}

func TestReadRejectsBadHeader(t *testing.T) {
	_, err := Read(strings.NewReader("a,b,c,d,e,f,g,h,i,j\n"))
	if err == nil {
		t.Error("expected error for unexpected header")
	}
}

func TestReadRejectsBadCategory(t *testing.T) {
	in := strings.Join(Header, ",") + "\nt1,ca,app,tablet,30,1,False,False,41,SEVERE\n"
	if _, err := Read(strings.NewReader(in)); err == nil {
		t.Error("expected error for invalid category")
	}
}
