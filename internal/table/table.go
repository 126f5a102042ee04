// Package table persists scored transactions as a delimited text table.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opensource-finance/osprey-riskscore/internal/dataset"
	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// Header is the exact column layout of the persisted table.
var Header = []string{
	"transaction_id",
	"country",
	"channel",
	"device",
	"amount",
	"num_items",
	"coupon_applied",
	"is_fraud",
	"risk_score",
	"risk_category",
}

// PersistenceError reports a failure writing or reading the table.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("risk table %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// WriteFile writes scored to path, creating parent directories. The table is
// written to a temporary file in the same directory and renamed into place,
// so a failed write never leaves a partial table at path.
func WriteFile(path string, scored []domain.ScoredTransaction) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Path: path, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Path: path, Op: "create", Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := Write(tmp, scored); err != nil {
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &PersistenceError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Path: path, Op: "close", Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return &PersistenceError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// Write encodes scored as CSV with a header row.
func Write(w io.Writer, scored []domain.ScoredTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}

	row := make([]string, len(Header))
	for _, st := range scored {
		row[0] = st.TransactionID
		row[1] = st.Country
		row[2] = st.Channel
		row[3] = st.Device
		row[4] = strconv.FormatFloat(st.Amount, 'f', -1, 64)
		row[5] = strconv.Itoa(st.NumItems)
		row[6] = formatBool(st.CouponApplied)
		row[7] = formatBool(st.IsFraud)
		row[8] = strconv.Itoa(st.RiskScore)
		row[9] = string(st.RiskCategory)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadFile reads a table written by WriteFile. The hour column is not
// persisted, so Hour is zero in the returned records.
func ReadFile(path string) ([]domain.ScoredTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Path: path, Op: "open", Err: err}
	}
	defer file.Close()

	scored, err := Read(file)
	if err != nil {
		return nil, &PersistenceError{Path: path, Op: "read", Err: err}
	}
	return scored, nil
}

// Read decodes a table from CSV.
func Read(r io.Reader) ([]domain.ScoredTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var out []domain.ScoredTransaction
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		st, err := parseRow(row)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func parseRow(row []string) (domain.ScoredTransaction, error) {
	var st domain.ScoredTransaction
	var err error

	st.TransactionID = row[0]
	st.Country = row[1]
	st.Channel = row[2]
	st.Device = row[3]
	if st.Amount, err = strconv.ParseFloat(row[4], 64); err != nil {
		return st, fmt.Errorf("invalid amount: %w", err)
	}
	if st.NumItems, err = strconv.Atoi(row[5]); err != nil {
		return st, fmt.Errorf("invalid num_items: %w", err)
	}
	if st.CouponApplied, err = dataset.ParseBool(row[6]); err != nil {
		return st, fmt.Errorf("invalid coupon_applied: %w", err)
	}
	if st.IsFraud, err = dataset.ParseBool(row[7]); err != nil {
		return st, fmt.Errorf("invalid is_fraud: %w", err)
	}
	if st.RiskScore, err = strconv.Atoi(row[8]); err != nil {
		return st, fmt.Errorf("invalid risk_score: %w", err)
	}
	if st.RiskCategory, err = domain.ParseRiskCategory(row[9]); err != nil {
		return st, err
	}
	return st, nil
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
