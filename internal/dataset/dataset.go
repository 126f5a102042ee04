// Package dataset loads transaction records from delimited text files.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// Column names, matched case-insensitively against the header row.
const (
	ColTransactionID = "transaction_id"
	ColCountry       = "country"
	ColChannel       = "channel"
	ColDevice        = "device"
	ColAmount        = "amount"
	ColHour          = "hour"
	ColNumItems      = "num_items"
	ColCouponApplied = "coupon_applied"
	ColIsFraud       = "is_fraud"
)

var requiredColumns = []string{
	ColTransactionID, ColCountry, ColChannel, ColDevice,
	ColAmount, ColHour, ColNumItems, ColCouponApplied, ColIsFraud,
}

// RowError reports a row that could not be parsed. Line is the 1-based file
// line the row starts on, so quoted multi-line fields do not shift it.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Result holds the records that parsed and the rows that were skipped.
type Result struct {
	Records []domain.TransactionRecord
	Skipped []*RowError
}

// LoadFile reads records from a CSV file.
func LoadFile(path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	return Load(file)
}

// Load reads records from CSV. Malformed rows are skipped and reported;
// a missing header or required column is an error.
func Load(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	result := &Result{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			result.Skipped = append(result.Skipped, &RowError{Line: line, Err: err})
			continue
		}

		line, _ := reader.FieldPos(0)
		rec, err := parseRow(row, colIndex)
		if err != nil {
			result.Skipped = append(result.Skipped, &RowError{Line: line, Err: err})
			continue
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

func parseRow(row []string, colIndex map[string]int) (domain.TransactionRecord, error) {
	field := func(name string) (string, error) {
		i := colIndex[name]
		if i >= len(row) {
			return "", fmt.Errorf("missing value for %s", name)
		}
		return strings.TrimSpace(row[i]), nil
	}

	var rec domain.TransactionRecord
	var err error
	var v string

	if rec.TransactionID, err = field(ColTransactionID); err != nil {
		return rec, err
	}
	if rec.Country, err = field(ColCountry); err != nil {
		return rec, err
	}
	if rec.Channel, err = field(ColChannel); err != nil {
		return rec, err
	}
	if rec.Device, err = field(ColDevice); err != nil {
		return rec, err
	}

	if v, err = field(ColAmount); err != nil {
		return rec, err
	}
	if rec.Amount, err = strconv.ParseFloat(v, 64); err != nil {
		return rec, fmt.Errorf("invalid %s %q: %w", ColAmount, v, err)
	}

	if v, err = field(ColHour); err != nil {
		return rec, err
	}
	if rec.Hour, err = parseInt(v); err != nil {
		return rec, fmt.Errorf("invalid %s %q: %w", ColHour, v, err)
	}

	if v, err = field(ColNumItems); err != nil {
		return rec, err
	}
	if rec.NumItems, err = parseInt(v); err != nil {
		return rec, fmt.Errorf("invalid %s %q: %w", ColNumItems, v, err)
	}

	if v, err = field(ColCouponApplied); err != nil {
		return rec, err
	}
	if rec.CouponApplied, err = ParseBool(v); err != nil {
		return rec, fmt.Errorf("invalid %s: %w", ColCouponApplied, err)
	}

	if v, err = field(ColIsFraud); err != nil {
		return rec, err
	}
	if rec.IsFraud, err = ParseBool(v); err != nil {
		return rec, fmt.Errorf("invalid %s: %w", ColIsFraud, err)
	}

	return rec, nil
}

// parseInt accepts integers written as floats ("3.0"), which is how
// spreadsheet exports often store them.
func parseInt(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer")
	}
	return int(f), nil
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "t", "y":
		return true, nil
	case "false", "0", "no", "f", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", v)
	}
}
