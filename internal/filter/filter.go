// Package filter selects transaction records with CEL expressions.
//
// Expressions see every record field as a top-level variable, for example:
//
//	country == "in" && amount > 300.0
//	channel in ["email", "ads"] && hour <= 5
package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// Filter is a compiled CEL predicate over TransactionRecord.
// A compiled program is safe for concurrent use.
type Filter struct {
	expression string
	program    cel.Program
}

// newEnv declares the record fields available to expressions.
func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("transaction_id", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("device", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("num_items", cel.IntType),
		cel.Variable("coupon_applied", cel.BoolType),
		cel.Variable("is_fraud", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Compile parses and type-checks expression. The expression must return bool.
func Compile(expression string) (*Filter, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expression, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter %q must return bool, got %s", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for filter %q: %w", expression, err)
	}

	return &Filter{expression: expression, program: program}, nil
}

// Expression returns the source expression.
func (f *Filter) Expression() string {
	return f.expression
}

// Match evaluates the filter against one record.
func (f *Filter) Match(rec domain.TransactionRecord) (bool, error) {
	out, _, err := f.program.Eval(activation(rec))
	if err != nil {
		return false, fmt.Errorf("evaluation error for %s: %w", rec.TransactionID, err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("filter returned %s, expected bool", out.Type())
	}
	return bool(b), nil
}

// Apply returns the records matching the filter, in input order. A nil
// filter matches everything.
func (f *Filter) Apply(records []domain.TransactionRecord) ([]domain.TransactionRecord, error) {
	if f == nil {
		return records, nil
	}

	out := make([]domain.TransactionRecord, 0, len(records))
	for _, rec := range records {
		ok, err := f.Match(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func activation(rec domain.TransactionRecord) map[string]any {
	return map[string]any{
		"transaction_id": rec.TransactionID,
		"country":        rec.Country,
		"channel":        rec.Channel,
		"device":         rec.Device,
		"amount":         rec.Amount,
		"hour":           int64(rec.Hour),
		"num_items":      int64(rec.NumItems),
		"coupon_applied": rec.CouponApplied,
		"is_fraud":       rec.IsFraud,
	}
}
