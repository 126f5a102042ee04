// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// Aliases of the domain sentinels, matched with errors.Is.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores a run and all of its scored rows in one transaction.
func (r *SQLRepository) SaveRun(ctx context.Context, tenantID string, run *domain.Run, scored []domain.ScoredTransaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO scoring_runs (
			id, tenant_id, source, filter, total, rejected, summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		run.ID, tenantID, run.Source, run.Filter,
		run.Total, run.Rejected, string(summary), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO scored_transactions (
			run_id, tenant_id, position, transaction_id, country, channel, device,
			amount, hour, num_items, coupon_applied, is_fraud, risk_score, risk_category
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, st := range scored {
		_, err := stmt.ExecContext(ctx,
			run.ID, tenantID, i, st.TransactionID, st.Country, st.Channel, st.Device,
			st.Amount, st.Hour, st.NumItems, boolToInt(st.CouponApplied), boolToInt(st.IsFraud),
			st.RiskScore, string(st.RiskCategory),
		)
		if err != nil {
			return fmt.Errorf("failed to insert scored transaction %s: %w", st.TransactionID, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run with its summary, with tenant isolation.
func (r *SQLRepository) GetRun(ctx context.Context, tenantID string, runID string) (*domain.Run, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, source, filter, total, rejected, summary, created_at
		FROM scoring_runs
		WHERE tenant_id = ? AND id = ?
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs for a tenant, newest first.
// Summaries are included.
func (r *SQLRepository) ListRuns(ctx context.Context, tenantID string, limit int) ([]*domain.Run, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, source, filter, total, rejected, summary, created_at
		FROM scoring_runs
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetScoredTransaction retrieves one scored row of a run by transaction id.
// When a transaction id occurs more than once, the first row is returned.
func (r *SQLRepository) GetScoredTransaction(ctx context.Context, tenantID string, runID string, txID string) (*domain.ScoredTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT transaction_id, country, channel, device, amount, hour, num_items,
			   coupon_applied, is_fraud, risk_score, risk_category
		FROM scored_transactions
		WHERE tenant_id = ? AND run_id = ? AND transaction_id = ?
		ORDER BY position
		LIMIT 1
	`

	st, err := scanScored(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, runID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListScoredTransactions returns all rows of a run in input order.
func (r *SQLRepository) ListScoredTransactions(ctx context.Context, tenantID string, runID string) ([]domain.ScoredTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT transaction_id, country, channel, device, amount, hour, num_items,
			   coupon_applied, is_fraud, risk_score, risk_category
		FROM scored_transactions
		WHERE tenant_id = ? AND run_id = ?
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScoredTransaction
	for rows.Next() {
		st, err := scanScored(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}

	return out, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var filter sql.NullString
	var summary string

	if err := row.Scan(
		&run.ID, &run.TenantID, &run.Source, &filter,
		&run.Total, &run.Rejected, &summary, &run.CreatedAt,
	); err != nil {
		return nil, err
	}

	run.Filter = filter.String
	if summary != "" && summary != "null" {
		run.Summary = &domain.EvaluationSummary{}
		if err := json.Unmarshal([]byte(summary), run.Summary); err != nil {
			return nil, fmt.Errorf("failed to parse summary for run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

func scanScored(row rowScanner) (domain.ScoredTransaction, error) {
	var st domain.ScoredTransaction
	var coupon, fraud int
	var category string

	if err := row.Scan(
		&st.TransactionID, &st.Country, &st.Channel, &st.Device,
		&st.Amount, &st.Hour, &st.NumItems,
		&coupon, &fraud, &st.RiskScore, &category,
	); err != nil {
		return st, err
	}

	st.CouponApplied = coupon == 1
	st.IsFraud = fraud == 1
	st.RiskCategory = domain.RiskCategory(category)
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != driverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
