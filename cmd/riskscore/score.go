// Riskscore - Rule-based transaction fraud risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensource-finance/osprey-riskscore/internal/dataset"
	"github.com/opensource-finance/osprey-riskscore/internal/domain"
	"github.com/opensource-finance/osprey-riskscore/internal/metrics"
	"github.com/opensource-finance/osprey-riskscore/internal/pipeline"
	"github.com/opensource-finance/osprey-riskscore/internal/report"
	"github.com/opensource-finance/osprey-riskscore/internal/repository"
	"github.com/opensource-finance/osprey-riskscore/internal/scoring"
	"github.com/opensource-finance/osprey-riskscore/internal/table"
)

// maxLoggedRows bounds per-row warnings for skipped and rejected records.
const maxLoggedRows = 20

type scoreOptions struct {
	input   string
	output  string
	config  string
	filter  string
	tenant  string
	top     int
	workers int
	persist bool
}

func parseScoreFlags(args []string) (*scoreOptions, error) {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	opts := &scoreOptions{}
	fs.StringVar(&opts.input, "input", "", "input CSV dataset (required)")
	fs.StringVar(&opts.output, "output", "", "scored table path (default from config)")
	fs.StringVar(&opts.config, "config", "", "optional YAML config file")
	fs.StringVar(&opts.filter, "filter", "", `CEL expression selecting records, e.g. 'country == "in"'`)
	fs.StringVar(&opts.tenant, "tenant", "cli", "tenant id used when persisting the run")
	fs.IntVar(&opts.top, "top", 0, "number of highest-risk records to report (default from config)")
	fs.IntVar(&opts.workers, "workers", 0, "parallel scoring workers (default from config)")
	fs.BoolVar(&opts.persist, "persist", false, "save the run to the configured repository")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.input == "" {
		return nil, errors.New("-input is required")
	}
	return opts, nil
}

func runScore(args []string) error {
	opts, err := parseScoreFlags(args)
	if err != nil {
		return err
	}

	cfg, err := domain.LoadConfig(opts.config)
	if err != nil {
		return err
	}
	// stdout carries the report.
	setupLogger(os.Stderr, cfg.Logging)

	if opts.output == "" {
		opts.output = cfg.Scoring.OutputPath
	}
	if opts.top == 0 {
		opts.top = cfg.Scoring.TopN
	}
	if opts.workers == 0 {
		opts.workers = cfg.Scoring.Workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loaded, err := dataset.LoadFile(opts.input)
	if err != nil {
		return err
	}
	for i, rowErr := range loaded.Skipped {
		if i == maxLoggedRows {
			slog.Warn("further skipped rows not logged", "remaining", len(loaded.Skipped)-i)
			break
		}
		slog.Warn("skipped malformed row", "line", rowErr.Line, "error", rowErr.Err)
	}
	slog.Info("dataset loaded",
		"path", opts.input,
		"records", len(loaded.Records),
		"skipped", len(loaded.Skipped),
	)

	p := &pipeline.Pipeline{
		Scorer:  scoring.NewScorer(nil),
		Workers: opts.workers,
		TopN:    opts.top,
	}
	if opts.persist {
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("failed to initialize repository: %w", err)
		}
		defer repo.Close()
		p.Repo = repo
	}

	res, err := p.Run(ctx, opts.tenant, pipeline.Request{
		Source:  opts.input,
		Origin:  metrics.OriginCLI,
		Records: loaded.Records,
		Filter:  opts.filter,
		TopN:    opts.top,
	})
	if err != nil {
		return err
	}
	for i, rej := range res.Rejections {
		if i == maxLoggedRows {
			slog.Warn("further rejections not logged", "remaining", len(res.Rejections)-i)
			break
		}
		slog.Warn("record rejected",
			"index", rej.Index,
			"tx_id", rej.TransactionID,
			"reason", rej.Reason,
		)
	}

	if err := report.Write(os.Stdout, *res.Run.Summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if err := table.WriteFile(opts.output, res.Scored); err != nil {
		return err
	}
	if err := verifyTable(opts.output, len(res.Scored)); err != nil {
		return err
	}

	fmt.Printf("\nScored table saved to %s\n", opts.output)
	if opts.persist {
		fmt.Printf("Run %s saved for tenant %s\n", res.Run.ID, opts.tenant)
	}
	return nil
}

// verifyTable re-reads the saved table and checks its row count.
func verifyTable(path string, want int) error {
	rows, err := table.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to verify saved table: %w", err)
	}
	if len(rows) != want {
		return fmt.Errorf("saved table %s has %d rows, expected %d", path, len(rows), want)
	}
	slog.Info("scored table verified", "path", path, "rows", len(rows))
	return nil
}
