// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summarize schedules one summarization call per record with a
// bounded or unbounded degree of parallelism. A failed call leaves that
// record's annotation empty and never fails the batch.
package summarize

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pdiddy/litflow/pkg/types"
)

// Outcome counts what happened to a batch.
type Outcome struct {
	Attempted int
	Succeeded int
	Failed    int

	// Skipped counts records without an abstract.
	Skipped int
}

// AnySucceeded reports whether at least one record was annotated.
func (o Outcome) AnySucceeded() bool { return o.Succeeded > 0 }

// Observer receives per-record outcomes. The metrics package implements it.
type Observer interface {
	Summarization(outcome string)
}

// Scheduler runs a Provider over a batch of records.
type Scheduler struct {
	provider    Provider
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
	observer    Observer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option { return func(s *Scheduler) { s.observer = o } }

// NewScheduler returns a scheduler. concurrency caps parallel calls; zero
// or negative means one goroutine per record. timeout bounds each call.
func NewScheduler(p Provider, cfg types.SummarizationConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		provider:    p,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SummarizeAll annotates records in place. Each index is written by exactly
// one goroutine, and the caller must not touch records until SummarizeAll
// returns.
func (s *Scheduler) SummarizeAll(ctx context.Context, records []types.Record) Outcome {
	if len(records) == 0 {
		return Outcome{}
	}
	limit := s.concurrency
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	var succeeded, failed, skipped atomic.Int64
	p := pool.New().WithMaxGoroutines(limit)
	for i := range records {
		p.Go(func() {
			rec := &records[i]
			ann, err := s.summarizeOne(ctx, rec)
			switch {
			case err == nil:
				rec.Annotation = ann
				succeeded.Add(1)
				s.observe("ok")
			case errors.Is(err, ErrNoAbstract):
				skipped.Add(1)
				s.observe("skipped")
			default:
				failed.Add(1)
				s.observe("failed")
				s.logger.Debug("summarization failed", "record", rec.Key(), "error", err)
			}
		})
	}
	p.Wait()

	return Outcome{
		Attempted: len(records),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
}

func (s *Scheduler) summarizeOne(ctx context.Context, rec *types.Record) (types.Annotation, error) {
	if rec.Abstract == "" {
		return types.Annotation{}, ErrNoAbstract
	}
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	in := Input{
		Title:    rec.Title,
		Venue:    rec.Venue,
		Year:     rec.Year,
		Abstract: rec.Abstract,
	}

	// The provider runs in its own goroutine so a backend that ignores
	// context cancellation still cannot hold the record past the timeout.
	type result struct {
		ann types.Annotation
		err error
	}
	done := make(chan result, 1)
	go func() {
		ann, err := s.provider.Summarize(callCtx, in)
		done <- result{ann, err}
	}()
	select {
	case r := <-done:
		return r.ann, r.err
	case <-callCtx.Done():
		return types.Annotation{}, callCtx.Err()
	}
}

func (s *Scheduler) observe(outcome string) {
	if s.observer != nil {
		s.observer.Summarization(outcome)
	}
}
