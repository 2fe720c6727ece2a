// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pdiddy/litflow/internal/ai"
	"github.com/pdiddy/litflow/internal/broker"
	"github.com/pdiddy/litflow/internal/history"
	"github.com/pdiddy/litflow/internal/httputil"
	"github.com/pdiddy/litflow/internal/metrics"
	"github.com/pdiddy/litflow/internal/plan"
	"github.com/pdiddy/litflow/internal/query"
	"github.com/pdiddy/litflow/internal/retrieval"
	"github.com/pdiddy/litflow/internal/summarize"
	"github.com/pdiddy/litflow/internal/workflow"
	"github.com/pdiddy/litflow/pkg/types"
)

// app holds the components built from configuration. Capability
// selection (source, AI backend, planner, summarizer) happens here once.
type app struct {
	cfg         types.Config
	logger      *slog.Logger
	metrics     *metrics.Recorder
	pool        *httputil.Pool
	retriever   *retrieval.Client
	coordinator *workflow.Coordinator
	queries     query.Generator
	client      ai.Client
	ledger      *history.Store
	mirror      *broker.Mirror
	closers     []func()
}

func newApp(ctx context.Context, c types.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: c, logger: logger, metrics: metrics.New()}

	a.pool = httputil.NewPool(c.Retrieval.MaxConcurrency, c.Retrieval.RequestsPerSecond)
	a.metrics.TrackPool(a.pool)

	src, err := retrieval.NewSource(c.Retrieval)
	if err != nil {
		return nil, err
	}
	a.retriever = retrieval.NewClient(src, a.pool, c.Retrieval,
		retrieval.WithLogger(logger), retrieval.WithObserver(a.metrics))

	client, err := ai.New(ctx, c.AI)
	if err != nil {
		return nil, fmt.Errorf("configuring AI backend: %w", err)
	}
	a.client = client
	if client != nil {
		a.closers = append(a.closers, func() { _ = ai.Close(client) })
	}

	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithObserver(a.metrics),
	}
	if client != nil {
		opts = append(opts, workflow.WithPlanner(&plan.LLMPlanner{Client: client}))
		if c.Summarization.Enabled {
			sched := summarize.NewScheduler(&summarize.LLMProvider{Client: client}, c.Summarization,
				summarize.WithLogger(logger), summarize.WithObserver(a.metrics))
			opts = append(opts, workflow.WithSummarizer(sched))
		}
	} else {
		logger.Info("no AI backend configured", "planning", "disabled", "summarization", "disabled")
	}
	a.queries = query.New(client, logger)
	a.coordinator = workflow.New(a.retriever, a.queries, c.Workflow, opts...)

	if c.History.Path != "" {
		store, err := history.Open(c.History.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.ledger = store
		a.closers = append(a.closers, func() { _ = store.Close() })
	}

	if c.NATS.URL != "" {
		m, closeFn, err := broker.Connect(c.NATS, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mirror = m
		a.closers = append(a.closers, closeFn)
	}
	return a, nil
}

// ListModels lists the configured AI backend's models.
func (a *app) ListModels(ctx context.Context) ([]string, error) {
	return ai.ListModels(ctx, a.client)
}

// Close releases backends in reverse order of construction.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
