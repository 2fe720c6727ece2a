// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow runs a literature retrieval workflow: optional planning
// into directions, concurrent per-direction retrieval with zero-result
// rewrites and summarization, then aggregation into one result.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/litflow/internal/plan"
	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/internal/query"
	"github.com/pdiddy/litflow/internal/retrieval"
	"github.com/pdiddy/litflow/internal/summarize"
	"github.com/pdiddy/litflow/pkg/types"
)

const (
	defaultMultiResults  = 3
	defaultSingleResults = 5
	defaultYears         = 5
	defaultMaxRewrites   = 3
)

// Retriever searches one record source.
type Retriever interface {
	Search(ctx context.Context, q retrieval.Query) ([]types.Record, error)
	Source() string
}

// Summarizer annotates a batch of records in place.
type Summarizer interface {
	SummarizeAll(ctx context.Context, records []types.Record) summarize.Outcome
}

// Observer receives direction and run outcomes. The metrics package implements it.
type Observer interface {
	Direction(status string)
	Run(mode, status string)
}

// Request describes one run.
type Request struct {
	Mode types.Mode `json:"mode"`

	// Text is the research intent (single mode) or the content to plan
	// directions from (multi mode).
	Text string `json:"text"`

	// Query is an explicit search query for single mode; it skips query
	// generation.
	Query string `json:"query,omitempty"`

	DirectionCount int    `json:"direction_count,omitempty"`
	MaxResults     int    `json:"max_results,omitempty"`
	Years          int    `json:"years,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

// Coordinator runs workflows. It is safe for concurrent use; every run
// shares the Retriever and therefore its permit pool.
type Coordinator struct {
	retriever  Retriever
	queries    query.Generator
	planner    plan.Planner
	summarizer Summarizer
	cfg        types.WorkflowConfig
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPlanner sets the direction planner required by multi mode.
func WithPlanner(p plan.Planner) Option { return func(c *Coordinator) { c.planner = p } }

// WithSummarizer enables per-record summarization.
func WithSummarizer(s Summarizer) Option { return func(c *Coordinator) { c.summarizer = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option { return func(c *Coordinator) { c.observer = o } }

// New returns a coordinator. A zero cfg.MaxRewrites means the default of
// three rewrites; a negative one disables rewriting.
func New(r Retriever, q query.Generator, cfg types.WorkflowConfig, opts ...Option) *Coordinator {
	if q == nil {
		q = query.Rules{}
	}
	c := &Coordinator{
		retriever: r,
		queries:   q,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes req and publishes progress to bus. It returns an error only
// for invalid requests and planning failures; every other failure lands in
// the direction breakdown. Calls made on behalf of the run ignore ctx
// cancellation so the run always completes; once ctx is done, publication
// stops and the result is marked aborted.
func (c *Coordinator) Run(ctx context.Context, req Request, bus *progress.Bus) (*types.WorkflowResult, error) {
	if bus == nil {
		bus = progress.NewBus()
	}
	req = c.withDefaults(req)
	pub := &publisher{bus: bus, ctx: ctx}
	work := context.WithoutCancel(ctx)

	result := &types.WorkflowResult{
		RunID:     req.RunID,
		Mode:      req.Mode,
		Input:     req.Text,
		StartedAt: c.now(),
	}

	pub.publish(progress.StepPrepare, types.StatusRunning, string(req.Mode))
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.Query) == "" {
		err := errors.New("request has neither text nor query")
		pub.publish(progress.StepPrepare, types.StatusError, err.Error())
		bus.Fail(err)
		c.observeRun(req.Mode, "error")
		return nil, err
	}
	pub.publish(progress.StepPrepare, types.StatusSuccess, "")

	var topics []string
	if req.Mode == types.ModeMulti {
		var err error
		topics, err = c.plan(work, pub, req)
		if err != nil {
			bus.Fail(err)
			c.observeRun(req.Mode, "error")
			c.logger.Warn("planning failed", "run", req.RunID, "error", err)
			return nil, err
		}
	} else {
		topic := strings.TrimSpace(req.Query)
		if topic == "" {
			topic = strings.TrimSpace(req.Text)
		}
		topics = []string{topic}
	}

	c.logger.Info("run started", "run", req.RunID, "mode", req.Mode, "directions", len(topics))
	result.Directions = c.fanOut(work, pub, req, topics, result)

	failed := result.Failed()
	milestone := types.StatusSuccess
	if failed {
		milestone = types.StatusError
	}
	pub.publish(progress.StepRetrievalComplete, milestone, fmt.Sprintf("%d records", result.Count))
	pub.publish(progress.StepSummarizationComplete, milestone, "")
	result.Message = summaryMessage(result)
	pub.publish(progress.StepDone, types.StatusSuccess, result.Message)

	result.Events = bus.History()
	result.FinishedAt = c.now()
	result.Aborted = ctx.Err() != nil
	bus.Finish(result)

	status := "success"
	switch {
	case result.Aborted:
		status = "aborted"
	case failed:
		status = "partial"
	}
	c.observeRun(req.Mode, status)
	c.logger.Info("run finished", "run", req.RunID, "status", status, "records", result.Count,
		"duration", result.FinishedAt.Sub(result.StartedAt))
	return result, nil
}

func (c *Coordinator) withDefaults(req Request) Request {
	if req.Mode == "" {
		req.Mode = types.ModeSingle
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.Years <= 0 {
		req.Years = c.cfg.Years
	}
	if req.Years <= 0 {
		req.Years = defaultYears
	}
	if req.MaxResults <= 0 {
		if req.Mode == types.ModeMulti {
			req.MaxResults = c.cfg.MaxResults
			if req.MaxResults <= 0 {
				req.MaxResults = defaultMultiResults
			}
		} else {
			req.MaxResults = defaultSingleResults
		}
	}
	if req.DirectionCount <= 0 {
		req.DirectionCount = c.cfg.DirectionCount
	}
	req.DirectionCount = plan.Clamp(req.DirectionCount)
	return req
}

func (c *Coordinator) maxRewrites() int {
	switch {
	case c.cfg.MaxRewrites < 0:
		return 0
	case c.cfg.MaxRewrites == 0:
		return defaultMaxRewrites
	default:
		return c.cfg.MaxRewrites
	}
}

func (c *Coordinator) plan(ctx context.Context, pub *publisher, req Request) ([]string, error) {
	pub.publish(progress.StepPlanning, types.StatusRunning, "")
	if c.planner == nil {
		err := &plan.Error{Err: errors.New("no planner configured")}
		pub.publish(progress.StepPlanning, types.StatusError, err.Error())
		return nil, err
	}

	topics, err := c.planner.Plan(ctx, req.Text, req.DirectionCount)
	if err == nil {
		topics = cleanTopics(topics, req.DirectionCount)
		if len(topics) == 0 {
			err = errors.New("planner returned no directions")
		}
	}
	if err != nil {
		var perr *plan.Error
		if !errors.As(err, &perr) {
			err = &plan.Error{Err: err}
		}
		pub.publish(progress.StepPlanning, types.StatusError, err.Error())
		return nil, err
	}
	pub.publish(progress.StepPlanning, types.StatusSuccess,
		fmt.Sprintf("%d directions: %s", len(topics), strings.Join(topics, "; ")))
	return topics, nil
}

// cleanTopics trims and dedupes topics and caps them at limit (or the
// direction maximum when limit is zero).
func cleanTopics(topics []string, limit int) []string {
	if limit <= 0 {
		limit = plan.MaxDirections
	}
	seen := make(map[string]bool, len(topics))
	var out []string
	for _, t := range topics {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}

type completion struct {
	index  int
	result types.DirectionResult
}

// fanOut runs one goroutine per direction and aggregates completions on the
// calling goroutine. Directions are stored at their plan index; records are
// appended in completion order.
func (c *Coordinator) fanOut(ctx context.Context, pub *publisher, req Request, topics []string, result *types.WorkflowResult) []types.DirectionResult {
	done := make(chan completion, len(topics))
	for i, topic := range topics {
		go func() {
			done <- completion{index: i, result: c.safeDirection(ctx, pub, req, i, topic)}
		}()
	}

	directions := make([]types.DirectionResult, len(topics))
	written := make([]bool, len(topics))
	for range topics {
		comp := <-done
		if written[comp.index] {
			continue
		}
		written[comp.index] = true
		d := comp.result
		directions[comp.index] = d
		if d.Status == types.StatusSuccess {
			result.Records = append(result.Records, d.Records...)
			result.Count += len(d.Records)
		}

		detail := d.Message
		if d.Status == types.StatusError {
			detail = d.Error
		}
		pub.publish(pub.step(req, d.Topic, progress.StepDirectionComplete), d.Status, detail, d.Topic)
		if c.observer != nil {
			c.observer.Direction(string(d.Status))
		}
	}
	return directions
}

// safeDirection runs one direction and turns a panic into that direction's
// error result, so siblings and the aggregate are unaffected.
func (c *Coordinator) safeDirection(ctx context.Context, pub *publisher, req Request, index int, topic string) (d types.DirectionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("direction panicked", "run", req.RunID, "topic", topic, "panic", r)
			d = types.DirectionResult{
				Index:   index,
				Topic:   topic,
				Status:  types.StatusError,
				Error:   fmt.Sprintf("panic: %v", r),
				Message: "direction failed",
			}
		}
	}()
	return c.runDirection(ctx, pub, req, index, topic)
}

// runDirection drives one direction to a terminal result.
func (c *Coordinator) runDirection(ctx context.Context, pub *publisher, req Request, index int, topic string) types.DirectionResult {
	d := types.DirectionResult{Index: index, Topic: topic}
	source := c.retriever.Source()
	step := func(name string) string { return pub.step(req, topic, name) }
	emit := func(name string, status types.Status, detail string) {
		pub.publish(step(name), status, detail, topic)
	}
	fail := func(err error, message string) types.DirectionResult {
		d.Status = types.StatusError
		d.Error = err.Error()
		d.Message = message
		var re *retrieval.Error
		if errors.As(err, &re) {
			d.Reason = string(retrieval.CauseOf(re))
			d.Exhausted = retrieval.Exhausted(re)
			d.Attempts = re.Attempts
		}
		return d
	}

	q := strings.TrimSpace(req.Query)
	if q != "" && req.Mode == types.ModeSingle {
		emit(progress.StepQuery, types.StatusSuccess, q)
	} else {
		emit(progress.StepQuery, types.StatusRunning, "")
		var err error
		q, err = c.queries.Generate(ctx, topic, source)
		if err != nil {
			emit(progress.StepQuery, types.StatusError, err.Error())
			return fail(err, "query generation failed")
		}
		emit(progress.StepQuery, types.StatusSuccess, q)
	}
	d.Query = q

	search := func(name, q string) ([]types.Record, error) {
		return c.retriever.Search(ctx, retrieval.Query{
			Text:       q,
			Years:      req.Years,
			MaxResults: req.MaxResults,
			OnRetry: func(attempt int, reason retrieval.Reason, delay time.Duration) {
				emit(name, types.StatusRunning, fmt.Sprintf("retry %d in %s (%s)", attempt, delay.Round(time.Millisecond), reason))
			},
		})
	}

	emit(progress.StepRetrieving, types.StatusRunning, q)
	records, err := search(progress.StepRetrieving, q)
	if err != nil {
		emit(progress.StepRetrieving, types.StatusError, err.Error())
		return fail(err, "retrieval failed")
	}
	emit(progress.StepRetrieving, types.StatusSuccess, fmt.Sprintf("%d records", len(records)))

	for len(records) == 0 && d.Rewrites < c.maxRewrites() {
		n := d.Rewrites + 1
		name := fmt.Sprintf("%s #%d", progress.StepRewrite, n)
		emit(name, types.StatusRunning, q)
		next, err := c.queries.Rewrite(ctx, topic, q, source, n)
		if err != nil {
			emit(name, types.StatusError, err.Error())
			c.logger.Debug("rewrite ended", "topic", topic, "attempt", n, "error", err)
			break
		}
		d.Rewrites = n
		q = next
		d.Query = q
		records, err = search(name, q)
		if err != nil {
			emit(name, types.StatusError, err.Error())
			return fail(err, "retrieval failed")
		}
		emit(name, types.StatusSuccess, fmt.Sprintf("%d records", len(records)))
	}

	if len(records) == 0 {
		d.Status = types.StatusSuccess
		d.Message = "no results"
		if d.Rewrites > 0 {
			d.Message = fmt.Sprintf("no results after %d rewrites", d.Rewrites)
		}
		return d
	}

	for i := range records {
		records[i].Direction = topic
	}

	if c.summarizer != nil {
		emit(progress.StepSummarizing, types.StatusRunning, fmt.Sprintf("%d records", len(records)))
		out := c.summarizer.SummarizeAll(ctx, records)
		status := types.StatusError
		if out.AnySucceeded() || out.Skipped == out.Attempted {
			status = types.StatusSuccess
		}
		emit(progress.StepSummarizing, status, fmt.Sprintf("%d/%d annotated", out.Succeeded, out.Attempted))
		d.Summarized = out.Succeeded
	}

	d.Records = records
	d.Count = len(records)
	d.Status = types.StatusSuccess
	d.Message = fmt.Sprintf("%d records", len(records))
	return d
}

func summaryMessage(r *types.WorkflowResult) string {
	failed := 0
	for _, d := range r.Directions {
		if d.Status == types.StatusError {
			failed++
		}
	}
	msg := fmt.Sprintf("%d records from %d directions", r.Count, len(r.Directions))
	if len(r.Directions) == 1 {
		msg = fmt.Sprintf("%d records", r.Count)
	}
	if failed > 0 {
		msg += fmt.Sprintf(" (%d failed)", failed)
	}
	return msg
}

func (c *Coordinator) observeRun(mode types.Mode, status string) {
	if c.observer != nil {
		c.observer.Run(string(mode), status)
	}
}

// publisher stops publishing once the caller's context is done.
type publisher struct {
	bus *progress.Bus
	ctx context.Context
}

func (p *publisher) publish(step string, status types.Status, detail string, direction ...string) {
	if p.ctx.Err() != nil {
		return
	}
	ev := types.StatusEvent{Step: step, Status: status, Detail: detail}
	if len(direction) > 0 {
		ev.Direction = direction[0]
	}
	p.bus.Publish(ev)
}

// step scopes name to topic in multi mode.
func (p *publisher) step(req Request, topic, name string) string {
	if req.Mode != types.ModeMulti {
		return name
	}
	return types.DirectionStep(topic, name)
}
