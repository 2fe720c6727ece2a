// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litflow/internal/httputil"
	"github.com/pdiddy/litflow/internal/logging"
	"github.com/pdiddy/litflow/internal/plan"
	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/internal/query"
	"github.com/pdiddy/litflow/internal/retrieval"
	"github.com/pdiddy/litflow/internal/summarize"
	"github.com/pdiddy/litflow/pkg/types"
)

// --- fakes ---

type fakeRetriever struct {
	mu     sync.Mutex
	calls  []string
	search func(q retrieval.Query) ([]types.Record, error)
}

func (f *fakeRetriever) Source() string { return "pubmed" }

func (f *fakeRetriever) Search(_ context.Context, q retrieval.Query) ([]types.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q.Text)
	f.mu.Unlock()
	return f.search(q)
}

func (f *fakeRetriever) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func records(prefix string, n int) []types.Record {
	out := make([]types.Record, n)
	for i := range out {
		out[i] = types.Record{ID: fmt.Sprintf("%s-%d", prefix, i), Title: prefix, Abstract: "abstract"}
	}
	return out
}

type fakeGenerator struct {
	rewrite func(intent, previous string, attempt int) (string, error)
}

func (g fakeGenerator) Generate(_ context.Context, intent, _ string) (string, error) {
	return "Q(" + intent + ")", nil
}

func (g fakeGenerator) Rewrite(_ context.Context, intent, previous, _ string, attempt int) (string, error) {
	if g.rewrite != nil {
		return g.rewrite(intent, previous, attempt)
	}
	return fmt.Sprintf("%s r%d", previous, attempt), nil
}

type fakePlanner struct {
	topics []string
	err    error
}

func (p fakePlanner) Plan(context.Context, string, int) ([]string, error) { return p.topics, p.err }

type fakeSummarizer struct {
	fail bool
}

func (s fakeSummarizer) SummarizeAll(_ context.Context, recs []types.Record) summarize.Outcome {
	out := summarize.Outcome{Attempted: len(recs)}
	for i := range recs {
		if s.fail {
			out.Failed++
			continue
		}
		recs[i].Annotation = types.Annotation{Summary: "summary of " + recs[i].ID}
		out.Succeeded++
	}
	return out
}

type recordingObserver struct {
	mu         sync.Mutex
	directions []string
	runs       []string
}

func (o *recordingObserver) Direction(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.directions = append(o.directions, status)
}

func (o *recordingObserver) Run(mode, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, mode+":"+status)
}

// latest returns the last accepted event for step.
func latest(events []types.StatusEvent, step string) (types.StatusEvent, bool) {
	var found types.StatusEvent
	ok := false
	for _, e := range events {
		if e.Step == step {
			found, ok = e, true
		}
	}
	return found, ok
}

func drainBus(t *testing.T, bus *progress.Bus) []progress.Envelope {
	t.Helper()
	sub := bus.Subscribe()
	var out []progress.Envelope
	timeout := time.After(5 * time.Second)
	for {
		select {
		case env, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, env)
		case <-timeout:
			t.Fatal("bus did not end")
		}
	}
}

// --- tests ---

func TestSingleModeExplicitQuery(t *testing.T) {
	r := &fakeRetriever{search: func(q retrieval.Query) ([]types.Record, error) {
		assert.Equal(t, 5, q.MaxResults)
		assert.Equal(t, 5, q.Years)
		return records("a", 2), nil
	}}
	obs := &recordingObserver{}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{}, WithObserver(obs))
	bus := progress.NewBus()

	res, err := c.Run(context.Background(), Request{Query: "sepsis AND adults"}, bus)
	require.NoError(t, err)

	assert.Equal(t, types.ModeSingle, res.Mode)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Count)
	require.Len(t, res.Directions, 1)
	assert.Equal(t, "sepsis AND adults", res.Directions[0].Query)
	assert.Equal(t, []string{"sepsis AND adults"}, r.queries())
	assert.False(t, res.Aborted)

	q, ok := latest(res.Events, progress.StepQuery)
	require.True(t, ok)
	assert.Equal(t, types.StatusSuccess, q.Status)
	for _, step := range []string{progress.StepRetrieving, progress.StepDirectionComplete,
		progress.StepRetrievalComplete, progress.StepSummarizationComplete, progress.StepDone} {
		e, ok := latest(res.Events, step)
		require.True(t, ok, step)
		assert.Equal(t, types.StatusSuccess, e.Status, step)
	}
	assert.Equal(t, bus.History(), res.Events)

	envs := drainBus(t, bus)
	last := envs[len(envs)-1]
	assert.Equal(t, progress.TypeResult, last.Type)
	assert.Equal(t, res.RunID, last.Result.RunID)

	assert.Equal(t, []string{"success"}, obs.directions)
	assert.Equal(t, []string{"single:success"}, obs.runs)
}

func TestSingleModeGeneratesQueryFromText(t *testing.T) {
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return records("a", 1), nil }}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{})
	res, err := c.Run(context.Background(), Request{Text: "vasopressin in septic shock"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q(vasopressin in septic shock)"}, r.queries())
	assert.Equal(t, "vasopressin in septic shock", res.Records[0].Direction)
}

func TestMultiModeOneDirectionFails(t *testing.T) {
	r := &fakeRetriever{search: func(q retrieval.Query) ([]types.Record, error) {
		switch q.Text {
		case "Q(beta)":
			return nil, &retrieval.Error{Reason: retrieval.ReasonExhausted, Last: retrieval.ReasonNetwork,
				Source: "pubmed", Attempts: 5, Err: errors.New("connection refused")}
		case "Q(alpha)":
			return records("alpha", 2), nil
		default:
			return records("gamma", 3), nil
		}
	}}
	obs := &recordingObserver{}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{},
		WithPlanner(fakePlanner{topics: []string{"alpha", "beta", "gamma"}}), WithObserver(obs))

	res, err := c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "some paper"}, progress.NewBus())
	require.NoError(t, err)

	require.Len(t, res.Directions, 3)
	for i, topic := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, i, res.Directions[i].Index)
		assert.Equal(t, topic, res.Directions[i].Topic)
	}
	beta := res.Directions[1]
	assert.Equal(t, types.StatusError, beta.Status)
	assert.Equal(t, string(retrieval.ReasonNetwork), beta.Reason)
	assert.True(t, beta.Exhausted)
	assert.Equal(t, 5, beta.Attempts)
	assert.Contains(t, beta.Error, "network after 5 attempts")
	assert.Empty(t, beta.Records)

	assert.Equal(t, 5, res.Count)
	assert.Len(t, res.Records, 5)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Message, "(1 failed)")

	dc, ok := latest(res.Events, "[beta] direction-complete")
	require.True(t, ok)
	assert.Equal(t, types.StatusError, dc.Status)
	assert.Equal(t, "beta", dc.Direction)

	rc, _ := latest(res.Events, progress.StepRetrievalComplete)
	assert.Equal(t, types.StatusError, rc.Status)
	sc, _ := latest(res.Events, progress.StepSummarizationComplete)
	assert.Equal(t, types.StatusError, sc.Status)
	done, _ := latest(res.Events, progress.StepDone)
	assert.Equal(t, types.StatusSuccess, done.Status)

	// done is the last event and follows every direction-complete.
	assert.Equal(t, progress.StepDone, res.Events[len(res.Events)-1].Step)
	assert.ElementsMatch(t, []string{"success", "error", "success"}, obs.directions)
	assert.Equal(t, []string{"multi:partial"}, obs.runs)
}

func TestDirectionPanicBecomesError(t *testing.T) {
	r := &fakeRetriever{search: func(q retrieval.Query) ([]types.Record, error) {
		if q.Text == "Q(beta)" {
			panic("index out of range")
		}
		return records(q.Text, 2), nil
	}}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{},
		WithPlanner(fakePlanner{topics: []string{"alpha", "beta", "gamma"}}), WithLogger(logging.Discard()))
	bus := progress.NewBus()

	res, err := c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "paper"}, bus)
	require.NoError(t, err)

	require.Len(t, res.Directions, 3)
	beta := res.Directions[1]
	assert.Equal(t, "beta", beta.Topic)
	assert.Equal(t, types.StatusError, beta.Status)
	assert.Contains(t, beta.Error, "index out of range")
	assert.Equal(t, types.StatusSuccess, res.Directions[0].Status)
	assert.Equal(t, types.StatusSuccess, res.Directions[2].Status)
	assert.Equal(t, 4, res.Count)

	dc, ok := latest(res.Events, "[beta] direction-complete")
	require.True(t, ok)
	assert.Equal(t, types.StatusError, dc.Status)

	terminals := 0
	for _, env := range drainBus(t, bus) {
		if env.Terminal() {
			terminals++
			assert.Equal(t, progress.TypeResult, env.Type)
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestThreeDirectionScenario(t *testing.T) {
	r := &fakeRetriever{search: func(q retrieval.Query) ([]types.Record, error) {
		switch q.Text {
		case "Q(A)":
			return records("a", 5), nil
		case "Q(C)":
			return nil, &retrieval.Error{Reason: retrieval.ReasonNetwork, Source: "pubmed",
				Attempts: 1, Err: errors.New("dial tcp: connection refused")}
		default:
			return nil, nil
		}
	}}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{MaxRewrites: 1},
		WithPlanner(fakePlanner{topics: []string{"A", "B", "C"}}), WithSummarizer(&fakeSummarizer{}))

	res, err := c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "three topics"}, progress.NewBus())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Count)
	assert.Len(t, res.Records, 5)
	require.Len(t, res.Directions, 3)

	a, b, cd := res.Directions[0], res.Directions[1], res.Directions[2]
	assert.Equal(t, types.StatusSuccess, a.Status)
	assert.Equal(t, 5, a.Count)
	assert.Equal(t, types.StatusSuccess, b.Status)
	assert.Equal(t, 0, b.Count)
	assert.Contains(t, b.Message, "no results")
	assert.Equal(t, 1, b.Rewrites)
	assert.Equal(t, types.StatusError, cd.Status)
	assert.Equal(t, string(retrieval.ReasonNetwork), cd.Reason)

	var completions int
	for _, e := range res.Events {
		if progress.StepDirectionComplete == types.NormalizeStep(e.Step) && e.Status.Terminal() {
			completions++
		}
	}
	assert.Equal(t, 3, completions)

	rc, _ := latest(res.Events, progress.StepRetrievalComplete)
	assert.Equal(t, types.StatusError, rc.Status)
	sc, _ := latest(res.Events, progress.StepSummarizationComplete)
	assert.Equal(t, types.StatusError, sc.Status)
}

// endpointSource serves directions A and C from HTTP endpoints and returns
// nothing for B.
type endpointSource struct {
	okURL, deadURL string
}

func (s endpointSource) Name() string { return "endpoint" }

func (s endpointSource) Search(ctx context.Context, f retrieval.Fetcher, q retrieval.Query) ([]types.Record, error) {
	url := s.okURL
	switch {
	case strings.HasPrefix(q.Text, "Q(B)"):
		return nil, nil
	case q.Text == "Q(C)":
		url = s.deadURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	body, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	var recs []types.Record
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func TestThreeDirectionScenarioOverHTTP(t *testing.T) {
	var found []types.Record
	for i := 0; i < 5; i++ {
		found = append(found, types.Record{ID: fmt.Sprintf("a-%d", i), Title: fmt.Sprintf("paper %d", i), Year: 2024})
	}
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(found)
	}))
	defer ok.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadURL := "http://" + ln.Addr().String()
	require.NoError(t, ln.Close())

	client := retrieval.NewClient(endpointSource{okURL: ok.URL, deadURL: deadURL}, httputil.NewPool(3, 0),
		types.RetrievalConfig{
			HTTPConfig:  types.HTTPConfig{Timeout: 2 * time.Second},
			MaxAttempts: 3,
			BackoffBase: time.Millisecond,
			BackoffMax:  5 * time.Millisecond,
		}, retrieval.WithLogger(logging.Discard()))
	c := New(client, fakeGenerator{}, types.WorkflowConfig{MaxRewrites: 1},
		WithPlanner(fakePlanner{topics: []string{"A", "B", "C"}}))

	res, err := c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "three topics", MaxResults: 5}, progress.NewBus())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Count)
	require.Len(t, res.Directions, 3)
	assert.Equal(t, types.StatusSuccess, res.Directions[0].Status)
	assert.Equal(t, 5, res.Directions[0].Count)
	assert.Equal(t, types.StatusSuccess, res.Directions[1].Status)
	assert.Contains(t, res.Directions[1].Message, "no results")

	cd := res.Directions[2]
	assert.Equal(t, types.StatusError, cd.Status)
	assert.Equal(t, string(retrieval.ReasonNetwork), cd.Reason)
	assert.True(t, cd.Exhausted)
	assert.Equal(t, 3, cd.Attempts)

	rc, _ := latest(res.Events, progress.StepRetrievalComplete)
	assert.Equal(t, types.StatusError, rc.Status)
}

func TestPlanningFailureStartsNoRetrieval(t *testing.T) {
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) {
		t.Error("retrieval must not start")
		return nil, nil
	}}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{},
		WithPlanner(fakePlanner{err: errors.New("model unavailable")}))
	bus := progress.NewBus()

	res, err := c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "paper"}, bus)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, plan.IsPlanningError(err))

	envs := drainBus(t, bus)
	last := envs[len(envs)-1]
	assert.Equal(t, progress.TypeError, last.Type)
	assert.Contains(t, last.Error, "model unavailable")

	ev, ok := latest(bus.History(), progress.StepPlanning)
	require.True(t, ok)
	assert.Equal(t, types.StatusError, ev.Status)
}

func TestPlanningErrors(t *testing.T) {
	tests := []struct {
		name    string
		planner plan.Planner
	}{
		{"no planner", nil},
		{"empty plan", fakePlanner{topics: []string{" ", ""}}},
		{"typed error", fakePlanner{err: &plan.Error{Err: errors.New("no text")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return nil, nil }}
			var opts []Option
			if tt.planner != nil {
				opts = append(opts, WithPlanner(tt.planner))
			}
			c := New(r, fakeGenerator{}, types.WorkflowConfig{}, opts...)
			_, err := c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "x"}, nil)
			require.Error(t, err)
			assert.True(t, plan.IsPlanningError(err))
			assert.Empty(t, r.queries())
		})
	}
}

func TestPlannedTopicsAreCapped(t *testing.T) {
	topics := make([]string, 20)
	for i := range topics {
		topics[i] = fmt.Sprintf("topic %d", i)
	}
	topics = append(topics, "topic 0")
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return records("x", 1), nil }}

	c := New(r, fakeGenerator{}, types.WorkflowConfig{}, WithPlanner(fakePlanner{topics: topics}))
	res, err := c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "x"}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Directions, plan.MaxDirections)

	res, err = c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "x", DirectionCount: 2}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Directions, 2)
}

func TestRewritesExhausted(t *testing.T) {
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return nil, nil }}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{})

	res, err := c.Run(context.Background(), Request{Query: "rare"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"rare", "rare r1", "rare r1 r2", "rare r1 r2 r3"}, r.queries())
	d := res.Directions[0]
	assert.Equal(t, types.StatusSuccess, d.Status)
	assert.Equal(t, 3, d.Rewrites)
	assert.Equal(t, "no results after 3 rewrites", d.Message)
	assert.Equal(t, "rare r1 r2 r3", d.Query)
	assert.Zero(t, res.Count)
	assert.False(t, res.Failed())

	for n := 1; n <= 3; n++ {
		e, ok := latest(res.Events, fmt.Sprintf("rewrite #%d", n))
		require.True(t, ok)
		assert.Equal(t, types.StatusSuccess, e.Status)
		assert.Equal(t, 4, e.Rank, "rewrite attempts share the rewrite rank")
	}
}

func TestRewriteFindsRecords(t *testing.T) {
	var n atomic.Int64
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) {
		if n.Add(1) < 3 {
			return nil, nil
		}
		return records("late", 2), nil
	}}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{MaxRewrites: 5})

	res, err := c.Run(context.Background(), Request{Query: "q"}, nil)
	require.NoError(t, err)
	d := res.Directions[0]
	assert.Equal(t, 2, d.Rewrites)
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, "2 records", d.Message)
	assert.Len(t, r.queries(), 3)
}

func TestRewriteErrorEndsLoop(t *testing.T) {
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return nil, nil }}
	gen := fakeGenerator{rewrite: func(_, _ string, attempt int) (string, error) {
		return "", &query.RewriteError{Attempt: attempt, Err: query.ErrNoBroaderQuery}
	}}
	c := New(r, gen, types.WorkflowConfig{})

	res, err := c.Run(context.Background(), Request{Query: "q"}, nil)
	require.NoError(t, err)
	d := res.Directions[0]
	assert.Equal(t, types.StatusSuccess, d.Status)
	assert.Zero(t, d.Rewrites)
	assert.Equal(t, "no results", d.Message)
	assert.Len(t, r.queries(), 1)

	e, ok := latest(res.Events, "rewrite #1")
	require.True(t, ok)
	assert.Equal(t, types.StatusError, e.Status)
}

func TestRewritesDisabled(t *testing.T) {
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return nil, nil }}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{MaxRewrites: -1})
	res, err := c.Run(context.Background(), Request{Query: "q"}, nil)
	require.NoError(t, err)
	assert.Len(t, r.queries(), 1)
	assert.Equal(t, "no results", res.Directions[0].Message)
}

func TestRetrievalErrorDuringRewrite(t *testing.T) {
	var n atomic.Int64
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) {
		if n.Add(1) == 1 {
			return nil, nil
		}
		return nil, &retrieval.Error{Reason: retrieval.ReasonRateLimited, Source: "pubmed", Attempts: 1, Err: errors.New("429")}
	}}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{})
	res, err := c.Run(context.Background(), Request{Query: "q"}, nil)
	require.NoError(t, err)
	d := res.Directions[0]
	assert.Equal(t, types.StatusError, d.Status)
	assert.Equal(t, "rate_limited", d.Reason)
	assert.Equal(t, 1, d.Rewrites)
}

func TestDirectionsRunConcurrently(t *testing.T) {
	const n = 4
	var arrived atomic.Int64
	all := make(chan struct{})
	r := &fakeRetriever{search: func(q retrieval.Query) ([]types.Record, error) {
		if arrived.Add(1) == n {
			close(all)
		}
		select {
		case <-all:
			return records(q.Text, 1), nil
		case <-time.After(3 * time.Second):
			return nil, errors.New("directions did not overlap")
		}
	}}
	topics := []string{"a", "b", "c", "d"}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{}, WithPlanner(fakePlanner{topics: topics}))

	res, err := c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "x"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, n, res.Count)
}

func TestSlowDirectionDoesNotDelayOthers(t *testing.T) {
	release := make(chan struct{})
	r := &fakeRetriever{search: func(q retrieval.Query) ([]types.Record, error) {
		if q.Text == "Q(slow)" {
			<-release
		}
		return records(q.Text, 1), nil
	}}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{},
		WithPlanner(fakePlanner{topics: []string{"slow", "fast1", "fast2"}}))
	bus := progress.NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	var res *types.WorkflowResult
	runDone := make(chan error, 1)
	go func() {
		var err error
		res, err = c.Run(context.Background(), Request{Mode: types.ModeMulti, Text: "x"}, bus)
		runDone <- err
	}()

	completed := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for !(completed["fast1"] && completed["fast2"]) {
		select {
		case env := <-sub.C():
			if env.Event != nil && types.NormalizeStep(env.Event.Step) == progress.StepDirectionComplete {
				completed[env.Event.Direction] = true
			}
		case <-timeout:
			t.Fatal("fast directions did not complete while slow was blocked")
		}
	}
	assert.False(t, completed["slow"])
	close(release)

	require.NoError(t, <-runDone)
	assert.Equal(t, 3, res.Count)
	// Records are appended in completion order.
	assert.Equal(t, "slow", res.Records[2].Direction)
}

func TestCallerCancellationAbortsPublication(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) {
		cancel()
		return records("a", 2), nil
	}}
	obs := &recordingObserver{}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{}, WithObserver(obs))
	bus := progress.NewBus()

	res, err := c.Run(ctx, Request{Query: "q"}, bus)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Equal(t, 2, res.Count, "the run completes after the caller leaves")

	_, ok := latest(bus.History(), progress.StepDone)
	assert.False(t, ok, "nothing is published after cancellation")

	envs := drainBus(t, bus)
	assert.Equal(t, progress.TypeResult, envs[len(envs)-1].Type)
	assert.Equal(t, []string{"single:aborted"}, obs.runs)
}

func TestSummarization(t *testing.T) {
	tests := []struct {
		name   string
		fail   bool
		status types.Status
	}{
		{"annotated", false, types.StatusSuccess},
		{"all failed", true, types.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return records("a", 3), nil }}
			c := New(r, fakeGenerator{}, types.WorkflowConfig{}, WithSummarizer(fakeSummarizer{fail: tt.fail}))
			res, err := c.Run(context.Background(), Request{Query: "q"}, nil)
			require.NoError(t, err)

			e, ok := latest(res.Events, progress.StepSummarizing)
			require.True(t, ok)
			assert.Equal(t, tt.status, e.Status)
			d := res.Directions[0]
			assert.Equal(t, types.StatusSuccess, d.Status, "summarization never fails a direction")
			if tt.fail {
				assert.Zero(t, d.Summarized)
				assert.True(t, res.Records[0].Annotation.IsEmpty())
			} else {
				assert.Equal(t, 3, d.Summarized)
				assert.Equal(t, "summary of a-0", res.Records[0].Annotation.Summary)
			}
		})
	}
}

func TestRetryDetailIsPublished(t *testing.T) {
	r := &fakeRetriever{search: func(q retrieval.Query) ([]types.Record, error) {
		q.OnRetry(1, retrieval.ReasonRateLimited, 10*time.Millisecond)
		return records("a", 1), nil
	}}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{})
	res, err := c.Run(context.Background(), Request{Query: "q"}, nil)
	require.NoError(t, err)

	var details []string
	for _, e := range res.Events {
		if e.Step == progress.StepRetrieving && e.Status == types.StatusRunning {
			details = append(details, e.Detail)
		}
	}
	require.Len(t, details, 2)
	assert.True(t, strings.HasPrefix(details[1], "retry 1"))
	assert.Contains(t, details[1], "rate_limited")
}

func TestQueryGenerationFailure(t *testing.T) {
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return records("a", 1), nil }}
	c := New(r, errGenerator{}, types.WorkflowConfig{})
	res, err := c.Run(context.Background(), Request{Text: "topic"}, nil)
	require.NoError(t, err)
	d := res.Directions[0]
	assert.Equal(t, types.StatusError, d.Status)
	assert.Equal(t, "query generation failed", d.Message)
	assert.Empty(t, d.Reason)
	assert.Empty(t, r.queries())

	e, ok := latest(res.Events, progress.StepQuery)
	require.True(t, ok)
	assert.Equal(t, types.StatusError, e.Status)
}

type errGenerator struct{}

func (errGenerator) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("generator down")
}

func (errGenerator) Rewrite(context.Context, string, string, string, int) (string, error) {
	return "", errors.New("generator down")
}

func TestInvalidRequest(t *testing.T) {
	r := &fakeRetriever{search: func(retrieval.Query) ([]types.Record, error) { return nil, nil }}
	c := New(r, fakeGenerator{}, types.WorkflowConfig{})
	bus := progress.NewBus()
	_, err := c.Run(context.Background(), Request{Text: "  "}, bus)
	require.Error(t, err)
	envs := drainBus(t, bus)
	assert.Equal(t, progress.TypeError, envs[len(envs)-1].Type)
}

func TestRequestDefaults(t *testing.T) {
	c := New(nil, nil, types.WorkflowConfig{MaxResults: 7, Years: 3, DirectionCount: 40})
	tests := []struct {
		name string
		in   Request
		want Request
	}{
		{"single", Request{RunID: "r"}, Request{Mode: types.ModeSingle, RunID: "r", MaxResults: 5, Years: 3, DirectionCount: 12}},
		{"multi", Request{Mode: types.ModeMulti, RunID: "r"}, Request{Mode: types.ModeMulti, RunID: "r", MaxResults: 7, Years: 3, DirectionCount: 12}},
		{"explicit", Request{Mode: types.ModeMulti, RunID: "r", MaxResults: 2, Years: 10, DirectionCount: 4},
			Request{Mode: types.ModeMulti, RunID: "r", MaxResults: 2, Years: 10, DirectionCount: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.withDefaults(tt.in))
		})
	}

	bare := New(nil, nil, types.WorkflowConfig{})
	got := bare.withDefaults(Request{Mode: types.ModeMulti})
	assert.Equal(t, 3, got.MaxResults)
	assert.Equal(t, 5, got.Years)
	assert.Zero(t, got.DirectionCount)
	assert.NotEmpty(t, got.RunID)
}
