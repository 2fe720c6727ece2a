// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress is the event feed between a running workflow and its
// observers. Events are ranked, kept monotonic per step, coalesced per
// subscriber, and replayed to late subscribers. Publishing never blocks.
package progress

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/pdiddy/litflow/pkg/types"
)

// EnvelopeType distinguishes status updates from the terminal payload.
type EnvelopeType string

const (
	TypeStatus EnvelopeType = "status"
	TypeResult EnvelopeType = "result"
	TypeError  EnvelopeType = "error"
)

// Envelope is one message on the feed.
type Envelope struct {
	Seq    uint64                `json:"seq"`
	Type   EnvelopeType          `json:"type"`
	Event  *types.StatusEvent    `json:"event,omitempty"`
	Result *types.WorkflowResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// Terminal reports whether the envelope ends the feed.
func (e Envelope) Terminal() bool { return e.Type == TypeResult || e.Type == TypeError }

// Snapshot is the current state of a bus.
type Snapshot struct {
	Events []types.StatusEvent   `json:"events"`
	Result *types.WorkflowResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
	Done   bool                  `json:"done"`
}

// Bus fans status events out to subscribers for one run.
type Bus struct {
	mu       sync.Mutex
	seq      uint64
	ranks    *rankTable
	latest   map[string]Envelope
	history  []types.StatusEvent
	terminal *Envelope
	subs     map[*Subscription]struct{}
	done     chan struct{}
	closed   bool
	now      func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		ranks:  newRankTable(),
		latest: make(map[string]Envelope),
		subs:   make(map[*Subscription]struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Publish records ev and delivers it to every subscriber. It returns false
// when ev was rejected: an unknown status, a status that does not advance
// its step, anything after the step's terminal status, or anything after
// the run ended. Repeated running updates are accepted and replace detail.
func (b *Bus) Publish(ev types.StatusEvent) bool {
	if ev.Status.Order() < 0 || ev.Step == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if prev, ok := b.latest[ev.Step]; ok {
		ps := prev.Event.Status
		if ps.Terminal() || ev.Status.Order() < ps.Order() {
			return false
		}
		if ev.Status == ps && ev.Status != types.StatusRunning {
			return false
		}
	}

	ev.Rank = b.ranks.rank(ev.Step)
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}
	b.seq++
	env := Envelope{Seq: b.seq, Type: TypeStatus, Event: &ev}
	b.latest[ev.Step] = env
	b.history = append(b.history, ev)
	for s := range b.subs {
		s.push(ev.Step, env)
	}
	return true
}

// Finish emits the result as the terminal envelope and closes the bus.
// Only the first of Finish, Fail or Close has any effect.
func (b *Bus) Finish(result *types.WorkflowResult) bool {
	return b.end(Envelope{Type: TypeResult, Result: result})
}

// Fail emits err as the terminal envelope and closes the bus.
func (b *Bus) Fail(err error) bool {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return b.end(Envelope{Type: TypeError, Error: msg})
}

// Close ends every subscription without a terminal envelope.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.end()
	}
	b.subs = nil
	close(b.done)
}

func (b *Bus) end(env Envelope) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.seq++
	env.Seq = b.seq
	b.terminal = &env
	b.closed = true
	for s := range b.subs {
		s.push("", env)
		s.end()
	}
	b.subs = nil
	close(b.done)
	return true
}

// Done is closed once the bus has ended.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Subscribe returns a subscription that first replays the latest event of
// every step in publication order, then the terminal envelope if the run
// has ended, then live events. Replay has no side effects, so subscribing
// again after the run ended yields the same payload.
func (b *Bus) Subscribe() *Subscription {
	s := newSubscription(b)

	b.mu.Lock()
	for _, env := range b.latestLocked() {
		s.push(env.Event.Step, env)
	}
	switch {
	case b.terminal != nil:
		s.push("", *b.terminal)
		s.end()
	case b.closed:
		s.end()
	default:
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	go s.pump()
	return s
}

// History returns every accepted status event in publication order.
func (b *Bus) History() []types.StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.StatusEvent, len(b.history))
	copy(out, b.history)
	return out
}

// Latest returns the latest event per step and the terminal payload.
func (b *Bus) Latest() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	var snap Snapshot
	for _, env := range b.latestLocked() {
		snap.Events = append(snap.Events, *env.Event)
	}
	if b.terminal != nil {
		snap.Done = true
		snap.Result = b.terminal.Result
		snap.Error = b.terminal.Error
	}
	return snap
}

func (b *Bus) latestLocked() []Envelope {
	envs := make([]Envelope, 0, len(b.latest))
	for _, env := range b.latest {
		envs = append(envs, env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Seq < envs[j].Seq })
	return envs
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

// Subscription is one observer's view of a bus. Undelivered status events
// for the same step are coalesced: a newer one replaces the queued one and
// moves to the tail, so delivery order always follows publication order.
type Subscription struct {
	bus    *Bus
	mu     sync.Mutex
	queue  *list.List
	index  map[string]*list.Element
	ended  bool
	notify chan struct{}
	out    chan Envelope
	done   chan struct{}
	once   sync.Once
}

type queued struct {
	key string
	env Envelope
}

func newSubscription(b *Bus) *Subscription {
	return &Subscription{
		bus:    b,
		queue:  list.New(),
		index:  make(map[string]*list.Element),
		notify: make(chan struct{}, 1),
		out:    make(chan Envelope),
		done:   make(chan struct{}),
	}
}

// C returns the delivery channel. It is closed after the terminal envelope
// or when the subscription is closed.
func (s *Subscription) C() <-chan Envelope { return s.out }

// Close stops delivery and detaches from the bus. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.unsubscribe(s)
	})
}

// push enqueues env under key. An empty key is never coalesced.
func (s *Subscription) push(key string, env Envelope) {
	s.mu.Lock()
	if key != "" {
		if el, ok := s.index[key]; ok {
			s.queue.Remove(el)
		}
		s.index[key] = s.queue.PushBack(&queued{key: key, env: env})
	} else {
		s.queue.PushBack(&queued{env: env})
	}
	s.mu.Unlock()
	s.signal()
}

// end marks that nothing more will be pushed.
func (s *Subscription) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		env, ok := s.next()
		if !ok {
			return
		}
		select {
		case s.out <- env:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) next() (Envelope, bool) {
	for {
		s.mu.Lock()
		if el := s.queue.Front(); el != nil {
			q := s.queue.Remove(el).(*queued)
			if q.key != "" && s.index[q.key] == el {
				delete(s.index, q.key)
			}
			s.mu.Unlock()
			return q.env, true
		}
		ended := s.ended
		s.mu.Unlock()
		if ended {
			return Envelope{}, false
		}
		select {
		case <-s.notify:
		case <-s.done:
			return Envelope{}, false
		}
	}
}
