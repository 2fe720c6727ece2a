// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litflow/internal/logging"
	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/pkg/types"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject, data})
	return nil
}

func TestSubject(t *testing.T) {
	m := NewMirror(&fakePublisher{}, "", nil)
	assert.Equal(t, "litflow.runs.abc-1.status", m.Subject("abc-1", progress.TypeStatus))
	assert.Equal(t, "litflow.runs.a_b_c.result", m.Subject("a.b*c", progress.TypeResult))

	m = NewMirror(&fakePublisher{}, "lab.prod", nil)
	assert.Equal(t, "lab.prod.runs.r.error", m.Subject("r", progress.TypeError))
}

func TestPublishChecksContext(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, "litflow", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Publish(ctx, "r", progress.Envelope{Type: progress.TypeStatus})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.msgs)
}

func TestFollowMirrorsRun(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, "litflow", logging.Discard())
	bus := progress.NewBus()
	bus.Publish(types.StatusEvent{Step: "prepare", Status: types.StatusSuccess})
	bus.Publish(types.StatusEvent{Step: "planning", Status: types.StatusRunning})

	done := make(chan struct{})
	go func() {
		m.Follow(context.Background(), "r1", bus)
		close(done)
	}()
	bus.Finish(&types.WorkflowResult{RunID: "r1", Count: 4})
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.msgs, 3)
	assert.Equal(t, "litflow.runs.r1.status", pub.msgs[0].subject)
	assert.Equal(t, "litflow.runs.r1.result", pub.msgs[2].subject)

	var env progress.Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[2].data, &env))
	assert.Equal(t, 4, env.Result.Count)
}

func TestFollowSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	m := NewMirror(pub, "litflow", logging.Discard())
	bus := progress.NewBus()
	bus.Fail(errors.New("planning failed"))

	m.Follow(context.Background(), "r1", bus)
	assert.Empty(t, pub.msgs)
}
