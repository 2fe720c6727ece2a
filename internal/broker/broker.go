// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package broker mirrors progress envelopes to NATS so external consumers
// can follow runs without holding an HTTP stream open.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/pkg/types"
)

// Publisher sends raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Mirror republishes bus envelopes under <prefix>.runs.<run_id>.<type>.
type Mirror struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewMirror returns a mirror over pub.
func NewMirror(pub Publisher, prefix string, logger *slog.Logger) *Mirror {
	if prefix == "" {
		prefix = "litflow"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{pub: pub, prefix: prefix, logger: logger}
}

// Connect dials cfg.URL and returns a mirror plus a function that drains
// and closes the connection.
func Connect(cfg types.NATSConfig, logger *slog.Logger) (*Mirror, func(), error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("litflow"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	closer := func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return NewMirror(nc, cfg.SubjectPrefix, logger), closer, nil
}

// Subject returns the subject for one envelope type of a run.
func (m *Mirror) Subject(runID string, typ progress.EnvelopeType) string {
	return strings.Join([]string{m.prefix, "runs", subjectToken(runID), string(typ)}, ".")
}

// Publish sends env as JSON. NATS publish does not take a context, so the
// context is checked first.
func (m *Mirror) Publish(ctx context.Context, runID string, env progress.Envelope) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return m.pub.Publish(m.Subject(runID, env.Type), data)
}

// Follow mirrors every envelope of bus until the run ends or ctx is done.
// Publish failures are logged and do not stop the mirror.
func (m *Mirror) Follow(ctx context.Context, runID string, bus *progress.Bus) {
	sub := bus.Subscribe()
	defer sub.Close()
	for {
		select {
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if err := m.Publish(ctx, runID, env); err != nil {
				m.logger.Warn("mirror publish failed", "run", runID, "seq", env.Seq, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// subjectToken replaces characters NATS treats as subject syntax.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, s)
}
