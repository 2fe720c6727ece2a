// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the outbound HTTP plumbing shared by every
// record source: a process-wide permit pool and a retrying fetch.
package httputil

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Pool bounds the number of in-flight outbound calls across the whole
// process and optionally paces how fast new calls start. A single Pool is
// shared by every direction of every run built from the same configuration.
type Pool struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	size    int64
	inUse   atomic.Int64
}

// NewPool returns a pool with size permits. A non-positive size means one
// permit. When perSecond is positive, call starts are paced to that rate.
func NewPool(size int, perSecond float64) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
	if perSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return p
}

// Acquire blocks until a permit is available or ctx is done. The returned
// release func must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	if p == nil {
		return func() {}, nil
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for permit: %w", err)
	}
	p.inUse.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			p.inUse.Add(-1)
			p.sem.Release(1)
		}
	}, nil
}

// InUse returns the number of permits currently held.
func (p *Pool) InUse() int {
	if p == nil {
		return 0
	}
	return int(p.inUse.Load())
}

// Size returns the permit count.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return int(p.size)
}
