// Package workpool bounds how many agent steps run at the same time across
// every execution and pipeline invocation in the process.
package workpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool hands out a fixed number of execution slots.
// A nil *Pool runs everything immediately.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	active atomic.Int64
}

// New creates a Pool with size slots. Sizes below one are raised to one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Run waits for a free slot, then calls fn while holding it. If ctx ends
// before a slot frees up, fn is not called and ctx.Err() is returned.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.sem.Release(1)
	}()
	return fn()
}

// Size returns the slot count.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return p.size
}

// Active returns the number of slots currently held.
func (p *Pool) Active() int {
	if p == nil {
		return 0
	}
	return int(p.active.Load())
}
