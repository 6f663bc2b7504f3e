package balancer

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Executor runs CPU bound parsing work. Execute returns ctx.Err() when the
// context ends first; fn's results must then be ignored.
type Executor interface {
	Execute(ctx context.Context, fn func()) error
}

// InlineExecutor runs fn on the calling goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Execute(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

// PoolExecutor bounds the number of concurrent parses across every client
// sharing it.
type PoolExecutor struct {
	sem *semaphore.Weighted
}

// NewPoolExecutor creates a pool running at most size functions at once.
func NewPoolExecutor(size int) *PoolExecutor {
	if size < 1 {
		size = 1
	}
	return &PoolExecutor{sem: semaphore.NewWeighted(int64(size))}
}

func (p *PoolExecutor) Execute(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer p.sem.Release(1)
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
