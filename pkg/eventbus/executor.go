package eventbus

import (
	"context"
	"sync"
)

// MainExecutor runs functions on the application's main loop, such as a UI
// or game loop. Main and MainOrdered handlers are delivered through it.
type MainExecutor interface {
	Execute(fn func())
}

type ctxKey int

const (
	mainKey ctxKey = iota
	backgroundKey
	postingKey
)

// OnMain reports whether ctx belongs to a delivery running on the main
// executor. Handlers pass their ctx to Post so nested Main deliveries run
// inline instead of being queued behind themselves.
func OnMain(ctx context.Context) bool {
	v, _ := ctx.Value(mainKey).(bool)
	return v
}

// WithMain marks ctx as running on the main loop. Applications call it for
// code they run on the loop outside of bus deliveries.
func WithMain(ctx context.Context) context.Context {
	return context.WithValue(ctx, mainKey, true)
}

func onBackground(ctx context.Context) bool {
	v, _ := ctx.Value(backgroundKey).(bool)
	return v
}

// LoopExecutor is a MainExecutor with an unbounded FIFO queue drained by
// Run or RunPending on the loop goroutine.
type LoopExecutor struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

var _ MainExecutor = (*LoopExecutor)(nil)

// NewLoopExecutor creates an empty LoopExecutor.
func NewLoopExecutor() *LoopExecutor {
	return &LoopExecutor{wake: make(chan struct{}, 1)}
}

// Execute queues fn. It never blocks.
func (l *LoopExecutor) Execute(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunPending runs queued functions until the queue is empty, including any
// they queue themselves, and returns how many ran.
func (l *LoopExecutor) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
		}
		n += len(batch)
	}
}

// Pending returns the number of queued functions.
func (l *LoopExecutor) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run drains the queue on the calling goroutine until ctx is done.
func (l *LoopExecutor) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
