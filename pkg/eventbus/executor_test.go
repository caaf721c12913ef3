package eventbus_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopExecutorRunPending(t *testing.T) {
	exec := eventbus.NewLoopExecutor()
	var order []int

	exec.Execute(func() { order = append(order, 1) })
	exec.Execute(func() {
		order = append(order, 2)
		exec.Execute(func() { order = append(order, 4) })
	})
	exec.Execute(func() { order = append(order, 3) })
	assert.Equal(t, 3, exec.Pending())

	assert.Equal(t, 4, exec.RunPending())
	assert.Equal(t, []int{1, 2, 3, 4}, order)
	assert.Zero(t, exec.Pending())
	assert.Zero(t, exec.RunPending())
}

func TestLoopExecutorRun(t *testing.T) {
	exec := eventbus.NewLoopExecutor()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- exec.Run(ctx) }()

	var ran atomic.Int32
	for range 5 {
		exec.Execute(func() { ran.Add(1) })
	}
	require.Eventually(t, func() bool { return ran.Load() == 5 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMainContext(t *testing.T) {
	ctx := context.Background()
	assert.False(t, eventbus.OnMain(ctx))
	assert.True(t, eventbus.OnMain(eventbus.WithMain(ctx)))
}

func TestBusOnLoopExecutor(t *testing.T) {
	exec := eventbus.NewLoopExecutor()
	bus := newBus(t, eventbus.WithMainExecutor(exec))
	log := &journal{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = exec.Run(ctx) }()

	require.NoError(t, bus.Register(ctx, &MainListener{log: log}))
	require.NoError(t, bus.Post(ctx, Message{Text: "loop"}))

	require.Eventually(t, func() bool { return len(log.list()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"main:loop:true"}, log.list())
}
