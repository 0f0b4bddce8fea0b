package loop_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskboard/internal/loop"
)

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	l := loop.New(16)
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoop_RunsInOrder(t *testing.T) {
	t.Parallel()

	l := startLoop(t)

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(testContext(t), func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoop_RecoversPanics(t *testing.T) {
	t.Parallel()

	l := startLoop(t)

	require.NoError(t, l.Post(func() { panic("boom") }))

	ran := false
	require.NoError(t, l.Do(testContext(t), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_PostAfterStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	l := loop.New(1)
	go l.Run(ctx)
	cancel()
	<-l.Done()

	require.ErrorIs(t, l.Post(func() {}), loop.ErrStopped)
	require.ErrorIs(t, l.Do(context.Background(), func() {}), loop.ErrStopped)
}

func TestLoop_AfterFunc(t *testing.T) {
	t.Parallel()

	l := startLoop(t)

	t.Run("fires", func(t *testing.T) {
		fired := make(chan struct{})
		l.AfterFunc(5*time.Millisecond, func() { close(fired) })

		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("cancelled never fires", func(t *testing.T) {
		var fired atomic.Bool
		cancel := l.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
		cancel()
		cancel()

		time.Sleep(60 * time.Millisecond)
		require.NoError(t, l.Do(testContext(t), func() {}))
		assert.False(t, fired.Load())
	})
}

func TestLoop_Every(t *testing.T) {
	t.Parallel()

	l := startLoop(t)

	var n atomic.Int32
	cancel := l.Every(5*time.Millisecond, func() { n.Add(1) })

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, l.Do(testContext(t), func() {}))
	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, l.Do(testContext(t), func() {}))
	assert.Equal(t, after, n.Load())
}
