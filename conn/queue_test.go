package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueuePushPopFIFO(t *testing.T) {
	q := newQueue[int]()
	q.push(1)
	q.push(2)
	q.push(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.pop()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newQueue[string]()
	done := make(chan string, 1)
	go func() {
		v, ok := q.pop()
		if ok {
			done <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.push("late")

	select {
	case v := <-done:
		require.Equal(t, "late", v)
	case <-time.After(time.Second):
		t.Fatal("pop never returned")
	}
}

func TestQueueDrainsBacklogAfterClose(t *testing.T) {
	q := newQueue[int]()
	q.push(1)
	q.push(2)
	q.closeQueue()

	v, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = q.pop()
	require.True(t, ok)
	require.Equal(t, 2, v)

	_, ok = q.pop()
	require.False(t, ok)
}

func TestQueuePushAfterCloseIsNoop(t *testing.T) {
	q := newQueue[int]()
	q.closeQueue()
	q.push(1)

	_, ok := q.pop()
	require.False(t, ok)
}
