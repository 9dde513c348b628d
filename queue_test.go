package flock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poll(t *testing.T, q *queue) (*queuedFrame, bool) {
	t.Helper()
	select {
	case f, ok := <-q.Poll():
		return f, ok
	case <-time.After(time.Second):
		t.Fatal("poll timed out")
		return nil, false
	}
}

func TestQueueOrdering(t *testing.T) {
	q := newQueue()
	q.Push(&queuedFrame{data: "a"})
	q.Push(&queuedFrame{data: "b"})
	q.Push(&queuedFrame{data: "c"})

	for _, want := range []string{"a", "b", "c"} {
		f, ok := poll(t, q)
		require.True(t, ok)
		assert.Equal(t, want, f.data)
	}
}

func TestQueueForkInheritsPendingAndFuture(t *testing.T) {
	q := newQueue()
	q.Push(&queuedFrame{data: "pending"})

	fork := q.Fork()
	q.Push(&queuedFrame{data: "future"})

	f, ok := poll(t, fork)
	require.True(t, ok)
	assert.Equal(t, "pending", f.data)

	f, ok = poll(t, fork)
	require.True(t, ok)
	assert.Equal(t, "future", f.data)
}

func TestQueueRequeueKeepsHeadOrder(t *testing.T) {
	q := newQueue()
	q.Push(&queuedFrame{data: "head"})
	q.Push(&queuedFrame{data: "tail"})

	f, ok := poll(t, q)
	require.True(t, ok)
	require.Equal(t, "head", f.data)

	// The consumer died before writing the frame; it goes back in front.
	q.Requeue(f)

	for _, want := range []string{"head", "tail"} {
		f, ok := poll(t, q)
		require.True(t, ok)
		assert.Equal(t, want, f.data)
	}
}

func TestQueueRequeueSurvivesRotation(t *testing.T) {
	q := newQueue()
	q.Push(&queuedFrame{data: "popped", result: make(chan error, 1)})
	q.Push(&queuedFrame{data: "pending"})

	// A send loop pops the head, then its connection dies before the
	// write. The frame is out of the queue at rotation time.
	f, ok := poll(t, q)
	require.True(t, ok)
	require.Equal(t, "popped", f.data)

	q.Close()
	fork := q.Fork()
	q.Requeue(f)

	got, ok := poll(t, fork)
	require.True(t, ok)
	assert.Equal(t, "popped", got.data, "handed-back frame must stay ahead of pending frames")

	got, ok = poll(t, fork)
	require.True(t, ok)
	assert.Equal(t, "pending", got.data)
}

func TestQueuePollAfterCloseLeavesItems(t *testing.T) {
	q := newQueue()
	q.Push(&queuedFrame{data: "kept"})
	q.Close()

	_, ok := poll(t, q)
	assert.False(t, ok, "a closed queue must not pop")

	fork := q.Fork()
	f, ok := poll(t, fork)
	require.True(t, ok)
	assert.Equal(t, "kept", f.data)
}

func TestQueueCloseWakesPoll(t *testing.T) {
	q := newQueue()

	ch := q.Poll()
	q.Close()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not wake the poller")
	}
}

func TestQueuedFrameReply(t *testing.T) {
	result := make(chan error, 1)
	f := &queuedFrame{data: "x", result: result}

	f.reply(nil)
	assert.NoError(t, <-result)

	// frames without a result channel are fire-and-forget
	(&queuedFrame{data: "y"}).reply(nil)
}
