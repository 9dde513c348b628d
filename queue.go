package flock

import "sync"

type queuedFrame struct {
	// data is the complete frame to marshal and write, usually a *Payload.
	data interface{}
	// result, when non-nil, receives the write error of the frame.
	result chan error
}

// reply reports the frame's write outcome to a waiting producer, if any.
func (f *queuedFrame) reply(err error) {
	if f.result != nil {
		f.result <- err
	}
}

// queue is the outbound FIFO of a session. A single consumer (the send loop)
// drains it; producers are the heartbeat loop, the handshake, and callers
// enqueueing presence or correlated requests.
type queue struct {
	mu     *sync.Cond
	forks  []*queue
	items  []*queuedFrame
	closed bool
}

func newQueue() *queue {
	return &queue{mu: sync.NewCond(&sync.Mutex{})}
}

// Push appends a new frame to the queue.
func (q *queue) Push(f *queuedFrame) {
	q.mu.L.Lock()
	defer q.mu.L.Unlock()

	for _, fork := range q.forks {
		fork.Push(f)
	}

	q.items = append(q.items, f)
	q.mu.Broadcast()
}

// Close signals that no further frames may be expected on this queue. Any
// blocked Poll returns a closed channel.
func (q *queue) Close() {
	q.mu.L.Lock()
	q.closed = true
	q.mu.L.Unlock()
	q.mu.Broadcast()
}

// Poll returns a channel that yields the head frame once one is available,
// or closes without a value when the queue is closed.
func (q *queue) Poll() <-chan *queuedFrame {
	ch := make(chan *queuedFrame, 1)
	go func() {
		q.mu.L.Lock()
		defer q.mu.L.Unlock()
		defer close(ch)

		for len(q.items) == 0 && !q.closed {
			q.mu.Wait()
		}
		if q.closed {
			return
		}

		head := q.items[0]
		q.items = q.items[1:]
		ch <- head
	}()

	return ch
}

// Requeue returns an undelivered frame to the head of the queue, ahead of
// anything pushed since. Forks receive it at their head as well, so a frame
// handed back during teardown keeps its place across the rotation.
func (q *queue) Requeue(f *queuedFrame) {
	q.mu.L.Lock()
	defer q.mu.L.Unlock()

	for _, fork := range q.forks {
		fork.Requeue(f)
	}

	q.items = append([]*queuedFrame{f}, q.items...)
	q.mu.Broadcast()
}

// Fork creates a new queue that inherits all current *and future* frames
// from this queue. A session forks its queue across reconnects so pending
// frames survive the old socket.
func (q *queue) Fork() *queue {
	q.mu.L.Lock()
	defer q.mu.L.Unlock()

	fork := newQueue()
	fork.items = make([]*queuedFrame, len(q.items))
	copy(fork.items, q.items)
	q.forks = append(q.forks, fork)

	return fork
}
