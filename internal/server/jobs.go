package server

import "sync"

type jobKind int

const (
	jobBroadcast jobKind = iota
	jobUnicast
)

// job is one delivery task produced by a handler or the monitor and
// consumed by a worker.
type job struct {
	kind jobKind
	// channel names the target room for broadcasts.
	channel string
	// target is the reply-queue id for unicasts.
	target string
	// sender is the display-ready label the client prints verbatim.
	sender string
	text   string
}

// jobQueue is the FIFO between handlers and the worker pool. It is
// unbounded: handlers enqueue while holding the registry lock, so a full
// queue must never make them wait on a worker that needs that same lock.
// Drop discipline lives at delivery, not here.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []job
	closed bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends one job and wakes a waiting worker. Pushes after close are
// discarded.
func (q *jobQueue) push(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	q.cond.Signal()
	return true
}

// pop blocks until a job is available or the queue is closed and drained.
func (q *jobQueue) pop() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.jobs) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

// close lets workers drain the remaining jobs and then return.
func (q *jobQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
