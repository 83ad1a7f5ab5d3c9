package mailbox

import (
	"strconv"
	"sync"
)

// Broker is the in-process transport: a directory of bounded queues shared
// by every party in the same process. The server's control queue and each
// client's private reply queue are entries in the same broker.
type Broker struct {
	mu     sync.Mutex
	depth  int
	nextID int64
	byID   map[string]*memQueue
	byKey  map[string]*memQueue
}

// NewBroker creates a broker whose queues buffer up to depth messages.
func NewBroker(depth int) *Broker {
	if depth <= 0 {
		depth = 64
	}
	return &Broker{
		depth: depth,
		byID:  make(map[string]*memQueue),
		byKey: make(map[string]*memQueue),
	}
}

// Create makes the queue registered under key, or re-attaches if it exists.
func (b *Broker) Create(key string) (Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.byKey[key]; ok {
		return q, nil
	}
	q := b.newQueueLocked()
	q.key = key
	b.byKey[key] = q
	return q, nil
}

// Open attaches to the queue registered under key.
func (b *Broker) Open(key string) (Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return q, nil
}

// CreatePrivate makes an anonymous queue with a fresh id.
func (b *Broker) CreatePrivate() (Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newQueueLocked(), nil
}

// Send delivers to the queue with the given id.
func (b *Broker) Send(id string, tag Tag, data []byte) error {
	b.mu.Lock()
	q, ok := b.byID[id]
	b.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return q.Send(tag, data)
}

// Close removes every queue still registered with the broker.
func (b *Broker) Close() error {
	b.mu.Lock()
	queues := make([]*memQueue, 0, len(b.byID))
	for _, q := range b.byID {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	for _, q := range queues {
		_ = q.Remove()
	}
	return nil
}

func (b *Broker) newQueueLocked() *memQueue {
	b.nextID++
	q := &memQueue{
		broker: b,
		id:     strconv.FormatInt(b.nextID, 10),
		depth:  b.depth,
	}
	q.cond = sync.NewCond(&q.mu)
	b.byID[q.id] = q
	return q
}

func (b *Broker) forget(q *memQueue) {
	b.mu.Lock()
	delete(b.byID, q.id)
	if q.key != "" {
		delete(b.byKey, q.key)
	}
	b.mu.Unlock()
}

// memQueue is one bounded mailbox: a mutex/cond-guarded FIFO with
// tag-filtered blocking receive.
type memQueue struct {
	broker *Broker
	id     string
	key    string
	depth  int

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Message
	removed bool
}

func (q *memQueue) ID() string { return q.id }

func (q *memQueue) Send(tag Tag, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.removed {
		return ErrRemoved
	}
	if len(q.pending) >= q.depth {
		return ErrFull
	}
	q.pending = append(q.pending, Message{Tag: tag, Data: append([]byte(nil), data...)})
	q.cond.Broadcast()
	return nil
}

func (q *memQueue) Receive(tag Tag) (Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		for i, m := range q.pending {
			if m.Tag == tag {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				return m, nil
			}
		}
		if q.removed {
			return Message{}, ErrRemoved
		}
		q.cond.Wait()
	}
}

func (q *memQueue) Remove() error {
	q.mu.Lock()
	if q.removed {
		q.mu.Unlock()
		return nil
	}
	q.removed = true
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	q.broker.forget(q)
	return nil
}
