package mailbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces well-known queue keys on the NATS side.
const subjectPrefix = "mqchat.q."

// NATSTransport implements the mailbox contract over a local NATS server.
// A queue is a subject: well-known keys map to mqchat.q.<key>, private
// queues are NATS inboxes. The queue id is the subject itself, so it can be
// carried inside COMMAND records like a SysV qid.
//
// Drop semantics differ slightly from the in-process broker: a publish
// never fails with ErrFull; instead the receiver's bounded subscription
// buffer drops overflow, which preserves the same guarantee (a full or
// stuck receiver never blocks the sender). Publishing to a removed queue
// is silently absorbed by the NATS server.
type NATSTransport struct {
	nc    *nats.Conn
	depth int
}

// NewNATS connects to the NATS server at url.
func NewNATS(url string, depth int) (*NATSTransport, error) {
	if depth <= 0 {
		depth = 64
	}
	nc, err := nats.Connect(url, nats.MaxReconnects(5), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSTransport{nc: nc, depth: depth}, nil
}

func (t *NATSTransport) Create(key string) (Queue, error) {
	return t.subscribe(subjectPrefix + key)
}

// Open attaches for sending to the queue with the given well-known key.
// Plain NATS cannot observe whether the owner's subscription exists, so
// absence surfaces as absorbed sends rather than ErrNotFound here.
func (t *NATSTransport) Open(key string) (Queue, error) {
	return &natsQueue{owner: t, subject: subjectPrefix + key}, nil
}

func (t *NATSTransport) CreatePrivate() (Queue, error) {
	return t.subscribe(nats.NewInbox())
}

func (t *NATSTransport) Send(id string, tag Tag, data []byte) error {
	return t.publish(id, tag, data)
}

func (t *NATSTransport) Close() error {
	t.nc.Close()
	return nil
}

func (t *NATSTransport) subscribe(subject string) (Queue, error) {
	ch := make(chan *nats.Msg, t.depth)
	sub, err := t.nc.ChanSubscribe(subject, ch)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	// Bound the client-side buffer as well; overflow beyond it is dropped
	// by the NATS client rather than queued without limit.
	if err := sub.SetPendingLimits(t.depth, -1); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats pending limits: %w", err)
	}
	return &natsQueue{
		owner:   t,
		subject: subject,
		sub:     sub,
		ch:      ch,
		done:    make(chan struct{}),
	}, nil
}

func (t *NATSTransport) publish(subject string, tag Tag, data []byte) error {
	if t.nc.IsClosed() {
		return ErrRemoved
	}
	// One tag byte in front of the payload stands in for the SysV mtype.
	buf := make([]byte, 1+len(data))
	buf[0] = byte(tag)
	copy(buf[1:], data)
	if err := t.nc.Publish(subject, buf); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

type natsQueue struct {
	owner   *NATSTransport
	subject string
	sub     *nats.Subscription
	ch      chan *nats.Msg
	done    chan struct{}
	once    sync.Once
}

func (q *natsQueue) ID() string { return q.subject }

func (q *natsQueue) Send(tag Tag, data []byte) error {
	return q.owner.publish(q.subject, tag, data)
}

func (q *natsQueue) Receive(tag Tag) (Message, error) {
	if q.sub == nil {
		// Send-only attachment from Open.
		return Message{}, ErrNotFound
	}
	for {
		select {
		case <-q.done:
			return Message{}, ErrRemoved
		case msg, ok := <-q.ch:
			if !ok {
				return Message{}, ErrRemoved
			}
			if len(msg.Data) < 1 {
				continue
			}
			if Tag(msg.Data[0]) != tag {
				continue
			}
			return Message{Tag: tag, Data: msg.Data[1:]}, nil
		}
	}
}

func (q *natsQueue) Remove() error {
	var err error
	q.once.Do(func() {
		if q.sub != nil {
			err = q.sub.Unsubscribe()
		}
		if q.done != nil {
			close(q.done)
		}
	})
	return err
}
