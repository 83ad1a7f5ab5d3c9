// Package mailbox defines the on-host message-queue contract the chat system
// is built on: queues are created or attached by key, carry type-tagged
// messages, support a non-blocking send that fails fast when the queue is
// full, and can be destroyed explicitly, which unblocks every receiver.
//
// Two transports implement the contract: an in-process Broker (tests,
// embedded use) and a NATS-backed transport (separate client/server
// processes on the same host).
package mailbox

import "errors"

// Tag is the numeric message-type tag carried by every message.
type Tag int64

const (
	// TagCommand marks client-to-server records on the control queue.
	TagCommand Tag = 1
	// TagBroadcast marks server-to-client records on private reply queues.
	TagBroadcast Tag = 2
)

var (
	// ErrFull is returned by Send when the target queue's buffer is full.
	ErrFull = errors.New("mailbox: queue full")
	// ErrRemoved is returned when the queue has been destroyed. Receivers
	// blocked in Receive are unblocked with this error.
	ErrRemoved = errors.New("mailbox: queue removed")
	// ErrNotFound is returned when attaching to a key or id that does not
	// name a live queue.
	ErrNotFound = errors.New("mailbox: no such queue")
)

// Message is one tagged payload.
type Message struct {
	Tag  Tag
	Data []byte
}

// Queue is a single mailbox endpoint.
//
// Receive and Remove are meaningful only to the queue's owner (the side
// that created it); any holder may Send.
type Queue interface {
	// ID is the queue's transportable identity, safe to embed in wire
	// records so other processes can send to it.
	ID() string
	// Send appends one message without blocking. It returns ErrFull when
	// the queue buffer is at capacity and ErrRemoved when the queue has
	// been destroyed.
	Send(tag Tag, data []byte) error
	// Receive blocks until a message with the given tag arrives, returning
	// ErrRemoved once the queue is destroyed.
	Receive(tag Tag) (Message, error)
	// Remove destroys the queue. Idempotent.
	Remove() error
}

// Transport creates and attaches queues.
type Transport interface {
	// Create makes (or re-attaches to) the queue with the given well-known key.
	Create(key string) (Queue, error)
	// Open attaches to an existing queue by well-known key; ErrNotFound if
	// no such queue is reachable.
	Open(key string) (Queue, error)
	// CreatePrivate makes an anonymous queue with a fresh unique id.
	CreatePrivate() (Queue, error)
	// Send delivers one message to the queue identified by id, with the
	// same non-blocking semantics as Queue.Send. Sending to a destroyed or
	// unknown queue returns ErrRemoved or ErrNotFound.
	Send(id string, tag Tag, data []byte) error
	// Close releases transport resources. Queues created through the
	// transport are not removed implicitly; their owners do that.
	Close() error
}
