package chat

import (
	"errors"
	"sync"
)

var (
	ErrOutboxClosed = errors.New("outbox closed")
	ErrOutboxFull   = errors.New("outbox full")
)

// Sender is the outbound half of a connection as seen by the Registry.
type Sender interface {
	Send(resp Response) error
}

// Outbox is a connection's buffered outbound queue. The connection's writer
// is its only consumer. Sends never block. A Send that finds the queue full
// closes the outbox: a client that cannot keep up is disconnected rather
// than silently missing responses, and reloads history when it reconnects.
type Outbox struct {
	mu     sync.Mutex
	queue  chan Response
	done   chan struct{}
	closed bool
}

func NewOutbox(size int) *Outbox {
	return &Outbox{
		queue: make(chan Response, size),
		done:  make(chan struct{}),
	}
}

func (o *Outbox) Send(resp Response) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.queue <- resp:
		return nil
	default:
		o.closeLocked()
		return ErrOutboxFull
	}
}

// Receive exposes the queue to the writer. The channel is never closed;
// the writer stops on Done or its context instead.
func (o *Outbox) Receive() <-chan Response {
	return o.queue
}

// Done is closed once the outbox stops accepting responses, either through
// Close or because it overflowed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Close makes every later Send fail. Safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closeLocked()
	o.mu.Unlock()
}

func (o *Outbox) closeLocked() {
	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
}

func (o *Outbox) Len() int {
	return len(o.queue)
}
