package sync

import "nucleus/kernel"

// Queue is a fixed-capacity producer/consumer ring buffer built from two
// counting semaphores: readable counts filled slots, writable counts free
// ones. Post blocks while the buffer is full; Pend blocks while it is
// empty.
type Queue struct {
	lock     Spinlock
	buf      []interface{}
	head     int
	tail     int
	readable *Semaphore
	writable *Semaphore
}

// NewQueue returns a Queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	return &Queue{
		buf:      make([]interface{}, capacity),
		readable: NewSemaphore(0),
		writable: NewSemaphore(int32(capacity)),
	}
}

// Post blocks until a free slot is available, then enqueues item.
func (q *Queue) Post(item interface{}) *kernel.Error {
	if err := q.writable.Pend(); err != nil {
		return err
	}

	q.lock.Acquire()
	q.buf[q.head] = item
	q.head = (q.head + 1) % len(q.buf)
	q.lock.Release()

	return q.readable.Post()
}

// Pend blocks until an item is available, then dequeues and returns it.
func (q *Queue) Pend() (interface{}, *kernel.Error) {
	if err := q.readable.Pend(); err != nil {
		return nil, err
	}

	q.lock.Acquire()
	item := q.buf[q.tail]
	q.buf[q.tail] = nil
	q.tail = (q.tail + 1) % len(q.buf)
	q.lock.Release()

	if err := q.writable.Post(); err != nil {
		return nil, err
	}
	return item, nil
}

// Destroy propagates destruction to both backing semaphores, waking every
// blocked producer and consumer with ErrUninitialized.
func (q *Queue) Destroy() {
	q.readable.Destroy()
	q.writable.Destroy()
}

// Mailbox is a single-slot Queue: a Post always blocks until the previous
// item has been Pend'd.
type Mailbox struct {
	*Queue
}

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{Queue: NewQueue(1)}
}
