package sync

import "testing"

func TestQueuePostPendFIFO(t *testing.T) {
	q := NewQueue(4)

	if err := q.Post("a"); err != nil {
		t.Fatal(err)
	}
	if err := q.Post("b"); err != nil {
		t.Fatal(err)
	}

	got, err := q.Pend()
	if err != nil {
		t.Fatal(err)
	}
	if got != "a" {
		t.Fatalf("expected \"a\" first; got %v", got)
	}

	got, err = q.Pend()
	if err != nil {
		t.Fatal(err)
	}
	if got != "b" {
		t.Fatalf("expected \"b\" second; got %v", got)
	}
}

func TestQueueWritableExhausted(t *testing.T) {
	q := NewQueue(2)

	if err := q.Post(1); err != nil {
		t.Fatal(err)
	}
	if err := q.Post(2); err != nil {
		t.Fatal(err)
	}
	if err := q.writable.TryPend(); err != ErrWouldBlock {
		t.Fatalf("expected the writable semaphore to be exhausted at capacity; got %v", err)
	}
}

func TestQueueDestroyPropagates(t *testing.T) {
	q := NewQueue(1)
	q.Destroy()

	if err := q.readable.TryPend(); err != ErrUninitialized {
		t.Fatalf("expected readable to report ErrUninitialized; got %v", err)
	}
	if err := q.writable.TryPend(); err != ErrUninitialized {
		t.Fatalf("expected writable to report ErrUninitialized; got %v", err)
	}
}

func TestMailboxSingleSlot(t *testing.T) {
	mb := NewMailbox()

	if err := mb.Post("hello"); err != nil {
		t.Fatal(err)
	}
	if err := mb.writable.TryPend(); err != ErrWouldBlock {
		t.Fatalf("expected the mailbox's single slot to be full; got %v", err)
	}

	got, err := mb.Pend()
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("expected \"hello\"; got %v", got)
	}
}
