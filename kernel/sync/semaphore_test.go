package sync

import "testing"

func TestSemaphoreTryPend(t *testing.T) {
	s := NewSemaphore(1)

	if err := s.TryPend(); err != nil {
		t.Fatalf("expected the first TryPend to succeed; got %v", err)
	}
	if err := s.TryPend(); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock once the level reaches 0; got %v", err)
	}
}

func TestSemaphorePostIncrementsLevel(t *testing.T) {
	s := NewSemaphore(0)

	if err := s.Post(); err != nil {
		t.Fatal(err)
	}
	if err := s.TryPend(); err != nil {
		t.Fatalf("expected Post to make the semaphore pendable; got %v", err)
	}
}

func TestSemaphorePendPositiveLevelNeverBlocks(t *testing.T) {
	s := NewSemaphore(3)

	for i := 0; i < 3; i++ {
		if err := s.Pend(); err != nil {
			t.Fatalf("pend %d: %v", i, err)
		}
	}
	if err := s.TryPend(); err != ErrWouldBlock {
		t.Fatalf("expected the level to be exhausted; got %v", err)
	}
}

func TestSemaphoreDestroyReturnsUninitialized(t *testing.T) {
	s := NewSemaphore(0)
	s.Destroy()

	if err := s.TryPend(); err != ErrUninitialized {
		t.Fatalf("expected ErrUninitialized after Destroy; got %v", err)
	}
	if err := s.Post(); err != ErrUninitialized {
		t.Fatalf("expected Post on a destroyed semaphore to fail; got %v", err)
	}
}
