package sync

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"nucleus/kernel/sched"
)

// ErrWouldBlock is returned by Semaphore.TryPend when the semaphore's level
// is not positive.
var ErrWouldBlock = &kernel.Error{Module: "sync", Message: "would block"}

// ErrUninitialized is returned to every waiter of a Semaphore that is
// destroyed while they are blocked in Pend.
var ErrUninitialized = &kernel.Error{Module: "sync", Message: "semaphore destroyed"}

// inInterruptFn reports whether the caller is running in interrupt context,
// in which case Post must defer rescheduling to the handler's return path
// instead of switching threads itself.
var inInterruptFn = irq.InInterruptContext

// Semaphore is a counting semaphore whose blocking operations suspend the
// calling thread through the scheduler rather than busy-waiting.
type Semaphore struct {
	lock    Spinlock
	init    bool
	level   int32
	waiters []*sched.QueueNode
}

// NewSemaphore returns a Semaphore with the given initial level.
func NewSemaphore(level int32) *Semaphore {
	return &Semaphore{init: true, level: level}
}

// Pend blocks the calling thread until the semaphore's level is positive,
// then decrements it. It returns ErrUninitialized if the semaphore is
// destroyed while the caller is blocked.
func (s *Semaphore) Pend() *kernel.Error {
	for {
		s.lock.Acquire()
		if !s.init {
			s.lock.Release()
			return ErrUninitialized
		}
		if s.level >= 1 {
			s.level--
			s.lock.Release()
			return nil
		}

		var node sched.QueueNode
		s.waiters = append(s.waiters, &node)
		s.lock.Release()

		sched.LockCurrent(&node, sched.BlockSem)
		// Woken by Post or destroy(); re-check level/init above to
		// handle the destruction race the scheduler describes.
	}
}

// TryPend is the non-blocking variant of Pend: it returns ErrWouldBlock
// instead of suspending the caller when the level is not positive.
func (s *Semaphore) TryPend() *kernel.Error {
	s.lock.Acquire()
	defer s.lock.Release()

	if !s.init {
		return ErrUninitialized
	}
	if s.level < 1 {
		return ErrWouldBlock
	}
	s.level--
	return nil
}

// Post increments the semaphore's level and, if a waiter is queued, wakes
// the oldest one. Outside interrupt context the wake immediately
// reschedules, giving a higher-priority waiter the CPU before Post's caller
// continues; inside interrupt context the reschedule is left to the
// handler's return path.
func (s *Semaphore) Post() *kernel.Error {
	s.lock.Acquire()
	if !s.init {
		s.lock.Release()
		return ErrUninitialized
	}

	s.level++

	var woken *sched.QueueNode
	if s.level > 0 && len(s.waiters) > 0 {
		woken = s.waiters[0]
		s.waiters = s.waiters[1:]
	}
	s.lock.Release()

	if woken == nil {
		return nil
	}
	if err := sched.Unlock(woken, sched.BlockSem); err != nil {
		return err
	}
	if !inInterruptFn() {
		sched.Yield()
	}
	return nil
}

// Destroy marks the semaphore uninitialized and wakes every blocked waiter
// with ErrUninitialized.
func (s *Semaphore) Destroy() {
	s.lock.Acquire()
	s.init = false
	waiters := s.waiters
	s.waiters = nil
	s.lock.Release()

	for _, n := range waiters {
		sched.Unlock(n, sched.BlockSem)
	}
}
