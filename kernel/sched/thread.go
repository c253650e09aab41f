package sched

// ThreadID identifies a thread for the lifetime of the kernel. IDs are never
// reused.
type ThreadID int32

// State is a thread's scheduling state.
type State uint8

const (
	// Running is the currently executing thread's state.
	Running State = iota
	// Ready marks a thread sitting in its priority's ready queue.
	Ready
	// Sleeping marks a thread in the wakeup-time-ordered sleep queue.
	Sleeping
	// Waiting marks a thread blocked on a sync primitive; see BlockType.
	Waiting
	// Zombie marks a thread that has returned or been killed and is
	// waiting to be joined.
	Zombie
	// Joining marks a thread blocked inside WaitThread.
	Joining
	// Dead marks a thread whose TCB and stack have been reaped.
	Dead
)

// BlockType records why a Waiting thread is blocked, so Unlock can refuse to
// wake a thread that was blocked for a different reason.
type BlockType uint8

const (
	// BlockSem marks a thread waiting on a semaphore.
	BlockSem BlockType = iota
	// BlockMutex marks a thread waiting on a mutex.
	BlockMutex
	// BlockIO marks a thread waiting on an I/O device.
	BlockIO
)

// ReturnState records how a thread's entry function concluded.
type ReturnState uint8

const (
	// Returned marks a thread whose entry function returned normally.
	Returned ReturnState = iota
	// Killed marks a thread terminated before it returned normally.
	Killed
)

// TerminateCause records why a Killed thread was terminated.
type TerminateCause uint8

const (
	// CauseNone applies to threads that returned normally.
	CauseNone TerminateCause = iota
	// CauseDivByZero marks a thread killed by a divide-by-zero exception.
	CauseDivByZero
	// CausePanic marks a thread killed by an unrecoverable fault.
	CausePanic
)

// Priority is a scheduling priority; lower numbers run first.
type Priority uint32

const (
	// PriorityHighest is the highest (numerically lowest) priority, used
	// by the init thread.
	PriorityHighest Priority = 0
	// NumPriorities is the number of distinct priority levels, and the
	// size of the ready-queue table.
	NumPriorities = 32
	// PriorityIdle is the lowest priority, reserved for the idle thread.
	PriorityIdle Priority = NumPriorities - 1
)

// QueueNode is an intrusive node linking a thread into at most one queue at
// a time: a priority ready queue, the sleep queue, a zombie list, or a sync
// primitive's waiters list.
type QueueNode struct {
	thread *Thread
	next   *QueueNode
	prev   *QueueNode
	// key orders the node within a priority-keyed queue (the sleep queue
	// uses the wakeup deadline; ready queues ignore it, FIFO order is
	// implicit in the linking).
	key uint64
}

// Thread returns the thread this node belongs to.
func (n *QueueNode) Thread() *Thread {
	return n.thread
}

// Thread is a kernel thread control block.
type Thread struct {
	TID  ThreadID
	PTID ThreadID
	Name string

	InitPriority Priority
	Priority     Priority

	State       State
	BlockType   BlockType
	ReturnState ReturnState
	Cause       TerminateCause

	entry func(arg interface{})
	arg   interface{}
	ret   interface{}

	// ctx is an opaque, arch-specific CPU context (stack pointer and
	// enough callee-saved state to resume the thread). archSwitchTo
	// reads and writes it; the scheduler itself never inspects it.
	ctx context

	stack     []byte
	wakeupTime uint64

	children      []ThreadID
	joiningNode   *QueueNode
	readyNode     QueueNode
	sleepNode     QueueNode

	startTime uint64
	endTime   uint64
}
