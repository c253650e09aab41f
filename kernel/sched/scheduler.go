package sched

import (
	"reflect"

	"nucleus/kernel"
	"nucleus/kernel/hal/timer"
	"nucleus/kernel/kfmt"
)

const (
	// defaultStackSize is the stack allocated for every thread created
	// through CreateThread. The init and idle threads get the same size;
	// none of this kernel's threads are expected to recurse deeply.
	defaultStackSize = 16 * 1024

	// systemThreadCount is the number of threads the kernel itself creates
	// (init and idle) before handing control to main. The init thread
	// halts the system once the live thread count drops back to this
	// number.
	systemThreadCount = 2
)

var (
	// ErrForbiddenPriority is returned by CreateThread when the requested
	// priority falls outside [PriorityHighest, PriorityIdle].
	ErrForbiddenPriority = &kernel.Error{Module: "sched", Message: "forbidden priority"}

	// ErrNoSuchBlock is returned by Unlock when the node it is asked to
	// wake was not blocked for the BlockType given.
	ErrNoSuchBlock = &kernel.Error{Module: "sched", Message: "thread not blocked on this primitive"}

	// ErrNoSuchThread is returned by WaitThread when tid does not name a
	// live child of the calling thread.
	ErrNoSuchThread = &kernel.Error{Module: "sched", Message: "no such thread"}
)

// readyQueues holds one FIFO per priority level; index 0 is the highest
// priority.
var readyQueues [NumPriorities]queue

var sleeping sleepQueue
var zombies queue

// registry indexes every live thread by TID so WaitThread, TerminateCurrent
// and friends can look one up without walking a queue.
var registry = map[ThreadID]*Thread{}

var (
	current    *Thread
	idleThread *Thread
	initThread *Thread

	lastTID     ThreadID
	liveThreads int

	// firstSchedule gates the bootstrap path: the very first call to
	// schedule() has no "current" thread whose context needs saving, it
	// just switches into whichever thread the election picked.
	firstSchedule = true

	// tickCount is the monotonic tick counter driven by the timer
	// driver's handler; Sleep's wakeup deadlines are expressed in it.
	tickCount uint64
)

// Init installs the scheduler's tick handler on drv, creates the init and
// idle threads and prepares the scheduler to run. It must be called exactly
// once, after the timer driver and interrupt controller are both up.
func Init(drv timer.Driver, main func(arg interface{}), mainArg interface{}) *kernel.Error {
	idleThread = newThread("idle", PriorityIdle, func(interface{}) {
		for {
			idleLoopFn()
		}
	}, nil)
	idleThread.State = Ready

	initThread = newThread("init", PriorityHighest, func(arg interface{}) {
		initMain(arg)
	}, initArgs{main: main, arg: mainArg})
	initThread.State = Ready
	readyQueues[PriorityHighest].pushBack(&initThread.readyNode)

	return drv.SetHandler(onTick)
}

type initArgs struct {
	main func(arg interface{})
	arg  interface{}
}

// idleLoopFn is a seam over the architecture's halt-until-interrupt
// primitive so tests can run the idle thread's body without blocking.
var idleLoopFn = func() {}

// initMain runs as the init thread: it starts main as a regular thread,
// then joins every child forever, halting the system once the live thread
// count returns to systemThreadCount (itself and idle, with main's thread
// having been reaped).
func initMain(arg interface{}) {
	a := arg.(initArgs)
	mainTID, err := CreateThread("main", PriorityHighest+1, a.main, a.arg)
	if err != nil {
		kfmt.Panic(err)
	}

	for {
		if liveThreads <= systemThreadCount {
			haltSystemFn()
			return
		}
		if _, _, err := WaitThread(mainTID); err == nil {
			continue
		}
		if _, _, err := WaitThread(0); err != nil {
			// no children left to reap; fall through to the
			// liveThreads check above on the next tick.
			Sleep(1)
		}
	}
}

// haltSystemFn is a seam over the arch-specific "stop the machine"
// primitive.
var haltSystemFn = func() {}

func nextTID() ThreadID {
	lastTID++
	return lastTID
}

func newThread(name string, prio Priority, entry func(interface{}), arg interface{}) *Thread {
	t := &Thread{
		TID:          nextTID(),
		Name:         name,
		InitPriority: prio,
		Priority:     prio,
		entry:        entry,
		arg:          arg,
		stack:        make([]byte, defaultStackSize),
	}
	t.readyNode.thread = t
	t.sleepNode.thread = t
	t.ctx.sp = archInitContext(t.stack, trampolineAddr)
	registry[t.TID] = t
	liveThreads++
	return t
}

// trampolineAddr is threadTrampoline's entry address, resolved once at
// package init time and handed to archInitContext for every new thread's
// initial stack frame.
var trampolineAddr = reflect.ValueOf(threadTrampoline).Pointer()

// threadTrampoline is where archSwitchTo lands the very first time a thread
// is resumed. It runs the thread's entry function to completion and then
// terminates it as if it had called TerminateCurrent(Returned, CauseNone).
func threadTrampoline() {
	t := current
	t.ret = runEntry(t)
	terminate(t, Returned, CauseNone)
	schedule()
	panic("unreachable: terminated thread resumed")
}

func runEntry(t *Thread) (ret interface{}) {
	t.entry(t.arg)
	return nil
}

// CreateThread allocates a new thread running entry(arg) at priority prio
// and places it on its ready queue. It returns ErrForbiddenPriority if prio
// is outside [PriorityHighest, PriorityIdle].
func CreateThread(name string, prio Priority, entry func(interface{}), arg interface{}) (ThreadID, *kernel.Error) {
	if prio > PriorityIdle {
		return 0, ErrForbiddenPriority
	}

	t := newThread(name, prio, entry, arg)
	t.PTID = 0
	if current != nil {
		t.PTID = current.TID
		current.children = append(current.children, t.TID)
	}
	t.State = Ready
	readyQueues[prio].pushBack(&t.readyNode)
	return t.TID, nil
}

// onTick is installed as the timer driver's handler. It advances the tick
// counter, wakes any sleepers whose deadline has arrived and elects a new
// thread to run.
func onTick() {
	tickCount++
	for _, n := range sleeping.drainExpired(tickCount) {
		t := n.thread
		t.State = Ready
		readyQueues[t.Priority].pushBack(&t.readyNode)
	}
	schedule()
}

// schedule performs one round of the election algorithm: requeue the
// current thread if it is still runnable, pop the highest-priority
// non-empty ready queue, and switch into it.
func schedule() {
	prev := current

	if prev != nil && prev.State == Running {
		prev.State = Ready
		readyQueues[prev.Priority].pushBack(&prev.readyNode)
	}

	var next *Thread
	for p := 0; p < NumPriorities; p++ {
		if node := readyQueues[p].popFront(); node != nil {
			next = node.thread
			break
		}
	}
	if next == nil {
		next = idleThread
	}

	next.State = Running
	current = next

	if firstSchedule {
		firstSchedule = false
		var discard uintptr
		archSwitchToFn(&discard, next.ctx.sp)
		return
	}

	archSwitchToFn(&prev.ctx.sp, next.ctx.sp)
}

// Yield gives up the remainder of the calling thread's quantum without
// blocking it: it is requeued at its own priority and the next eligible
// thread is elected. Spinlock.Acquire uses this to back off under
// contention instead of busy-waiting indefinitely.
func Yield() {
	schedule()
}

// Sleep blocks the calling thread for at least ms milliseconds of ticks.
func Sleep(ms uint64) {
	t := current
	t.wakeupTime = tickCount + ms
	t.State = Sleeping
	t.sleepNode.key = t.wakeupTime
	sleeping.insert(&t.sleepNode)
	schedule()
}

// LockCurrent blocks the calling thread on a synchronization primitive of
// kind typ, linking it into node's slot so the primitive's Unlock can find
// it again. The caller owns node's memory (normally embedded in the
// primitive's waiter list).
func LockCurrent(node *QueueNode, typ BlockType) {
	t := current
	t.State = Waiting
	t.BlockType = typ
	node.thread = t
	schedule()
}

// Unlock wakes the thread blocked at node, provided it was blocked for
// reason typ. It returns ErrNoSuchBlock if the thread's BlockType does not
// match, without waking it.
func Unlock(node *QueueNode, typ BlockType) *kernel.Error {
	t := node.thread
	if t == nil || t.State != Waiting || t.BlockType != typ {
		return ErrNoSuchBlock
	}
	t.State = Ready
	readyQueues[t.Priority].pushBack(&t.readyNode)
	return nil
}

// TerminateCurrent ends the calling thread's execution with the given
// cause and does not return.
func TerminateCurrent(cause TerminateCause) {
	rs := Returned
	if cause != CauseNone {
		rs = Killed
	}
	terminate(current, rs, cause)
	schedule()
	panic("unreachable: terminated thread resumed")
}

// terminate moves t to the Zombie state, reparents its surviving children to
// init, and wakes its joiner if one is already waiting.
func terminate(t *Thread, rs ReturnState, cause TerminateCause) {
	t.ReturnState = rs
	t.Cause = cause
	t.State = Zombie
	t.endTime = tickCount
	liveThreads--

	for _, childTID := range t.children {
		if child, ok := registry[childTID]; ok {
			child.PTID = initThread.TID
			initThread.children = append(initThread.children, childTID)
		}
	}
	t.children = nil

	zombies.pushBack(&t.readyNode)

	if parent, ok := registry[t.PTID]; ok && parent.joiningNode != nil {
		Unlock(parent.joiningNode, BlockIO)
	}
}

// WaitThread blocks the calling thread until the child identified by tid
// exits, then reaps it and returns its return value and termination state.
// tid == 0 waits for any child. It returns ErrNoSuchThread if tid names no
// live child of the caller.
func WaitThread(tid ThreadID) (interface{}, ReturnState, *kernel.Error) {
	parent := current

	for {
		for _, n := range zombiesSnapshot() {
			z := n.thread
			if z.PTID != parent.TID {
				continue
			}
			if tid != 0 && z.TID != tid {
				continue
			}
			zombies.remove(n)
			reap(parent, z)
			return z.ret, z.ReturnState, nil
		}

		if !hasChild(parent, tid) {
			return nil, Returned, ErrNoSuchThread
		}

		var node QueueNode
		parent.joiningNode = &node
		LockCurrent(&node, BlockIO)
		parent.joiningNode = nil
	}
}

func zombiesSnapshot() []*QueueNode {
	var nodes []*QueueNode
	for n := zombies.head; n != nil; n = n.next {
		nodes = append(nodes, n)
	}
	return nodes
}

func hasChild(parent *Thread, tid ThreadID) bool {
	if tid == 0 {
		return len(parent.children) > 0
	}
	for _, c := range parent.children {
		if c == tid {
			return true
		}
	}
	return false
}

func reap(parent *Thread, z *Thread) {
	for i, c := range parent.children {
		if c == z.TID {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	delete(registry, z.TID)
	z.State = Dead
}

// Current returns the thread currently selected as Running.
func Current() *Thread {
	return current
}

// Ticks returns the scheduler's monotonic tick counter.
func Ticks() uint64 {
	return tickCount
}
