package sched

// context is the opaque, arch-specific CPU context saved when a thread is
// preempted: a stack pointer into a stack frame prepared so that resuming
// it (via archSwitchTo) returns into the schedule call that suspended the
// thread, with the thread's saved registers restored.
type context struct {
	sp uintptr
}

// archSwitchToFn is mocked by tests to avoid touching real machine state.
var archSwitchToFn = archSwitchTo

// archSwitchTo saves the current CPU context's stack pointer to *saveSP and
// resumes execution at the context whose stack pointer is loadSP. It never
// returns in the conventional sense: control resumes in whatever call frame
// originally called archSwitchTo to suspend the thread now being resumed.
func archSwitchTo(saveSP *uintptr, loadSP uintptr)

// archInitContext prepares a fresh stack for a thread that has never run,
// so the first archSwitchTo into it starts the thread at threadTrampoline.
func archInitContext(stack []byte, trampoline uintptr) uintptr
