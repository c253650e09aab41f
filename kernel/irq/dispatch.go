package irq

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/kfmt"
)

var (
	enableInterruptsFn  = cpu.EnableInterrupts
	disableInterruptsFn = cpu.DisableInterrupts
	sendIPIFn           = cpu.SendIPI
	lapicIDFn           = cpu.LAPICID

	// otherCPUIDsFn enumerates the local APIC ids of every other detected
	// CPU. ACPI CPU topology parsing is out of scope for this package; the
	// core only consumes the list through this seam, installed by whatever
	// boot-time probe walks the ACPI MADT.
	otherCPUIDsFn = func() []uint8 { return nil }

	// disableDepth is the nesting counter behind DisableLocalInterrupts/
	// RestoreLocalInterrupts: interrupts are masked on every disable call
	// and actually restored only on the 1->0 transition.
	disableDepth uint32

	spuriousCount uint64

	// panicking is set to true the moment this CPU starts running the
	// panic path, so a second panic IPI received while already panicking
	// just halts silently instead of re-entering the dump.
	panicking bool

	// interruptDepth counts nested Dispatch calls. Handlers that defer
	// rescheduling (e.g. sync.Semaphore.Post) use InInterruptContext to
	// tell whether they are allowed to switch threads directly.
	interruptDepth uint32
)

// InInterruptContext reports whether the caller is running somewhere below
// Dispatch on the current CPU's stack.
func InInterruptContext() bool {
	return interruptDepth != 0
}

// DisableLocalInterrupts masks local interrupt delivery and returns the
// interrupt-enabled state that was in effect immediately before the call.
// Nested calls stack: only the outermost RestoreLocalInterrupts call that
// brings the nesting counter back to zero actually re-enables interrupts.
func DisableLocalInterrupts() bool {
	prevState := disableDepth == 0
	disableInterruptsFn()
	disableDepth++
	return prevState
}

// RestoreLocalInterrupts decrements the nesting counter and re-enables
// local interrupts once it reaches zero, provided prevState indicates they
// were enabled before the matching DisableLocalInterrupts call.
func RestoreLocalInterrupts(prevState bool) {
	if disableDepth == 0 {
		return
	}

	disableDepth--
	if disableDepth == 0 && prevState {
		enableInterruptsFn()
	}
}

// Stats reports the number of spurious interrupts observed since boot.
func Stats() (spuriousInterrupts uint64) {
	return spuriousCount
}

// Dispatch is invoked by the architecture-specific entry stub for every
// vector, exception or IRQ alike. It implements the routing algorithm: mask
// check, spurious classification, then table lookup, falling back to the
// panic handler for an unclaimed vector.
func Dispatch(vector uint8, errorCode uint64, frame *Frame, regs *Regs) {
	if disableDepth != 0 && vector != PanicVector && vector != SchedulerSWVector && !isException(vector) {
		return
	}

	interruptDepth++
	defer func() { interruptDepth-- }()

	if vector >= IRQBase && activeController != nil {
		irqLine := vector - IRQBase
		if activeController.ClassifySpurious(vector) == Spurious {
			spuriousCount++
			_ = SetIRQEOI(irqLine)
			return
		}
	}

	entry := table[vector]
	if !entry.enabled {
		panicHandlerFn(vector, errorCode, frame, regs)
		return
	}

	switch {
	case entry.handlerEC != nil:
		entry.handlerEC(errorCode, frame, regs)
	case entry.handler != nil:
		entry.handler(frame, regs)
	default:
		panicHandlerFn(vector, errorCode, frame, regs)
	}
}

// BroadcastPanic sends the panic vector to every other detected CPU and
// marks this CPU as panicking so a subsequent panic IPI received while
// already unwinding does not re-enter the dump.
func BroadcastPanic() {
	if panicking {
		cpu.Halt()
		for {
		}
	}
	panicking = true

	selfID := lapicIDFn()
	for _, id := range otherCPUIDsFn() {
		if id != selfID {
			sendIPIFn(id, PanicVector)
		}
	}
}

func defaultPanicHandler(vector uint8, errorCode uint64, frame *Frame, regs *Regs) {
	BroadcastPanic()

	kfmt.Printf("\nKERNEL PANIC: unclaimed vector %d (error code 0x%x)\n", vector, errorCode)
	regs.Print()
	frame.Print()

	panic(&kernel.Error{Module: "irq", Message: "unclaimed interrupt vector"})
}
