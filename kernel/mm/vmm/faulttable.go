package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/sync"
)

// FaultHandler is invoked by the page fault dispatcher when a fault occurs
// inside the address range the handler was registered for. faultAddr is the
// page-aligned address of the faulting access.
type FaultHandler func(faultAddr uintptr, errorCode uint64)

// faultRange is one entry in the address-sorted, non-overlapping list of
// registered fault handlers.
type faultRange struct {
	start, end uintptr
	handler    FaultHandler
	next       *faultRange
}

var (
	faultTableLock sync.Spinlock
	faultTableHead *faultRange

	// ErrHandlerAlreadyExists is returned by RegisterFaultHandler when the
	// requested range overlaps a range that already has a handler.
	ErrHandlerAlreadyExists = &kernel.Error{Module: "vmm", Message: "a fault handler is already registered for an overlapping address range"}
)

// RegisterFaultHandler installs handler to be invoked for faults occurring
// anywhere inside the half-open range [start, end). The range must not
// overlap any range already registered, since the dispatcher calls at most
// one handler per fault.
func RegisterFaultHandler(handler FaultHandler, start, end uintptr) *kernel.Error {
	faultTableLock.Acquire()
	defer faultTableLock.Release()

	var prev, cur *faultRange
	for cur = faultTableHead; cur != nil && cur.start < start; cur = cur.next {
		prev = cur
	}

	if (prev != nil && prev.end > start) || (cur != nil && cur.start < end) {
		return ErrHandlerAlreadyExists
	}

	n := &faultRange{start: start, end: end, handler: handler, next: cur}
	if prev != nil {
		prev.next = n
	} else {
		faultTableHead = n
	}
	return nil
}

// lookupFaultHandler returns the handler registered for the range
// containing addr, or nil if none claims it.
func lookupFaultHandler(addr uintptr) FaultHandler {
	faultTableLock.Acquire()
	defer faultTableLock.Release()
	for cur := faultTableHead; cur != nil && cur.start <= addr; cur = cur.next {
		if addr < cur.end {
			return cur.handler
		}
	}
	return nil
}
