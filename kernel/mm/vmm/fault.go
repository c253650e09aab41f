package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"nucleus/kernel/kfmt"
	"nucleus/kernel/mm"
)

var (
	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}

	// registerExceptionFn is used by tests to avoid touching the real irq
	// dispatch table.
	registerExceptionFn = irq.RegisterException
)

// installFaultHandlers wires the amd64 page-fault and general-protection
// exceptions into the irq dispatcher's shared vector table.
func installFaultHandlers() *kernel.Error {
	if err := registerExceptionFn(uint8(irq.PageFaultException), pageFaultHandler); err != nil {
		return err
	}
	return registerExceptionFn(uint8(irq.GPFException), generalProtectionFaultHandler)
}

// pageFaultHandler looks up the fault-handler table for the faulting page.
// If a handler claims the range, it is invoked and the faulting instruction
// retried; otherwise the fault is not recoverable and the kernel panics.
func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	faultAddress := uintptr(readCR2Fn())
	faultPage := mm.PageFromAddress(faultAddress)

	if handler := lookupFaultHandler(faultPage.Address()); handler != nil {
		handler(faultPage.Address(), errorCode)
		return
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, errUnrecoverableFault)
}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	kfmt.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", faultAddress)
	switch {
	case errorCode == 0:
		kfmt.Printf("read from non-present page")
	case errorCode == 1:
		kfmt.Printf("page protection violation (read)")
	case errorCode == 2:
		kfmt.Printf("write to non-present page")
	case errorCode == 3:
		kfmt.Printf("page protection violation (write)")
	case errorCode == 4:
		kfmt.Printf("page-fault in user-mode")
	case errorCode == 8:
		kfmt.Printf("page table has reserved bit set")
	case errorCode == 16:
		kfmt.Printf("instruction fetch")
	default:
		kfmt.Printf("unknown")
	}

	kfmt.Printf("\n\nRegisters:\n")
	regs.Print()
	frame.Print()

	panic(err)
}

func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	kfmt.Printf("\nGeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	kfmt.Printf("Registers:\n")
	regs.Print()
	frame.Print()

	panic(errUnrecoverableFault)
}
