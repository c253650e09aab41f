package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	readCR2Fn   = cpu.ReadCR2
	translateFn = Translate
)

// Init initializes the vmm system, creates a granular PDT for the kernel,
// seeds the kernel virtual page allocator and installs paging-related
// exception handlers.
func Init(kernelPageOffset, kernelEnd uintptr) *kernel.Error {
	if err := setupPDTForKernel(kernelPageOffset); err != nil {
		return err
	}

	if err := InitPageAllocator(kernelEnd); err != nil {
		return err
	}

	// Install arch-specific handlers for vmm-related faults.
	return installFaultHandlers()
}
