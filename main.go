package main

import "nucleus/kernel/kmain"

// multibootInfoPtr, kernelStart and kernelEnd are populated by the rt0
// assembly stub before it calls main; they are declared here as package
// variables (rather than passed as literal arguments) so the Go compiler
// cannot prove them constant and fold away the call to Kmain.
var (
	multibootInfoPtr uintptr
	kernelStart      uintptr
	kernelEnd        uintptr
)

// main is the only Go symbol visible from the rt0 initialization code. It
// works as a trampoline into the real kernel entry point, kmain.Kmain; rt0
// has already set up the GDT and a minimal g0 with a bootstrap stack by the
// time this runs.
//
// main is not expected to return. If it does, rt0 halts the CPU.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)
}
