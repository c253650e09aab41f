// Package kmain contains the Go entry point invoked by the rt0 assembly
// stub once it has set up a minimal g0 and a bootstrap stack.
package kmain

import (
	"nucleus/kernel"
	"nucleus/kernel/goruntime"
	"nucleus/kernel/hal"
	"nucleus/kernel/hal/intctrl"
	"nucleus/kernel/hal/timer"
	"nucleus/kernel/irq"
	"nucleus/kernel/kfmt"
	"nucleus/kernel/mm/pmm"
	"nucleus/kernel/mm/vmm"
	"nucleus/kernel/sched"
	"nucleus/multiboot"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// tickFrequency is the scheduler's quantum, in Hz.
const tickFrequency = 100

// Kmain is the only Go symbol visible from the rt0 initialization code. The
// rt0 stub passes the multiboot info pointer and the kernel's physical
// start/end addresses as discovered from the linker script.
//
// Kmain is not expected to return; if it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	var err *kernel.Error
	if err = pmm.Init(kernelEnd); err != nil {
		kfmt.Panic(err)
	} else if err = vmm.Init(kernelStart, kernelEnd); err != nil {
		kfmt.Panic(err)
	} else if err = goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}

	irq.Init()
	hal.DetectHardware()

	if err = initInterruptController(); err != nil {
		kfmt.Panic(err)
	}
	drv, err := initTimer()
	if err != nil {
		kfmt.Panic(err)
	}

	if err = sched.Init(drv, mainEntry, nil); err != nil {
		kfmt.Panic(err)
	}

	sched.Yield()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating it as dead code and eliminating the call.
	kfmt.Panic(errKmainReturned)
}

// initInterruptController installs the legacy 8259 PIC, remapped to vectors
// 0x20-0x2f, as the interrupt controller. It does not probe for an
// IOAPIC/LAPIC pair.
func initInterruptController() *kernel.Error {
	pic := intctrl.NewPIC(0x20, 0x28)
	irq.SetController(pic)
	return nil
}

// initTimer installs and enables the PIT at the scheduler's tick frequency.
// A local-APIC timer driver can be substituted once per-CPU bus-frequency
// calibration is wired in; both satisfy timer.Driver so sched.Init does not
// need to change.
func initTimer() (timer.Driver, *kernel.Error) {
	drv := timer.NewPIT()
	if err := drv.SetFrequency(tickFrequency); err != nil {
		return nil, err
	}
	if err := drv.Enable(); err != nil {
		return nil, err
	}
	return drv, nil
}

// mainEntry is the kernel's first ordinary thread, started by the init
// thread once the scheduler is up.
func mainEntry(arg interface{}) {
	kfmt.Printf("kernel up, scheduler running\n")
}
