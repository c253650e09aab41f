package timer

import (
	"nucleus/kernel"
	"nucleus/kernel/hal/intctrl"
	"nucleus/kernel/irq"
)

const (
	// LAPICTimerVector is the vector the local-APIC timer's LVT entry is
	// programmed with. Unlike IRQ-routed sources it does not flow through
	// the active Controller: it is a per-CPU, non-maskable-by-PIC source,
	// so it claims a dedicated vector outside the IRQ range.
	LAPICTimerVector = 0x40

	lapicTimerMinFreq = 1
	lapicTimerMaxFreq = 1000000000
)

// lapicRegisters is the subset of *intctrl.LAPIC this driver depends on,
// narrowed to a local interface so tests can supply a fake without the
// timer package reaching into intctrl's MMIO mapping.
type lapicRegisters interface {
	SetTimerDivide(divide uint32)
	SetTimerLVT(vector uint8, mode uint32, masked bool)
	SetTimerInitialCount(count uint32)
	TimerCurrentCount() uint32
	EOI()
}

// LAPICTimer drives the per-CPU local-APIC timer in periodic mode. Unlike
// the PIT, each CPU has its own instance backed by its own LAPIC register
// window, so a multi-CPU boot installs one per core.
type LAPICTimer struct {
	lapic           lapicRegisters
	busFreq         uint32
	freq            uint32
	handler         Handler
	disabledNesting uint32
}

// NewLAPICTimer returns a driver for the local APIC behind lapic. busFreq is
// the bus frequency (Hz) the caller calibrated the APIC timer against,
// required to translate a requested tick frequency into an initial-count
// value.
func NewLAPICTimer(lapic *intctrl.LAPIC, busFreq uint32) *LAPICTimer {
	return &LAPICTimer{lapic: lapic, busFreq: busFreq, disabledNesting: 1, handler: func() {}}
}

func (t *LAPICTimer) tickTrampoline(_ *irq.Frame, _ *irq.Regs) {
	t.handler()
	t.lapic.EOI()
}

// GetFrequency returns the currently configured tick frequency in Hz.
func (t *LAPICTimer) GetFrequency() uint32 {
	return t.freq
}

// SetFrequency reprograms the timer's initial-count register for the
// requested tick frequency, using a fixed divide-by-16 prescaler.
func (t *LAPICTimer) SetFrequency(hz uint32) *kernel.Error {
	if hz < lapicTimerMinFreq || hz > lapicTimerMaxFreq || hz > t.busFreq {
		return ErrOutOfRange
	}

	t.freq = hz
	t.lapic.SetTimerDivide(intctrl.TimerDivideBy16)
	t.lapic.SetTimerInitialCount((t.busFreq / 16) / hz)
	return nil
}

// Enable unmasks the LVT timer entry once every nested Disable has a
// matching Enable.
func (t *LAPICTimer) Enable() *kernel.Error {
	if t.disabledNesting > 0 {
		t.disabledNesting--
	}
	if t.disabledNesting == 0 {
		t.lapic.SetTimerLVT(LAPICTimerVector, intctrl.LVTTimerPeriodic, false)
	}
	return nil
}

// Disable masks the LVT timer entry.
func (t *LAPICTimer) Disable() *kernel.Error {
	t.disabledNesting++
	t.lapic.SetTimerLVT(LAPICTimerVector, intctrl.LVTTimerPeriodic, true)
	return nil
}

// SetHandler installs fn as the tick handler.
func (t *LAPICTimer) SetHandler(fn Handler) *kernel.Error {
	if fn == nil {
		return ErrNilHandler
	}

	if err := t.Disable(); err != nil {
		return err
	}

	t.handler = fn
	if err := registerInterruptFn(LAPICTimerVector, t.tickTrampoline); err != nil {
		return err
	}

	return t.Enable()
}

// RemoveHandler reverts to a dummy handler that only acknowledges the
// interrupt at the local APIC.
func (t *LAPICTimer) RemoveHandler() *kernel.Error {
	if err := t.Disable(); err != nil {
		return err
	}
	t.handler = func() {}
	return t.Enable()
}

// IRQ returns LAPICTimerVector's reserved vector. The local-APIC timer does
// not route through the shared IRQ line space, so this is a vector, not a
// controller-relative IRQ line; callers that need to distinguish the two
// should type-switch on the driver.
func (t *LAPICTimer) IRQ() uint8 {
	return LAPICTimerVector
}
