package intctrl

import (
	"nucleus/kernel"
	"nucleus/kernel/mm"
	"nucleus/kernel/mm/vmm"
	"unsafe"
)

const (
	lapicRegEOI       = 0x0B0
	lapicRegSpurious  = 0x0F0
	lapicRegID        = 0x020
	lapicRegICRLow    = 0x300
	lapicRegICRHigh   = 0x310
	lapicRegLVTTimer  = 0x320
	lapicRegTimerICR  = 0x380
	lapicRegTimerCCR  = 0x390
	lapicRegTimerDCR  = 0x3E0

	lapicSpuriousEnable = 1 << 8
	icrDeliveryNoShort  = 0x00000000

	// LVTTimerPeriodic selects periodic (auto-reload) mode in the LVT
	// timer entry; the zero value is one-shot.
	LVTTimerPeriodic = 0x20000
	// LVTMasked masks the LVT entry's interrupt.
	LVTMasked = 1 << 16
	// TimerDivideBy16 programs the timer divide-configuration register
	// for a divide-by-16 prescaler.
	TimerDivideBy16 = 0x3
)

// LAPIC wraps the per-CPU memory-mapped local-APIC register window. It is
// shared by the IOAPIC controller (for EOI) and by cpu.SendIPI's backing
// implementation (panic/SMP bring-up IPIs).
type LAPIC struct {
	base []uint32
}

// mapRegionFn is mocked by tests to avoid touching the real mapper.
var mapRegionFn = vmm.MapRegion

// NewLAPIC maps the local-APIC register page at physAddr and returns a
// ready-to-use LAPIC.
func NewLAPIC(physAddr uintptr) (*LAPIC, *kernel.Error) {
	page, err := mapRegionFn(mm.Frame(physAddr>>mm.PageShift), mm.PageSize, vmm.FlagPresent|vmm.FlagRW)
	if err != nil {
		return nil, err
	}

	base := (*[1024]uint32)(unsafe.Pointer(page.Address()))
	return &LAPIC{base: base[:]}, nil
}

func (l *LAPIC) read(reg uint32) uint32 {
	return l.base[reg/4]
}

func (l *LAPIC) write(reg uint32, val uint32) {
	l.base[reg/4] = val
}

// ID returns the executing CPU's local-APIC id.
func (l *LAPIC) ID() uint8 {
	return uint8(l.read(lapicRegID) >> 24)
}

// EnableSpurious programs the spurious-interrupt vector register, which
// must be done once before interrupts are unmasked.
func (l *LAPIC) EnableSpurious(vector uint8) {
	l.write(lapicRegSpurious, uint32(vector)|lapicSpuriousEnable)
}

// EOI acknowledges the current in-service interrupt at this local APIC.
func (l *LAPIC) EOI() {
	l.write(lapicRegEOI, 0)
}

// SendIPI sends vector to the CPU whose local-APIC id is apicID.
func (l *LAPIC) SendIPI(apicID uint8, vector uint8) {
	l.write(lapicRegICRHigh, uint32(apicID)<<24)
	l.write(lapicRegICRLow, icrDeliveryNoShort|uint32(vector))
}

// SetTimerDivide programs the timer's divide-configuration register.
func (l *LAPIC) SetTimerDivide(divide uint32) {
	l.write(lapicRegTimerDCR, divide)
}

// SetTimerLVT programs the LVT timer entry with vector and mode (0 for
// one-shot, LVTTimerPeriodic for periodic), ORed with LVTMasked when masked
// is true.
func (l *LAPIC) SetTimerLVT(vector uint8, mode uint32, masked bool) {
	val := uint32(vector) | mode
	if masked {
		val |= LVTMasked
	}
	l.write(lapicRegLVTTimer, val)
}

// SetTimerInitialCount writes the initial-count register, arming the timer.
func (l *LAPIC) SetTimerInitialCount(count uint32) {
	l.write(lapicRegTimerICR, count)
}

// TimerCurrentCount reads the current-count register.
func (l *LAPIC) TimerCurrentCount() uint32 {
	return l.read(lapicRegTimerCCR)
}
