package intctrl

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"nucleus/kernel/mm"
	"nucleus/kernel/mm/vmm"
	"unsafe"
)

const (
	ioRegSel = 0x00
	ioWin    = 0x10

	ioApicRegVer      = 0x01
	ioApicRedTblBase  = 0x10

	ioRedTblMasked = 1 << 16

	lapicSpuriousVector = 0xff
)

// IOAPIC drives an IO-APIC paired with the local APICs of every CPU it
// routes interrupts to. Unlike the legacy PIC, every IRQ line has its own
// fully programmable redirection-table entry: vector, delivery mode and
// mask bit all live in a single 64-bit IOREDTBL entry addressed as two
// 32-bit register-window writes.
type IOAPIC struct {
	regs     []uint32
	lapic    *LAPIC
	maxEntry uint8
}

// NewIOAPIC maps the IO-APIC's MMIO register window at physAddr. maxEntry is
// the highest redirection-table index the controller exposes (IOAPICVER's
// "maximum redirection entry" field, one less than the entry count); the
// caller is expected to have read it once during hardware discovery rather
// than have every driver method re-derive it. The paired lapic is used to
// satisfy SetEOI and to classify the LAPIC's own spurious-interrupt vector.
func NewIOAPIC(physAddr uintptr, lapic *LAPIC, maxEntry uint8) (*IOAPIC, *kernel.Error) {
	page, err := mapRegionFn(mm.Frame(physAddr>>mm.PageShift), mm.PageSize, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNoExecute)
	if err != nil {
		return nil, err
	}

	regs := (*[5]uint32)(unsafe.Pointer(page.Address()))
	return &IOAPIC{regs: regs[:], lapic: lapic, maxEntry: maxEntry}, nil
}

// ReadVersion queries the IOAPICVER register, returning the APIC version
// and the maximum redirection-table index it reports. Callers use the
// latter to pass maxEntry to NewIOAPIC.
func (a *IOAPIC) ReadVersion() (version uint8, maxEntry uint8) {
	v := a.read(ioApicRegVer)
	return uint8(v), uint8(v >> 16)
}

func (a *IOAPIC) read(reg uint32) uint32 {
	a.regs[ioRegSel/4] = reg
	return a.regs[ioWin/4]
}

func (a *IOAPIC) write(reg uint32, val uint32) {
	a.regs[ioRegSel/4] = reg
	a.regs[ioWin/4] = val
}

func (a *IOAPIC) redTblReg(irqLine uint8) uint32 {
	return ioApicRedTblBase + uint32(irqLine)*2
}

// SetMask enables or disables delivery of irqLine by toggling the mask bit
// of its redirection-table entry, leaving the vector and delivery mode
// untouched. The vector itself is assigned once by Program.
func (a *IOAPIC) SetMask(irqLine uint8, enabled bool) *kernel.Error {
	if irqLine > a.maxEntry {
		return ErrNoSuchIRQLine
	}

	reg := a.redTblReg(irqLine)
	low := a.read(reg)
	if enabled {
		low &^= ioRedTblMasked
	} else {
		low |= ioRedTblMasked
	}
	a.write(reg, low)
	return nil
}

// Program installs irqLine's redirection-table entry: physical destination
// mode, fixed delivery, the vector this controller assigned to the line,
// masked until SetMask(irqLine, true) is called.
func (a *IOAPIC) Program(irqLine uint8, vector uint8, destAPICID uint8) *kernel.Error {
	if irqLine > a.maxEntry {
		return ErrNoSuchIRQLine
	}

	reg := a.redTblReg(irqLine)
	a.write(reg+1, uint32(destAPICID)<<24)
	a.write(reg, uint32(vector)|ioRedTblMasked)
	return nil
}

// SetEOI acknowledges the interrupt at the paired local APIC; the IO-APIC
// redirection table itself requires no per-line EOI.
func (a *IOAPIC) SetEOI(irqLine uint8) *kernel.Error {
	if irqLine > a.maxEntry {
		return ErrNoSuchIRQLine
	}
	a.lapic.EOI()
	return nil
}

// ClassifySpurious reports the local APIC's spurious vector (0xff by
// convention) as spurious; every IO-APIC-routed vector is regular since the
// redirection table has no equivalent of the 8259's ambiguous IRQ7/IRQ15.
func (a *IOAPIC) ClassifySpurious(vector uint8) irq.SpuriousClass {
	if vector == lapicSpuriousVector {
		return irq.Spurious
	}
	return irq.Regular
}

// VectorForIRQ returns the vector irqLine's redirection-table entry is
// currently programmed with.
func (a *IOAPIC) VectorForIRQ(irqLine uint8) (uint8, bool) {
	if irqLine > a.maxEntry {
		return 0, false
	}
	return uint8(a.read(a.redTblReg(irqLine))), true
}
