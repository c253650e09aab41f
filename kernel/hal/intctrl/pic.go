// Package intctrl provides interrupt-controller drivers implementing the
// irq.Controller capability set: a legacy master/slave 8259 PIC pair and an
// IO-APIC/local-APIC combination. Exactly one driver is active at a time;
// irq.SetController swaps the pointer the dispatcher consults.
package intctrl

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/irq"
)

const (
	picMasterCommandPort = 0x20
	picMasterDataPort    = 0x21
	picSlaveCommandPort  = 0xA0
	picSlaveDataPort     = 0xA1

	picEOI = 0x20

	picICW1Init = 0x10
	picICW1ICW4 = 0x01
	picICW4_8086 = 0x01

	picMaxIRQLine = 15
)

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
)

// ErrNoSuchIRQLine is returned when an irq line number exceeds what this
// controller can service.
var ErrNoSuchIRQLine = &kernel.Error{Module: "intctrl", Message: "no such irq line"}

// PIC drives a cascaded pair of 8259 programmable interrupt controllers,
// with the master's IRQs remapped to vectors [masterOffset, masterOffset+7]
// and the slave's to [slaveOffset, slaveOffset+7].
type PIC struct {
	masterOffset uint8
	slaveOffset  uint8
}

// NewPIC returns a PIC driver that remaps the master and slave controllers
// to masterOffset and slaveOffset respectively. The caller is expected to
// pass irq.IRQBase and irq.IRQBase+8.
func NewPIC(masterOffset, slaveOffset uint8) *PIC {
	return &PIC{masterOffset: masterOffset, slaveOffset: slaveOffset}
}

// Init reprograms both PICs via their ICW sequence and masks every IRQ line,
// leaving individual lines to be unmasked via SetMask.
func (p *PIC) Init() {
	portWriteByteFn(picMasterCommandPort, picICW1ICW4|picICW1Init)
	portWriteByteFn(picMasterDataPort, p.masterOffset)
	portWriteByteFn(picMasterDataPort, 0x4)
	portWriteByteFn(picMasterDataPort, picICW4_8086)

	portWriteByteFn(picSlaveCommandPort, picICW1ICW4|picICW1Init)
	portWriteByteFn(picSlaveDataPort, p.slaveOffset)
	portWriteByteFn(picSlaveDataPort, 0x2)
	portWriteByteFn(picSlaveDataPort, picICW4_8086)

	portWriteByteFn(picMasterDataPort, 0xFF)
	portWriteByteFn(picSlaveDataPort, 0xFF)
}

// SetMask enables or disables delivery of irqLine.
func (p *PIC) SetMask(irqLine uint8, enabled bool) *kernel.Error {
	if irqLine > picMaxIRQLine {
		return ErrNoSuchIRQLine
	}

	if irqLine < 8 {
		mask := portReadByteFn(picMasterDataPort)
		if enabled {
			mask &^= 1 << irqLine
		} else {
			mask |= 1 << irqLine
		}
		portWriteByteFn(picMasterDataPort, mask)
		return nil
	}

	cascaded := irqLine - 8
	mask := portReadByteFn(picSlaveDataPort)
	if enabled {
		mask &^= 1 << cascaded
	} else {
		mask |= 1 << cascaded
	}
	portWriteByteFn(picSlaveDataPort, mask)
	return nil
}

// SetEOI acknowledges irqLine, issuing EOI to the slave PIC first when the
// line is cascaded.
func (p *PIC) SetEOI(irqLine uint8) *kernel.Error {
	if irqLine > picMaxIRQLine {
		return ErrNoSuchIRQLine
	}

	if irqLine > 7 {
		portWriteByteFn(picSlaveCommandPort, picEOI)
	}
	portWriteByteFn(picMasterCommandPort, picEOI)
	return nil
}

// ClassifySpurious reports IRQ7 (master) and IRQ15 (slave) as spurious only
// when the corresponding in-service register bit is clear, the standard
// 8259 spurious-IRQ heuristic.
func (p *PIC) ClassifySpurious(vector uint8) irq.SpuriousClass {
	switch vector {
	case p.masterOffset + 7:
		if p.inServiceRegister(picMasterCommandPort)&(1<<7) == 0 {
			return irq.Spurious
		}
	case p.slaveOffset + 7:
		if p.inServiceRegister(picSlaveCommandPort)&(1<<7) == 0 {
			portWriteByteFn(picMasterCommandPort, picEOI)
			return irq.Spurious
		}
	}
	return irq.Regular
}

// VectorForIRQ returns the vector the PIC uses to deliver irqLine.
func (p *PIC) VectorForIRQ(irqLine uint8) (uint8, bool) {
	if irqLine > picMaxIRQLine {
		return 0, false
	}
	if irqLine < 8 {
		return p.masterOffset + irqLine, true
	}
	return p.slaveOffset + (irqLine - 8), true
}

// inServiceRegister reads the in-service register via OCW3 (read ISR
// instead of IRR on the next read from the command port).
func (p *PIC) inServiceRegister(commandPort uint16) uint8 {
	const ocw3ReadISR = 0x0b
	portWriteByteFn(commandPort, ocw3ReadISR)
	return portReadByteFn(commandPort)
}
