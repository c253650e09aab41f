package timer

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/irq"
)

const (
	pitCommandPort = 0x43
	pitDataPort    = 0x40
	pitSetFreqCmd  = 0x36

	pitQuartzFreq = 1193182

	pitMinFreq = 19
	pitMaxFreq = 1193182

	// PITIRQLine is the IRQ line the 8254 PIT raises on.
	PITIRQLine = 0
)

var (
	portWriteByteFn = cpu.PortWriteByte

	registerInterruptFn = irq.RegisterInterrupt
	removeInterruptFn   = irq.RemoveInterrupt
	setIRQMaskFn        = irq.SetIRQMask
	setIRQEOIFn         = irq.SetIRQEOI
	vectorForIRQFn      = irq.VectorForIRQ
)

// ErrNoVector is returned when the active interrupt controller has not
// assigned a vector to the PIT's IRQ line yet.
var ErrNoVector = &kernel.Error{Module: "timer", Message: "irq line has no assigned vector"}

// PIT drives the legacy 8254 programmable interval timer in mode 3 (square
// wave), the basic tick source for single-core boot and any CPU that lacks
// a usable local-APIC timer.
type PIT struct {
	disabledNesting uint32
	freq            uint32
	handler         Handler
}

// NewPIT returns a PIT driver with every IRQ masked until Enable is called.
func NewPIT() *PIT {
	return &PIT{disabledNesting: 1, handler: func() {}}
}

func (p *PIT) dummyHandler(_ *irq.Frame, _ *irq.Regs) {
	_ = setIRQEOIFn(PITIRQLine)
}

func (p *PIT) tickTrampoline(_ *irq.Frame, _ *irq.Regs) {
	p.handler()
	_ = setIRQEOIFn(PITIRQLine)
}

// GetFrequency returns the currently configured tick frequency in Hz.
func (p *PIT) GetFrequency() uint32 {
	return p.freq
}

// SetFrequency reprograms the PIT's divisor. The PIT is disabled while the
// new divisor is loaded and re-enabled (matching any previous enable state)
// on return.
func (p *PIT) SetFrequency(hz uint32) *kernel.Error {
	if hz < pitMinFreq || hz > pitMaxFreq {
		return ErrOutOfRange
	}

	if err := p.Disable(); err != nil {
		return err
	}

	p.freq = hz
	divisor := uint16(pitQuartzFreq / hz)
	portWriteByteFn(pitCommandPort, pitSetFreqCmd)
	portWriteByteFn(pitDataPort, uint8(divisor&0xff))
	portWriteByteFn(pitDataPort, uint8(divisor>>8))

	return p.Enable()
}

// Enable unmasks IRQ0 once every nested Disable call has a matching Enable.
func (p *PIT) Enable() *kernel.Error {
	if p.disabledNesting > 0 {
		p.disabledNesting--
	}
	if p.disabledNesting == 0 {
		return setIRQMaskFn(PITIRQLine, true)
	}
	return nil
}

// Disable masks IRQ0 and records the nesting depth so a matching number of
// Enable calls is required before delivery resumes.
func (p *PIT) Disable() *kernel.Error {
	p.disabledNesting++
	return setIRQMaskFn(PITIRQLine, false)
}

// SetHandler installs fn as the tick handler. The PIT is disabled while the
// vector's registration is swapped and re-enabled on return.
func (p *PIT) SetHandler(fn Handler) *kernel.Error {
	if fn == nil {
		return ErrNilHandler
	}

	if err := p.Disable(); err != nil {
		return err
	}

	vector, ok := vectorForIRQFn(PITIRQLine)
	if !ok {
		return ErrNoVector
	}

	if err := removeInterruptFn(vector); err != nil && err != irq.ErrNotRegistered {
		return err
	}

	p.handler = fn
	if err := registerInterruptFn(vector, p.tickTrampoline); err != nil {
		return err
	}

	return p.Enable()
}

// RemoveHandler reverts to a dummy handler that only acknowledges the
// interrupt.
func (p *PIT) RemoveHandler() *kernel.Error {
	if err := p.Disable(); err != nil {
		return err
	}

	vector, ok := vectorForIRQFn(PITIRQLine)
	if !ok {
		return ErrNoVector
	}

	if err := removeInterruptFn(vector); err != nil && err != irq.ErrNotRegistered {
		return err
	}

	p.handler = func() {}
	if err := registerInterruptFn(vector, p.dummyHandler); err != nil {
		return err
	}

	return p.Enable()
}

// IRQ returns the controller IRQ line the PIT delivers on.
func (p *PIT) IRQ() uint8 {
	return PITIRQLine
}
