// Package timer defines the narrow four-function timer contract the
// scheduler installs its tick handler through, plus the drivers that
// implement it: the legacy 8254 PIT and the per-CPU local-APIC timer.
package timer

import "nucleus/kernel"

// Handler is invoked on every timer tick from interrupt context.
type Handler func()

// ErrOutOfRange is returned when a requested frequency falls outside a
// driver's supported range.
var ErrOutOfRange = &kernel.Error{Module: "timer", Message: "frequency out of range"}

// ErrNilHandler is returned by SetHandler when handler is nil.
var ErrNilHandler = &kernel.Error{Module: "timer", Message: "nil handler"}

// Driver is the capability set a timer source exposes. It mirrors the
// interrupt-controller driver contract in kernel/irq: callers never branch
// on the concrete driver type, only on this interface.
type Driver interface {
	// GetFrequency returns the currently configured tick frequency in Hz.
	GetFrequency() uint32

	// SetFrequency reprograms the tick frequency. Implementations return
	// ErrOutOfRange, leaving the current frequency unchanged, when hz falls
	// outside their supported range.
	SetFrequency(hz uint32) *kernel.Error

	// Enable unmasks the timer's IRQ line. Enable nests with Disable: the
	// timer only starts firing once every matching Disable has had a
	// corresponding Enable.
	Enable() *kernel.Error

	// Disable masks the timer's IRQ line.
	Disable() *kernel.Error

	// SetHandler installs fn as the tick handler, replacing any handler
	// previously installed by SetHandler or the zero-value dummy handler
	// used before the first call.
	SetHandler(fn Handler) *kernel.Error

	// RemoveHandler reverts to the dummy handler, which merely
	// acknowledges the interrupt.
	RemoveHandler() *kernel.Error

	// IRQ returns the controller IRQ line this timer delivers on.
	IRQ() uint8
}
