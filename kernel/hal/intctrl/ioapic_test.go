package intctrl

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"nucleus/kernel/mm"
	"nucleus/kernel/mm/vmm"
	"testing"
)

func TestNewIOAPIC(t *testing.T) {
	defer func() {
		mapRegionFn = vmm.MapRegion
	}()

	t.Run("success", func(t *testing.T) {
		mapRegionFn = func(_ mm.Frame, _ uintptr, _ vmm.PageTableEntryFlag) (mm.Page, *kernel.Error) {
			return 0xfec00, nil
		}

		a, err := NewIOAPIC(0xfec00000, &LAPIC{base: make([]uint32, 1024)}, 23)
		if err != nil {
			t.Fatal(err)
		}
		if a == nil {
			t.Fatal("expected non-nil IOAPIC")
		}
	})

	t.Run("map fails", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "no free region"}
		mapRegionFn = func(_ mm.Frame, _ uintptr, _ vmm.PageTableEntryFlag) (mm.Page, *kernel.Error) {
			return 0, expErr
		}

		if _, err := NewIOAPIC(0xfec00000, nil, 23); err != expErr {
			t.Fatalf("expected %v; got %v", expErr, err)
		}
	})
}

func newTestIOAPIC(lapicBacking []uint32) *IOAPIC {
	return &IOAPIC{
		regs:     make([]uint32, 5),
		lapic:    &LAPIC{base: lapicBacking},
		maxEntry: 23,
	}
}

func TestIOAPICProgramAndMask(t *testing.T) {
	a := newTestIOAPIC(make([]uint32, 1024))

	if err := a.Program(2, 0x30, 1); err != nil {
		t.Fatal(err)
	}

	vec, ok := a.VectorForIRQ(2)
	if !ok || vec != 0x30 {
		t.Fatalf("expected vector 0x30; got 0x%x (ok=%v)", vec, ok)
	}

	low := a.read(a.redTblReg(2))
	if low&ioRedTblMasked == 0 {
		t.Fatal("expected line to start masked")
	}

	if err := a.SetMask(2, true); err != nil {
		t.Fatal(err)
	}
	if low := a.read(a.redTblReg(2)); low&ioRedTblMasked != 0 {
		t.Fatal("expected line to be unmasked")
	}

	if err := a.SetMask(2, false); err != nil {
		t.Fatal(err)
	}
	if low := a.read(a.redTblReg(2)); low&ioRedTblMasked == 0 {
		t.Fatal("expected line to be masked again")
	}
}

func TestIOAPICOutOfRange(t *testing.T) {
	a := newTestIOAPIC(make([]uint32, 1024))

	if err := a.SetMask(200, true); err != ErrNoSuchIRQLine {
		t.Fatalf("expected ErrNoSuchIRQLine; got %v", err)
	}
	if err := a.Program(200, 0x30, 0); err != ErrNoSuchIRQLine {
		t.Fatalf("expected ErrNoSuchIRQLine; got %v", err)
	}
	if err := a.SetEOI(200); err != ErrNoSuchIRQLine {
		t.Fatalf("expected ErrNoSuchIRQLine; got %v", err)
	}
	if _, ok := a.VectorForIRQ(200); ok {
		t.Fatal("expected VectorForIRQ to report false for an out-of-range line")
	}
}

func TestIOAPICSetEOI(t *testing.T) {
	lapicBacking := make([]uint32, 1024)
	a := newTestIOAPIC(lapicBacking)

	lapicBacking[lapicRegEOI/4] = 0xdead
	if err := a.SetEOI(2); err != nil {
		t.Fatal(err)
	}
	if got := lapicBacking[lapicRegEOI/4]; got != 0 {
		t.Fatalf("expected SetEOI to clear the LAPIC EOI register; got 0x%x", got)
	}
}

func TestIOAPICClassifySpurious(t *testing.T) {
	a := newTestIOAPIC(make([]uint32, 1024))

	if got := a.ClassifySpurious(lapicSpuriousVector); got != irq.Spurious {
		t.Fatalf("expected the lapic spurious vector to classify as spurious; got %v", got)
	}
	if got := a.ClassifySpurious(0x30); got != irq.Regular {
		t.Fatalf("expected a regular vector to classify as regular; got %v", got)
	}
}
