package irq

import (
	"nucleus/kernel"
	"testing"
)

type mockController struct {
	maskCalls    []uint8
	eoiCalls     []uint8
	spuriousVec  uint8
	vectorForIRQ map[uint8]uint8
}

func (m *mockController) SetMask(irqLine uint8, _ bool) *kernel.Error {
	m.maskCalls = append(m.maskCalls, irqLine)
	return nil
}

func (m *mockController) SetEOI(irqLine uint8) *kernel.Error {
	m.eoiCalls = append(m.eoiCalls, irqLine)
	return nil
}

func (m *mockController) ClassifySpurious(vector uint8) SpuriousClass {
	if vector == m.spuriousVec {
		return Spurious
	}
	return Regular
}

func (m *mockController) VectorForIRQ(irqLine uint8) (uint8, bool) {
	v, ok := m.vectorForIRQ[irqLine]
	return v, ok
}

func TestSetController(t *testing.T) {
	defer func() { activeController = nil }()

	drv := &mockController{}
	SetController(drv)
	if activeController != drv {
		t.Fatal("expected activeController to point to the installed driver")
	}
}

func TestSetIRQMask(t *testing.T) {
	defer func() { activeController = nil }()

	t.Run("no controller", func(t *testing.T) {
		activeController = nil
		if err := SetIRQMask(0, true); err != ErrNoController {
			t.Fatalf("expected ErrNoController; got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		drv := &mockController{}
		SetController(drv)
		if err := SetIRQMask(3, true); err != nil {
			t.Fatal(err)
		}
		if len(drv.maskCalls) != 1 || drv.maskCalls[0] != 3 {
			t.Fatalf("expected SetMask to be called with irq 3; got %v", drv.maskCalls)
		}
	})
}

func TestSetIRQEOI(t *testing.T) {
	defer func() { activeController = nil }()

	t.Run("no controller", func(t *testing.T) {
		activeController = nil
		if err := SetIRQEOI(0); err != ErrNoController {
			t.Fatalf("expected ErrNoController; got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		drv := &mockController{}
		SetController(drv)
		if err := SetIRQEOI(5); err != nil {
			t.Fatal(err)
		}
		if len(drv.eoiCalls) != 1 || drv.eoiCalls[0] != 5 {
			t.Fatalf("expected SetEOI to be called with irq 5; got %v", drv.eoiCalls)
		}
	})
}

func TestVectorForIRQ(t *testing.T) {
	defer func() { activeController = nil }()

	t.Run("no controller", func(t *testing.T) {
		activeController = nil
		if _, ok := VectorForIRQ(0); ok {
			t.Fatal("expected VectorForIRQ to report false with no controller installed")
		}
	})

	t.Run("success", func(t *testing.T) {
		drv := &mockController{vectorForIRQ: map[uint8]uint8{0: 0x20}}
		SetController(drv)
		if v, ok := VectorForIRQ(0); !ok || v != 0x20 {
			t.Fatalf("expected vector 0x20; got 0x%x (ok=%v)", v, ok)
		}
	})
}
