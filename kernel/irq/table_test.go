package irq

import "testing"

func TestRegisterInterrupt(t *testing.T) {
	defer resetTable()

	t.Run("success", func(t *testing.T) {
		resetTable()
		if err := RegisterInterrupt(MinIntVec, func(_ *Frame, _ *Regs) {}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("already registered", func(t *testing.T) {
		resetTable()
		_ = RegisterInterrupt(MinIntVec, func(_ *Frame, _ *Regs) {})
		if err := RegisterInterrupt(MinIntVec, func(_ *Frame, _ *Regs) {}); err != ErrAlreadyRegistered {
			t.Fatalf("expected ErrAlreadyRegistered; got %v", err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		resetTable()
		if err := RegisterInterrupt(MinIntVec-1, func(_ *Frame, _ *Regs) {}); err != ErrUnauthorizedVector {
			t.Fatalf("expected ErrUnauthorizedVector; got %v", err)
		}
	})
}

func TestRemoveInterrupt(t *testing.T) {
	defer resetTable()

	t.Run("success", func(t *testing.T) {
		resetTable()
		_ = RegisterInterrupt(MinIntVec, func(_ *Frame, _ *Regs) {})
		if err := RemoveInterrupt(MinIntVec); err != nil {
			t.Fatal(err)
		}
		if table[MinIntVec].enabled {
			t.Fatal("expected entry to be disabled after RemoveInterrupt")
		}
	})

	t.Run("not registered", func(t *testing.T) {
		resetTable()
		if err := RemoveInterrupt(MinIntVec); err != ErrNotRegistered {
			t.Fatalf("expected ErrNotRegistered; got %v", err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		resetTable()
		if err := RemoveInterrupt(MinIntVec - 1); err != ErrUnauthorizedVector {
			t.Fatalf("expected ErrUnauthorizedVector; got %v", err)
		}
	})
}

func TestRegisterException(t *testing.T) {
	defer resetTable()

	t.Run("success", func(t *testing.T) {
		resetTable()
		if err := RegisterException(MaxExcVec, func(_ uint64, _ *Frame, _ *Regs) {}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("already registered", func(t *testing.T) {
		resetTable()
		_ = RegisterException(uint8(PageFaultException), func(_ uint64, _ *Frame, _ *Regs) {})
		if err := RegisterException(uint8(PageFaultException), func(_ uint64, _ *Frame, _ *Regs) {}); err != ErrAlreadyRegistered {
			t.Fatalf("expected ErrAlreadyRegistered; got %v", err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		resetTable()
		if err := RegisterException(MaxExcVec+1, func(_ uint64, _ *Frame, _ *Regs) {}); err != ErrUnauthorizedVector {
			t.Fatalf("expected ErrUnauthorizedVector; got %v", err)
		}
	})
}

func TestRemoveException(t *testing.T) {
	defer resetTable()

	t.Run("success", func(t *testing.T) {
		resetTable()
		_ = RegisterException(uint8(GPFException), func(_ uint64, _ *Frame, _ *Regs) {})
		if err := RemoveException(uint8(GPFException)); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("not registered", func(t *testing.T) {
		resetTable()
		if err := RemoveException(uint8(GPFException)); err != ErrNotRegistered {
			t.Fatalf("expected ErrNotRegistered; got %v", err)
		}
	})
}

func TestIsException(t *testing.T) {
	specs := []struct {
		vector uint8
		exp    bool
	}{
		{0, true},
		{MaxExcVec, true},
		{MaxExcVec + 1, false},
		{IRQBase, false},
	}

	for specIndex, spec := range specs {
		if got := isException(spec.vector); got != spec.exp {
			t.Errorf("[spec %d] expected isException(%d) to be %t; got %t", specIndex, spec.vector, spec.exp, got)
		}
	}
}
