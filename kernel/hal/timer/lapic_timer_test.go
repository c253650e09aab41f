package timer

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"testing"
)

type fakeLAPIC struct {
	divide       uint32
	lvtVector    uint8
	lvtMode      uint32
	lvtMasked    bool
	initialCount uint32
	currentCount uint32
	eoiCalls     int
}

func (f *fakeLAPIC) SetTimerDivide(divide uint32) { f.divide = divide }

func (f *fakeLAPIC) SetTimerLVT(vector uint8, mode uint32, masked bool) {
	f.lvtVector, f.lvtMode, f.lvtMasked = vector, mode, masked
}

func (f *fakeLAPIC) SetTimerInitialCount(count uint32) { f.initialCount = count }

func (f *fakeLAPIC) TimerCurrentCount() uint32 { return f.currentCount }

func (f *fakeLAPIC) EOI() { f.eoiCalls++ }

func newTestLAPICTimer(busFreq uint32) (*LAPICTimer, *fakeLAPIC) {
	fake := &fakeLAPIC{}
	return &LAPICTimer{lapic: fake, busFreq: busFreq, disabledNesting: 1, handler: func() {}}, fake
}

func TestLAPICTimerSetFrequency(t *testing.T) {
	t.Run("out of range", func(t *testing.T) {
		timer, _ := newTestLAPICTimer(1000000000)
		if err := timer.SetFrequency(0); err != ErrOutOfRange {
			t.Fatalf("expected ErrOutOfRange; got %v", err)
		}
		if err := timer.SetFrequency(2000000000); err != ErrOutOfRange {
			t.Fatalf("expected ErrOutOfRange; got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		timer, fake := newTestLAPICTimer(16000000)
		if err := timer.SetFrequency(1000); err != nil {
			t.Fatal(err)
		}
		if timer.GetFrequency() != 1000 {
			t.Fatalf("expected frequency 1000; got %d", timer.GetFrequency())
		}
		if fake.initialCount != 1000 {
			t.Fatalf("expected initial count 1000; got %d", fake.initialCount)
		}
	})
}

func TestLAPICTimerEnableDisableNesting(t *testing.T) {
	timer, fake := newTestLAPICTimer(16000000)

	// A new timer starts masked; leave that initial state first.
	if err := timer.Enable(); err != nil {
		t.Fatal(err)
	}

	if err := timer.Disable(); err != nil {
		t.Fatal(err)
	}
	if err := timer.Disable(); err != nil {
		t.Fatal(err)
	}
	if !fake.lvtMasked {
		t.Fatal("expected LVT to be masked after Disable")
	}

	if err := timer.Enable(); err != nil {
		t.Fatal(err)
	}
	if !fake.lvtMasked {
		t.Fatal("expected LVT to still be masked before the matching Enable")
	}

	if err := timer.Enable(); err != nil {
		t.Fatal(err)
	}
	if fake.lvtMasked {
		t.Fatal("expected LVT to be unmasked once nesting unwinds")
	}
}

func TestLAPICTimerSetHandler(t *testing.T) {
	defer func() {
		registerInterruptFn = irq.RegisterInterrupt
	}()

	t.Run("nil handler", func(t *testing.T) {
		timer, _ := newTestLAPICTimer(16000000)
		if err := timer.SetHandler(nil); err != ErrNilHandler {
			t.Fatalf("expected ErrNilHandler; got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		var registeredVector uint8
		registerInterruptFn = func(vector uint8, _ irq.ExceptionHandler) *kernel.Error {
			registeredVector = vector
			return nil
		}

		timer, fake := newTestLAPICTimer(16000000)
		called := false
		if err := timer.SetHandler(func() { called = true }); err != nil {
			t.Fatal(err)
		}
		if registeredVector != LAPICTimerVector {
			t.Fatalf("expected handler registered at vector 0x%x; got 0x%x", LAPICTimerVector, registeredVector)
		}

		timer.tickTrampoline(nil, nil)
		if !called {
			t.Fatal("expected the installed handler to run")
		}
		if fake.eoiCalls != 1 {
			t.Fatalf("expected exactly one EOI; got %d", fake.eoiCalls)
		}
	})
}

func TestLAPICTimerIRQ(t *testing.T) {
	timer, _ := newTestLAPICTimer(16000000)
	if timer.IRQ() != LAPICTimerVector {
		t.Fatalf("expected IRQ() to return 0x%x", LAPICTimerVector)
	}
}
