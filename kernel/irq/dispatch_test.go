package irq

import (
	"nucleus/kernel"
	"testing"
)

func resetDispatchState() {
	disableDepth = 0
	spuriousCount = 0
	panicking = false
	activeController = nil
	resetTable()
}

func TestDisableRestoreLocalInterrupts(t *testing.T) {
	defer func() {
		enableInterruptsFn = func() {}
		disableInterruptsFn = func() {}
	}()
	resetDispatchState()

	var enableCalls, disableCalls int
	enableInterruptsFn = func() { enableCalls++ }
	disableInterruptsFn = func() { disableCalls++ }

	t.Run("single level", func(t *testing.T) {
		resetDispatchState()
		enableCalls, disableCalls = 0, 0

		prev := DisableLocalInterrupts()
		if !prev {
			t.Fatal("expected previous state to be enabled")
		}
		if disableCalls != 1 {
			t.Fatalf("expected 1 disable call; got %d", disableCalls)
		}

		RestoreLocalInterrupts(prev)
		if enableCalls != 1 {
			t.Fatalf("expected 1 enable call; got %d", enableCalls)
		}
	})

	t.Run("nested k times", func(t *testing.T) {
		resetDispatchState()
		enableCalls, disableCalls = 0, 0

		const k = 5
		states := make([]bool, k)
		for i := 0; i < k; i++ {
			states[i] = DisableLocalInterrupts()
		}

		if disableCalls != k {
			t.Fatalf("expected %d disable calls; got %d", k, disableCalls)
		}

		for i := k - 1; i >= 0; i-- {
			RestoreLocalInterrupts(states[i])
		}

		if enableCalls != 1 {
			t.Fatalf("expected exactly 1 enable call after unwinding nested disables; got %d", enableCalls)
		}
		if disableDepth != 0 {
			t.Fatalf("expected nesting counter to be 0; got %d", disableDepth)
		}
	})

	t.Run("restore without matching disable is a no-op", func(t *testing.T) {
		resetDispatchState()
		enableCalls, disableCalls = 0, 0

		RestoreLocalInterrupts(true)
		if enableCalls != 0 {
			t.Fatalf("expected no enable call; got %d", enableCalls)
		}
	})
}

func TestDispatch(t *testing.T) {
	resetDispatchState()

	t.Run("dropped while masked", func(t *testing.T) {
		resetDispatchState()
		disableDepth = 1

		var called bool
		_ = RegisterInterrupt(MinIntVec, func(_ *Frame, _ *Regs) { called = true })

		Dispatch(MinIntVec, 0, &Frame{}, &Regs{})
		if called {
			t.Fatal("expected handler not to run while interrupts are masked")
		}
	})

	t.Run("panic vector still dispatches while masked", func(t *testing.T) {
		resetDispatchState()
		disableDepth = 1

		var called bool
		_ = RegisterInterrupt(PanicVector, func(_ *Frame, _ *Regs) { called = true })

		Dispatch(PanicVector, 0, &Frame{}, &Regs{})
		if !called {
			t.Fatal("expected panic vector to dispatch even while masked")
		}
	})

	t.Run("exception still dispatches while masked", func(t *testing.T) {
		resetDispatchState()
		disableDepth = 1

		var called bool
		_ = RegisterException(uint8(PageFaultException), func(_ uint64, _ *Frame, _ *Regs) { called = true })

		Dispatch(uint8(PageFaultException), 0, &Frame{}, &Regs{})
		if !called {
			t.Fatal("expected exception vector to dispatch even while masked")
		}
	})

	t.Run("spurious irq bumps counter and sends eoi", func(t *testing.T) {
		resetDispatchState()
		drv := &mockController{spuriousVec: IRQBase + 1}
		SetController(drv)

		Dispatch(IRQBase+1, 0, &Frame{}, &Regs{})

		if spuriousCount != 1 {
			t.Fatalf("expected spurious counter to be 1; got %d", spuriousCount)
		}
		if len(drv.eoiCalls) != 1 || drv.eoiCalls[0] != 1 {
			t.Fatalf("expected EOI for irq 1; got %v", drv.eoiCalls)
		}
	})

	t.Run("regular irq dispatches registered handler", func(t *testing.T) {
		resetDispatchState()
		drv := &mockController{spuriousVec: 0xff}
		SetController(drv)

		var called bool
		_ = RegisterInterrupt(IRQBase+2, func(_ *Frame, _ *Regs) { called = true })

		Dispatch(IRQBase+2, 0, &Frame{}, &Regs{})
		if !called {
			t.Fatal("expected registered handler to run")
		}
	})

	t.Run("unclaimed vector falls back to panic handler", func(t *testing.T) {
		resetDispatchState()

		var gotVector uint8
		var gotErrCode uint64
		panicHandlerFn = func(vector uint8, errorCode uint64, _ *Frame, _ *Regs) {
			gotVector, gotErrCode = vector, errorCode
		}
		defer func() { panicHandlerFn = defaultPanicHandler }()

		Dispatch(100, 0xdead, &Frame{}, &Regs{})
		if gotVector != 100 || gotErrCode != 0xdead {
			t.Fatalf("expected panic handler to receive (100, 0xdead); got (%d, 0x%x)", gotVector, gotErrCode)
		}
	})
}

func TestStats(t *testing.T) {
	resetDispatchState()
	spuriousCount = 3

	if got := Stats(); got != 3 {
		t.Fatalf("expected Stats() to return 3; got %d", got)
	}
}

func TestBroadcastPanic(t *testing.T) {
	defer func() {
		sendIPIFn = func(_ uint8, _ uint8) {}
		lapicIDFn = func() uint8 { return 0 }
		otherCPUIDsFn = func() []uint8 { return nil }
	}()

	t.Run("first panic sends ipi to every other cpu", func(t *testing.T) {
		resetDispatchState()

		var sent []uint8
		lapicIDFn = func() uint8 { return 0 }
		otherCPUIDsFn = func() []uint8 { return []uint8{0, 1, 2} }
		sendIPIFn = func(apicID uint8, vector uint8) {
			if vector != PanicVector {
				t.Errorf("expected vector %d; got %d", PanicVector, vector)
			}
			sent = append(sent, apicID)
		}

		BroadcastPanic()

		if len(sent) != 2 || sent[0] != 1 || sent[1] != 2 {
			t.Fatalf("expected IPI sent to [1 2]; got %v", sent)
		}
		if !panicking {
			t.Fatal("expected panicking to be set to true")
		}
	})

}

func TestDefaultPanicHandler(t *testing.T) {
	defer func() {
		sendIPIFn = func(_ uint8, _ uint8) {}
		lapicIDFn = func() uint8 { return 0 }
		otherCPUIDsFn = func() []uint8 { return nil }
		panicking = false
	}()
	resetDispatchState()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected defaultPanicHandler to panic")
		}
		if _, ok := r.(*kernel.Error); !ok {
			t.Fatalf("expected panic value to be *kernel.Error; got %T", r)
		}
	}()

	defaultPanicHandler(42, 0, &Frame{}, &Regs{})
}
