package vmm

import "testing"

func resetFaultTable() {
	faultTableLock.Acquire()
	faultTableHead = nil
	faultTableLock.Release()
}

func TestRegisterFaultHandler(t *testing.T) {
	defer resetFaultTable()
	resetFaultTable()

	if err := RegisterFaultHandler(func(uintptr, uint64) {}, 0x1000, 0x2000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RegisterFaultHandler(func(uintptr, uint64) {}, 0x3000, 0x4000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Overlapping with an existing range in any direction must fail.
	overlaps := [][2]uintptr{
		{0x0800, 0x1800},
		{0x1800, 0x2800},
		{0x1000, 0x2000},
		{0x0000, 0x5000},
	}
	for _, r := range overlaps {
		if err := RegisterFaultHandler(func(uintptr, uint64) {}, r[0], r[1]); err != ErrHandlerAlreadyExists {
			t.Errorf("range [%#x, %#x): expected ErrHandlerAlreadyExists; got %v", r[0], r[1], err)
		}
	}

	// A disjoint range is fine.
	if err := RegisterFaultHandler(func(uintptr, uint64) {}, 0x2000, 0x3000); err != nil {
		t.Fatalf("unexpected error registering adjoining range: %v", err)
	}
}

func TestLookupFaultHandler(t *testing.T) {
	defer resetFaultTable()
	resetFaultTable()

	called := false
	_ = RegisterFaultHandler(func(addr uintptr, _ uint64) {
		called = true
		if addr != 0x1500 {
			t.Errorf("expected handler invoked with 0x1500; got %#x", addr)
		}
	}, 0x1000, 0x2000)

	h := lookupFaultHandler(0x1500)
	if h == nil {
		t.Fatal("expected a registered handler to be found")
	}
	h(0x1500, 0)
	if !called {
		t.Fatal("expected handler to be invoked")
	}

	if lookupFaultHandler(0x5000) != nil {
		t.Fatal("expected no handler for an address outside any registered range")
	}
}
