// Package pmm implements the physical frame allocator (spec component C1):
// a first-fit, coalescing free-region list seeded from the firmware memory
// map and trimmed at the kernel's own static image.
package pmm

import (
	"nucleus/kernel"
	"nucleus/kernel/mm"
	"nucleus/kernel/mm/freelist"
	"nucleus/multiboot"
)

// maxFreeRegions bounds the number of disjoint free regions the allocator
// can ever track. A typical multiboot memory map reports a handful of
// available regions (below 1MB, above the kernel image, any additional
// firmware-reserved holes); this is sized with generous headroom for the
// splits that AllocFrames/FreeFrames produce at the boundaries.
const maxFreeRegions = 256

var (
	list     freelist.List
	nodePool [maxFreeRegions]freelist.Node

	// visitMemRegionsFn is used by tests to feed synthetic memory-map
	// entries without going through the real multiboot info block.
	visitMemRegionsFn = multiboot.VisitMemRegions

	// ErrNoMem is returned when no free region has enough contiguous
	// frames to satisfy an allocation request.
	ErrNoMem = freelist.ErrNoMem

	// ErrInvalidArgument is returned when a request asks for zero frames.
	ErrInvalidArgument = freelist.ErrInvalidArgument
)

// Init ingests the firmware-supplied memory map and registers every
// available region that lies wholly above the kernel's static image,
// trimming any region that straddles kernelEnd. It also installs this
// package's allocator as the kernel's default physical frame source.
//
// multiboot.MemoryMapEntry.Length is a byte count (the real multiboot2
// memory-map wire format reports each region as base+length, confirmed by
// consecutive entries tiling exactly that way), so a region's end is
// PhysAddress+Length, not Length itself. A memory map expressed as
// {base, limit, type} triples — the shorthand used for worked examples
// elsewhere — must first be converted to {base, limit-base, type} before
// being handed to a MemoryMapEntry for this to line up.
func Init(kernelEnd uintptr) *kernel.Error {
	list.Reset(nodePool[:])

	kernelEnd = freelist.AlignUp(kernelEnd)

	visitMemRegionsFn(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		start := freelist.AlignUp(uintptr(region.PhysAddress))
		end := freelist.AlignDown(uintptr(region.PhysAddress + region.Length))
		if end <= start {
			return true
		}

		// Trim any region that straddles the kernel's static image.
		if start < kernelEnd {
			start = kernelEnd
		}
		if end <= start {
			return true
		}

		list.Add(start, end-start)
		return true
	})

	mm.SetFrameAllocator(func() (mm.Frame, *kernel.Error) { return AllocFrames(1) })
	mm.SetFrameFreer(func(f mm.Frame) *kernel.Error { return FreeFrames(f, 1) })
	return nil
}

// AllocFrames returns a physically contiguous run of n frames, or ErrNoMem
// if no free region is large enough. No partial allocation is ever
// returned.
func AllocFrames(n uintptr) (mm.Frame, *kernel.Error) {
	if n == 0 {
		return mm.InvalidFrame, ErrInvalidArgument
	}

	addr, err := list.Alloc(n * mm.PageSize)
	if err != nil {
		return mm.InvalidFrame, err
	}
	return mm.FrameFromAddress(addr), nil
}

// FreeFrames returns a run of n frames starting at addr to the pool,
// merging with any adjacent free region.
func FreeFrames(addr mm.Frame, n uintptr) *kernel.Error {
	if n == 0 {
		return ErrInvalidArgument
	}

	list.Free(addr.Address(), n*mm.PageSize)
	return nil
}

// Regions invokes visit for every free physical region in address order.
// It exists for introspection and testing (invariant I1).
func Regions(visit func(start, size uintptr)) {
	list.Regions(visit)
}
