package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/mm"
	"nucleus/kernel/mm/freelist"
)

// maxFreePageRegions bounds the number of disjoint free regions the kernel
// page allocator can track; see pmm.maxFreeRegions for the same reasoning.
const maxFreePageRegions = 256

var (
	pageList     freelist.List
	pageNodePool [maxFreePageRegions]freelist.Node

	// kernelEndPage is the lowest page this allocator is ever allowed to
	// hand out or take back; it guards against corrupting the static
	// kernel image's own tracking.
	kernelEndPage mm.Page
)

// InitPageAllocator seeds the free list of kernel virtual pages over
// [kernelEnd, tempMappingAddr), i.e. the kernel half of the address space
// excluding the recursive self-mapping slot.
func InitPageAllocator(kernelEnd uintptr) *kernel.Error {
	kernelEnd = freelist.AlignUp(kernelEnd)
	kernelEndPage = mm.PageFromAddress(kernelEnd)

	pageList.Reset(pageNodePool[:])
	pageList.Add(kernelEnd, tempMappingAddr-kernelEnd)
	return nil
}

// AllocPages reserves n contiguous free kernel virtual pages and returns the
// first one.
func AllocPages(n uintptr) (mm.Page, *kernel.Error) {
	if n == 0 {
		return 0, freelist.ErrInvalidArgument
	}

	addr, err := pageList.Alloc(n * mm.PageSize)
	if err != nil {
		return 0, err
	}
	return mm.PageFromAddress(addr), nil
}

// AllocPagesFrom anchors an allocation of n pages at a specific virtual
// base. The free region that contains [base, base+n*PageSize) is split
// around the allocation.
func AllocPagesFrom(base mm.Page, n uintptr) *kernel.Error {
	if n == 0 {
		return freelist.ErrInvalidArgument
	}
	return pageList.AllocFrom(base.Address(), n*mm.PageSize)
}

// FreePages returns n pages starting at addr to the pool. Freeing any page
// below kernelEndPage is refused: it would corrupt the static kernel
// image's own address tracking.
func FreePages(addr mm.Page, n uintptr) *kernel.Error {
	if n == 0 {
		return freelist.ErrInvalidArgument
	}
	if addr < kernelEndPage {
		return freelist.ErrInvalidArgument
	}

	pageList.Free(addr.Address(), n*mm.PageSize)
	return nil
}

// PageRegions invokes visit for every free kernel virtual page region in
// address order.
func PageRegions(visit func(start, size uintptr)) {
	pageList.Regions(visit)
}
