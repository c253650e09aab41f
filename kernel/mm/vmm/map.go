package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/mm"
	"nucleus/kernel/sync"
	"unsafe"
)

var (
	// nextAddrFn is used by used by tests to override the nextTableAddr
	// calculations used by Map. When compiling the kernel this function
	// will be automatically inlined.
	nextAddrFn = func(entryAddr uintptr) uintptr {
		return entryAddr
	}

	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	earlyReserveRegionFn = EarlyReserveRegion

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

	// ErrAlreadyMapped is returned by Map when the target page already has
	// a present mapping and the call did not set FlagAllowRemap.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped"}
)

// tableRefLock guards tableRefs, the reference count of present leaf entries
// for every page-table frame this package allocated via Map. Only tables
// this package itself created are tracked; a table frame wired up by other
// means (e.g. the bootstrap PDT set up directly by pdt.go) is left alone by
// Unmap's auto-free logic.
var (
	tableRefLock sync.Spinlock
	tableRefs    = map[mm.Frame]uint16{}
)

func trackTable(frame mm.Frame) {
	tableRefLock.Acquire()
	defer tableRefLock.Release()
	if _, ok := tableRefs[frame]; !ok {
		tableRefs[frame] = 0
	}
}

func incTableRef(frame mm.Frame) {
	tableRefLock.Acquire()
	defer tableRefLock.Release()
	if _, ok := tableRefs[frame]; ok {
		tableRefs[frame]++
	}
}

// decTableRef decrements the tracked entry count for frame. It returns true
// if frame is a tracked table and its count reached zero.
func decTableRef(frame mm.Frame) bool {
	tableRefLock.Acquire()
	defer tableRefLock.Release()
	count, ok := tableRefs[frame]
	if !ok {
		return false
	}
	count--
	tableRefs[frame] = count
	return count == 0
}

func untrackTable(frame mm.Frame) {
	tableRefLock.Acquire()
	defer tableRefLock.Release()
	delete(tableRefs, frame)
}

// Map establishes a mapping between a virtual page and a physical mmory frame
// using the currently active page directory table. Calls to Map will use the
// supplied physical frame allocator to initialize missing page tables at each
// paging level supported by the MMU.
//
// If page already has a present mapping, Map returns ErrAlreadyMapped unless
// flags includes FlagAllowRemap, in which case the existing entry is
// replaced.
func Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var (
		err              *kernel.Error
		parentTableFrame mm.Frame
	)

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) && flags&FlagAllowRemap == 0 {
				err = ErrAlreadyMapped
				return false
			}

			alreadyPresent := pte.HasFlags(FlagPresent)

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags &^ FlagAllowRemap)
			flushTLBEntryFn(page.Address())

			if !alreadyPresent {
				incTableRef(parentTableFrame)
			}
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it map it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame mm.Frame
			newTableFrame, err = mm.AllocFrame()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)
			trackTable(newTableFrame)

			// The next pte entry becomes available but we need to
			// make sure that the new page is properly cleared
			nextTableAddr := (uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1])
			kernel.Memset(nextAddrFn(nextTableAddr), 0, mm.PageSize)
		}

		parentTableFrame = pte.Frame()
		return true
	})

	return err
}

// MapAlloc reserves n physical frames, one per page, and maps them starting
// at page. If any page in the range fails to acquire a frame or fails to
// map, every page already mapped by this call is unwound (unmapped and its
// frame returned to the pool) before the error is returned, so a failed
// MapAlloc never leaves a partial mapping behind.
func MapAlloc(page mm.Page, n uintptr, flags PageTableEntryFlag) *kernel.Error {
	mapped := make([]mm.Page, 0, n)

	unwind := func() {
		for _, p := range mapped {
			if phys, terr := translateFn(p.Address()); terr == nil {
				_ = unmapFn(p)
				_ = mm.FreeFrame(mm.FrameFromAddress(phys))
			}
		}
	}

	for i := uintptr(0); i < n; i++ {
		p := page + mm.Page(i)

		frame, err := mm.AllocFrame()
		if err != nil {
			unwind()
			return err
		}

		if err := mapFn(p, frame, flags); err != nil {
			_ = mm.FreeFrame(frame)
			unwind()
			return err
		}

		mapped = append(mapped, p)
	}

	return nil
}

// MapHW establishes a mapping for a memory-mapped device register range.
// Unlike Map/MapAlloc, the range is never cached: FlagDoNotCache is always
// set regardless of the caller-supplied flags, and every mapped page is
// tagged with FlagHardware.
func MapHW(page mm.Page, frame mm.Frame, n uintptr, flags PageTableEntryFlag) *kernel.Error {
	hwFlags := flags | FlagHardware | FlagDoNotCache

	for i := uintptr(0); i < n; i++ {
		if err := mapFn(page+mm.Page(i), frame+mm.Frame(i), hwFlags); err != nil {
			for j := uintptr(0); j < i; j++ {
				_ = unmapFn(page + mm.Page(j))
			}
			return err
		}
	}

	return nil
}

// IsMapped reports whether every page in [page, page+n) currently has a
// present mapping.
func IsMapped(page mm.Page, n uintptr) bool {
	for i := uintptr(0); i < n; i++ {
		if _, err := translateFn((page + mm.Page(i)).Address()); err != nil {
			return false
		}
	}
	return true
}

// MapRegion establishes a mapping to the physical mmory region which starts
// at the given frame and ends at frame + pages(size). The size argument is
// always rounded up to the nearest page boundary. MapRegion reserves the next
// available region in the active virtual address space, establishes the
// mapping and returns back the Page that corresponds to the region start.
func MapRegion(frame mm.Frame, size uintptr, flags PageTableEntryFlag) (mm.Page, *kernel.Error) {
	// Reserve next free block in the address space
	size = (size + (mm.PageSize - 1)) & ^(mm.PageSize - 1)
	startPage, err := earlyReserveRegionFn(size)
	if err != nil {
		return 0, err
	}

	pageCount := size >> mm.PageShift
	for page := mm.PageFromAddress(startPage); pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		if err := mapFn(page, frame, flags); err != nil {
			return 0, err
		}
	}

	return mm.PageFromAddress(startPage), nil
}

// IdentityMapRegion establishes an identity mapping to the physical mmory
// region which starts at the given frame and ends at frame + pages(size). The
// size argument is always rounded up to the nearest page boundary.
// IdentityMapRegion returns back the Page that corresponds to the region
// start.
func IdentityMapRegion(startFrame mm.Frame, size uintptr, flags PageTableEntryFlag) (mm.Page, *kernel.Error) {
	startPage := mm.Page(startFrame)
	pageCount := mm.Page(((size + (mm.PageSize - 1)) & ^(mm.PageSize - 1)) >> mm.PageShift)

	for curPage := startPage; curPage < startPage+pageCount; curPage++ {
		if err := mapFn(curPage, mm.Frame(curPage), flags); err != nil {
			return 0, err
		}
	}

	return startPage, nil
}

// MapTemporary establishes a temporary RW mapping of a physical mmory frame
// to a fixed virtual address overwriting any previous mapping. The temporary
// mapping mechanism is primarily used by the kernel to access and initialize
// inactive page tables.
func MapTemporary(frame mm.Frame) (mm.Page, *kernel.Error) {
	if err := Map(mm.PageFromAddress(tempMappingAddr), frame, FlagPresent|FlagRW|FlagAllowRemap); err != nil {
		return 0, err
	}

	return mm.PageFromAddress(tempMappingAddr), nil
}

// Unmap removes a mapping previously installed via a call to Map,
// MapAlloc or MapTemporary. If removing this entry empties a page table
// this package allocated, the table's frame is returned to the pool and the
// parent entry pointing to it is cleared.
func Unmap(page mm.Page) *kernel.Error {
	var (
		err              *kernel.Error
		parentTableFrame mm.Frame
		parentEntry      *pageTableEntry
	)

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to set the
		// page as non-present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			if !pte.HasFlags(FlagPresent) {
				err = ErrInvalidMapping
				return false
			}

			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())

			if decTableRef(parentTableFrame) && parentEntry != nil {
				parentEntry.ClearFlags(FlagPresent)
				_ = mm.FreeFrame(parentTableFrame)
				untrackTable(parentTableFrame)
			}
			return true
		}

		// Next table is not present; this is an invalid mapping
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		parentEntry = pte
		parentTableFrame = pte.Frame()
		return true
	})

	return err
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	physAddr := pte.Frame().Address() + PageOffset(virtAddr)
	return physAddr, nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))
}
