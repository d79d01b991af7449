package vtlb

import "ee/hostmem"

// MapHandler routes every page of [start, start+size) to slot.
func (v *VTLB) MapHandler(slot Slot, start, size uint32) {
	verifyRange("MapHandler", start, size, PhysicalWindow)
	verify(int(slot) < v.count, "MapHandler", "slot %d is not registered", slot)

	value := int32(handlerBit | uint32(slot))
	for page := start >> PageBits; size > 0; page++ {
		v.pmap[page] = value
		size -= PageSize
	}
}

// MapBlock backs [start, start+size) with the first blockSize bytes of
// base, repeated. A blockSize of 0 means size, i.e. no repetition.
func (v *VTLB) MapBlock(base hostmem.Buffer, start, size, blockSize uint32) {
	verifyRange("MapBlock", start, size, PhysicalWindow)
	if blockSize == 0 {
		blockSize = size
	}
	verify(blockSize&PageMask == 0 && blockSize > 0, "MapBlock", "block size %#x must be a non-zero page multiple", blockSize)
	verify(size%blockSize == 0, "MapBlock", "size %#x is not a multiple of block size %#x", size, blockSize)
	verify(blockSize <= base.Size, "MapBlock", "block size %#x exceeds buffer size %#x", blockSize, base.Size)
	verify(base.Offset >= hostmem.GuardSize, "MapBlock", "buffer at %#x overlaps the guard page", base.Offset)

	page := start >> PageBits
	for done := uint32(0); done < size; done += PageSize {
		v.pmap[page] = int32(base.Offset + done%blockSize)
		page++
	}
}

// Mirror copies the entries of [target, target+size) onto
// [start, start+size), page for page.
func (v *VTLB) Mirror(target, start, size uint32) {
	verifyRange("Mirror", start, size, PhysicalWindow)
	verifyRange("Mirror", target, size, PhysicalWindow)

	src := target >> PageBits
	dst := start >> PageBits
	copy(v.pmap[dst:dst+size>>PageBits], v.pmap[src:src+size>>PageBits])
}

// PhysicalPointer returns the host offset backing paddr, or false when the
// address is outside the window or handler-mapped.
func (v *VTLB) PhysicalPointer(paddr uint32) (uint32, bool) {
	if paddr >= PhysicalWindow {
		return 0, false
	}
	pme := v.pmap[paddr>>PageBits]
	if pme < 0 {
		return 0, false
	}
	return uint32(pme) + paddr&PageMask, true
}

// PhysicalBytes returns up to n bytes of guest physical memory starting at
// paddr, clipped to the end of its page. It is meant for tooling, not for
// the CPU.
func (v *VTLB) PhysicalBytes(paddr, n uint32) ([]byte, bool) {
	off, ok := v.PhysicalPointer(paddr)
	if !ok {
		return nil, false
	}
	if left := PageSize - paddr&PageMask; n > left {
		n = left
	}
	return v.host.Slice(off, n), true
}

// PhysicalEntry returns the raw physical table entry for paddr.
func (v *VTLB) PhysicalEntry(paddr uint32) int32 {
	verify(paddr < PhysicalWindow, "PhysicalEntry", "%#08x is outside the physical window", paddr)
	return v.pmap[paddr>>PageBits]
}
