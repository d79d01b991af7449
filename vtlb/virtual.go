package vtlb

import "ee/hostmem"

// MapVirtual maps [vaddr, vaddr+size) onto the physical range starting at
// paddr. Physical pages outside the window become bus errors; handler-mapped
// physical pages keep their slot and get the physical address folded in.
func (v *VTLB) MapVirtual(vaddr, paddr, size uint32) {
	verifyRange("MapVirtual", vaddr, size, 1<<32)
	verify(paddr&PageMask == 0, "MapVirtual", "paddr %#08x is not page aligned", paddr)
	verify(uint64(paddr)+uint64(size) <= 1<<32, "MapVirtual", "paddr range %#08x+%#x wraps", paddr, size)

	for pages := size >> PageBits; pages > 0; pages-- {
		var pme uint32
		if paddr >= PhysicalWindow {
			pme = handlerBit | uint32(v.unmappedPhys[paddr>>31]) | paddr
		} else {
			pme = uint32(v.pmap[paddr>>PageBits])
			if int32(pme) < 0 {
				pme |= paddr
			}
		}
		v.vmap[vaddr>>PageBits] = int32(pme - vaddr)
		vaddr += PageSize
		paddr += PageSize
	}
}

// MapVirtualBuffer backs [vaddr, vaddr+size) directly with buf, bypassing
// the physical table. The buffer must outlive the mapping.
func (v *VTLB) MapVirtualBuffer(vaddr uint32, buf hostmem.Buffer, size uint32) {
	verifyRange("MapVirtualBuffer", vaddr, size, 1<<32)
	verify(size <= buf.Size, "MapVirtualBuffer", "size %#x exceeds buffer size %#x", size, buf.Size)
	verify(buf.Offset >= hostmem.GuardSize, "MapVirtualBuffer", "buffer at %#x overlaps the guard page", buf.Offset)

	off := buf.Offset
	for pages := size >> PageBits; pages > 0; pages-- {
		v.vmap[vaddr>>PageBits] = int32(off - vaddr)
		vaddr += PageSize
		off += PageSize
	}
}

// UnmapVirtual makes every access to [vaddr, vaddr+size) a TLB miss.
func (v *VTLB) UnmapVirtual(vaddr, size uint32) {
	verifyRange("UnmapVirtual", vaddr, size, 1<<32)
	v.unmapPages(vaddr>>PageBits, size>>PageBits)
}

func (v *VTLB) unmapPages(first, count uint32) {
	for i := uint32(0); i < count; i++ {
		vaddr := (first + i) << PageBits
		handl := uint32(v.unmappedVirt[vaddr>>31]) | vaddr | handlerBit
		v.vmap[first+i] = int32(handl - vaddr)
	}
}

// VirtualEntry returns the raw virtual table entry for vaddr.
func (v *VTLB) VirtualEntry(vaddr uint32) int32 {
	return v.vmap[vaddr>>PageBits]
}
