package vtlb

import "ee/hostmem"

// Access engine. Every call re-derives the translation from the virtual
// table:
//
//	ppf = addr + vmap[addr>>12]
//	ppf >= 0: ppf is the host offset
//	ppf <  0: slot = low byte of the entry, paddr = ppf - slot + 0x80000000
//
// The last few bytes of a handler page in the upper half wrap ppf past
// zero. Host offsets never fall in the guard page, so the direct test also
// excludes it and those bytes still reach their handler with the right
// address.
//
// Wide accesses are split into 32-bit transfers; no host atomicity beyond
// a word is assumed.

func direct(ppf uint32) bool {
	return ppf-hostmem.GuardSize < handlerBit-hostmem.GuardSize
}

func (v *VTLB) Read8(addr uint32) uint8 {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		return v.host.Load8(ppf)
	}
	hand := uint8(vmv)
	return v.handlers[hand].Read8(ppf - uint32(hand) + handlerBit)
}

func (v *VTLB) Read16(addr uint32) uint16 {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		return v.host.Load16(ppf)
	}
	hand := uint8(vmv)
	return v.handlers[hand].Read16(ppf - uint32(hand) + handlerBit)
}

func (v *VTLB) Read32(addr uint32) uint32 {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		return v.host.Load32(ppf)
	}
	hand := uint8(vmv)
	return v.handlers[hand].Read32(ppf - uint32(hand) + handlerBit)
}

func (v *VTLB) Read64(addr uint32) uint64 {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		return v.load64(ppf)
	}
	hand := uint8(vmv)
	return v.handlers[hand].Read64(ppf - uint32(hand) + handlerBit)
}

func (v *VTLB) Read128(addr uint32) Uint128 {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		return Uint128{Lo: v.load64(ppf), Hi: v.load64(ppf + 8)}
	}
	hand := uint8(vmv)
	return v.handlers[hand].Read128(ppf - uint32(hand) + handlerBit)
}

func (v *VTLB) Write8(addr uint32, value uint8) {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		v.host.Store8(ppf, value)
		return
	}
	hand := uint8(vmv)
	v.handlers[hand].Write8(ppf-uint32(hand)+handlerBit, value)
}

func (v *VTLB) Write16(addr uint32, value uint16) {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		v.host.Store16(ppf, value)
		return
	}
	hand := uint8(vmv)
	v.handlers[hand].Write16(ppf-uint32(hand)+handlerBit, value)
}

func (v *VTLB) Write32(addr uint32, value uint32) {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		v.host.Store32(ppf, value)
		return
	}
	hand := uint8(vmv)
	v.handlers[hand].Write32(ppf-uint32(hand)+handlerBit, value)
}

func (v *VTLB) Write64(addr uint32, value uint64) {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		v.store64(ppf, value)
		return
	}
	hand := uint8(vmv)
	v.handlers[hand].Write64(ppf-uint32(hand)+handlerBit, value)
}

func (v *VTLB) Write128(addr uint32, value Uint128) {
	vmv := v.vmap[addr>>PageBits]
	ppf := addr + uint32(vmv)
	if direct(ppf) {
		v.store64(ppf, value.Lo)
		v.store64(ppf+8, value.Hi)
		return
	}
	hand := uint8(vmv)
	v.handlers[hand].Write128(ppf-uint32(hand)+handlerBit, value)
}

func (v *VTLB) load64(off uint32) uint64 {
	return uint64(v.host.Load32(off)) | uint64(v.host.Load32(off+4))<<32
}

func (v *VTLB) store64(off uint32, value uint64) {
	v.host.Store32(off, uint32(value))
	v.host.Store32(off+4, uint32(value>>32))
}
