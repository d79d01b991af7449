package vtlb

import "ee/interrupts"

// Built-in handler sets. hi is OR-ed back into the reconstructed address,
// which has lost its top bit on the way through the delta encoding.

func (v *VTLB) miss(addr uint32, dir interrupts.Direction) {
	if v.debug {
		v.log.Printf("vtlb miss: addr %#08x, %s\n", addr, dir)
	}
	v.dispatcher.TlbMiss(addr, dir)
}

func (v *VTLB) busError(addr uint32, dir interrupts.Direction) {
	if v.debug {
		v.log.Printf("vtlb bus error: addr %#08x, %s\n", addr, dir)
	}
	v.dispatcher.BusError(addr, dir)
}

func (v *VTLB) unmappedVirtual(hi uint32) Handlers {
	return faultHandlers(hi, v.miss)
}

func (v *VTLB) unmappedPhysical(hi uint32) Handlers {
	return faultHandlers(hi, v.busError)
}

// faultHandlers reports every access through fault and reads as zero.
func faultHandlers(hi uint32, fault func(uint32, interrupts.Direction)) Handlers {
	r := interrupts.Read
	w := interrupts.Write
	return Handlers{
		Read8:   func(a uint32) uint8 { fault(a|hi, r); return 0 },
		Read16:  func(a uint32) uint16 { fault(a|hi, r); return 0 },
		Read32:  func(a uint32) uint32 { fault(a|hi, r); return 0 },
		Read64:  func(a uint32) uint64 { fault(a|hi, r); return 0 },
		Read128: func(a uint32) Uint128 { fault(a|hi, r); return Uint128{} },

		Write8:   func(a uint32, _ uint8) { fault(a|hi, w) },
		Write16:  func(a uint32, _ uint16) { fault(a|hi, w) },
		Write32:  func(a uint32, _ uint32) { fault(a|hi, w) },
		Write64:  func(a uint32, _ uint64) { fault(a|hi, w) },
		Write128: func(a uint32, _ Uint128) { fault(a|hi, w) },
	}
}
