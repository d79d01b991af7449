package system

import (
	"ee/vtlb"
)

// EE physical map, as far as the tables can see it:
//
//	[0000 0000, 1000 0000) RAM, 32 MiB mirrored
//	[1000 0000, 1001 0000) hardware registers
//	[1200 0000, 1201 0000) GS privileged registers, 8 KiB mirrored
//	[1400 0000, 1fc0 0000) reserved: writes ignored, reads zero
//	[1fc0 0000, 2000 0000) boot ROM
//
// Everything else in the window keeps the default handler and reports a
// bus error. Above the window the core reports bus errors on its own.
//
// Virtual map set up at power on:
//
//	kuseg [0000 0000, 2000 0000) identity
//	kseg0 [8000 0000, a000 0000) -> physical 0, cached
//	kseg1 [a000 0000, c000 0000) -> physical 0, uncached
//	scratchpad at 7000 0000, 16 KiB
//
// The TLB owns the rest of kuseg and kseg2/kseg3 and starts out empty.

const (
	RAMSize      = 0x02000000
	ramMirrorEnd = 0x10000000

	RegisterBase = 0x10000000
	RegisterSize = 0x00010000

	GSBase       = 0x12000000
	GSSize       = 0x00002000
	gsMirrorSize = 0x00010000

	ReservedBase = 0x14000000
	ReservedEnd  = 0x1FC00000

	ROMBase = 0x1FC00000
	ROMSize = 0x00400000

	ScratchpadBase = 0x70000000
	ScratchpadSize = 0x00004000

	kuseg = 0x00000000
	kseg0 = 0x80000000
	kseg1 = 0xA0000000
)

// mapPhysical builds the physical table. Handler slots are registered here,
// in a fixed order, right after the built-ins.
func (sys *System) mapPhysical() {
	v := sys.VTLB

	v.MapBlock(sys.RAM, 0, ramMirrorEnd, RAMSize)

	sys.ioSlot = v.RegisterHandler(sys.Registers.Handlers())
	v.MapHandler(sys.ioSlot, RegisterBase, RegisterSize)

	sys.gsSlot = v.RegisterHandler(sys.GS.Handlers())
	v.MapHandler(sys.gsSlot, GSBase, GSSize)
	for start := uint32(GSBase + GSSize); start < GSBase+gsMirrorSize; start += GSSize {
		v.Mirror(GSBase, start, GSSize)
	}

	sys.reservedSlot = v.RegisterHandler(reserved())
	v.MapHandler(sys.reservedSlot, ReservedBase, ReservedEnd-ReservedBase)

	v.MapBlock(sys.ROM, ROMBase, ROMSize, 0)
}

// mapVirtual installs the fixed segments and the scratchpad.
func (sys *System) mapVirtual() {
	v := sys.VTLB
	v.MapVirtual(kuseg, 0, vtlb.PhysicalWindow)
	v.MapVirtual(kseg0, 0, vtlb.PhysicalWindow)
	v.MapVirtual(kseg1, 0, vtlb.PhysicalWindow)
	v.MapVirtualBuffer(ScratchpadBase, sys.Scratchpad, ScratchpadSize)
}

// reserved reads as zero and swallows writes without reporting anything.
func reserved() vtlb.Handlers {
	return vtlb.Handlers{
		Read8:   func(uint32) uint8 { return 0 },
		Read16:  func(uint32) uint16 { return 0 },
		Read32:  func(uint32) uint32 { return 0 },
		Read64:  func(uint32) uint64 { return 0 },
		Read128: func(uint32) vtlb.Uint128 { return vtlb.Uint128{} },

		Write8:   func(uint32, uint8) {},
		Write16:  func(uint32, uint16) {},
		Write32:  func(uint32, uint32) {},
		Write64:  func(uint32, uint64) {},
		Write128: func(uint32, vtlb.Uint128) {},
	}
}
