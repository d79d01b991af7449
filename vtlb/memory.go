package vtlb

// Memory is the guest-visible access surface. *VTLB implements it; the
// system, the scripting layer and the monitor depend on this interface
// rather than on the tables.
type Memory interface {

	// Read8 returns the byte at the virtual address addr
	Read8(addr uint32) uint8

	// Read16 returns the halfword at the virtual address addr
	Read16(addr uint32) uint16

	// Read32 returns the word at the virtual address addr
	Read32(addr uint32) uint32

	// Read64 returns the doubleword at the virtual address addr
	Read64(addr uint32) uint64

	// Read128 returns the quadword at the virtual address addr
	Read128(addr uint32) Uint128

	// Write8 writes "value" to the virtual address "addr"
	Write8(addr uint32, value uint8)

	Write16(addr uint32, value uint16)

	Write32(addr uint32, value uint32)

	Write64(addr uint32, value uint64)

	Write128(addr uint32, value Uint128)
}

var _ Memory = (*VTLB)(nil)
