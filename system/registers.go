package system

import (
	"fmt"
	"io"
	"log"

	"ee/vtlb"
)

// RegisterFile is a block of memory-mapped registers with no side effects,
// enough to let guest code poke hardware ranges and read back what it wrote.
// Accesses wrap at the block size, so mirrors of the block land on the same
// words.
type RegisterFile struct {
	Name  string
	base  uint32
	words []uint32
	log   *log.Logger
	debug bool
}

// NewRegisterFile covers [base, base+size). size must be a power of two.
func NewRegisterFile(name string, base, size uint32, log *log.Logger, debug bool) *RegisterFile {
	if size == 0 || size&(size-1) != 0 {
		panic(fmt.Sprintf("register file %s: size %#x is not a power of two", name, size))
	}
	return &RegisterFile{Name: name, base: base, words: make([]uint32, size/4), log: log, debug: debug}
}

func (r *RegisterFile) index(addr uint32) int {
	return int((addr-r.base)&(uint32(len(r.words))*4-1)) >> 2
}

func (r *RegisterFile) trace(op string, addr uint32) {
	if r.debug {
		r.log.Printf("%s %s at %#08x\n", r.Name, op, addr)
	}
}

// Word returns the register at byte offset off.
func (r *RegisterFile) Word(off uint32) uint32 {
	return r.words[r.index(r.base+off)]
}

// SetWord sets the register at byte offset off.
func (r *RegisterFile) SetWord(off, value uint32) {
	r.words[r.index(r.base+off)] = value
}

// Clear zeroes every register.
func (r *RegisterFile) Clear() {
	clear(r.words)
}

// Dump writes the non-zero registers.
func (r *RegisterFile) Dump(w io.Writer) {
	for i, word := range r.words {
		if word != 0 {
			fmt.Fprintf(w, "%s %08x: %08x\n", r.Name, r.base+uint32(i)*4, word)
		}
	}
}

func (r *RegisterFile) read8(addr uint32) uint8 {
	r.trace("read8", addr)
	return uint8(r.words[r.index(addr)] >> ((addr & 3) * 8))
}

func (r *RegisterFile) read16(addr uint32) uint16 {
	r.trace("read16", addr)
	return uint16(r.words[r.index(addr)] >> ((addr & 2) * 8))
}

func (r *RegisterFile) read32(addr uint32) uint32 {
	r.trace("read32", addr)
	return r.words[r.index(addr)]
}

func (r *RegisterFile) read64(addr uint32) uint64 {
	r.trace("read64", addr)
	addr &^= 7
	return uint64(r.words[r.index(addr)]) | uint64(r.words[r.index(addr+4)])<<32
}

func (r *RegisterFile) read128(addr uint32) vtlb.Uint128 {
	r.trace("read128", addr)
	addr &^= 15
	return vtlb.Uint128{
		Lo: uint64(r.words[r.index(addr)]) | uint64(r.words[r.index(addr+4)])<<32,
		Hi: uint64(r.words[r.index(addr+8)]) | uint64(r.words[r.index(addr+12)])<<32,
	}
}

func (r *RegisterFile) write8(addr uint32, value uint8) {
	r.trace("write8", addr)
	i, shift := r.index(addr), (addr&3)*8
	r.words[i] = r.words[i]&^(0xff<<shift) | uint32(value)<<shift
}

func (r *RegisterFile) write16(addr uint32, value uint16) {
	r.trace("write16", addr)
	i, shift := r.index(addr), (addr&2)*8
	r.words[i] = r.words[i]&^(0xffff<<shift) | uint32(value)<<shift
}

func (r *RegisterFile) write32(addr uint32, value uint32) {
	r.trace("write32", addr)
	r.words[r.index(addr)] = value
}

func (r *RegisterFile) write64(addr uint32, value uint64) {
	r.trace("write64", addr)
	addr &^= 7
	r.words[r.index(addr)] = uint32(value)
	r.words[r.index(addr+4)] = uint32(value >> 32)
}

func (r *RegisterFile) write128(addr uint32, value vtlb.Uint128) {
	r.trace("write128", addr)
	addr &^= 15
	r.words[r.index(addr)] = uint32(value.Lo)
	r.words[r.index(addr+4)] = uint32(value.Lo >> 32)
	r.words[r.index(addr+8)] = uint32(value.Hi)
	r.words[r.index(addr+12)] = uint32(value.Hi >> 32)
}

// Handlers returns the handler set serving the block.
func (r *RegisterFile) Handlers() vtlb.Handlers {
	return vtlb.Handlers{
		Read8:    r.read8,
		Read16:   r.read16,
		Read32:   r.read32,
		Read64:   r.read64,
		Read128:  r.read128,
		Write8:   r.write8,
		Write16:  r.write16,
		Write32:  r.write32,
		Write64:  r.write64,
		Write128: r.write128,
	}
}
