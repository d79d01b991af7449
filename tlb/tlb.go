// Package tlb models the 48-entry R5900 TLB on top of the vtlb tables.
// Writing an entry maps its even and odd pages; the tables are the only
// cache, so probing and reading never touch them.
package tlb

import (
	"errors"
	"fmt"
	"log"

	"ee/hostmem"
	"ee/logger"
	"ee/vtlb"
)

const (
	Entries = 48

	// ScratchpadSize is the size of the on-chip scratchpad an entry with the
	// S bit maps.
	ScratchpadSize = 0x4000

	kseg0 = 0x80000000
	kseg2 = 0xC0000000

	maskBits = 0x01FFE000
	vpn2Bits = 0xFFFFE000
	asidBits = 0x000000FF
)

// EntryLo bits
const (
	LoGlobal     = 1 << 0
	LoValid      = 1 << 1
	LoDirty      = 1 << 2
	LoScratchpad = 1 << 31
)

var ErrIndex = errors.New("tlb: index out of range")

// Entry is one TLB entry in its coprocessor register layout.
type Entry struct {
	PageMask uint32
	EntryHi  uint32
	EntryLo0 uint32
	EntryLo1 uint32
}

// PageSize is the size of each of the two pages the entry maps.
func (e Entry) PageSize() uint32 {
	return (e.PageMask&maskBits)>>1 + 0x1000
}

// VirtualBase is the address of the even page.
func (e Entry) VirtualBase() uint32 {
	return e.EntryHi & vpn2Bits &^ (e.PageMask & maskBits)
}

func (e Entry) ASID() uint8 { return uint8(e.EntryHi & asidBits) }

func (e Entry) Global() bool {
	return e.EntryLo0&e.EntryLo1&LoGlobal != 0
}

func (e Entry) Scratchpad() bool { return e.EntryLo0&LoScratchpad != 0 }

// pfn returns the physical base of a page from its EntryLo.
func pfn(lo, size uint32) uint32 {
	return ((lo >> 6) & 0xFFFFF) << 12 &^ (size - 1)
}

// unmapped reports whether the entry lies in kseg0/kseg1, which bypass the
// TLB.
func (e Entry) unmapped() bool {
	base := e.VirtualBase()
	return base >= kseg0 && base < kseg2
}

func (e Entry) String() string {
	return fmt.Sprintf("mask %08x hi %08x lo0 %08x lo1 %08x", e.PageMask, e.EntryHi, e.EntryLo0, e.EntryLo1)
}

// TLB holds the entries and keeps the virtual table in step with them.
type TLB struct {
	vtlb    *vtlb.VTLB
	scratch hostmem.Buffer
	entries [Entries]Entry
	written [Entries]bool // holds a guest-written entry
	live    [Entries]bool // has pages in the virtual table
	log     *log.Logger
}

// New attaches a TLB to v. scratch backs scratchpad entries and must be at
// least ScratchpadSize bytes. The TLB flushes itself on every v.Reset.
func New(v *vtlb.VTLB, scratch hostmem.Buffer, log *log.Logger) *TLB {
	if log == nil {
		log = logger.Discard()
	}
	t := &TLB{vtlb: v, scratch: scratch, log: log}
	v.OnReset(t.Flush)
	return t
}

// Write replaces entry i and remaps the pages it covers.
func (t *TLB) Write(i int, e Entry) error {
	if i < 0 || i >= Entries {
		return fmt.Errorf("write %d: %w", i, ErrIndex)
	}
	t.unmap(i)
	t.entries[i] = e
	t.written[i] = true
	t.live[i] = t.remap(e)
	return nil
}

func (t *TLB) Read(i int) (Entry, error) {
	if i < 0 || i >= Entries {
		return Entry{}, fmt.Errorf("read %d: %w", i, ErrIndex)
	}
	return t.entries[i], nil
}

// Probe returns the index of the written entry matching entryHi's VPN2 and
// ASID, or -1. Entries cleared by Flush never match.
func (t *TLB) Probe(entryHi uint32) int {
	for i, e := range t.entries {
		if !t.written[i] {
			continue
		}
		mask := vpn2Bits &^ (e.PageMask & maskBits)
		if e.EntryHi&mask != entryHi&mask {
			continue
		}
		if e.Global() || e.ASID() == uint8(entryHi&asidBits) {
			return i
		}
	}
	return -1
}

// Flush unmaps every entry and clears them.
func (t *TLB) Flush() {
	for i := range t.entries {
		t.unmap(i)
		t.entries[i] = Entry{}
		t.written[i] = false
	}
}

// unmap releases the pages entry i mapped, if any.
func (t *TLB) unmap(i int) {
	if !t.live[i] {
		return
	}
	t.live[i] = false
	e := t.entries[i]
	if e.Scratchpad() {
		t.vtlb.UnmapVirtual(e.VirtualBase(), ScratchpadSize)
		return
	}
	t.vtlb.UnmapVirtual(e.VirtualBase(), 2*e.PageSize())
}

func (t *TLB) remap(e Entry) bool {
	if e.unmapped() {
		t.log.Printf("tlb: ignoring entry in kseg0/kseg1: %s\n", e)
		return false
	}
	base := e.VirtualBase()
	if e.Scratchpad() {
		t.vtlb.MapVirtualBuffer(base, t.scratch, ScratchpadSize)
		return true
	}
	even := e.EntryLo0&LoValid != 0
	odd := e.EntryLo1&LoValid != 0
	if !even && !odd {
		return false
	}
	size := e.PageSize()
	// the invalid half must miss even if something else mapped it before
	t.vtlb.UnmapVirtual(base, 2*size)
	if even {
		t.vtlb.MapVirtual(base, pfn(e.EntryLo0, size), size)
	}
	if odd {
		t.vtlb.MapVirtual(base+size, pfn(e.EntryLo1, size), size)
	}
	return true
}
