package vtlb

import (
	"fmt"

	"ee/interrupts"
)

// Handlers is one handler set: a read and a write callback per access
// width. Nil callbacks fall back to the default physical behaviour, a bus
// error that reads as all ones.
//
// Callbacks run on the CPU's own context and must not block or change the
// mappings.
type Handlers struct {
	Read8   func(addr uint32) uint8
	Read16  func(addr uint32) uint16
	Read32  func(addr uint32) uint32
	Read64  func(addr uint32) uint64
	Read128 func(addr uint32) Uint128

	Write8   func(addr uint32, value uint8)
	Write16  func(addr uint32, value uint16)
	Write32  func(addr uint32, value uint32)
	Write64  func(addr uint32, value uint64)
	Write128 func(addr uint32, value Uint128)
}

// RegisterHandler assigns the next slot to h. Slots are never reused;
// running out of them is a configuration bug and panics.
func (v *VTLB) RegisterHandler(h Handlers) Slot {
	if v.count >= MaxHandlers {
		panic(fmt.Errorf("vtlb: RegisterHandler: %d slots in use: %w", v.count, ErrHandlerTableFull))
	}
	slot := Slot(v.count)
	v.count++

	if h.Read8 == nil {
		h.Read8 = v.defaultRead8
	}
	if h.Read16 == nil {
		h.Read16 = v.defaultRead16
	}
	if h.Read32 == nil {
		h.Read32 = v.defaultRead32
	}
	if h.Read64 == nil {
		h.Read64 = v.defaultRead64
	}
	if h.Read128 == nil {
		h.Read128 = v.defaultRead128
	}
	if h.Write8 == nil {
		h.Write8 = v.defaultWrite8
	}
	if h.Write16 == nil {
		h.Write16 = v.defaultWrite16
	}
	if h.Write32 == nil {
		h.Write32 = v.defaultWrite32
	}
	if h.Write64 == nil {
		h.Write64 = v.defaultWrite64
	}
	if h.Write128 == nil {
		h.Write128 = v.defaultWrite128
	}
	v.handlers[slot] = h
	return slot
}

// Handler returns the (defaulted) set registered at slot.
func (v *VTLB) Handler(slot Slot) Handlers {
	verify(int(slot) < v.count, "Handler", "slot %d is not registered", slot)
	return v.handlers[slot]
}

// HandlerCount returns the number of registered sets, built-ins included.
func (v *VTLB) HandlerCount() int { return v.count }

// default physical handler: the page exists in the window but nothing
// claimed it.

func (v *VTLB) defaultHit(name string, addr uint32, dir interrupts.Direction) {
	if v.debug {
		v.log.Printf("default physical %s: %#08x\n", name, addr)
	}
	v.dispatcher.BusError(addr, dir)
}

func (v *VTLB) defaultRead8(addr uint32) uint8 {
	v.defaultHit("read8", addr, interrupts.Read)
	return 0xff
}

func (v *VTLB) defaultRead16(addr uint32) uint16 {
	v.defaultHit("read16", addr, interrupts.Read)
	return 0xffff
}

func (v *VTLB) defaultRead32(addr uint32) uint32 {
	v.defaultHit("read32", addr, interrupts.Read)
	return 0xffffffff
}

func (v *VTLB) defaultRead64(addr uint32) uint64 {
	v.defaultHit("read64", addr, interrupts.Read)
	return ^uint64(0)
}

func (v *VTLB) defaultRead128(addr uint32) Uint128 {
	v.defaultHit("read128", addr, interrupts.Read)
	return Uint128{Lo: ^uint64(0), Hi: ^uint64(0)}
}

func (v *VTLB) defaultWrite8(addr uint32, _ uint8) {
	v.defaultHit("write8", addr, interrupts.Write)
}

func (v *VTLB) defaultWrite16(addr uint32, _ uint16) {
	v.defaultHit("write16", addr, interrupts.Write)
}

func (v *VTLB) defaultWrite32(addr uint32, _ uint32) {
	v.defaultHit("write32", addr, interrupts.Write)
}

func (v *VTLB) defaultWrite64(addr uint32, _ uint64) {
	v.defaultHit("write64", addr, interrupts.Write)
}

func (v *VTLB) defaultWrite128(addr uint32, _ Uint128) {
	v.defaultHit("write128", addr, interrupts.Write)
}
