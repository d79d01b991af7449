package codegen

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"ee/interrupts"
	"ee/vtlb"
)

// Register use of the emitted code:
//
//	ECX  guest address on entry, host offset or target address after the add
//	EDX  value for 8/16/32-bit writes, buffer pointer for 64/128-bit accesses
//	EAX  table entry across the add, then the slot; 8/16/32-bit read result
//	R11  scratch for 64-bit table addresses
//
// The block prologue keeps the stack aligned for the call and saves whatever
// the handler thunks clobber.

// ThunkTable holds native entry points for every handler slot. The emitted
// call indexes one row by the slot.
type ThunkTable [vtlb.W128 + 1][2][vtlb.MaxHandlers]uintptr

// Row returns the address of the first entry for w and d.
func (t *ThunkTable) Row(w vtlb.Width, d interrupts.Direction) uintptr {
	return uintptr(unsafe.Pointer(&t[w][d][0]))
}

// Layout holds the raw addresses baked into emitted code.
type Layout struct {
	Vmap     uintptr
	Host     uintptr
	Handlers [vtlb.W128 + 1][2]uintptr
}

// NewLayout reads the table addresses of v. thunks may be nil when the code
// is only inspected.
func NewLayout(v *vtlb.VTLB, thunks *ThunkTable) Layout {
	l := Layout{Vmap: v.VmapAddr(), Host: v.Host().Base()}
	if thunks != nil {
		for w := vtlb.W8; w <= vtlb.W128; w++ {
			l.Handlers[w][interrupts.Read] = thunks.Row(w, interrupts.Read)
			l.Handlers[w][interrupts.Write] = thunks.Row(w, interrupts.Write)
		}
	}
	return l
}

// AMD64 assembles x86-64 machine code.
type AMD64 struct {
	layout Layout
	code   []byte
	fixups []int
	err    error
}

func NewAMD64(l Layout) *AMD64 {
	return &AMD64{layout: l}
}

// Bytes returns the code emitted so far.
func (a *AMD64) Bytes() []byte { return a.code }

// Err reports a branch that did not fit its 8-bit displacement.
func (a *AMD64) Err() error { return a.err }

func (a *AMD64) emit(b ...byte) {
	a.code = append(a.code, b...)
}

// movR11 loads a 64-bit table address into R11.
func (a *AMD64) movR11(imm uintptr) {
	a.emit(0x49, 0xBB)
	a.code = binary.LittleEndian.AppendUint64(a.code, uint64(imm))
}

func (a *AMD64) LoadEntry() {
	a.emit(0x89, 0xC8)       // mov eax, ecx
	a.emit(0xC1, 0xE8, 0x0C) // shr eax, 12
	a.movR11(a.layout.Vmap)
	a.emit(0x41, 0x8B, 0x04, 0x83) // mov eax, [r11+rax*4]
}

func (a *AMD64) AddEntry() {
	a.emit(0x01, 0xC1) // add ecx, eax
}

func (a *AMD64) JumpIfHandler() Label {
	return a.branch(0x78) // js rel8
}

func (a *AMD64) Jump() Label {
	return a.branch(0xEB) // jmp rel8
}

func (a *AMD64) branch(op byte) Label {
	a.emit(op, 0)
	a.fixups = append(a.fixups, len(a.code)-1)
	return Label(len(a.fixups) - 1)
}

func (a *AMD64) Bind(l Label) {
	pos := a.fixups[l]
	rel := len(a.code) - (pos + 1)
	if rel > 127 && a.err == nil {
		a.err = fmt.Errorf("codegen: branch at %#x: displacement %d out of range", pos-1, rel)
	}
	a.code[pos] = byte(int8(rel))
}

func (a *AMD64) Direct(acc Access) {
	a.movR11(a.layout.Host)
	switch {
	case acc.Dir == interrupts.Read && acc.Width == vtlb.W8:
		if acc.Signed {
			a.emit(0x41, 0x0F, 0xBE, 0x04, 0x0B) // movsx eax, byte [r11+rcx]
		} else {
			a.emit(0x41, 0x0F, 0xB6, 0x04, 0x0B) // movzx eax, byte [r11+rcx]
		}
	case acc.Dir == interrupts.Read && acc.Width == vtlb.W16:
		if acc.Signed {
			a.emit(0x41, 0x0F, 0xBF, 0x04, 0x0B) // movsx eax, word [r11+rcx]
		} else {
			a.emit(0x41, 0x0F, 0xB7, 0x04, 0x0B) // movzx eax, word [r11+rcx]
		}
	case acc.Dir == interrupts.Read && acc.Width == vtlb.W32:
		a.emit(0x41, 0x8B, 0x04, 0x0B) // mov eax, [r11+rcx]
	case acc.Dir == interrupts.Read:
		// wide reads go word by word into the buffer at rdx
		for d := 0; d < acc.Width.Bytes(); d += 4 {
			a.emit(0x41, 0x8B, 0x44, 0x0B, byte(d)) // mov eax, [r11+rcx+d]
			a.emit(0x89, 0x42, byte(d))             // mov [rdx+d], eax
		}
	case acc.Width == vtlb.W8:
		a.emit(0x41, 0x88, 0x14, 0x0B) // mov [r11+rcx], dl
	case acc.Width == vtlb.W16:
		a.emit(0x66, 0x41, 0x89, 0x14, 0x0B) // mov [r11+rcx], dx
	case acc.Width == vtlb.W32:
		a.emit(0x41, 0x89, 0x14, 0x0B) // mov [r11+rcx], edx
	default:
		for d := 0; d < acc.Width.Bytes(); d += 4 {
			a.emit(0x8B, 0x42, byte(d))             // mov eax, [rdx+d]
			a.emit(0x41, 0x89, 0x44, 0x0B, byte(d)) // mov [r11+rcx+d], eax
		}
	}
}

func (a *AMD64) Reconstruct() {
	a.emit(0x0F, 0xB6, 0xC0)                   // movzx eax, al
	a.emit(0x29, 0xC1)                         // sub ecx, eax
	a.emit(0x81, 0xC1, 0x00, 0x00, 0x00, 0x80) // add ecx, 0x80000000
}

func (a *AMD64) CallHandler(acc Access) {
	a.movR11(a.layout.Handlers[acc.Width][acc.Dir])
	a.emit(0x41, 0xFF, 0x14, 0xC3) // call [r11+rax*8]
}

func (a *AMD64) Extend(acc Access) {
	switch {
	case acc.Width == vtlb.W8 && acc.Signed:
		a.emit(0x0F, 0xBE, 0xC0) // movsx eax, al
	case acc.Width == vtlb.W8:
		a.emit(0x0F, 0xB6, 0xC0) // movzx eax, al
	case acc.Signed:
		a.emit(0x0F, 0xBF, 0xC0) // movsx eax, ax
	default:
		a.emit(0x0F, 0xB7, 0xC0) // movzx eax, ax
	}
}
