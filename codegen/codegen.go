/*
Package codegen emits inline guest loads and stores against the vtlb tables.

Every access follows the two-branch sequence of the interpreter:

	entry = vmap[addr >> 12]
	addr += entry                  ; entry stays live
	js    slow
	<direct access at host+addr>
	jmp   done
	slow:
	h     = entry & 0xff
	addr  = addr - h + 0x80000000
	call  handlers[width][dir][h]
	<extend narrow results>
	done:

The interpreter also rejects sums inside the host guard page. The emitted
sequence keeps the single sign test, so the handful of top-of-space bytes
whose sum wraps past zero read and write the guard page instead of
faulting; no guest buffer lives there.

Backends implement Assembler; Emit drives them so the sequence is written
down once.
*/
package codegen

import (
	"ee/interrupts"
	"ee/vtlb"
)

// Access describes one guest load or store.
type Access struct {
	Width vtlb.Width
	Dir   interrupts.Direction

	// Signed sign-extends 8 and 16-bit loads to 32 bits.
	Signed bool
}

// Narrow reports whether the access result lives in the 32-bit result
// register and needs extending.
func (a Access) Narrow() bool {
	return a.Dir == interrupts.Read && a.Width <= vtlb.W16
}

func (a Access) String() string {
	s := a.Width.String() + " " + a.Dir.String()
	if a.Signed && a.Narrow() {
		s += " signed"
	}
	return s
}

// Label is a forward branch waiting for its target.
type Label int

// Assembler is the set of steps a backend must provide.
type Assembler interface {
	// LoadEntry loads the virtual table entry of the guest address.
	LoadEntry()
	// AddEntry adds the entry to the address, keeping the entry available.
	AddEntry()
	// JumpIfHandler branches when the sum has its sign bit set.
	JumpIfHandler() Label
	// Direct performs the access at the host offset held in the address.
	Direct(a Access)
	// Jump branches unconditionally.
	Jump() Label
	// Bind resolves a label to the current position.
	Bind(l Label)
	// Reconstruct turns the sum back into the target address and leaves the
	// slot from the entry's low byte for CallHandler.
	Reconstruct()
	// CallHandler calls the slot's callback for the access width and
	// direction.
	CallHandler(a Access)
	// Extend widens narrow handler results the way Direct would have.
	Extend(a Access)
}

// Emit writes one access. Both paths leave through the same label.
func Emit(asm Assembler, a Access) {
	asm.LoadEntry()
	asm.AddEntry()
	slow := asm.JumpIfHandler()

	asm.Direct(a)
	done := asm.Jump()

	asm.Bind(slow)
	asm.Reconstruct()
	asm.CallHandler(a)
	if a.Narrow() {
		asm.Extend(a)
	}
	asm.Bind(done)
}

// Accesses lists every width and direction, with the signed narrow loads.
func Accesses() []Access {
	var out []Access
	for w := vtlb.W8; w <= vtlb.W128; w++ {
		out = append(out, Access{Width: w, Dir: interrupts.Read})
		if w <= vtlb.W16 {
			out = append(out, Access{Width: w, Dir: interrupts.Read, Signed: true})
		}
		out = append(out, Access{Width: w, Dir: interrupts.Write})
	}
	return out
}
