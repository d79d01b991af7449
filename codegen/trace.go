package codegen

import (
	"fmt"
	"strings"

	"ee/hostmem"
	"ee/interrupts"
	"ee/vtlb"
)

// Op is one recorded Assembler step.
type Op uint8

const (
	OpLoadEntry Op = iota
	OpAddEntry
	OpJumpIfHandler
	OpDirect
	OpJump
	OpReconstruct
	OpCallHandler
	OpExtend
)

var opNames = [...]string{
	OpLoadEntry:     "load-entry",
	OpAddEntry:      "add-entry",
	OpJumpIfHandler: "js",
	OpDirect:        "direct",
	OpJump:          "jmp",
	OpReconstruct:   "reconstruct",
	OpCallHandler:   "call",
	OpExtend:        "extend",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Step is a recorded instruction. Target is the step index branches go to.
type Step struct {
	Op     Op
	Access Access
	Target int
}

// Tables is what a trace needs to run. *vtlb.VTLB implements it.
type Tables interface {
	VirtualEntry(vaddr uint32) int32
	Host() *hostmem.Arena
	Handler(slot vtlb.Slot) vtlb.Handlers
}

// Trace records the steps instead of encoding them and can replay them
// against live tables.
type Trace struct {
	steps  []Step
	labels []int
}

func (t *Trace) Steps() []Step { return t.steps }

func (t *Trace) String() string {
	var sb strings.Builder
	for i, s := range t.steps {
		switch s.Op {
		case OpJumpIfHandler, OpJump:
			fmt.Fprintf(&sb, "%2d: %s %d\n", i, s.Op, s.Target)
		case OpDirect, OpCallHandler, OpExtend:
			fmt.Fprintf(&sb, "%2d: %s %s\n", i, s.Op, s.Access)
		default:
			fmt.Fprintf(&sb, "%2d: %s\n", i, s.Op)
		}
	}
	return sb.String()
}

func (t *Trace) add(s Step) {
	t.steps = append(t.steps, s)
}

func (t *Trace) LoadEntry() { t.add(Step{Op: OpLoadEntry}) }
func (t *Trace) AddEntry() { t.add(Step{Op: OpAddEntry}) }
func (t *Trace) Direct(a Access) { t.add(Step{Op: OpDirect, Access: a}) }
func (t *Trace) Reconstruct() { t.add(Step{Op: OpReconstruct}) }
func (t *Trace) CallHandler(a Access) { t.add(Step{Op: OpCallHandler, Access: a}) }
func (t *Trace) Extend(a Access) { t.add(Step{Op: OpExtend, Access: a}) }

func (t *Trace) JumpIfHandler() Label { return t.branch(OpJumpIfHandler) }
func (t *Trace) Jump() Label { return t.branch(OpJump) }

func (t *Trace) branch(op Op) Label {
	t.add(Step{Op: op, Target: -1})
	t.labels = append(t.labels, len(t.steps)-1)
	return Label(len(t.labels) - 1)
}

func (t *Trace) Bind(l Label) {
	t.steps[t.labels[l]].Target = len(t.steps)
}

// regs mirrors the registers of the AMD64 backend.
type regs struct {
	addr   uint32
	entry  uint32
	value  vtlb.Uint128
	result vtlb.Uint128
	slow   bool
}

// Exec runs the recorded steps for one access at addr. value is the store
// operand for writes. It returns the load result, 8/16/32-bit results in
// Lo as the 32-bit register would hold them, and whether the handler path
// was taken.
func (t *Trace) Exec(tables Tables, addr uint32, value vtlb.Uint128) (vtlb.Uint128, bool) {
	r := regs{addr: addr, value: value}
	for pc := 0; pc < len(t.steps); {
		s := t.steps[pc]
		pc++
		switch s.Op {
		case OpLoadEntry:
			r.entry = uint32(tables.VirtualEntry(r.addr))
		case OpAddEntry:
			r.addr += r.entry
		case OpJumpIfHandler:
			if int32(r.addr) < 0 {
				r.slow = true
				pc = s.Target
			}
		case OpJump:
			pc = s.Target
		case OpDirect:
			direct(tables.Host(), &r, s.Access)
		case OpReconstruct:
			r.entry = uint32(uint8(r.entry))
			r.addr = r.addr - r.entry + 0x80000000
		case OpCallHandler:
			call(tables.Handler(vtlb.Slot(r.entry)), &r, s.Access)
		case OpExtend:
			r.result.Lo = extend(r.result.Lo, s.Access)
		}
	}
	return r.result, r.slow
}

func direct(host *hostmem.Arena, r *regs, a Access) {
	off := r.addr
	if a.Dir == interrupts.Read {
		switch a.Width {
		case vtlb.W8:
			r.result.Lo = extend(uint64(host.Load8(off)), a)
		case vtlb.W16:
			r.result.Lo = extend(uint64(host.Load16(off)), a)
		case vtlb.W32:
			r.result.Lo = uint64(host.Load32(off))
		case vtlb.W64:
			r.result.Lo = uint64(host.Load32(off)) | uint64(host.Load32(off+4))<<32
		case vtlb.W128:
			r.result.Lo = uint64(host.Load32(off)) | uint64(host.Load32(off+4))<<32
			r.result.Hi = uint64(host.Load32(off+8)) | uint64(host.Load32(off+12))<<32
		}
		return
	}
	switch a.Width {
	case vtlb.W8:
		host.Store8(off, uint8(r.value.Lo))
	case vtlb.W16:
		host.Store16(off, uint16(r.value.Lo))
	case vtlb.W32:
		host.Store32(off, uint32(r.value.Lo))
	case vtlb.W64:
		host.Store32(off, uint32(r.value.Lo))
		host.Store32(off+4, uint32(r.value.Lo>>32))
	case vtlb.W128:
		host.Store32(off, uint32(r.value.Lo))
		host.Store32(off+4, uint32(r.value.Lo>>32))
		host.Store32(off+8, uint32(r.value.Hi))
		host.Store32(off+12, uint32(r.value.Hi>>32))
	}
}

func call(h vtlb.Handlers, r *regs, a Access) {
	p := r.addr
	if a.Dir == interrupts.Read {
		switch a.Width {
		case vtlb.W8:
			r.result.Lo = uint64(h.Read8(p))
		case vtlb.W16:
			r.result.Lo = uint64(h.Read16(p))
		case vtlb.W32:
			r.result.Lo = uint64(h.Read32(p))
		case vtlb.W64:
			r.result.Lo = h.Read64(p)
		case vtlb.W128:
			r.result = h.Read128(p)
		}
		return
	}
	switch a.Width {
	case vtlb.W8:
		h.Write8(p, uint8(r.value.Lo))
	case vtlb.W16:
		h.Write16(p, uint16(r.value.Lo))
	case vtlb.W32:
		h.Write32(p, uint32(r.value.Lo))
	case vtlb.W64:
		h.Write64(p, r.value.Lo)
	case vtlb.W128:
		h.Write128(p, r.value)
	}
}

func extend(v uint64, a Access) uint64 {
	switch {
	case a.Width == vtlb.W8 && a.Signed:
		return uint64(uint32(int32(int8(v))))
	case a.Width == vtlb.W8:
		return uint64(uint8(v))
	case a.Signed:
		return uint64(uint32(int32(int16(v))))
	default:
		return uint64(uint16(v))
	}
}
