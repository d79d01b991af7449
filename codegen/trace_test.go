package codegen

import (
	"fmt"
	"slices"
	"testing"

	"ee/hostmem"
	"ee/interrupts"
	"ee/vtlb"
)

// events collects handler calls and faults in order.
type events []string

func (e *events) TlbMiss(addr uint32, dir interrupts.Direction) {
	*e = append(*e, fmt.Sprintf("miss %s %#08x", dir, addr))
}

func (e *events) BusError(addr uint32, dir interrupts.Direction) {
	*e = append(*e, fmt.Sprintf("bus error %s %#08x", dir, addr))
}

func (e *events) add(format string, args ...any) {
	*e = append(*e, fmt.Sprintf(format, args...))
}

func (e *events) handlers() vtlb.Handlers {
	return vtlb.Handlers{
		Read8:   func(a uint32) uint8 { e.add("read8 %#08x", a); return uint8(a) | 0x80 },
		Read16:  func(a uint32) uint16 { e.add("read16 %#08x", a); return uint16(a) | 0x8000 },
		Read32:  func(a uint32) uint32 { e.add("read32 %#08x", a); return a ^ 0xffff0000 },
		Read64:  func(a uint32) uint64 { e.add("read64 %#08x", a); return uint64(a) << 16 },
		Read128: func(a uint32) vtlb.Uint128 { e.add("read128 %#08x", a); return vtlb.Uint128{Lo: uint64(a), Hi: 1} },

		Write8:   func(a uint32, x uint8) { e.add("write8 %#08x %#x", a, x) },
		Write16:  func(a uint32, x uint16) { e.add("write16 %#08x %#x", a, x) },
		Write32:  func(a uint32, x uint32) { e.add("write32 %#08x %#x", a, x) },
		Write64:  func(a uint32, x uint64) { e.add("write64 %#08x %#x", a, x) },
		Write128: func(a uint32, x vtlb.Uint128) { e.add("write128 %#08x %+v", a, x) },
	}
}

// interpret performs acc through the access engine and shapes the result
// like the trace does.
func interpret(v *vtlb.VTLB, acc Access, addr uint32, value vtlb.Uint128) vtlb.Uint128 {
	var r vtlb.Uint128
	if acc.Dir == interrupts.Read {
		switch acc.Width {
		case vtlb.W8:
			r.Lo = uint64(v.Read8(addr))
		case vtlb.W16:
			r.Lo = uint64(v.Read16(addr))
		case vtlb.W32:
			r.Lo = uint64(v.Read32(addr))
		case vtlb.W64:
			r.Lo = v.Read64(addr)
		case vtlb.W128:
			r = v.Read128(addr)
		}
		if acc.Narrow() {
			r.Lo = extend(r.Lo, acc)
		}
		return r
	}
	switch acc.Width {
	case vtlb.W8:
		v.Write8(addr, uint8(value.Lo))
	case vtlb.W16:
		v.Write16(addr, uint16(value.Lo))
	case vtlb.W32:
		v.Write32(addr, uint32(value.Lo))
	case vtlb.W64:
		v.Write64(addr, value.Lo)
	case vtlb.W128:
		v.Write128(addr, value)
	}
	return r
}

func TestTraceShape(t *testing.T) {
	tr := &Trace{}
	Emit(tr, Access{Width: vtlb.W16, Dir: interrupts.Read, Signed: true})

	want := []Op{OpLoadEntry, OpAddEntry, OpJumpIfHandler, OpDirect, OpJump, OpReconstruct, OpCallHandler, OpExtend}
	steps := tr.Steps()
	if len(steps) != len(want) {
		t.Fatalf("trace:\n%s", tr)
	}
	for i, op := range want {
		if steps[i].Op != op {
			t.Errorf("step %d is %s, want %s", i, steps[i].Op, op)
		}
	}
	if steps[2].Target != 5 || steps[4].Target != len(steps) {
		t.Errorf("branch targets %d and %d\n%s", steps[2].Target, steps[4].Target, tr)
	}
}

func TestTraceMatchesEngine(t *testing.T) {
	host, err := hostmem.New(0x20000)
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()

	var log events
	v := vtlb.New(host, vtlb.Options{Dispatcher: &log})
	v.Initialize()

	ram, _ := host.Alloc(0x10000)
	for i := uint32(0); i < ram.Size; i += 4 {
		host.Store32(ram.Offset+i, i*0x01010101^0x80808080)
	}
	io := v.RegisterHandler(log.handlers())
	v.MapBlock(ram, 0, 0x10000, 0)
	v.MapHandler(io, 0x10000000, 0x2000)
	v.MapVirtual(0x80000000, 0, 0x10000)
	v.MapVirtual(0xb0000000, 0x10000000, 0x2000)
	v.MapVirtual(0x00010000, 0x1fc00000, 0x1000)

	addrs := []struct {
		addr   uint32
		direct bool
	}{
		{0x80000010, true},
		{0x8000fff0, true},
		{0xb0000008, false},
		{0xb0001ff0, false},
		{0x00010020, false}, // default physical
		{0x00400000, false}, // unmapped, low half
		{0xc0000040, false}, // unmapped, high half
	}
	value := vtlb.Uint128{Lo: 0x8899aabbccddeeff, Hi: 0x0011223344556677}

	for _, acc := range Accesses() {
		tr := &Trace{}
		Emit(tr, acc)
		for _, a := range addrs {
			t.Run(fmt.Sprintf("%s/%#08x", acc, a.addr), func(t *testing.T) {
				log = nil
				want := interpret(v, acc, a.addr, value)
				wantLog := slices.Clone(log)

				log = nil
				got, slow := tr.Exec(v, a.addr, value)
				if got != want {
					t.Errorf("result %+v, engine %+v", got, want)
				}
				if slow == a.direct {
					t.Errorf("handler path taken = %v", slow)
				}
				if !slices.Equal(log, wantLog) {
					t.Errorf("side effects %q, engine %q", log, wantLog)
				}
				if a.direct && acc.Dir == interrupts.Write {
					back := interpret(v, Access{Width: acc.Width, Dir: interrupts.Read}, a.addr, vtlb.Uint128{})
					if mask := ^uint64(0) >> (64 - min(acc.Width.Bits(), 64)); back.Lo != value.Lo&mask {
						t.Errorf("stored %#x, read back %#x", value.Lo&mask, back.Lo)
					}
				}
			})
		}
	}
}
