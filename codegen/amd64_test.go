package codegen

import (
	"strings"
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"ee/hostmem"
	"ee/interrupts"
	"ee/vtlb"
)

func testLayout(t *testing.T) (Layout, *ThunkTable) {
	t.Helper()
	host, err := hostmem.New(hostmem.PageSize)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { host.Close() })
	v := vtlb.New(host, vtlb.Options{})
	v.Initialize()
	thunks := &ThunkTable{}
	return NewLayout(v, thunks), thunks
}

func imm(inst x86asm.Inst) uint64 {
	if i, ok := inst.Args[1].(x86asm.Imm); ok {
		return uint64(i)
	}
	return 0
}

func branchTarget(inst x86asm.Inst, offset int) int {
	return offset + inst.Len + int(inst.Args[0].(x86asm.Rel))
}

func TestAMD64Sequence(t *testing.T) {
	layout, _ := testLayout(t)

	for _, acc := range Accesses() {
		t.Run(acc.String(), func(t *testing.T) {
			asm := NewAMD64(layout)
			Emit(asm, acc)
			if err := asm.Err(); err != nil {
				t.Fatal(err)
			}
			code := asm.Bytes()
			insts, offsets, err := Decode(code)
			if err != nil {
				t.Fatalf("%v\n%s", err, Disassemble(code))
			}

			head := []x86asm.Op{x86asm.MOV, x86asm.SHR, x86asm.MOV, x86asm.MOV, x86asm.ADD, x86asm.JS, x86asm.MOV}
			for i, op := range head {
				if insts[i].Op != op {
					t.Fatalf("instruction %d is %v, want %v\n%s", i, insts[i].Op, op, Disassemble(code))
				}
			}
			if imm(insts[2]) != uint64(layout.Vmap) {
				t.Errorf("vmap address %#x, want %#x", imm(insts[2]), layout.Vmap)
			}
			if m := insts[3].Args[1].(x86asm.Mem); m.Base != x86asm.R11 || m.Index != x86asm.RAX || m.Scale != 4 {
				t.Errorf("entry load operand %+v", m)
			}
			if imm(insts[6]) != uint64(layout.Host) {
				t.Errorf("host address %#x, want %#x", imm(insts[6]), layout.Host)
			}

			wantLoad := x86asm.MOV
			if acc.Narrow() && acc.Signed {
				wantLoad = x86asm.MOVSX
			} else if acc.Narrow() {
				wantLoad = x86asm.MOVZX
			}
			if insts[7].Op != wantLoad {
				t.Errorf("direct access is %v, want %v", insts[7].Op, wantLoad)
			}

			// the slow path starts where js lands and ends with the call
			// plus the optional extension
			slow := branchTarget(insts[5], offsets[5])
			s := -1
			for i, off := range offsets {
				if off == slow {
					s = i
				}
			}
			if s < 0 {
				t.Fatalf("js lands inside an instruction at %#x", slow)
			}
			if insts[s-1].Op != x86asm.JMP || branchTarget(insts[s-1], offsets[s-1]) != len(code) {
				t.Errorf("direct path does not jump to the end")
			}
			tail := []x86asm.Op{x86asm.MOVZX, x86asm.SUB, x86asm.ADD, x86asm.MOV, x86asm.CALL}
			if acc.Narrow() && acc.Signed {
				tail = append(tail, x86asm.MOVSX)
			} else if acc.Narrow() {
				tail = append(tail, x86asm.MOVZX)
			}
			if len(insts)-s != len(tail) {
				t.Fatalf("slow path has %d instructions, want %d\n%s", len(insts)-s, len(tail), Disassemble(code))
			}
			for i, op := range tail {
				if insts[s+i].Op != op {
					t.Errorf("slow instruction %d is %v, want %v", i, insts[s+i].Op, op)
				}
			}
			if got, want := imm(insts[s+3]), uint64(layout.Handlers[acc.Width][acc.Dir]); got != want {
				t.Errorf("handler row %#x, want %#x", got, want)
			}
			if m := insts[s+4].Args[0].(x86asm.Mem); m.Base != x86asm.R11 || m.Index != x86asm.RAX || m.Scale != 8 {
				t.Errorf("call operand %+v", m)
			}
		})
	}
}

func TestThunkRows(t *testing.T) {
	layout, thunks := testLayout(t)
	r8 := layout.Handlers[vtlb.W8][interrupts.Read]
	w8 := layout.Handlers[vtlb.W8][interrupts.Write]
	r16 := layout.Handlers[vtlb.W16][interrupts.Read]

	if r8 != thunks.Row(vtlb.W8, interrupts.Read) {
		t.Errorf("row mismatch")
	}
	if w8-r8 != vtlb.MaxHandlers*8 || r16-r8 != 2*vtlb.MaxHandlers*8 {
		t.Errorf("rows are not laid out per width and direction: %#x %#x %#x", r8, w8, r16)
	}
}

func TestDisassemble(t *testing.T) {
	layout, _ := testLayout(t)
	asm := NewAMD64(layout)
	Emit(asm, Access{Width: vtlb.W128, Dir: interrupts.Write})

	insts, _, err := Decode(asm.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	text := Disassemble(asm.Bytes())
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) != len(insts) {
		t.Errorf("%d lines for %d instructions", len(lines), len(insts))
	}
	if strings.Contains(text, " db ") {
		t.Errorf("undecodable bytes:\n%s", text)
	}
	if !strings.HasPrefix(lines[0], "0x0000: 89 c8") {
		t.Errorf("first line %q", lines[0])
	}
}

func TestBranchOutOfRange(t *testing.T) {
	layout, _ := testLayout(t)
	asm := NewAMD64(layout)
	l := asm.Jump()
	for i := 0; i < 4; i++ {
		asm.Direct(Access{Width: vtlb.W128, Dir: interrupts.Write})
	}
	asm.Bind(l)
	if asm.Err() == nil {
		t.Errorf("long branch accepted")
	}
}
