package codegen

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Decode splits code into instructions. It fails on the first undecodable
// byte.
func Decode(code []byte) ([]x86asm.Inst, []int, error) {
	var insts []x86asm.Inst
	var offsets []int
	for offset := 0; offset < len(code); {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			return insts, offsets, fmt.Errorf("codegen: decode at %#x: %w", offset, err)
		}
		insts = append(insts, inst)
		offsets = append(offsets, offset)
		offset += inst.Len
	}
	return insts, offsets, nil
}

// Disassemble renders code one instruction per line.
func Disassemble(code []byte) string {
	var sb strings.Builder
	offset := 0
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			sb.WriteString(fmt.Sprintf("0x%04x: db 0x%02x\n", offset, code[offset]))
			offset++
			continue
		}

		var hexBytes []string
		for i := 0; i < inst.Len; i++ {
			hexBytes = append(hexBytes, fmt.Sprintf("%02x", code[offset+i]))
		}
		sb.WriteString(fmt.Sprintf(
			"0x%04x: %-32s %s\n",
			offset,
			strings.Join(hexBytes, " "),
			x86asm.IntelSyntax(inst, uint64(offset), nil),
		))
		offset += inst.Len
	}
	return sb.String()
}
