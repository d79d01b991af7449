// Package script lets a Lua file describe and poke a memory map.
//
// Globals:
//
//	alloc(size) -> buf
//	register_handler{read8=f, ..., write128=f} -> slot
//	map_handler(slot, start, size)
//	map_block(buf, start, size [, block])
//	mirror(target, start, size)
//	vmap(vaddr, paddr, size)
//	vmap_buffer(vaddr, buf, size)
//	unmap(vaddr, size)
//	read8/16/32(addr) -> value        write8/16/32(addr, value)
//	read64(addr) -> hi, lo            write64(addr, hi, lo)
//	phys(paddr) -> host offset or nil
//	regions()                         prints the virtual map
//	print(...)                        goes to the console
//
// 64-bit callbacks take and return (hi, lo); 128-bit ones four words, most
// significant first. Lua numbers are doubles, so nothing wider than 32 bits
// crosses as a single number.
package script

import (
	"errors"
	"fmt"
	"log"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"ee/console"
	"ee/hostmem"
	"ee/interrupts"
	"ee/logger"
	"ee/vtlb"
)

// Engine is a Lua state bound to one VTLB.
type Engine struct {
	L       *lua.LState
	v       *vtlb.VTLB
	buffers map[uint32]hostmem.Buffer
	console console.Console
	log     *log.Logger
}

// New creates an engine. c receives print output and handler errors.
func New(v *vtlb.VTLB, c console.Console, log *log.Logger) *Engine {
	if c == nil {
		c = console.Discard{}
	}
	if log == nil {
		log = logger.Discard()
	}
	e := &Engine{
		L:       lua.NewState(),
		v:       v,
		buffers: make(map[uint32]hostmem.Buffer),
		console: c,
		log:     log,
	}
	for name, fn := range map[string]lua.LGFunction{
		"alloc":            e.alloc,
		"register_handler": e.registerHandler,
		"map_handler":      e.mapHandler,
		"map_block":        e.mapBlock,
		"mirror":           e.mirror,
		"vmap":             e.vmap,
		"vmap_buffer":      e.vmapBuffer,
		"unmap":            e.unmap,
		"read8":            e.read8,
		"read16":           e.read16,
		"read32":           e.read32,
		"read64":           e.read64,
		"write8":           e.write8,
		"write16":          e.write16,
		"write32":          e.write32,
		"write64":          e.write64,
		"phys":             e.phys,
		"regions":          e.regions,
		"print":            e.print,
	} {
		e.L.SetGlobal(name, e.L.NewFunction(e.guard(fn)))
	}
	return e
}

// Close releases the Lua state.
func (e *Engine) Close() { e.L.Close() }

// DoString runs a chunk.
func (e *Engine) DoString(src string) error {
	if err := e.L.DoString(src); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

// DoFile runs a file.
func (e *Engine) DoFile(path string) error {
	if err := e.L.DoFile(path); err != nil {
		return fmt.Errorf("script: %s: %w", path, err)
	}
	return nil
}

// Buffer returns a buffer handed out by alloc.
func (e *Engine) Buffer(off uint32) (hostmem.Buffer, bool) {
	b, ok := e.buffers[off]
	return b, ok
}

// guard turns mapping precondition panics and guest traps into Lua errors.
func (e *Engine) guard(fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) (n int) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if t, ok := r.(interrupts.Trap); ok {
				L.RaiseError("trap: %s", t.Msg)
			}
			if err, ok := r.(error); ok && errors.Is(err, vtlb.ErrPrecondition) {
				L.RaiseError("%s", err.Error())
			}
			panic(r)
		}()
		return fn(L)
	}
}

func arg32(L *lua.LState, n int) uint32 {
	return uint32(L.CheckInt64(n))
}

func push32(L *lua.LState, v uint32) {
	L.Push(lua.LNumber(v))
}

func (e *Engine) buffer(L *lua.LState, n int) hostmem.Buffer {
	off := arg32(L, n)
	b, ok := e.buffers[off]
	if !ok {
		L.ArgError(n, fmt.Sprintf("no buffer at %#x", off))
	}
	return b
}

func (e *Engine) alloc(L *lua.LState) int {
	b, err := e.v.Host().Alloc(arg32(L, 1))
	if err != nil {
		L.RaiseError("alloc: %s", err.Error())
	}
	e.buffers[b.Offset] = b
	push32(L, b.Offset)
	return 1
}

func (e *Engine) mapHandler(L *lua.LState) int {
	e.v.MapHandler(vtlb.Slot(arg32(L, 1)), arg32(L, 2), arg32(L, 3))
	return 0
}

func (e *Engine) mapBlock(L *lua.LState) int {
	b := e.buffer(L, 1)
	e.v.MapBlock(b, arg32(L, 2), arg32(L, 3), uint32(L.OptInt64(4, 0)))
	return 0
}

func (e *Engine) mirror(L *lua.LState) int {
	e.v.Mirror(arg32(L, 1), arg32(L, 2), arg32(L, 3))
	return 0
}

func (e *Engine) vmap(L *lua.LState) int {
	e.v.MapVirtual(arg32(L, 1), arg32(L, 2), arg32(L, 3))
	return 0
}

func (e *Engine) vmapBuffer(L *lua.LState) int {
	b := e.buffer(L, 2)
	e.v.MapVirtualBuffer(arg32(L, 1), b, arg32(L, 3))
	return 0
}

func (e *Engine) unmap(L *lua.LState) int {
	e.v.UnmapVirtual(arg32(L, 1), arg32(L, 2))
	return 0
}

func (e *Engine) read8(L *lua.LState) int {
	push32(L, uint32(e.v.Read8(arg32(L, 1))))
	return 1
}

func (e *Engine) read16(L *lua.LState) int {
	push32(L, uint32(e.v.Read16(arg32(L, 1))))
	return 1
}

func (e *Engine) read32(L *lua.LState) int {
	push32(L, e.v.Read32(arg32(L, 1)))
	return 1
}

func (e *Engine) read64(L *lua.LState) int {
	v := e.v.Read64(arg32(L, 1))
	push32(L, uint32(v>>32))
	push32(L, uint32(v))
	return 2
}

func (e *Engine) write8(L *lua.LState) int {
	e.v.Write8(arg32(L, 1), uint8(arg32(L, 2)))
	return 0
}

func (e *Engine) write16(L *lua.LState) int {
	e.v.Write16(arg32(L, 1), uint16(arg32(L, 2)))
	return 0
}

func (e *Engine) write32(L *lua.LState) int {
	e.v.Write32(arg32(L, 1), arg32(L, 2))
	return 0
}

func (e *Engine) write64(L *lua.LState) int {
	e.v.Write64(arg32(L, 1), uint64(arg32(L, 2))<<32|uint64(arg32(L, 3)))
	return 0
}

func (e *Engine) phys(L *lua.LState) int {
	off, ok := e.v.PhysicalPointer(arg32(L, 1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	push32(L, off)
	return 1
}

func (e *Engine) regions(L *lua.LState) int {
	for _, r := range e.v.Regions() {
		_ = e.console.WriteConsole(r.String())
	}
	return 0
}

func (e *Engine) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	_ = e.console.WriteConsole(strings.Join(parts, "\t"))
	return 0
}
