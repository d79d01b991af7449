package script

import (
	lua "github.com/yuin/gopher-lua"

	"ee/vtlb"
)

// registerHandler builds a handler set from a table of Lua functions.
// Missing entries keep the default behaviour.
func (e *Engine) registerHandler(L *lua.LState) int {
	tbl := L.CheckTable(1)
	fn := func(name string) *lua.LFunction {
		f, _ := tbl.RawGetString(name).(*lua.LFunction)
		return f
	}

	var h vtlb.Handlers
	if f := fn("read8"); f != nil {
		h.Read8 = func(a uint32) uint8 { return uint8(e.call(f, 1, a)[0]) }
	}
	if f := fn("read16"); f != nil {
		h.Read16 = func(a uint32) uint16 { return uint16(e.call(f, 1, a)[0]) }
	}
	if f := fn("read32"); f != nil {
		h.Read32 = func(a uint32) uint32 { return e.call(f, 1, a)[0] }
	}
	if f := fn("read64"); f != nil {
		h.Read64 = func(a uint32) uint64 {
			r := e.call(f, 2, a)
			return uint64(r[0])<<32 | uint64(r[1])
		}
	}
	if f := fn("read128"); f != nil {
		h.Read128 = func(a uint32) vtlb.Uint128 {
			r := e.call(f, 4, a)
			return vtlb.Uint128{
				Hi: uint64(r[0])<<32 | uint64(r[1]),
				Lo: uint64(r[2])<<32 | uint64(r[3]),
			}
		}
	}
	if f := fn("write8"); f != nil {
		h.Write8 = func(a uint32, v uint8) { e.call(f, 0, a, uint32(v)) }
	}
	if f := fn("write16"); f != nil {
		h.Write16 = func(a uint32, v uint16) { e.call(f, 0, a, uint32(v)) }
	}
	if f := fn("write32"); f != nil {
		h.Write32 = func(a uint32, v uint32) { e.call(f, 0, a, v) }
	}
	if f := fn("write64"); f != nil {
		h.Write64 = func(a uint32, v uint64) { e.call(f, 0, a, uint32(v>>32), uint32(v)) }
	}
	if f := fn("write128"); f != nil {
		h.Write128 = func(a uint32, v vtlb.Uint128) {
			e.call(f, 0, a, uint32(v.Hi>>32), uint32(v.Hi), uint32(v.Lo>>32), uint32(v.Lo))
		}
	}

	push32(L, uint32(e.v.RegisterHandler(h)))
	return 1
}

// call runs a Lua callback and returns nret results as words. Handlers must
// not fail, so a Lua error is reported and reads as zero.
func (e *Engine) call(f *lua.LFunction, nret int, args ...uint32) []uint32 {
	out := make([]uint32, nret)
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = lua.LNumber(a)
	}
	if err := e.L.CallByParam(lua.P{Fn: f, NRet: nret, Protect: true}, largs...); err != nil {
		e.log.Printf("script handler: %v\n", err)
		_ = e.console.WriteConsole("handler error: " + err.Error())
		return out
	}
	for i := nret - 1; i >= 0; i-- {
		out[i] = uint32(int64(lua.LVAsNumber(e.L.Get(-1))))
		e.L.Pop(1)
	}
	return out
}
